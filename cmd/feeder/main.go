package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/banshee-data/pet-feeder/internal/api"
	"github.com/banshee-data/pet-feeder/internal/config"
	"github.com/banshee-data/pet-feeder/internal/controller"
	"github.com/banshee-data/pet-feeder/internal/inference"
	"github.com/banshee-data/pet-feeder/internal/monitoring"
	"github.com/banshee-data/pet-feeder/internal/serialmux"
	"github.com/banshee-data/pet-feeder/internal/session"
	"github.com/banshee-data/pet-feeder/internal/timeutil"
	"github.com/banshee-data/pet-feeder/internal/version"
)

var (
	configPath   = flag.String("config", config.DefaultConfigPath, "Path to the JSON config file")
	port         = flag.String("port", "", "Serial port to use, overrides serial_port (ignored in dev mode)")
	listen       = flag.String("listen", "", "Status server listen address, overrides listen")
	devMode      = flag.Bool("dev", false, "Run in dev mode: protocol lines on stdin/stdout, no startup delay")
	disableAI    = flag.Bool("disable-ai", false, "Skip AI initialisation; motion triggers answer AI_NOT_READY")
	replayPath   = flag.String("replay", "", "Replay classification frames from a JSONL file instead of the camera")
	startupDelay = flag.Duration("startup-delay", -1, "Wait before initialising, overrides startup_delay")
	lockPath     = flag.String("lock", filepath.Join(os.TempDir(), "pet-feeder.lock"), "Single-instance lock file")
	showStatus   = flag.Bool("status", false, "Print the status of the running feeder and exit")
	showVersion  = flag.Bool("version", false, "Print version information and exit")
)

// flagSet reports whether the named flag was given on the command line.
func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// loadConfig reads the config file. The default path may be absent, in
// which case built-in defaults apply; an explicit path must exist.
func loadConfig(path string, explicit bool) (*config.FeederConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !explicit {
		return &config.FeederConfig{}, nil
	}
	return config.Load(path)
}

// applyOverrides folds command line overrides into cfg.
func applyOverrides(cfg *config.FeederConfig) {
	if *port != "" {
		cfg.SerialPort = port
	}
	if *listen != "" {
		cfg.Listen = listen
	}
	switch {
	case *startupDelay >= 0:
		d := startupDelay.String()
		cfg.StartupDelay = &d
	case *devMode:
		zero := "0s"
		cfg.StartupDelay = &zero
	}
}

// sourceOpener returns how each AI initialisation attempt opens its source.
func sourceOpener(cfg *config.FeederConfig, replay string) inference.Opener {
	if replay != "" {
		return func(ctx context.Context) (inference.Source, error) {
			src, err := inference.LoadReplayFile(replay, cfg.RankOptions())
			if err != nil {
				return nil, err
			}
			return src, nil
		}
	}
	return func(ctx context.Context) (inference.Source, error) {
		labels, err := inference.LoadLabels(cfg.GetLabelsPath())
		if err != nil {
			return nil, err
		}
		// The helper must outlive shutdown so an in-flight session can finish.
		src, err := inference.StartWorker(context.WithoutCancel(ctx), inference.WorkerConfig{
			Command:   cfg.GetWorkerCommand(),
			ModelPath: cfg.GetModelPath(),
			Labels:    labels,
			Rank:      cfg.RankOptions(),
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}

// initSource brings up the inference source, falling back to a disabled one.
func initSource(ctx context.Context, cfg *config.FeederConfig, clock timeutil.Clock) inference.Source {
	if *disableAI {
		log.Printf("AI disabled by --disable-ai")
		return inference.DisabledSource{Reason: errors.New("disabled by flag")}
	}
	src, err := inference.InitWithRetry(ctx, clock, cfg.GetAIInitAttempts(), cfg.GetAIInitDelay(), sourceOpener(cfg, *replayPath))
	if err != nil {
		log.Printf("CRITICAL: %v", err)
	}
	return src
}

func printStatus(addr string) error {
	st, err := api.NewClient(addr, nil).Status()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	log.SetOutput(os.Stdout)
	log.SetPrefix(monitoring.LogPrefix)
	log.SetFlags(log.Lmsgprefix)
	monitoring.SetLogger(monitoring.NewPrefixLogger(os.Stdout, monitoring.LogPrefix))

	cfg, err := loadConfig(*configPath, flagSet("config"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if *showStatus {
		if err := printStatus(cfg.GetListen()); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	lock := flock.New(*lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatalf("failed to acquire lock %s: %v", *lockPath, err)
	}
	if !locked {
		log.Fatalf("another pet-feeder is already running (lock %s)", *lockPath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Printf("failed to release lock: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	clock := timeutil.RealClock{}

	log.Printf("%s starting. Waiting %s before proceeding...", version.String(), cfg.GetStartupDelay())
	if err := timeutil.SleepContext(ctx, clock, cfg.GetStartupDelay()); err != nil {
		log.Printf("interrupted during startup delay")
		return
	}

	source := initSource(ctx, cfg, clock)
	defer func() {
		if err := source.Close(); err != nil {
			log.Printf("failed to close inference source: %v", err)
		}
	}()

	agg, err := session.NewAggregator(cfg.SessionConfig(), source, clock)
	if err != nil {
		log.Fatalf("invalid session config: %v", err)
	}

	var factory serialmux.SerialPortFactory = serialmux.RealPortFactory{}
	if *devMode {
		factory = serialmux.ConsolePortFactory{}
	}
	link := serialmux.NewLink(serialmux.LinkConfig{
		Path:        cfg.GetSerialPort(),
		Options:     cfg.PortOptions(),
		Factory:     factory,
		RetryDelay:  cfg.GetSerialRetryDelay(),
		SettleDelay: cfg.GetSerialSettleDelay(),
		Clock:       clock,
	})
	defer link.Shutdown()

	ctrl := controller.New(link, agg, cfg.GetKeywordSets(), clock)

	// Create a wait group for the HTTP server, serial link, and command routines
	var wg sync.WaitGroup

	// maintain the serial connection, reconnecting as needed
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := link.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("serial link stopped: %v", err)
		}
		log.Print("serial routine terminated")
	}()

	// process commands one at a time; sessions run inline
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ctrl.Run(ctx, link.Lines()); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("command loop stopped: %v", err)
		}
		log.Print("command routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(source, link, agg, ctrl.State(), clock).ServeMux()
		link.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    cfg.GetListen(),
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("status server listening on %s", cfg.GetListen())
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("status server failed: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Shutting down")
}
