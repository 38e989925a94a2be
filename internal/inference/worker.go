package inference

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/pet-feeder/internal/monitoring"
)

// ErrWorkerExited is returned when the helper process is no longer running.
var ErrWorkerExited = errors.New("inference worker exited")

// WorkerConfig describes how to launch the accelerator helper.
//
// The helper owns the camera and the IMX500 firmware. It speaks JSON lines:
//
//	helper → {"ready":true,"task":"classification"}     once, after warm-up
//	feeder → {"seq":1,"cmd":"capture"}
//	helper → {"seq":1,"scores":[...]}                    raw output tensor
//	helper → {"seq":1,"error":"no metadata"}             capture failed
//
// An empty scores array means no tensor was available for the frame.
type WorkerConfig struct {
	// Command is the helper argv; ModelPath is appended as --model.
	Command   []string
	ModelPath string
	Labels    []string
	Rank      RankOptions
	// StartTimeout bounds the wait for the ready handshake.
	StartTimeout time.Duration
	// StopTimeout bounds the wait for a clean exit before the helper is killed.
	StopTimeout time.Duration
}

type workerRequest struct {
	Seq uint64 `json:"seq"`
	Cmd string `json:"cmd"`
}

type workerMessage struct {
	Seq    uint64    `json:"seq"`
	Ready  bool      `json:"ready,omitempty"`
	Task   string    `json:"task,omitempty"`
	Scores []float64 `json:"scores,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// WorkerSource is a Source backed by a supervised helper process.
type WorkerSource struct {
	cfg WorkerConfig

	cmd   *exec.Cmd
	stdin io.WriteCloser

	// classifyMu serialises capture requests; the helper handles one at a time.
	classifyMu sync.Mutex
	seq        uint64

	messages chan workerMessage
	ready    atomic.Bool
	done     chan struct{}
	waitErr  error

	closeOnce sync.Once
}

// StartWorker launches the helper and waits for its ready handshake. The
// process is bound to ctx and is killed when ctx is cancelled.
func StartWorker(ctx context.Context, cfg WorkerConfig) (*WorkerSource, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("worker command is required")
	}
	if len(cfg.Labels) == 0 {
		return nil, ErrEmptyLabels
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 60 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 2 * time.Second
	}

	args := append([]string{}, cfg.Command[1:]...)
	if cfg.ModelPath != "" {
		args = append(args, "--model", cfg.ModelPath)
	}
	cmd := exec.CommandContext(ctx, cfg.Command[0], args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker %q: %w", cfg.Command[0], err)
	}
	monitoring.Logf("AI: worker started (pid %d, model %s)", cmd.Process.Pid, cfg.ModelPath)

	w := &WorkerSource{
		cfg:      cfg,
		cmd:      cmd,
		stdin:    stdin,
		messages: make(chan workerMessage, 8),
		done:     make(chan struct{}),
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() { defer readers.Done(); w.readMessages(stdout) }()
	go func() { defer readers.Done(); w.logStderr(stderr) }()
	go func() {
		// Wait must not run until both pipes are drained.
		readers.Wait()
		w.waitErr = cmd.Wait()
		w.ready.Store(false)
		close(w.done)
		monitoring.Logf("AI: worker exited: %v", w.waitErr)
	}()

	if err := w.awaitReady(ctx); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func (w *WorkerSource) awaitReady(ctx context.Context) error {
	timeout := time.NewTimer(w.cfg.StartTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return fmt.Errorf("worker not ready after %s", w.cfg.StartTimeout)
		case <-w.done:
			return fmt.Errorf("%w before handshake: %v", ErrWorkerExited, w.waitErr)
		case msg := <-w.messages:
			if msg.Error != "" {
				return fmt.Errorf("worker startup: %s", msg.Error)
			}
			// Networks without intrinsics report no task; treat as a classifier.
			if msg.Task != "" && msg.Task != "classification" {
				return fmt.Errorf("%w: got %q", ErrWrongTask, msg.Task)
			}
			if !msg.Ready {
				continue
			}
			w.ready.Store(true)
			return nil
		}
	}
}

func (w *WorkerSource) readMessages(r io.Reader) {
	scan := bufio.NewScanner(r)
	// A full ImageNet output tensor is roughly 20 KB of JSON.
	scan.Buffer(make([]byte, 64*1024), 1024*1024)
	for scan.Scan() {
		var msg workerMessage
		if err := json.Unmarshal(scan.Bytes(), &msg); err != nil {
			line := scan.Text()
			if len(line) > 120 {
				line = line[:120] + "..."
			}
			monitoring.Logf("WARN: AI: undecodable worker output %q: %v", line, err)
			continue
		}
		select {
		case w.messages <- msg:
		default:
			monitoring.Logf("WARN: AI: dropping worker response seq=%d, nobody waiting", msg.Seq)
		}
	}
	if err := scan.Err(); err != nil {
		monitoring.Logf("ERROR: AI: reading worker output: %v", err)
	}
}

func (w *WorkerSource) logStderr(r io.Reader) {
	scan := bufio.NewScanner(r)
	for scan.Scan() {
		monitoring.Logf("AI worker: %s", scan.Text())
	}
}

// Ready reports whether the handshake completed and the helper is running.
func (w *WorkerSource) Ready() bool {
	return w.ready.Load()
}

// Classify requests one capture. Responses to earlier requests that timed out
// are discarded by sequence number.
func (w *WorkerSource) Classify(ctx context.Context) ([]Classification, error) {
	w.classifyMu.Lock()
	defer w.classifyMu.Unlock()

	if !w.Ready() {
		return nil, ErrNotReady
	}

	w.seq++
	seq := w.seq
	req, err := json.Marshal(workerRequest{Seq: seq, Cmd: "capture"})
	if err != nil {
		return nil, err
	}
	if _, err := w.stdin.Write(append(req, '\n')); err != nil {
		return nil, fmt.Errorf("capture %d: failed to write request: %w", seq, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("capture %d: %w", seq, ctx.Err())
		case <-w.done:
			return nil, fmt.Errorf("capture %d: %w", seq, ErrWorkerExited)
		case msg := <-w.messages:
			if msg.Seq != seq {
				monitoring.Logf("WARN: AI: discarding stale worker response seq=%d (want %d)", msg.Seq, seq)
				continue
			}
			if msg.Error != "" {
				return nil, fmt.Errorf("capture %d: %s", seq, msg.Error)
			}
			return Rank(msg.Scores, w.cfg.Labels, w.cfg.Rank), nil
		}
	}
}

// Close asks the helper to exit by closing its stdin and kills it if it does
// not stop within StopTimeout.
func (w *WorkerSource) Close() error {
	w.closeOnce.Do(func() {
		w.ready.Store(false)
		_ = w.stdin.Close()
		select {
		case <-w.done:
		case <-time.After(w.cfg.StopTimeout):
			monitoring.Logf("WARN: AI: worker did not stop within %s, killing", w.cfg.StopTimeout)
			if w.cmd.Process != nil {
				_ = w.cmd.Process.Kill()
			}
			<-w.done
		}
	})
	return nil
}
