package serialmux

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/pet-feeder/internal/monitoring"
	"github.com/banshee-data/pet-feeder/internal/timeutil"
)

// ErrNotConnected is returned by Link.SendCommand while the port is down.
var ErrNotConnected = errors.New("serial port not connected")

var errPortLost = errors.New("serial port closed")

const (
	DefaultRetryDelay  = 5 * time.Second
	DefaultSettleDelay = 2 * time.Second
	defaultLineBuffer  = 64
)

// LinkConfig configures a Link.
type LinkConfig struct {
	Path    string
	Options PortOptions
	Factory SerialPortFactory

	// RetryDelay is the wait between a lost connection and the next open.
	RetryDelay time.Duration
	// SettleDelay is the wait after opening, while the board resets.
	SettleDelay time.Duration

	Clock      timeutil.Clock
	LineBuffer int
}

// Link keeps a single serial connection alive. Run owns the open, monitor and
// reconnect cycle; every other method is safe to call concurrently with it.
type Link struct {
	cfg   LinkConfig
	lines chan Line

	mu  sync.Mutex
	mux *SerialMux[SerialPorter]

	tapMu sync.Mutex
	taps  map[string]chan string

	shutdownOnce sync.Once
}

// NewLink applies defaults to cfg and returns an unconnected Link.
func NewLink(cfg LinkConfig) *Link {
	if cfg.Factory == nil {
		cfg.Factory = RealPortFactory{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.LineBuffer <= 0 {
		cfg.LineBuffer = defaultLineBuffer
	}
	return &Link{
		cfg:   cfg,
		lines: make(chan Line, cfg.LineBuffer),
		taps:  make(map[string]chan string),
	}
}

// Lines returns the channel of inbound lines. It is never closed.
func (l *Link) Lines() <-chan Line {
	return l.lines
}

// Connected reports whether a port is currently open.
func (l *Link) Connected() bool {
	return l.current() != nil
}

// Run connects and reconnects until ctx is done. The connection that is open
// when ctx ends is left open so Shutdown can say goodbye on it.
func (l *Link) Run(ctx context.Context) error {
	for {
		err := l.connect(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		monitoring.Logf("ERROR: Serial: %s: %v; retrying in %s", l.cfg.Path, err, l.cfg.RetryDelay)
		if err := timeutil.SleepContext(ctx, l.cfg.Clock, l.cfg.RetryDelay); err != nil {
			return err
		}
	}
}

func (l *Link) connect(ctx context.Context) error {
	port, err := l.cfg.Factory.Open(l.cfg.Path, l.cfg.Options)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	mux := NewSerialMux(port)
	mux.SetClock(l.cfg.Clock)
	monitoring.Logf("Serial: opened %s (%s), settling for %s", l.cfg.Path, l.cfg.Options, l.cfg.SettleDelay)

	if err := timeutil.SleepContext(ctx, l.cfg.Clock, l.cfg.SettleDelay); err != nil {
		mux.Close()
		return err
	}

	id, ch := mux.Subscribe()
	l.setMux(mux)
	if err := mux.Initialise(); err != nil {
		l.drop(mux)
		return fmt.Errorf("announce: %w", err)
	}
	monitoring.Logf("Serial: -> PI_READY")

	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		l.forward(ctx, ch)
	}()

	err = mux.Monitor(ctx)
	if ctx.Err() != nil {
		mux.Unsubscribe(id)
		<-forwarded
		return ctx.Err()
	}
	l.drop(mux)
	<-forwarded
	if err == nil {
		err = errPortLost
	}
	return err
}

func (l *Link) forward(ctx context.Context, ch <-chan Line) {
	for line := range ch {
		monitoring.Logf("Serial: <- %s", line.Text)
		l.publish(line.Text)
		select {
		case l.lines <- line:
		case <-ctx.Done():
			return
		}
	}
}

// SendCommand writes one protocol line. A failed write closes the port so
// Run reconnects.
func (l *Link) SendCommand(command string) error {
	mux := l.current()
	if mux == nil {
		monitoring.Logf("WARN: Serial: not connected, dropping %q", command)
		return ErrNotConnected
	}
	if err := mux.SendCommand(command); err != nil {
		monitoring.Logf("ERROR: Serial: write %q failed: %v", command, err)
		l.drop(mux)
		return fmt.Errorf("send %q: %w", command, err)
	}
	monitoring.Logf("Serial: -> %s", command)
	return nil
}

// Shutdown announces PI_SHUTTING_DOWN on the open connection, if any, and
// closes it. Only the first call has an effect. Call it after Run returns.
func (l *Link) Shutdown() {
	l.shutdownOnce.Do(func() {
		mux := l.current()
		if mux == nil {
			monitoring.Logf("Serial: not connected, no shutdown notice sent")
			return
		}
		if err := mux.SendCommand("PI_SHUTTING_DOWN"); err != nil {
			monitoring.Logf("WARN: Serial: shutdown notice failed: %v", err)
		} else {
			monitoring.Logf("Shutting down. Sent PI_SHUTTING_DOWN")
		}
		l.drop(mux)
		l.tapMu.Lock()
		for id, ch := range l.taps {
			close(ch)
			delete(l.taps, id)
		}
		l.tapMu.Unlock()
	})
}

func (l *Link) current() *SerialMux[SerialPorter] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mux
}

func (l *Link) setMux(mux *SerialMux[SerialPorter]) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mux = mux
}

// drop closes mux and forgets it if it is still the current connection.
func (l *Link) drop(mux *SerialMux[SerialPorter]) {
	l.mu.Lock()
	if l.mux == mux {
		l.mux = nil
	}
	l.mu.Unlock()
	if err := mux.Close(); err != nil {
		monitoring.Logf("WARN: Serial: close: %v", err)
	}
}

// Subscribe returns a tap on inbound lines that survives reconnects. Lines are
// dropped for a tap that falls behind.
func (l *Link) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	l.tapMu.Lock()
	defer l.tapMu.Unlock()
	l.taps[id] = ch
	return id, ch
}

// Unsubscribe removes a tap.
func (l *Link) Unsubscribe(id string) {
	l.tapMu.Lock()
	defer l.tapMu.Unlock()
	if ch, ok := l.taps[id]; ok {
		close(ch)
		delete(l.taps, id)
	}
}

func (l *Link) publish(text string) {
	l.tapMu.Lock()
	defer l.tapMu.Unlock()
	for _, ch := range l.taps {
		select {
		case ch <- text:
		default:
		}
	}
}
