// Package controller dispatches microcontroller commands: it holds the target
// species, runs a classification session for each motion trigger and writes
// replies back over the serial link.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/pet-feeder/internal/monitoring"
	"github.com/banshee-data/pet-feeder/internal/serialmux"
	"github.com/banshee-data/pet-feeder/internal/session"
	"github.com/banshee-data/pet-feeder/internal/species"
	"github.com/banshee-data/pet-feeder/internal/timeutil"
)

// Sender writes one outbound protocol line.
type Sender interface {
	SendCommand(command string) error
}

// Sessions runs a classification session for a motion trigger.
type Sessions interface {
	Run(ctx context.Context, target species.Species) (session.Result, error)
}

// Snapshot is a read-only copy of the controller state for status reporting.
type Snapshot struct {
	Target        species.Species `json:"target"`
	Sessions      int             `json:"sessions"`
	LastSessionID string          `json:"last_session_id,omitempty"`
	LastVerdict   session.Verdict `json:"last_verdict,omitempty"`
	LastFrames    int             `json:"last_frames,omitempty"`
	LastAt        time.Time       `json:"last_at,omitzero"`
	DroppedMotion int             `json:"dropped_motion"`
}

// State holds the target species and session history. The command loop is
// the only writer.
type State struct {
	mu   sync.Mutex
	snap Snapshot
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *State) target() species.Species {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Target
}

func (s *State) update(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snap)
}

// Controller handles inbound protocol lines one at a time.
type Controller struct {
	out      Sender
	sessions Sessions
	keywords species.KeywordSets
	clock    timeutil.Clock
	state    State

	// lastSessionEnd is the clock time the previous session resolved. Motion
	// lines read at or before it arrived while that session was sampling.
	lastSessionEnd time.Time
}

// New builds a Controller. A nil clock uses the wall clock; it must be the
// same clock that stamps inbound lines.
func New(out Sender, sessions Sessions, keywords species.KeywordSets, clock timeutil.Clock) *Controller {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Controller{
		out:      out,
		sessions: sessions,
		keywords: keywords,
		clock:    clock,
	}
}

// State exposes the controller state for read-only status reporting.
func (c *Controller) State() *State {
	return &c.state
}

// Run processes lines until ctx is done. A line that fails unexpectedly is
// answered with PI_ERROR_PROCESSING and the loop carries on.
func (c *Controller) Run(ctx context.Context, lines <-chan serialmux.Line) error {
	monitoring.Logf("System ready. Waiting for commands from Arduino...")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line := <-lines:
			if err := c.Handle(ctx, line); err != nil {
				monitoring.Logf("ERROR: processing %q: %v", line.Text, err)
				c.reply(PiErrProcessing)
			}
		}
	}
}

// Handle processes a single inbound line.
func (c *Controller) Handle(ctx context.Context, line serialmux.Line) error {
	cmd, err := Parse(line.Text)
	if err != nil {
		monitoring.Logf("WARN: ignoring %v", err)
		return nil
	}

	switch cmd.Kind {
	case KindTargetAnimal:
		c.setTarget(cmd.Name)
	case KindPing:
		c.reply(PiPong)
	case KindMotion:
		return c.motion(ctx, line)
	}
	return nil
}

func (c *Controller) setTarget(name string) {
	sp, ok := c.keywords.Recognized(name)
	if !ok {
		monitoring.Logf("WARN: Unknown target animal %q from Arduino.", name)
		c.reply(RejectTarget(name))
		return
	}
	c.state.update(func(s *Snapshot) { s.Target = sp })
	monitoring.Logf("Config: Target animal set to: %s", sp)
	c.reply(AckTarget(string(sp)))
}

func (c *Controller) motion(ctx context.Context, line serialmux.Line) error {
	if !line.Received.IsZero() && !line.Received.After(c.lastSessionEnd) {
		monitoring.Logf("INFO: Motion re-triggered while AI active, ignoring")
		c.state.update(func(s *Snapshot) { s.DroppedMotion++ })
		return nil
	}

	res, err := c.sessions.Run(ctx, c.state.target())
	if errors.Is(err, session.ErrSessionActive) {
		monitoring.Logf("INFO: Motion re-triggered while AI active, ignoring")
		c.state.update(func(s *Snapshot) { s.DroppedMotion++ })
		return nil
	}
	if err != nil {
		return fmt.Errorf("motion session: %w", err)
	}

	if res.Outcome != session.OutcomeAINotReady && res.Outcome != session.OutcomeNoTarget {
		c.lastSessionEnd = c.clock.Now()
		c.state.update(func(s *Snapshot) {
			s.Sessions++
			s.LastSessionID = res.ID
			s.LastVerdict = res.Verdict
			s.LastFrames = res.Frames
			s.LastAt = c.lastSessionEnd
		})
	}
	c.reply(string(res.Verdict))
	return nil
}

// reply sends a line. Transport failures are logged by the link and recovered
// by reconnecting, so they are not reported as processing errors.
func (c *Controller) reply(msg string) {
	if err := c.out.SendCommand(msg); err != nil {
		monitoring.Logf("WARN: reply %q not delivered: %v", msg, err)
	}
}
