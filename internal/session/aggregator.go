// Package session runs motion-triggered classification sessions: a bounded
// sampling loop that counts, per species, the frames in which it was seen and
// resolves exactly one verdict.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/pet-feeder/internal/inference"
	"github.com/banshee-data/pet-feeder/internal/monitoring"
	"github.com/banshee-data/pet-feeder/internal/species"
	"github.com/banshee-data/pet-feeder/internal/timeutil"
)

var (
	// ErrSessionActive is returned when a trigger arrives while sampling.
	ErrSessionActive = errors.New("session already active")
	// ErrUnknownTarget is returned for a target with no keyword set.
	ErrUnknownTarget = errors.New("unknown target species")
)

// Sample records the evidence from one sampled frame.
type Sample struct {
	Frame   int
	Offset  time.Duration
	Top     *inference.Classification
	Matched []species.Species
	// TargetCount is the target's cumulative count after this frame.
	TargetCount int
	Err         error
}

// Result describes a resolved motion trigger.
type Result struct {
	ID        string
	Target    species.Species
	Outcome   Outcome
	Verdict   Verdict
	Frames    int
	Counts    map[species.Species]int
	Elapsed   time.Duration
	EarlyExit bool
	Samples   []Sample
}

// Aggregator runs one session at a time against an inference source.
type Aggregator struct {
	cfg    Config
	source inference.Source
	clock  timeutil.Clock
	state  atomic.Int32
	newID  func() string
}

// NewAggregator builds an aggregator. A nil clock uses the wall clock.
func NewAggregator(cfg Config, source inference.Source, clock timeutil.Clock) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		source = inference.DisabledSource{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Aggregator{
		cfg:    cfg,
		source: source,
		clock:  clock,
		newID:  func() string { return uuid.NewString()[:8] },
	}, nil
}

// State reports where the aggregator is in its cycle.
func (a *Aggregator) State() State {
	return State(a.state.Load())
}

// Run handles one motion trigger for target. When the source is not ready or
// no target is set it returns a diagnostic result without sampling. Otherwise
// it samples until the target is consistently detected or the time budget is
// spent. A running session is not interrupted by ctx cancellation.
func (a *Aggregator) Run(ctx context.Context, target species.Species) (Result, error) {
	if a.State() != StateIdle {
		return Result{}, ErrSessionActive
	}
	// Diagnostic replies leave the aggregator Idle.
	if !a.source.Ready() {
		monitoring.Logf("WARN: motion detected, but AI not ready")
		return Result{Target: target, Outcome: OutcomeAINotReady, Verdict: VerdictAINotReady}, nil
	}
	if target == species.None {
		monitoring.Logf("WARN: motion detected, but target animal not configured")
		return Result{Outcome: OutcomeNoTarget, Verdict: VerdictNoTarget}, nil
	}
	if _, ok := a.cfg.Keywords[target]; !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTarget, target)
	}
	if !a.state.CompareAndSwap(int32(StateIdle), int32(StateSampling)) {
		return Result{}, ErrSessionActive
	}
	defer a.state.Store(int32(StateIdle))

	res := a.sample(context.WithoutCancel(ctx), target)
	a.state.Store(int32(StateResolved))
	return res, nil
}

func (a *Aggregator) sample(ctx context.Context, target species.Species) Result {
	res := Result{
		ID:      a.newID(),
		Target:  target,
		Outcome: OutcomeUndetermined,
		Counts:  make(map[species.Species]int, len(a.cfg.Keywords)),
	}
	for _, sp := range a.cfg.Keywords.Species() {
		res.Counts[sp] = 0
	}

	monitoring.Logf("AI[%s]: starting session for target %s, budget %s", res.ID, target, a.cfg.Duration)
	start := a.clock.Now()

	for a.clock.Since(start) < a.cfg.Duration {
		res.Frames++
		frameStart := a.clock.Now()
		s := Sample{Frame: res.Frames, Offset: frameStart.Sub(start)}

		results, err := a.classify(ctx)
		if err != nil {
			monitoring.Logf("ERROR: AI[%s]: frame %d classification failed: %v", res.ID, s.Frame, err)
			s.Err = err
			results = nil
		}

		matched := make(species.Set)
		for _, c := range results {
			m := species.Match(c.Label, a.cfg.Keywords)
			if len(m) > 0 {
				monitoring.Logf("AI[%s]: frame %d match %v: %s", res.ID, s.Frame, m.Slice(), c)
			}
			matched.Add(m)
		}
		// A species counts at most once per frame.
		for sp := range matched {
			res.Counts[sp]++
		}

		if len(results) > 0 {
			top := results[0]
			s.Top = &top
		}
		s.Matched = matched.Slice()
		s.TargetCount = res.Counts[target]
		res.Samples = append(res.Samples, s)
		monitoring.Logf("AI[%s]: frame %d at %.1fs top=%s matched=%v counts=%s",
			res.ID, s.Frame, s.Offset.Seconds(), topLabel(s.Top), s.Matched, formatCounts(res.Counts))

		if res.Counts[target] >= a.cfg.MinDetections {
			monitoring.Logf("AI[%s]: consistent %s detection (%d frames), exiting early", res.ID, target, res.Counts[target])
			res.Outcome = OutcomeConfirmed
			res.Verdict = Confirmed(target)
			res.EarlyExit = true
			break
		}

		if wait := a.cfg.Interval - a.clock.Since(frameStart); wait > 0 {
			a.clock.Sleep(wait)
		}
	}

	res.Elapsed = a.clock.Since(start)
	if res.Outcome == OutcomeUndetermined {
		res.Outcome, res.Verdict = a.resolve(target, res.Counts)
	}
	monitoring.Logf("AI[%s]: finished after %d frames in %s, counts=%s, verdict %s",
		res.ID, res.Frames, res.Elapsed.Round(time.Millisecond), formatCounts(res.Counts), res.Verdict)
	return res
}

func (a *Aggregator) classify(ctx context.Context) ([]inference.Classification, error) {
	if a.cfg.InferenceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.InferenceTimeout)
		defer cancel()
	}
	return a.source.Classify(ctx)
}

// resolve applies the end-of-budget policy.
func (a *Aggregator) resolve(target species.Species, counts map[species.Species]int) (Outcome, Verdict) {
	if counts[target] >= a.cfg.MinDetections {
		return OutcomeConfirmed, Confirmed(target)
	}
	for _, sp := range a.cfg.Keywords.Species() {
		if sp != target && counts[sp] >= a.cfg.MinDetections {
			return OutcomeWrongSpecies, VerdictWrongAnimal
		}
	}
	return OutcomeNoAnimal, VerdictNoAnimal
}

func topLabel(c *inference.Classification) string {
	if c == nil {
		return "none"
	}
	return c.String()
}

func formatCounts(counts map[species.Species]int) string {
	parts := make([]string, 0, len(counts))
	set := make(species.Set, len(counts))
	for sp := range counts {
		set[sp] = struct{}{}
	}
	for _, sp := range set.Slice() {
		parts = append(parts, fmt.Sprintf("%s:%d", sp, counts[sp]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}
