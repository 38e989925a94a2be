// Package inference turns camera frames into ranked species labels. The
// on-sensor accelerator is owned by a helper process; this package supervises
// that process and ranks the raw scores it returns.
package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/pet-feeder/internal/monitoring"
	"github.com/banshee-data/pet-feeder/internal/timeutil"
)

var (
	// ErrNotReady is returned by Classify when the source cannot capture.
	ErrNotReady = errors.New("inference source not ready")
	// ErrWrongTask is returned when the loaded network is not a classifier.
	ErrWrongTask = errors.New("model task is not classification")
)

// Source produces ranked classifications for the current camera frame.
type Source interface {
	// Ready reports whether the camera and accelerator are initialised.
	Ready() bool
	// Classify captures one frame and returns its ranked results. An empty
	// slice with a nil error means nothing scored above the threshold.
	Classify(ctx context.Context) ([]Classification, error)
	// Close releases the camera and accelerator.
	Close() error
}

// DisabledSource is used when AI initialisation failed. It is never ready, so
// motion triggers are answered with AI_NOT_READY while the command loop keeps
// running.
type DisabledSource struct {
	// Reason is the initialisation error that disabled the source.
	Reason error
}

func (DisabledSource) Ready() bool { return false }

func (DisabledSource) Classify(context.Context) ([]Classification, error) {
	return nil, ErrNotReady
}

func (DisabledSource) Close() error { return nil }

// Opener starts a Source. It is called once per initialisation attempt.
type Opener func(ctx context.Context) (Source, error)

// InitWithRetry calls open up to attempts times with delay between failures.
// When every attempt fails it returns a DisabledSource together with the last
// error; callers log the error and continue without AI.
func InitWithRetry(ctx context.Context, clock timeutil.Clock, attempts int, delay time.Duration, open Opener) (Source, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		monitoring.Logf("AI: initialisation attempt %d/%d", attempt, attempts)
		src, err := open(ctx)
		if err == nil {
			monitoring.Logf("AI: initialised on attempt %d", attempt)
			return src, nil
		}
		lastErr = err
		monitoring.Logf("AI: initialisation attempt %d failed: %v", attempt, err)

		// A wrong model will not fix itself on retry.
		if errors.Is(err, ErrWrongTask) || errors.Is(err, ErrEmptyLabels) {
			break
		}
		if attempt < attempts {
			monitoring.Logf("AI: retrying in %s", delay)
			if err := timeutil.SleepContext(ctx, clock, delay); err != nil {
				lastErr = err
				break
			}
		}
	}

	err := fmt.Errorf("AI initialisation failed: %w", lastErr)
	monitoring.Logf("AI: all initialisation attempts failed; AI features disabled")
	return DisabledSource{Reason: err}, err
}
