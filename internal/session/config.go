package session

import (
	"fmt"
	"time"

	"github.com/banshee-data/pet-feeder/internal/species"
)

// Config holds the parameters of a classification session. It is fixed when
// the aggregator is built.
type Config struct {
	// Duration is the time budget of one session.
	Duration time.Duration
	// Interval is the target spacing between samples.
	Interval time.Duration
	// MinDetections is the number of frames a species must be matched in to
	// count as consistently detected.
	MinDetections int
	// InferenceTimeout bounds a single capture. Zero waits indefinitely.
	InferenceTimeout time.Duration
	// Keywords maps labels onto species.
	Keywords species.KeywordSets
}

// DefaultConfig returns a 15 second session sampling once per second that
// needs three matching frames.
func DefaultConfig() Config {
	return Config{
		Duration:         15 * time.Second,
		Interval:         time.Second,
		MinDetections:    3,
		InferenceTimeout: 5 * time.Second,
		Keywords:         species.DefaultKeywordSets(),
	}
}

// Validate checks that the configuration can drive a session.
func (c Config) Validate() error {
	if c.Duration <= 0 {
		return fmt.Errorf("session duration must be positive, got %s", c.Duration)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("sample interval must be positive, got %s", c.Interval)
	}
	if c.MinDetections < 1 {
		return fmt.Errorf("min detections must be at least 1, got %d", c.MinDetections)
	}
	if c.InferenceTimeout < 0 {
		return fmt.Errorf("inference timeout must not be negative, got %s", c.InferenceTimeout)
	}
	if len(c.Keywords) == 0 {
		return fmt.Errorf("at least one species keyword set is required")
	}
	return nil
}
