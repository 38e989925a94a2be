package inference

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pet-feeder/internal/monitoring"
	"github.com/banshee-data/pet-feeder/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestDisabledSource(t *testing.T) {
	src := DisabledSource{}
	assert.False(t, src.Ready())
	_, err := src.Classify(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	assert.NoError(t, src.Close())
}

func TestInitWithRetry_SucceedsAfterFailures(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	calls := 0
	want := NewReplaySource([]Frame{{}}, DefaultRankOptions())

	src, err := InitWithRetry(context.Background(), clock, 3, 15*time.Second, func(context.Context) (Source, error) {
		calls++
		if calls < 3 {
			return nil, fmt.Errorf("camera busy (attempt %d)", calls)
		}
		return want, nil
	})

	require.NoError(t, err)
	assert.Same(t, want, src)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{15 * time.Second, 15 * time.Second}, clock.Sleeps())
}

func TestInitWithRetry_AllFail(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	calls := 0
	boom := errors.New("imx500 firmware upload failed")

	src, err := InitWithRetry(context.Background(), clock, 3, time.Second, func(context.Context) (Source, error) {
		calls++
		return nil, boom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
	assert.False(t, src.Ready())
	disabled, ok := src.(DisabledSource)
	require.True(t, ok)
	assert.ErrorIs(t, disabled.Reason, boom)
	// no delay after the last attempt
	assert.Len(t, clock.Sleeps(), 2)
}

func TestInitWithRetry_WrongTaskNotRetried(t *testing.T) {
	clock := timeutil.NewMockClock(time.Time{})
	calls := 0

	src, err := InitWithRetry(context.Background(), clock, 3, time.Second, func(context.Context) (Source, error) {
		calls++
		return nil, fmt.Errorf("%w: got %q", ErrWrongTask, "object detection")
	})

	assert.ErrorIs(t, err, ErrWrongTask)
	assert.Equal(t, 1, calls)
	assert.False(t, src.Ready())
}

func TestInitWithRetry_ZeroAttemptsStillTriesOnce(t *testing.T) {
	calls := 0
	_, _ = InitWithRetry(context.Background(), timeutil.NewMockClock(time.Time{}), 0, time.Second, func(context.Context) (Source, error) {
		calls++
		return nil, errors.New("nope")
	})
	assert.Equal(t, 1, calls)
}
