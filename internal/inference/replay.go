package inference

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Frame is one recorded classifier output used by ReplaySource.
type Frame struct {
	Results []Classification `json:"results,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// ReplaySource replays recorded frames in order, wrapping around at the end.
// It backs --dev runs on machines without the camera, and tests.
type ReplaySource struct {
	mu     sync.Mutex
	frames []Frame
	next   int
	rank   RankOptions
	closed bool
}

// NewReplaySource returns a source over frames. Results in each frame are
// ranked and thresholded with opts, like live output.
func NewReplaySource(frames []Frame, opts RankOptions) *ReplaySource {
	return &ReplaySource{frames: frames, rank: opts}
}

// LoadReplayFile reads frames from a JSON-lines file, one Frame per line.
func LoadReplayFile(path string, opts RankOptions) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay file: %w", err)
	}
	defer f.Close()

	var frames []Frame
	scan := bufio.NewScanner(f)
	lineNo := 0
	for scan.Scan() {
		lineNo++
		if len(scan.Bytes()) == 0 {
			continue
		}
		var fr Frame
		if err := json.Unmarshal(scan.Bytes(), &fr); err != nil {
			return nil, fmt.Errorf("replay file %s line %d: %w", path, lineNo, err)
		}
		frames = append(frames, fr)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("failed to read replay file: %w", err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("replay file %s has no frames", path)
	}
	return NewReplaySource(frames, opts), nil
}

func (r *ReplaySource) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed && len(r.frames) > 0
}

func (r *ReplaySource) Classify(ctx context.Context) ([]Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed || len(r.frames) == 0 {
		r.mu.Unlock()
		return nil, ErrNotReady
	}
	fr := r.frames[r.next%len(r.frames)]
	r.next++
	r.mu.Unlock()

	if fr.Error != "" {
		return nil, errors.New(fr.Error)
	}

	results := make([]Classification, len(fr.Results))
	copy(results, fr.Results)
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if r.rank.TopN > 0 && len(results) > r.rank.TopN {
		results = results[:r.rank.TopN]
	}
	kept := results[:0]
	for _, c := range results {
		if c.Score >= r.rank.Threshold {
			kept = append(kept, c)
		}
	}
	return kept, nil
}

// Calls returns how many frames have been served.
func (r *ReplaySource) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}

func (r *ReplaySource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
