package inference

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is not a real test. It stands in for the accelerator
// helper when re-executed by helperCommand.
func TestHelperProcess(t *testing.T) {
	mode := os.Getenv("FEEDER_WORKER_MODE")
	if mode == "" {
		return
	}
	defer os.Exit(0)

	out := json.NewEncoder(os.Stdout)
	switch mode {
	case "detector":
		_ = out.Encode(map[string]any{"ready": true, "task": "object detection"})
		return
	case "crash":
		fmt.Fprintln(os.Stderr, "libcamera: no cameras available")
		os.Exit(3)
	}

	fmt.Println("not json")
	_ = out.Encode(map[string]any{"ready": true, "task": "classification"})

	scan := bufio.NewScanner(os.Stdin)
	for scan.Scan() {
		var req struct {
			Seq uint64 `json:"seq"`
		}
		if err := json.Unmarshal(scan.Bytes(), &req); err != nil {
			continue
		}
		switch {
		case mode == "slow" && req.Seq == 1:
			time.Sleep(200 * time.Millisecond)
			_ = out.Encode(map[string]any{"seq": req.Seq, "scores": []float64{0, 0, 9}})
		case req.Seq == 2 && mode == "classifier":
			_ = out.Encode(map[string]any{"seq": req.Seq, "error": "no output tensor"})
		default:
			_ = out.Encode(map[string]any{"seq": req.Seq, "scores": []float64{0.1, 3.0, 0.5}})
		}
	}
}

func helperCommand(t *testing.T, mode string) []string {
	t.Helper()
	t.Setenv("FEEDER_WORKER_MODE", mode)
	return []string{os.Args[0], "-test.run=TestHelperProcess", "--"}
}

func testWorkerConfig(t *testing.T, mode string) WorkerConfig {
	return WorkerConfig{
		Command:      helperCommand(t, mode),
		Labels:       []string{"toaster", "tabby, tabby cat", "beagle"},
		Rank:         RankOptions{TopN: 2, Threshold: 0.01, Softmax: true},
		StartTimeout: 10 * time.Second,
		StopTimeout:  time.Second,
	}
}

func TestWorkerSource_Classify(t *testing.T) {
	w, err := StartWorker(context.Background(), testWorkerConfig(t, "classifier"))
	require.NoError(t, err)
	defer w.Close()

	require.True(t, w.Ready())

	got, err := w.Classify(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "tabby, tabby cat", got[0].Label)
	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, "beagle", got[1].Label)

	_, err = w.Classify(context.Background())
	assert.ErrorContains(t, err, "no output tensor")

	got, err = w.Classify(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, w.Close())
	assert.False(t, w.Ready())
	_, err = w.Classify(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestWorkerSource_TimeoutDiscardsStaleResponse(t *testing.T) {
	w, err := StartWorker(context.Background(), testWorkerConfig(t, "slow"))
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	_, err = w.Classify(ctx)
	cancel()
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The late answer to seq 1 must not be returned for seq 2.
	got, err := w.Classify(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "tabby, tabby cat", got[0].Label)
}

func TestStartWorker_WrongTask(t *testing.T) {
	_, err := StartWorker(context.Background(), testWorkerConfig(t, "detector"))
	assert.ErrorIs(t, err, ErrWrongTask)
}

func TestStartWorker_ExitBeforeHandshake(t *testing.T) {
	_, err := StartWorker(context.Background(), testWorkerConfig(t, "crash"))
	assert.ErrorIs(t, err, ErrWorkerExited)
}

func TestStartWorker_Validation(t *testing.T) {
	_, err := StartWorker(context.Background(), WorkerConfig{Labels: []string{"a"}})
	assert.Error(t, err)

	_, err = StartWorker(context.Background(), WorkerConfig{Command: []string{"true"}})
	assert.ErrorIs(t, err, ErrEmptyLabels)
}
