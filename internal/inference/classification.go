package inference

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Classification is one ranked model output for a single frame.
type Classification struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
	Label string  `json:"label"`
}

func (c Classification) String() string {
	return fmt.Sprintf("%q (score %.4f)", c.Label, c.Score)
}

// RankOptions controls how raw output tensors are turned into classifications.
type RankOptions struct {
	// TopN is the number of highest scores kept before thresholding.
	TopN int
	// Threshold drops results scoring below it.
	Threshold float64
	// Softmax normalises raw logits before ranking.
	Softmax bool
}

// DefaultRankOptions mirrors the settings used with the IMX500 MobileNet
// classifier: softmax on, top 5, and a permissive threshold since scores are
// often low.
func DefaultRankOptions() RankOptions {
	return RankOptions{TopN: 5, Threshold: 0.01, Softmax: true}
}

// Softmax normalises v in place into a probability distribution.
func Softmax(v []float64) {
	if len(v) == 0 {
		return
	}
	lse := floats.LogSumExp(v)
	for i := range v {
		v[i] = math.Exp(v[i] - lse)
	}
}

// Rank sorts scores by descending value, truncates to opts.TopN and keeps
// those at or above opts.Threshold that map onto a label. The input slice is
// not modified. An empty result is valid and means nothing scored high enough.
func Rank(scores []float64, labels []string, opts RankOptions) []Classification {
	if len(scores) == 0 || opts.TopN <= 0 {
		return nil
	}

	probs := make([]float64, len(scores))
	copy(probs, scores)
	if opts.Softmax {
		Softmax(probs)
	}

	// Argsort orders ascending, so rank the negated scores.
	neg := make([]float64, len(probs))
	for i, p := range probs {
		neg[i] = -p
	}
	inds := make([]int, len(neg))
	floats.Argsort(neg, inds)

	n := min(opts.TopN, len(inds))
	out := make([]Classification, 0, n)
	for _, idx := range inds[:n] {
		score := probs[idx]
		if score < opts.Threshold || idx >= len(labels) {
			continue
		}
		out = append(out, Classification{Index: idx, Score: score, Label: labels[idx]})
	}
	return out
}
