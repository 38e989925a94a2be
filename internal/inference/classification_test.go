package inference

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestSoftmax(t *testing.T) {
	v := []float64{1, 2, 3}
	Softmax(v)

	sum := 0.0
	for _, p := range v {
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("softmax sums to %v, want 1", sum)
	}
	if !(v[2] > v[1] && v[1] > v[0]) {
		t.Errorf("softmax changed ordering: %v", v)
	}

	Softmax(nil) // must not panic
}

func TestRank(t *testing.T) {
	labels := []string{"tench", "goldfish", "tabby, tabby cat", "beagle", "pug, pug-dog", "toaster", "boxer"}
	scores := []float64{0.001, 0.05, 0.40, 0.30, 0.10, 0.009, 0.14}

	tests := []struct {
		name string
		opts RankOptions
		want []Classification
	}{
		{
			name: "top 3 no threshold",
			opts: RankOptions{TopN: 3},
			want: []Classification{
				{Index: 2, Score: 0.40, Label: "tabby, tabby cat"},
				{Index: 3, Score: 0.30, Label: "beagle"},
				{Index: 6, Score: 0.14, Label: "boxer"},
			},
		},
		{
			name: "threshold applied after truncation",
			opts: RankOptions{TopN: 5, Threshold: 0.12},
			want: []Classification{
				{Index: 2, Score: 0.40, Label: "tabby, tabby cat"},
				{Index: 3, Score: 0.30, Label: "beagle"},
				{Index: 6, Score: 0.14, Label: "boxer"},
			},
		},
		{
			name: "top n larger than tensor",
			opts: RankOptions{TopN: 50, Threshold: 0.01},
			want: []Classification{
				{Index: 2, Score: 0.40, Label: "tabby, tabby cat"},
				{Index: 3, Score: 0.30, Label: "beagle"},
				{Index: 6, Score: 0.14, Label: "boxer"},
				{Index: 4, Score: 0.10, Label: "pug, pug-dog"},
				{Index: 1, Score: 0.05, Label: "goldfish"},
			},
		},
		{
			name: "nothing above threshold",
			opts: RankOptions{TopN: 5, Threshold: 0.9},
			want: []Classification{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Rank(scores, labels, tc.opts)
			if diff := cmp.Diff(tc.want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
				t.Errorf("Rank mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if scores[0] != 0.001 || scores[2] != 0.40 {
		t.Error("Rank modified its input")
	}
}

func TestRank_SoftmaxOrdering(t *testing.T) {
	labels := []string{"a", "b", "c"}
	got := Rank([]float64{-1, 4, 2}, labels, RankOptions{TopN: 2, Softmax: true})

	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].Label != "b" || got[1].Label != "c" {
		t.Errorf("unexpected order %v", got)
	}
	if got[0].Score <= 0 || got[0].Score >= 1 {
		t.Errorf("softmax score %v outside (0,1)", got[0].Score)
	}
}

func TestRank_SkipsIndicesWithoutLabels(t *testing.T) {
	got := Rank([]float64{0.2, 0.7, 0.1}, []string{"a"}, RankOptions{TopN: 3})

	want := []Classification{{Index: 0, Score: 0.2, Label: "a"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Rank mismatch (-want +got):\n%s", diff)
	}
}

func TestRank_Empty(t *testing.T) {
	if got := Rank(nil, []string{"a"}, DefaultRankOptions()); got != nil {
		t.Errorf("Rank(nil) = %v, want nil", got)
	}
	if got := Rank([]float64{1}, []string{"a"}, RankOptions{TopN: 0}); got != nil {
		t.Errorf("Rank with TopN=0 = %v, want nil", got)
	}
}
