package species

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMatch(t *testing.T) {
	sets := DefaultKeywordSets()

	tests := []struct {
		label string
		want  []Species
	}{
		{"tabby, tabby cat", []Species{Cat}},
		{"Tiger Cat", []Species{Cat}},
		{"golden retriever", []Species{Dog}},
		{"PUG, PUG-DOG", []Species{Dog}},
		{"hotdog, hot dog, red hot", []Species{Dog}},
		{"catamount dog", []Species{Cat, Dog}},
		{"toaster", []Species{}},
		{"", []Species{}},
	}

	for _, tc := range tests {
		t.Run(tc.label, func(t *testing.T) {
			got := Match(tc.label, sets).Slice()
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Match(%q) mismatch (-want +got):\n%s", tc.label, diff)
			}
		})
	}
}

func TestMatch_KeywordCaseInsensitive(t *testing.T) {
	sets := KeywordSets{"FOX": {"Red Fox"}}

	if !Match("red fox, Vulpes vulpes", sets).Has("FOX") {
		t.Error("expected mixed-case keyword to match lowercased label")
	}
}

// The result must not depend on keyword ordering within a set or on map
// iteration order across sets.
func TestMatch_OrderIndependent(t *testing.T) {
	forward := DefaultKeywordSets()
	reversed := make(KeywordSets, len(forward))
	for sp, kws := range forward {
		rev := make([]string, len(kws))
		for i, kw := range kws {
			rev[len(kws)-1-i] = kw
		}
		reversed[sp] = rev
	}

	labels := []string{"egyptian cat", "boxer", "tabby dog", "tench, Tinca tinca"}
	for _, label := range labels {
		for i := 0; i < 10; i++ {
			a := Match(label, forward).Slice()
			b := Match(label, reversed).Slice()
			if diff := cmp.Diff(a, b); diff != "" {
				t.Fatalf("Match(%q) order dependent (-forward +reversed):\n%s", label, diff)
			}
		}
	}
}

// Empty iff no keyword of any species is a substring of the label.
func TestMatch_EmptyIffNoSubstring(t *testing.T) {
	sets := DefaultKeywordSets()
	labels := []string{"tabby", "CAT", "beagle", "goldfish", "bullfrog", "dogsled, dog sled"}

	for _, label := range labels {
		anySubstring := false
		for _, kws := range sets {
			for _, kw := range kws {
				if strings.Contains(strings.ToLower(label), kw) {
					anySubstring = true
				}
			}
		}
		empty := len(Match(label, sets)) == 0
		if empty == anySubstring {
			t.Errorf("Match(%q): empty=%v but substring present=%v", label, empty, anySubstring)
		}
	}
}

func TestRecognized(t *testing.T) {
	sets := DefaultKeywordSets()

	tests := []struct {
		name   string
		want   Species
		wantOK bool
	}{
		{"CAT", Cat, true},
		{"dog", Dog, true},
		{" Cat ", Cat, true},
		{"FISH", "FISH", false},
		{"", None, false},
	}
	for _, tc := range tests {
		got, ok := sets.Recognized(tc.name)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("Recognized(%q) = (%q, %v), want (%q, %v)", tc.name, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestNewKeywordSets(t *testing.T) {
	sets := NewKeywordSets(map[string][]string{
		"cat":  {"Tabby", " ", "Egyptian Cat"},
		"":     {"ignored"},
		"bird": {"goldfinch"},
	})

	want := KeywordSets{
		Cat:    {"tabby", "egyptian cat"},
		"BIRD": {"goldfinch"},
	}
	if diff := cmp.Diff(want, sets); diff != "" {
		t.Errorf("NewKeywordSets mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Species{"BIRD", Cat}, sets.Species()); diff != "" {
		t.Errorf("Species() mismatch (-want +got):\n%s", diff)
	}
}

func TestSetAdd(t *testing.T) {
	s := make(Set)
	s.Add(Set{Cat: {}})
	s.Add(Set{Cat: {}, Dog: {}})

	if len(s) != 2 || !s.Has(Cat) || !s.Has(Dog) {
		t.Errorf("unexpected set %v", s.Slice())
	}
}
