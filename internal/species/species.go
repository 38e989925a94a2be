// Package species maps classifier labels onto the animal types the feeder
// knows how to confirm.
package species

import (
	"sort"
	"strings"
)

// Species is an uppercase animal name as used on the serial wire, e.g. "CAT".
type Species string

const (
	Cat Species = "CAT"
	Dog Species = "DOG"
)

// None is the unset target.
const None Species = ""

// Normalize case-folds a name into its wire form.
func Normalize(name string) Species {
	return Species(strings.ToUpper(strings.TrimSpace(name)))
}

// KeywordSets holds, per species, the label substrings that identify it.
// Sets are built once at startup and treated as read-only afterwards.
type KeywordSets map[Species][]string

// DefaultKeywordSets returns the ImageNet keyword sets for cats and dogs.
func DefaultKeywordSets() KeywordSets {
	return KeywordSets{
		Cat: {
			"tabby, tabby cat", "tiger cat", "persian cat", "siamese cat, siamese",
			"egyptian cat", "cat",
		},
		Dog: {
			"chihuahua", "japanese spaniel", "maltese dog, maltese terrier, maltese",
			"golden retriever", "labrador retriever",
			"german shepherd, german shepherd dog, german police dog, alsatian",
			"poodle", "beagle", "bulldog", "boxer", "pug, pug-dog", "dog",
		},
	}
}

// NewKeywordSets builds keyword sets from a name → keywords mapping, such as
// one read from a config file. Names are normalised, keywords are lowercased
// and blank keywords dropped.
func NewKeywordSets(raw map[string][]string) KeywordSets {
	sets := make(KeywordSets, len(raw))
	for name, keywords := range raw {
		sp := Normalize(name)
		if sp == None {
			continue
		}
		for _, kw := range keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				sets[sp] = append(sets[sp], kw)
			}
		}
	}
	return sets
}

// Recognized reports whether name case-folds to a species with a keyword set.
func (k KeywordSets) Recognized(name string) (Species, bool) {
	sp := Normalize(name)
	_, ok := k[sp]
	return sp, ok && sp != None
}

// Species returns the configured species in sorted order.
func (k KeywordSets) Species() []Species {
	out := make([]Species, 0, len(k))
	for sp := range k {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Set is an unordered collection of species.
type Set map[Species]struct{}

// Has reports whether sp is in the set.
func (s Set) Has(sp Species) bool {
	_, ok := s[sp]
	return ok
}

// Add inserts every member of other into s.
func (s Set) Add(other Set) {
	for sp := range other {
		s[sp] = struct{}{}
	}
}

// Slice returns the members in sorted order.
func (s Set) Slice() []Species {
	out := make([]Species, 0, len(s))
	for sp := range s {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Match returns every species with at least one keyword contained in label.
// Comparison is case-insensitive; an unmatched label yields an empty set.
func Match(label string, sets KeywordSets) Set {
	matched := make(Set)
	lower := strings.ToLower(label)
	for sp, keywords := range sets {
		for _, kw := range keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				matched[sp] = struct{}{}
				break
			}
		}
	}
	return matched
}
