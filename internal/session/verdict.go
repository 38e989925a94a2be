package session

import (
	"github.com/banshee-data/pet-feeder/internal/species"
)

// Verdict is the line sent back to the microcontroller when a motion trigger
// has been handled.
type Verdict string

const (
	VerdictWrongAnimal Verdict = "WRONG_ANIMAL_DETECTED"
	VerdictNoAnimal    Verdict = "NO_ANIMAL_DETECTED_BY_AI"
	VerdictAINotReady  Verdict = "AI_NOT_READY"
	VerdictNoTarget    Verdict = "NO_TARGET_CONFIGURED"
)

// Confirmed returns the verdict for a consistently detected target, e.g.
// CAT_CONFIRMED.
func Confirmed(target species.Species) Verdict {
	return Verdict(string(target) + "_CONFIRMED")
}

// Outcome classifies how a motion trigger was resolved.
type Outcome int

const (
	OutcomeUndetermined Outcome = iota
	OutcomeConfirmed
	OutcomeWrongSpecies
	OutcomeNoAnimal
	// OutcomeAINotReady and OutcomeNoTarget are diagnostics: no session ran.
	OutcomeAINotReady
	OutcomeNoTarget
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeWrongSpecies:
		return "wrong_species"
	case OutcomeNoAnimal:
		return "no_animal"
	case OutcomeAINotReady:
		return "ai_not_ready"
	case OutcomeNoTarget:
		return "no_target"
	default:
		return "undetermined"
	}
}

// State is the aggregator's position in its Idle → Sampling → Resolved cycle.
type State int32

const (
	StateIdle State = iota
	StateSampling
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateSampling:
		return "sampling"
	case StateResolved:
		return "resolved"
	default:
		return "idle"
	}
}
