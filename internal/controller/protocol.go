package controller

import (
	"errors"
	"fmt"
	"strings"
)

// Inbound lines from the microcontroller.
const (
	targetPrefix   = "TARGET_ANIMAL:"
	MotionDetected = "MOTION_DETECTED"
	ArduinoPing    = "ARDUINO_PING"
)

// Outbound lines that are not session verdicts.
const (
	PiPong          = "PI_PONG"
	PiShuttingDown  = "PI_SHUTTING_DOWN"
	PiErrProcessing = "PI_ERROR_PROCESSING"
)

// ErrUnknownCommand is returned by Parse for lines outside the protocol.
var ErrUnknownCommand = errors.New("unknown command")

// Kind identifies an inbound command.
type Kind int

const (
	KindTargetAnimal Kind = iota + 1
	KindMotion
	KindPing
)

func (k Kind) String() string {
	switch k {
	case KindTargetAnimal:
		return "target"
	case KindMotion:
		return "motion"
	case KindPing:
		return "ping"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Command is a parsed inbound line.
type Command struct {
	Kind Kind
	// Name is the uppercased species name of a target command.
	Name string
}

// Parse decodes one trimmed protocol line. Commands are case-sensitive; only
// the species name of a target command is case-folded.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, targetPrefix):
		name, _, _ := strings.Cut(strings.TrimPrefix(line, targetPrefix), ":")
		return Command{Kind: KindTargetAnimal, Name: strings.ToUpper(strings.TrimSpace(name))}, nil
	case line == MotionDetected:
		return Command{Kind: KindMotion}, nil
	case line == ArduinoPing:
		return Command{Kind: KindPing}, nil
	}
	return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, line)
}

// AckTarget acknowledges an accepted target.
func AckTarget(name string) string {
	return "PI_ACK_TARGET:" + name
}

// RejectTarget reports a target outside the configured keyword sets.
func RejectTarget(name string) string {
	return "PI_ERR_UNK_TARGET:" + name
}
