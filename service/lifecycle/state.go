// Package lifecycle runs token operations through the transaction lifecycle:
// validate, build, sign, submit, confirm.
package lifecycle

import "fmt"

// State is a step of the transaction lifecycle.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateBuilding
	StateAwaitingSignature
	StateSubmitting
	StateConfirming
	StateSucceeded
	StateFailed
)

var stateNames = [...]string{
	StateIdle:              "idle",
	StateValidating:        "validating",
	StateBuilding:          "building",
	StateAwaitingSignature: "awaiting_signature",
	StateSubmitting:        "submitting",
	StateConfirming:        "confirming",
	StateSucceeded:         "succeeded",
	StateFailed:            "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText lets State appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Operation names a write operation.
type Operation string

const (
	OpCreate Operation = "create"
	OpMint   Operation = "mint"
	OpSend   Operation = "send"
)

func (o Operation) failureMessage() string {
	switch o {
	case OpCreate:
		return "Failed to create token"
	case OpMint:
		return "Failed to mint tokens"
	case OpSend:
		return "Failed to send tokens"
	}
	return "Operation failed"
}
