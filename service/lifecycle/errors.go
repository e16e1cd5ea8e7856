package lifecycle

import (
	"errors"
	"fmt"

	"github.com/brojonat/mintdash/service/session"
	"github.com/brojonat/mintdash/service/solana"
	"github.com/brojonat/mintdash/service/wallet"
)

// Failure taxonomy. Every error returned by a Runner operation wraps exactly
// one of these.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrWalletUnavailable   = session.ErrWalletUnavailable
	ErrConnectionRejected  = wallet.ErrConnectionRejected
	ErrSigningRejected     = wallet.ErrSigningRejected
	ErrSubmissionFailed    = errors.New("submission failed")
	ErrConfirmationTimeout = solana.ErrConfirmationTimeout
	ErrOperationFailed     = errors.New("operation failed")
	ErrNotConnected        = session.ErrNotConnected
	ErrOperationInFlight   = errors.New("operation already in flight")
)

// Code is the stable, machine-readable name of a taxonomy member.
type Code string

const (
	CodeInvalidInput        Code = "invalid_input"
	CodeWalletUnavailable   Code = "wallet_unavailable"
	CodeConnectionRejected  Code = "connection_rejected"
	CodeSigningRejected     Code = "signing_rejected"
	CodeSubmissionFailed    Code = "submission_failed"
	CodeConfirmationTimeout Code = "confirmation_timeout"
	CodeOperationFailed     Code = "operation_failed"
	CodeNotConnected        Code = "not_connected"
	CodeOperationInFlight   Code = "operation_in_flight"
)

var codeSentinels = map[Code]error{
	CodeInvalidInput:        ErrInvalidInput,
	CodeWalletUnavailable:   ErrWalletUnavailable,
	CodeConnectionRejected:  ErrConnectionRejected,
	CodeSigningRejected:     ErrSigningRejected,
	CodeSubmissionFailed:    ErrSubmissionFailed,
	CodeConfirmationTimeout: ErrConfirmationTimeout,
	CodeOperationFailed:     ErrOperationFailed,
	CodeNotConnected:        ErrNotConnected,
	CodeOperationInFlight:   ErrOperationInFlight,
}

// CodeOf returns the taxonomy code err wraps, or CodeOperationFailed.
func CodeOf(err error) Code {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Code
	}
	for code, sentinel := range codeSentinels {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeOperationFailed
}

// OperationError is returned by every failed lifecycle invocation. Err holds
// the collaborator error for logs; it is never shown to the user.
type OperationError struct {
	Op    Operation
	Code  Code
	State State // state the failure happened in
	Final State // Idle or Failed

	// Detail is a local validation message, safe to show. Empty for other codes.
	Detail string
	Err    error
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("%s: %s in %s", e.Op, e.Code, e.State)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the taxonomy sentinel and the underlying error.
func (e *OperationError) Unwrap() []error {
	errs := []error{codeSentinels[e.Code]}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Message returns the static user-facing text for the failure.
func (e *OperationError) Message() string {
	switch e.Code {
	case CodeInvalidInput:
		if e.Detail != "" {
			return "Invalid input: " + e.Detail
		}
		return "Invalid input"
	case CodeNotConnected:
		return "Connect a wallet first"
	case CodeWalletUnavailable:
		return "No wallet available"
	case CodeConnectionRejected:
		return "Wallet connection was rejected"
	case CodeOperationInFlight:
		return "Another operation is already in progress"
	case CodeSigningRejected:
		return "Transaction was rejected in the wallet"
	case CodeSubmissionFailed:
		return "Failed to submit transaction"
	case CodeConfirmationTimeout:
		return "Timed out waiting for confirmation"
	}
	return e.Op.failureMessage()
}

// finalState is where the lifecycle rests after a failure with code.
func finalState(code Code) State {
	switch code {
	case CodeInvalidInput, CodeSigningRejected, CodeNotConnected, CodeOperationInFlight:
		return StateIdle
	}
	return StateFailed
}
