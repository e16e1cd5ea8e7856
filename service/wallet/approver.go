package wallet

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// Approver decides whether the wallet holder accepts a connection or a
// signature request. Returning false maps to ErrConnectionRejected or
// ErrSigningRejected.
type Approver interface {
	ApproveConnection(ctx context.Context, address solana.PublicKey) (bool, error)
	ApproveSignature(ctx context.Context, tx *PendingTransaction) (bool, error)
}

// AutoApprove accepts every request. Used by the server when
// AUTO_APPROVE_SIGNING is set.
type AutoApprove struct{}

func (AutoApprove) ApproveConnection(ctx context.Context, address solana.PublicKey) (bool, error) {
	return true, ctx.Err()
}

func (AutoApprove) ApproveSignature(ctx context.Context, tx *PendingTransaction) (bool, error) {
	return true, ctx.Err()
}

// DenyAll rejects every signature request while still allowing connection.
// The server uses it as a read-only mode when auto approval is off.
type DenyAll struct{}

func (DenyAll) ApproveConnection(ctx context.Context, address solana.PublicKey) (bool, error) {
	return true, ctx.Err()
}

func (DenyAll) ApproveSignature(ctx context.Context, tx *PendingTransaction) (bool, error) {
	return false, ctx.Err()
}

// ApproverFuncs adapts plain functions to Approver. A nil func approves.
type ApproverFuncs struct {
	Connection func(ctx context.Context, address solana.PublicKey) (bool, error)
	Signature  func(ctx context.Context, tx *PendingTransaction) (bool, error)
}

func (a ApproverFuncs) ApproveConnection(ctx context.Context, address solana.PublicKey) (bool, error) {
	if a.Connection == nil {
		return true, nil
	}
	return a.Connection(ctx, address)
}

func (a ApproverFuncs) ApproveSignature(ctx context.Context, tx *PendingTransaction) (bool, error) {
	if a.Signature == nil {
		return true, nil
	}
	return a.Signature(ctx, tx)
}
