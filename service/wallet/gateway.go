// Package wallet provides the signing wallet used by token operations: a
// Gateway interface, a keyring-backed implementation, and approval policies.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrConnectionRejected is returned when the holder declines to connect.
	ErrConnectionRejected = errors.New("wallet connection rejected")

	// ErrSigningRejected is returned when the holder declines to sign.
	ErrSigningRejected = errors.New("signature request rejected")

	// ErrNoKey is returned when no key is stored under the wallet name.
	ErrNoKey = errors.New("no key stored for wallet")

	// ErrNotConnected is returned when signing is requested before Connect.
	ErrNotConnected = errors.New("wallet not connected")
)

// Gateway is the signing wallet consumed by the session store and the
// operation orchestrators.
type Gateway interface {
	IsAvailable(ctx context.Context) bool
	Connect(ctx context.Context) (solana.PublicKey, error)
	Disconnect(ctx context.Context) error
	SignTransaction(ctx context.Context, tx *PendingTransaction) ([]byte, error)
}

// PendingTransaction is a transaction built by an orchestrator and awaiting
// the wallet's signature. It lives for one operation and is never persisted.
type PendingTransaction struct {
	// Operation names the token operation ("create", "mint", "send").
	Operation string
	// Summary is a one-line human description shown to the approver.
	Summary string

	Instructions    []solana.Instruction
	FeePayer        solana.PublicKey
	RecentBlockhash solana.Hash

	// CoSigners are ephemeral keys generated for this transaction,
	// e.g. the new mint account on create.
	CoSigners []solana.PrivateKey
}

// Transaction compiles the pending transaction into an unsigned solana.Transaction.
func (p *PendingTransaction) Transaction() (*solana.Transaction, error) {
	if len(p.Instructions) == 0 {
		return nil, fmt.Errorf("transaction has no instructions")
	}
	if p.FeePayer.IsZero() {
		return nil, fmt.Errorf("transaction has no fee payer")
	}
	if p.RecentBlockhash.IsZero() {
		return nil, fmt.Errorf("transaction has no recent blockhash")
	}

	tx, err := solana.NewTransaction(p.Instructions, p.RecentBlockhash, solana.TransactionPayer(p.FeePayer))
	if err != nil {
		return nil, fmt.Errorf("compile transaction: %w", err)
	}
	return tx, nil
}
