package solana

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// DefaultDecimals is assumed when mint metadata cannot be read.
const DefaultDecimals uint8 = 9

// MintAccountSize is the size of an SPL token mint account in bytes.
const MintAccountSize = 82

// LamportsPerSOL is the number of base units in one SOL.
const LamportsPerSOL = 1_000_000_000

// MintInfo is the decoded on-chain state of a token mint.
type MintInfo struct {
	Address         solana.PublicKey
	Decimals        uint8
	Supply          uint64
	MintAuthority   *solana.PublicKey
	FreezeAuthority *solana.PublicKey
}

// TokenAccountRef identifies the associated token account for an owner/mint pair.
// Create is non-nil only when the account does not exist yet and must be created
// in the same transaction that uses it.
type TokenAccountRef struct {
	Address solana.PublicKey
	Owner   solana.PublicKey
	Mint    solana.PublicKey
	Create  solana.Instruction
}

// Exists reports whether the account was found on the ledger.
func (r *TokenAccountRef) Exists() bool {
	return r.Create == nil
}

// TokenBalance is one non-zero token account owned by an address.
type TokenBalance struct {
	Account   solana.PublicKey
	Mint      solana.PublicKey
	Decimals  uint8
	Amount    uint64
	UIBalance decimal.Decimal
}

// RawAccount is an account address with its undecoded data.
type RawAccount struct {
	Address solana.PublicKey
	Data    []byte
}

// SignatureInfo is signature-list metadata for one transaction.
type SignatureInfo struct {
	Signature solana.Signature
	Slot      uint64
	BlockTime time.Time // zero when the ledger does not report one
	Err       *string   // nil if the transaction succeeded
}

// ParsedTransaction is the decoded instruction set of a confirmed transaction.
type ParsedTransaction struct {
	Signature    solana.Signature
	Instructions []ParsedInstruction
	Err          *string
}

// ParsedInstruction is one top-level instruction resolved to its program.
type ParsedInstruction struct {
	ProgramID solana.PublicKey
	Accounts  []solana.PublicKey
	Data      []byte
}

// ConfirmationOutcome is the terminal status of a submitted transaction.
type ConfirmationOutcome struct {
	Signature solana.Signature
	Status    string  // "confirmed" or "finalized"
	Err       *string // set when the ledger reports the transaction failed
}

// Failed reports whether the ledger rejected the transaction.
func (o ConfirmationOutcome) Failed() bool {
	return o.Err != nil
}
