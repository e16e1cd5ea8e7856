// Package history projects the session address's recent ledger activity
// into classified, read-only records.
package history

import (
	"context"
	"log/slog"
	"time"

	mintsolana "github.com/brojonat/mintdash/service/solana"
	"github.com/gagliardetto/solana-go"
)

// DefaultLimit is the number of records returned when none is configured.
const DefaultLimit = 10

// Kind classifies a transaction by the programs it invokes.
type Kind string

const (
	KindToken          Kind = "token"
	KindNativeTransfer Kind = "native_transfer"
	KindUnknown        Kind = "unknown"
)

// Outcome is the ledger-reported result of a transaction.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeFailed    Outcome = "failed"
)

// TransactionRecord is one entry of the history view.
type TransactionRecord struct {
	Signature string    `json:"signature"`
	Slot      uint64    `json:"slot"`
	BlockTime time.Time `json:"block_time"` // zero when unknown
	Kind      Kind      `json:"kind"`
	Outcome   Outcome   `json:"outcome"`
	Err       string    `json:"error,omitempty"`
	Memo      string    `json:"memo,omitempty"`
}

// Ledger is the read side of the ledger client used for history.
type Ledger interface {
	ListRecentSignatures(ctx context.Context, address solana.PublicKey, limit int) ([]mintsolana.SignatureInfo, error)
	GetParsedTransaction(ctx context.Context, sig solana.Signature) (*mintsolana.ParsedTransaction, error)
}

// Reader lists recent transactions for an address.
type Reader struct {
	ledger Ledger
	limit  int
	logger *slog.Logger
}

// NewReader creates a Reader. A non-positive limit uses DefaultLimit.
func NewReader(ledger Ledger, limit int, logger *slog.Logger) *Reader {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Reader{ledger: ledger, limit: limit, logger: logger}
}

// Limit returns the maximum number of records List returns.
func (r *Reader) Limit() int {
	return r.limit
}

// List returns up to Limit records, most recent first. A failure to read
// the signature list yields an empty result; a failure to fetch one
// transaction's details leaves that record Unknown.
func (r *Reader) List(ctx context.Context, address solana.PublicKey) []TransactionRecord {
	sigs, err := r.ledger.ListRecentSignatures(ctx, address, r.limit)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to read transaction history",
			"address", address.String(),
			"error", err,
		)
		return []TransactionRecord{}
	}
	if len(sigs) > r.limit {
		sigs = sigs[:r.limit]
	}

	records := make([]TransactionRecord, 0, len(sigs))
	for _, sig := range sigs {
		record := TransactionRecord{
			Signature: sig.Signature.String(),
			Slot:      sig.Slot,
			BlockTime: sig.BlockTime,
			Kind:      KindUnknown,
			Outcome:   OutcomeConfirmed,
		}
		if sig.Err != nil {
			record.Outcome = OutcomeFailed
			record.Err = *sig.Err
		}

		parsed, err := r.ledger.GetParsedTransaction(ctx, sig.Signature)
		if err != nil {
			r.logger.DebugContext(ctx, "failed to fetch transaction details",
				"signature", record.Signature,
				"error", err,
			)
			records = append(records, record)
			continue
		}

		record.Kind = Classify(parsed)
		if memo, ok := parsed.Memo(); ok {
			record.Memo = memo
		}
		records = append(records, record)
	}
	return records
}

// Classify returns Token if any instruction targets a token program,
// NativeTransfer if a system transfer is present instead, else Unknown.
func Classify(tx *mintsolana.ParsedTransaction) Kind {
	if tx == nil {
		return KindUnknown
	}

	native := false
	for _, ix := range tx.Instructions {
		if mintsolana.IsTokenProgram(ix.ProgramID) {
			return KindToken
		}
		if mintsolana.IsSystemTransfer(ix) {
			native = true
		}
	}
	if native {
		return KindNativeTransfer
	}
	return KindUnknown
}
