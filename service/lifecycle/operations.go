package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	mintsolana "github.com/brojonat/mintdash/service/solana"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/shopspring/decimal"
)

// MaxSymbolLength bounds the ticker symbol of a new token.
const MaxSymbolLength = 10

// CreateRequest asks for a new token mint owned by the session address.
type CreateRequest struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals string `json:"decimals"`
}

// MintRequest asks to mint supply into the session's own token account.
type MintRequest struct {
	Mint   string `json:"mint"`
	Amount string `json:"amount"`
}

// SendRequest asks to transfer tokens from the session to a recipient.
type SendRequest struct {
	Mint      string `json:"mint"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

// Create generates a new mint with the session address as mint and freeze
// authority. The name and symbol are echoed in the notification only.
func (r *Runner) Create(ctx context.Context, req CreateRequest) (Result, error) {
	var decimals uint8
	name := strings.TrimSpace(req.Name)
	symbol := strings.TrimSpace(req.Symbol)

	return r.run(ctx, plan{
		op: OpCreate,
		validate: func() error {
			if name == "" {
				return fmt.Errorf("name is required")
			}
			if symbol == "" {
				return fmt.Errorf("symbol is required")
			}
			if utf8.RuneCountInString(symbol) > MaxSymbolLength {
				return fmt.Errorf("symbol must be at most %d characters", MaxSymbolLength)
			}
			d, err := ParseDecimals(req.Decimals)
			if err != nil {
				return err
			}
			decimals = d
			return nil
		},
		build: func(ctx context.Context, payer solana.PublicKey, res *Result) (*built, error) {
			mintKey, err := solana.NewRandomPrivateKey()
			if err != nil {
				return nil, fmt.Errorf("generate mint key: %w", err)
			}
			mint := mintKey.PublicKey()
			res.Mint = mint

			rent, err := r.ledger.GetMinimumBalanceForRentExemption(ctx, mintsolana.MintAccountSize)
			if err != nil {
				return nil, err
			}

			return &built{
				instructions: []solana.Instruction{
					system.NewCreateAccountInstruction(
						rent,
						mintsolana.MintAccountSize,
						solana.TokenProgramID,
						payer,
						mint,
					).Build(),
					token.NewInitializeMintInstruction(
						decimals,
						payer,
						payer,
						mint,
						solana.SysVarRentPubkey,
					).Build(),
				},
				coSigners:  []solana.PrivateKey{mintKey},
				summary:    fmt.Sprintf("Create token %s (%s) with %d decimals", symbol, name, decimals),
				success:    fmt.Sprintf("Created token %s (%s) with mint %s", symbol, name, mint),
				recentMint: mint.String(),
			}, nil
		},
	})
}

// Mint credits the session's associated token account with amount. Whether
// the session holds mint authority is left to the ledger to decide.
func (r *Runner) Mint(ctx context.Context, req MintRequest) (Result, error) {
	var (
		mint   solana.PublicKey
		amount decimal.Decimal
	)

	return r.run(ctx, plan{
		op: OpMint,
		validate: func() error {
			var err error
			if mint, err = parseAddress("mint", req.Mint); err != nil {
				return err
			}
			amount, err = ParseDisplayAmount(req.Amount)
			return err
		},
		build: func(ctx context.Context, payer solana.PublicKey, res *Result) (*built, error) {
			res.Mint = mint
			res.Amount = amount

			baseUnits, err := ScaleAmount(req.Amount, r.decimalsFor(ctx, mint))
			if err != nil {
				return nil, invalidInput(err)
			}
			res.BaseUnits = baseUnits

			dest, err := r.ledger.GetOrCreateTokenAccount(ctx, payer, payer, mint)
			if err != nil {
				return nil, err
			}

			var ixs []solana.Instruction
			if !dest.Exists() {
				ixs = append(ixs, dest.Create)
			}
			ixs = append(ixs, token.NewMintToInstruction(baseUnits, mint, dest.Address, payer, nil).Build())

			return &built{
				instructions: ixs,
				summary:      fmt.Sprintf("Mint %s tokens of %s", amount, mint),
				success:      fmt.Sprintf("Minted %s tokens of %s", amount, mint),
				recentMint:   mint.String(),
			}, nil
		},
	})
}

// Send transfers amount from the session's token account to the
// recipient's, creating the recipient's account if needed.
func (r *Runner) Send(ctx context.Context, req SendRequest) (Result, error) {
	var (
		mint      solana.PublicKey
		recipient solana.PublicKey
		amount    decimal.Decimal
	)

	return r.run(ctx, plan{
		op: OpSend,
		validate: func() error {
			var err error
			if mint, err = parseAddress("mint", req.Mint); err != nil {
				return err
			}
			if recipient, err = parseAddress("recipient", req.Recipient); err != nil {
				return err
			}
			amount, err = ParseDisplayAmount(req.Amount)
			return err
		},
		build: func(ctx context.Context, payer solana.PublicKey, res *Result) (*built, error) {
			res.Mint = mint
			res.Amount = amount

			baseUnits, err := ScaleAmount(req.Amount, r.decimalsFor(ctx, mint))
			if err != nil {
				return nil, invalidInput(err)
			}
			res.BaseUnits = baseUnits

			source, err := r.ledger.GetOrCreateTokenAccount(ctx, payer, payer, mint)
			if err != nil {
				return nil, err
			}
			if !source.Exists() {
				return nil, fmt.Errorf("session has no token account for mint %s", mint)
			}

			dest, err := r.ledger.GetOrCreateTokenAccount(ctx, payer, recipient, mint)
			if err != nil {
				return nil, err
			}

			var ixs []solana.Instruction
			if !dest.Exists() {
				ixs = append(ixs, dest.Create)
			}
			ixs = append(ixs, token.NewTransferInstruction(baseUnits, source.Address, dest.Address, payer, nil).Build())

			return &built{
				instructions: ixs,
				summary:      fmt.Sprintf("Send %s tokens of %s to %s", amount, mint, recipient),
				success:      fmt.Sprintf("Sent %s tokens of %s to %s", amount, mint, recipient),
				recentMint:   mint.String(),
			}, nil
		},
	})
}

// decimalsFor reads the mint's precision, assuming DefaultDecimals when the
// lookup fails.
func (r *Runner) decimalsFor(ctx context.Context, mint solana.PublicKey) uint8 {
	info, err := r.ledger.GetMintInfo(ctx, mint)
	if err != nil {
		r.logger.WarnContext(ctx, "mint lookup failed, assuming default decimals",
			"mint", mint.String(),
			"decimals", mintsolana.DefaultDecimals,
			"error", err,
		)
		return mintsolana.DefaultDecimals
	}
	return info.Decimals
}

func parseAddress(field, value string) (solana.PublicKey, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return solana.PublicKey{}, fmt.Errorf("%s is required", field)
	}
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s is not a valid address", field)
	}
	return key, nil
}

// TokenBalanceEntry is one non-zero token holding of the session.
type TokenBalanceEntry struct {
	Mint      string          `json:"mint"`
	Account   string          `json:"account"`
	Decimals  uint8           `json:"decimals"`
	UIBalance decimal.Decimal `json:"ui_balance"`
}

// ListTokenBalances enumerates the session's non-zero token accounts,
// freshly read from the ledger.
func (r *Runner) ListTokenBalances(ctx context.Context) ([]TokenBalanceEntry, error) {
	owner, err := r.session.Address()
	if err != nil {
		return nil, err
	}

	balances, err := r.ledger.ListTokenAccounts(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list token balances: %w", err)
	}

	entries := make([]TokenBalanceEntry, 0, len(balances))
	for _, b := range balances {
		entries = append(entries, TokenBalanceEntry{
			Mint:      b.Mint.String(),
			Account:   b.Account.String(),
			Decimals:  b.Decimals,
			UIBalance: b.UIBalance,
		})
	}
	return entries, nil
}

// MintInfo reads mint metadata for display.
func (r *Runner) MintInfo(ctx context.Context, address string) (*mintsolana.MintInfo, error) {
	mint, err := parseAddress("mint", address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	return r.ledger.GetMintInfo(ctx, mint)
}
