package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/brojonat/mintdash/service/metrics"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

var (
	// ErrAccountNotFound is returned when an account does not exist on the ledger.
	ErrAccountNotFound = errors.New("account not found")

	// ErrConfirmationTimeout is returned when a submitted transaction does not
	// reach the requested commitment before the deadline.
	ErrConfirmationTimeout = errors.New("transaction not confirmed before deadline")

	// ErrInvalidAccountData is returned when account data cannot be decoded.
	ErrInvalidAccountData = errors.New("invalid account data")

	errLimiterDeadline = errors.New("rate limiter: deadline reached before next token")
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (uint64, error)

	// GetAccountData returns ErrAccountNotFound for accounts that do not exist.
	GetAccountData(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) ([]byte, error)

	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (solana.Hash, error)

	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error)

	SendRawTransaction(ctx context.Context, rawTx []byte, opts rpc.TransactionOpts) (solana.Signature, error)

	GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) ([]*rpc.SignatureStatusesResult, error)

	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)

	GetTokenAccountsByOwner(
		ctx context.Context,
		owner solana.PublicKey,
		programID solana.PublicKey,
		commitment rpc.CommitmentType,
	) ([]RawAccount, error)
}

// Client provides the ledger operations used by the dashboard.
// It wraps the RPC client with domain-specific operations, a shared
// rate limiter, and metrics.
type Client struct {
	rpc          RPCClient
	logger       *slog.Logger
	metrics      *metrics.Metrics
	endpoint     string // RPC endpoint identifier for metrics (e.g., "mainnet", "devnet", rpc host)
	limiter      *rate.Limiter
	pollInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit caps outgoing RPC calls at rps requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithPollInterval sets how often Confirm polls signature statuses.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g., "mainnet", "devnet", or RPC hostname).
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		rpc:          rpcClient,
		logger:       logger,
		metrics:      m,
		endpoint:     endpoint,
		pollInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call waits on the rate limiter, runs fn, and records the RPC metrics.
func (c *Client) call(ctx context.Context, method string, fn func() error) error {
	if c.limiter != nil {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() == nil {
				// Wait refuses early when the next token lands after the deadline.
				return fmt.Errorf("%w: %v", errLimiterDeadline, err)
			}
			return fmt.Errorf("rate limiter: %w", err)
		}
		c.metrics.RecordRateLimitWait(c.endpoint, time.Since(waitStart).Seconds())
	}

	start := time.Now()
	err := fn()
	status := "success"
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
	return err
}

// GetBalance returns the native balance of an address in SOL.
func (c *Client) GetBalance(ctx context.Context, address solana.PublicKey) (decimal.Decimal, error) {
	var lamports uint64
	err := c.call(ctx, "GetBalance", func() error {
		var err error
		lamports, err = c.rpc.GetBalance(ctx, address, rpc.CommitmentConfirmed)
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance for %s: %w", address, err)
	}
	return lamportsToSOL(lamports), nil
}

// GetMintInfo reads and decodes the mint account at the given address.
func (c *Client) GetMintInfo(ctx context.Context, mint solana.PublicKey) (*MintInfo, error) {
	var data []byte
	err := c.call(ctx, "GetAccountInfo", func() error {
		var err error
		data, err = c.rpc.GetAccountData(ctx, mint, rpc.CommitmentConfirmed)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get mint %s: %w", mint, err)
	}

	info, err := decodeMint(mint, data)
	if err != nil {
		return nil, fmt.Errorf("decode mint %s: %w", mint, err)
	}
	return info, nil
}

// GetOrCreateTokenAccount resolves the associated token account for owner and mint.
// When the account does not exist yet, the returned reference carries the
// instruction that creates it, funded by payer. Calling it again for a pair
// whose account exists returns the same address and no create instruction.
func (c *Client) GetOrCreateTokenAccount(ctx context.Context, payer, owner, mint solana.PublicKey) (*TokenAccountRef, error) {
	address, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("derive token account for %s/%s: %w", owner, mint, err)
	}

	ref := &TokenAccountRef{
		Address: address,
		Owner:   owner,
		Mint:    mint,
	}

	err = c.call(ctx, "GetAccountInfo", func() error {
		_, err := c.rpc.GetAccountData(ctx, address, rpc.CommitmentConfirmed)
		return err
	})
	switch {
	case errors.Is(err, ErrAccountNotFound):
		c.logger.DebugContext(ctx, "token account missing, will create",
			"owner", owner.String(),
			"mint", mint.String(),
			"account", address.String(),
		)
		ref.Create = associatedtokenaccount.NewCreateInstruction(payer, owner, mint).Build()
	case err != nil:
		return nil, fmt.Errorf("get token account %s: %w", address, err)
	}

	return ref, nil
}

// GetLatestBlockhash fetches a fresh blockhash. Blockhashes expire quickly,
// so callers must not cache the result across transactions.
func (c *Client) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var hash solana.Hash
	err := c.call(ctx, "GetLatestBlockhash", func() error {
		var err error
		hash, err = c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		return err
	})
	if err != nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	return hash, nil
}

// GetMinimumBalanceForRentExemption returns the lamports needed for an account
// of dataSize bytes to be rent exempt.
func (c *Client) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error) {
	var lamports uint64
	err := c.call(ctx, "GetMinimumBalanceForRentExemption", func() error {
		var err error
		lamports, err = c.rpc.GetMinimumBalanceForRentExemption(ctx, dataSize, rpc.CommitmentConfirmed)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get rent exemption for %d bytes: %w", dataSize, err)
	}
	return lamports, nil
}

// Submit broadcasts a signed, serialized transaction and returns its signature.
func (c *Client) Submit(ctx context.Context, signed []byte) (solana.Signature, error) {
	var sig solana.Signature
	err := c.call(ctx, "SendTransaction", func() error {
		var err error
		sig, err = c.rpc.SendRawTransaction(ctx, signed, rpc.TransactionOpts{
			PreflightCommitment: rpc.CommitmentConfirmed,
		})
		return err
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}

	c.logger.InfoContext(ctx, "transaction submitted",
		"signature", sig.String(),
	)
	return sig, nil
}

// Confirm polls the signature status until the transaction reaches level,
// the ledger reports it failed, or timeout elapses (ErrConfirmationTimeout).
func (c *Client) Confirm(
	ctx context.Context,
	sig solana.Signature,
	level rpc.CommitmentType,
	timeout time.Duration,
) (ConfirmationOutcome, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var statuses []*rpc.SignatureStatusesResult
		err := c.call(waitCtx, "GetSignatureStatuses", func() error {
			var err error
			statuses, err = c.rpc.GetSignatureStatuses(waitCtx, sig)
			return err
		})
		if err != nil {
			if errors.Is(err, errLimiterDeadline) {
				<-waitCtx.Done()
			}
			if ctx.Err() == nil && waitCtx.Err() != nil {
				return ConfirmationOutcome{Signature: sig}, fmt.Errorf("confirm %s: %w", sig, ErrConfirmationTimeout)
			}
			return ConfirmationOutcome{Signature: sig}, fmt.Errorf("confirm %s: %w", sig, err)
		}

		if len(statuses) > 0 && statuses[0] != nil {
			status := statuses[0]
			if status.Err != nil {
				msg := fmt.Sprintf("%v", status.Err)
				return ConfirmationOutcome{
					Signature: sig,
					Status:    string(status.ConfirmationStatus),
					Err:       &msg,
				}, nil
			}
			if reachedCommitment(status.ConfirmationStatus, level) {
				return ConfirmationOutcome{
					Signature: sig,
					Status:    string(status.ConfirmationStatus),
				}, nil
			}
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ConfirmationOutcome{Signature: sig}, ctx.Err()
			}
			return ConfirmationOutcome{Signature: sig}, fmt.Errorf("confirm %s: %w", sig, ErrConfirmationTimeout)
		case <-ticker.C:
		}
	}
}

// ListRecentSignatures returns up to limit signatures for address, newest first.
func (c *Client) ListRecentSignatures(ctx context.Context, address solana.PublicKey, limit int) ([]SignatureInfo, error) {
	opts := &rpc.GetSignaturesForAddressOpts{
		Limit: &limit,
	}

	var signatures []*rpc.TransactionSignature
	err := c.call(ctx, "GetSignaturesForAddress", func() error {
		var err error
		signatures, err = c.rpc.GetSignaturesForAddress(ctx, address, opts)
		return err
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get signatures",
			"address", address.String(),
			"error", err,
		)
		return nil, fmt.Errorf("list signatures for %s: %w", address, err)
	}

	infos := make([]SignatureInfo, 0, len(signatures))
	for _, sig := range signatures {
		if sig == nil {
			continue
		}
		infos = append(infos, signatureToInfo(sig))
	}

	c.logger.DebugContext(ctx, "fetched transaction signatures",
		"address", address.String(),
		"count", len(infos),
	)
	return infos, nil
}

// GetParsedTransaction fetches a transaction and resolves its top-level
// instructions to program ids and account keys.
func (c *Client) GetParsedTransaction(ctx context.Context, sig solana.Signature) (*ParsedTransaction, error) {
	maxVersion := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	}

	var result *rpc.GetTransactionResult
	err := c.call(ctx, "GetTransaction", func() error {
		var err error
		result, err = c.rpc.GetTransaction(ctx, sig, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", sig, err)
	}

	parsed, err := parseTransactionResult(sig, result)
	if err != nil {
		return nil, fmt.Errorf("parse transaction %s: %w", sig, err)
	}
	return parsed, nil
}

// ListTokenAccounts enumerates the token accounts owned by owner, excluding
// zero balances, sorted by mint address. Decimals are looked up once per mint;
// a failed lookup falls back to DefaultDecimals.
func (c *Client) ListTokenAccounts(ctx context.Context, owner solana.PublicKey) ([]TokenBalance, error) {
	var raw []RawAccount
	err := c.call(ctx, "GetTokenAccountsByOwner", func() error {
		var err error
		raw, err = c.rpc.GetTokenAccountsByOwner(ctx, owner, solana.TokenProgramID, rpc.CommitmentConfirmed)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list token accounts for %s: %w", owner, err)
	}

	decimalsByMint := make(map[solana.PublicKey]uint8)
	balances := make([]TokenBalance, 0, len(raw))
	for _, acct := range raw {
		decoded, err := decodeTokenAccount(acct.Data)
		if err != nil {
			c.logger.WarnContext(ctx, "skipping undecodable token account",
				"account", acct.Address.String(),
				"error", err,
			)
			continue
		}
		if decoded.Amount == 0 {
			continue
		}

		decimals, ok := decimalsByMint[decoded.Mint]
		if !ok {
			decimals = DefaultDecimals
			info, err := c.GetMintInfo(ctx, decoded.Mint)
			if err != nil {
				c.logger.WarnContext(ctx, "mint lookup failed, assuming default decimals",
					"mint", decoded.Mint.String(),
					"error", err,
				)
			} else {
				decimals = info.Decimals
			}
			decimalsByMint[decoded.Mint] = decimals
		}

		balances = append(balances, TokenBalance{
			Account:   acct.Address,
			Mint:      decoded.Mint,
			Decimals:  decimals,
			Amount:    decoded.Amount,
			UIBalance: BaseUnitsToDecimal(decoded.Amount, decimals),
		})
	}

	sort.Slice(balances, func(i, j int) bool {
		return balances[i].Mint.String() < balances[j].Mint.String()
	})
	return balances, nil
}

// reachedCommitment reports whether status satisfies the requested level.
func reachedCommitment(status rpc.ConfirmationStatusType, level rpc.CommitmentType) bool {
	switch level {
	case rpc.CommitmentFinalized:
		return status == rpc.ConfirmationStatusFinalized
	case rpc.CommitmentProcessed:
		return status != ""
	default:
		return status == rpc.ConfirmationStatusConfirmed || status == rpc.ConfirmationStatusFinalized
	}
}

// BaseUnitsToDecimal converts an integer base-unit amount to its display value.
func BaseUnitsToDecimal(amount uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals))
}

func lamportsToSOL(lamports uint64) decimal.Decimal {
	return BaseUnitsToDecimal(lamports, 9)
}
