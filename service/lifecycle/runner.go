package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/mintdash/service/metrics"
	"github.com/brojonat/mintdash/service/notify"
	mintsolana "github.com/brojonat/mintdash/service/solana"
	"github.com/brojonat/mintdash/service/wallet"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

// DefaultConfirmTimeout bounds the wait for confirmation.
const DefaultConfirmTimeout = 60 * time.Second

// Ledger is the subset of the ledger client the orchestrators use.
type Ledger interface {
	GetMintInfo(ctx context.Context, mint solana.PublicKey) (*mintsolana.MintInfo, error)
	GetOrCreateTokenAccount(ctx context.Context, payer, owner, mint solana.PublicKey) (*mintsolana.TokenAccountRef, error)
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error)
	Submit(ctx context.Context, signed []byte) (solana.Signature, error)
	Confirm(ctx context.Context, sig solana.Signature, level rpc.CommitmentType, timeout time.Duration) (mintsolana.ConfirmationOutcome, error)
	ListTokenAccounts(ctx context.Context, owner solana.PublicKey) ([]mintsolana.TokenBalance, error)
}

// Session supplies the connected address and re-reads its balance.
type Session interface {
	Address() (solana.PublicKey, error)
	Refresh(ctx context.Context) error
}

// Signer is the signing half of the wallet gateway.
type Signer interface {
	SignTransaction(ctx context.Context, tx *wallet.PendingTransaction) ([]byte, error)
}

// Notifier receives one notification per invocation.
type Notifier interface {
	Notify(ctx context.Context, kind notify.Kind, operation, message string) notify.Notification
}

// Recents records mint addresses used by successful operations.
type Recents interface {
	Add(ctx context.Context, mint string) ([]string, error)
}

// Result describes a finished invocation.
type Result struct {
	Operation Operation        `json:"operation"`
	Signature solana.Signature `json:"signature"`
	Mint      solana.PublicKey `json:"mint"`
	Amount    decimal.Decimal  `json:"amount"`
	BaseUnits uint64           `json:"base_units"`
	Message   string           `json:"message"`
	Status    string           `json:"status"` // commitment reached
	States    []State          `json:"states"`
}

// Runner executes token operations for one session, one at a time.
type Runner struct {
	ledger   Ledger
	session  Session
	signer   Signer
	notifier Notifier
	recents  Recents
	metrics  *metrics.Metrics
	logger   *slog.Logger

	confirmTimeout time.Duration
	onTransition   func(Operation, State)

	mu       sync.Mutex
	inFlight map[solana.PublicKey]Operation
}

// Option configures a Runner.
type Option func(*Runner)

// WithConfirmTimeout sets the confirmation upper bound.
func WithConfirmTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.confirmTimeout = d
		}
	}
}

// WithRecents records successful mints in the recency list.
func WithRecents(recents Recents) Option {
	return func(r *Runner) { r.recents = recents }
}

// WithTransitionHook is called on every state change.
func WithTransitionHook(fn func(Operation, State)) Option {
	return func(r *Runner) { r.onTransition = fn }
}

// NewRunner creates a Runner.
func NewRunner(ledger Ledger, session Session, signer Signer, notifier Notifier, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		ledger:         ledger,
		session:        session,
		signer:         signer,
		notifier:       notifier,
		metrics:        m,
		logger:         logger,
		confirmTimeout: DefaultConfirmTimeout,
		inFlight:       make(map[solana.PublicKey]Operation),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// plan is what an operation contributes to the shared lifecycle.
type plan struct {
	op       Operation
	validate func() error
	build    func(ctx context.Context, payer solana.PublicKey, res *Result) (*built, error)
}

// built is the output of the Building step.
type built struct {
	instructions []solana.Instruction
	coSigners    []solana.PrivateKey
	summary      string
	success      string
	recentMint   string
}

// invocation tracks one pass through the lifecycle.
type invocation struct {
	r     *Runner
	op    Operation
	state State
	res   *Result
	start time.Time
}

func (inv *invocation) to(s State) {
	inv.state = s
	inv.res.States = append(inv.res.States, s)
	if inv.r.onTransition != nil {
		inv.r.onTransition(inv.op, s)
	}
}

// fail converts err into an OperationError, logs the detail and emits the
// single error notification for this invocation.
func (inv *invocation) fail(ctx context.Context, code Code, detail string, err error) (Result, error) {
	opErr := &OperationError{
		Op:     inv.op,
		Code:   code,
		State:  inv.state,
		Final:  finalState(code),
		Detail: detail,
		Err:    err,
	}
	inv.to(opErr.Final)

	level := slog.LevelError
	if opErr.Final == StateIdle {
		level = slog.LevelWarn
	}
	inv.r.logger.Log(ctx, level, "operation failed",
		"operation", inv.op,
		"code", code,
		"state", opErr.State.String(),
		"detail", detail,
		"error", err,
	)

	inv.r.metrics.RecordOperation(string(inv.op), string(code), time.Since(inv.start).Seconds())
	inv.res.Message = opErr.Message()
	inv.r.notifier.Notify(ctx, notify.KindError, string(inv.op), inv.res.Message)
	return *inv.res, opErr
}

// acquire marks payer busy. It returns false if an operation is in flight.
func (r *Runner) acquire(payer solana.PublicKey, op Operation) (release func(), ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inFlight[payer]; busy {
		return nil, false
	}
	r.inFlight[payer] = op
	r.metrics.OperationStarted()
	return func() {
		r.mu.Lock()
		delete(r.inFlight, payer)
		r.mu.Unlock()
		r.metrics.OperationFinished()
	}, true
}

// run drives p through the lifecycle. No step is retried.
func (r *Runner) run(ctx context.Context, p plan) (Result, error) {
	res := &Result{Operation: p.op}
	inv := &invocation{r: r, op: p.op, state: StateIdle, res: res, start: time.Now()}

	payer, err := r.session.Address()
	if err != nil {
		return inv.fail(ctx, CodeNotConnected, "", err)
	}

	release, ok := r.acquire(payer, p.op)
	if !ok {
		return inv.fail(ctx, CodeOperationInFlight, "", nil)
	}
	defer release()

	inv.to(StateValidating)
	if err := p.validate(); err != nil {
		return inv.fail(ctx, CodeInvalidInput, err.Error(), nil)
	}

	inv.to(StateBuilding)
	b, err := p.build(ctx, payer, res)
	if err != nil {
		var invalid *inputError
		if errors.As(err, &invalid) {
			return inv.fail(ctx, CodeInvalidInput, invalid.msg, nil)
		}
		return inv.fail(ctx, CodeOperationFailed, "", err)
	}

	blockhash, err := r.ledger.GetLatestBlockhash(ctx)
	if err != nil {
		return inv.fail(ctx, CodeOperationFailed, "", err)
	}

	pending := &wallet.PendingTransaction{
		Operation:       string(p.op),
		Summary:         b.summary,
		Instructions:    b.instructions,
		FeePayer:        payer,
		RecentBlockhash: blockhash,
		CoSigners:       b.coSigners,
	}

	inv.to(StateAwaitingSignature)
	signed, err := r.signer.SignTransaction(ctx, pending)
	switch {
	case errors.Is(err, wallet.ErrSigningRejected):
		r.metrics.RecordSignatureRequest(string(p.op), "rejected")
		return inv.fail(ctx, CodeSigningRejected, "", err)
	case errors.Is(err, wallet.ErrNotConnected):
		r.metrics.RecordSignatureRequest(string(p.op), "error")
		return inv.fail(ctx, CodeNotConnected, "", err)
	case err != nil:
		r.metrics.RecordSignatureRequest(string(p.op), "error")
		return inv.fail(ctx, CodeOperationFailed, "", err)
	}
	r.metrics.RecordSignatureRequest(string(p.op), "signed")

	// Once submitted the transaction either confirms or fails on the
	// ledger; the caller going away no longer cancels it.
	ctx = context.WithoutCancel(ctx)

	inv.to(StateSubmitting)
	sig, err := r.ledger.Submit(ctx, signed)
	if err != nil {
		return inv.fail(ctx, CodeSubmissionFailed, "", err)
	}
	res.Signature = sig

	inv.to(StateConfirming)
	outcome, err := r.confirm(ctx, p.op, sig)
	switch {
	case errors.Is(err, mintsolana.ErrConfirmationTimeout):
		return inv.fail(ctx, CodeConfirmationTimeout, "", err)
	case err != nil:
		return inv.fail(ctx, CodeOperationFailed, "", err)
	case outcome.Failed():
		return inv.fail(ctx, CodeOperationFailed, "", errors.New(*outcome.Err))
	}
	res.Status = outcome.Status

	inv.to(StateSucceeded)
	r.afterSuccess(ctx, b)

	res.Message = b.success
	r.metrics.RecordOperation(string(p.op), "succeeded", time.Since(inv.start).Seconds())
	r.logger.InfoContext(ctx, "operation succeeded",
		"operation", p.op,
		"signature", sig.String(),
		"mint", res.Mint.String(),
		"duration", time.Since(inv.start),
	)
	r.notifier.Notify(ctx, notify.KindSuccess, string(p.op), b.success)
	return *res, nil
}

// afterSuccess performs best-effort side effects. Failures are logged only.
func (r *Runner) afterSuccess(ctx context.Context, b *built) {
	if r.recents != nil && b.recentMint != "" {
		if _, err := r.recents.Add(ctx, b.recentMint); err != nil {
			r.logger.WarnContext(ctx, "failed to record recent mint", "mint", b.recentMint, "error", err)
		}
	}
	if err := r.session.Refresh(ctx); err != nil {
		r.logger.WarnContext(ctx, "failed to refresh balance after operation", "error", err)
	}
}

// inputError marks a validation failure discovered while building, such as
// an amount that overflows once the mint's decimals are known.
type inputError struct{ msg string }

func (e *inputError) Error() string { return e.msg }

func invalidInput(err error) error {
	return &inputError{msg: err.Error()}
}

// InFlight reports the operation running for address, if any.
func (r *Runner) InFlight(address solana.PublicKey) (Operation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.inFlight[address]
	return op, ok
}

// confirm waits for sig and records how long the wait took.
func (r *Runner) confirm(ctx context.Context, op Operation, sig solana.Signature) (mintsolana.ConfirmationOutcome, error) {
	status := "error"
	defer metrics.Timer(time.Now(), func(d float64) {
		r.metrics.RecordConfirmationWait(string(op), status, d)
	})()

	outcome, err := r.ledger.Confirm(ctx, sig, rpc.CommitmentConfirmed, r.confirmTimeout)
	switch {
	case errors.Is(err, mintsolana.ErrConfirmationTimeout):
		status = "timeout"
	case err != nil:
	case outcome.Failed():
		status = "failed"
	default:
		status = outcome.Status
	}
	return outcome, err
}
