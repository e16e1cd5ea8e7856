// Package session tracks the connected wallet and keeps its native balance
// fresh while a wallet is attached.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/mintdash/service/metrics"
	"github.com/brojonat/mintdash/service/wallet"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// InstallHint tells the user how to make a wallet available.
const InstallHint = "no wallet key found; run `mintdash wallet import` or `mintdash wallet generate` first"

var (
	// ErrWalletUnavailable is returned by Connect when the gateway has no wallet.
	ErrWalletUnavailable = errors.New("wallet unavailable")

	// ErrNotConnected is returned when an operation needs a connected session.
	ErrNotConnected = errors.New("wallet not connected")
)

// BalanceReader reads the native balance of an address.
type BalanceReader interface {
	GetBalance(ctx context.Context, address solana.PublicKey) (decimal.Decimal, error)
}

// Session is a snapshot of the connected wallet.
type Session struct {
	Address       solana.PublicKey `json:"address"`
	NativeBalance decimal.Decimal  `json:"native_balance"`
	Connected     bool             `json:"connected"`
	LastRefresh   time.Time        `json:"last_refresh"`
}

// Store owns the single active session. Connect, Disconnect and refresh
// ticks are the only mutation points.
type Store struct {
	gateway  wallet.Gateway
	ledger   BalanceReader
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// connMu serializes Connect and Disconnect so only one refresh loop exists.
	connMu sync.Mutex

	mu         sync.RWMutex
	session    Session
	generation uint64
	stopLoop   context.CancelFunc
	loopDone   chan struct{}
}

// NewStore creates a disconnected Store.
func NewStore(gateway wallet.Gateway, ledger BalanceReader, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) *Store {
	return &Store{
		gateway:  gateway,
		ledger:   ledger,
		interval: interval,
		logger:   logger,
		metrics:  m,
	}
}

// Connect attaches the wallet, reads the balance once and starts the
// refresh loop. Connecting while already connected returns the current session.
func (s *Store) Connect(ctx context.Context) (Session, error) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if current := s.Snapshot(); current.Connected {
		return current, nil
	}

	if !s.gateway.IsAvailable(ctx) {
		s.logger.WarnContext(ctx, "wallet unavailable", "hint", InstallHint)
		return Session{}, fmt.Errorf("%w: %s", ErrWalletUnavailable, InstallHint)
	}

	address, err := s.gateway.Connect(ctx)
	if err != nil {
		if errors.Is(err, wallet.ErrConnectionRejected) {
			s.logger.InfoContext(ctx, "wallet connection rejected")
			return Session{}, err
		}
		return Session{}, fmt.Errorf("connect wallet: %w", err)
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.session = Session{
		Address:   address,
		Connected: true,
	}
	s.mu.Unlock()
	s.metrics.SetSessionConnected(true)

	_ = s.refresh(ctx, address, gen)
	s.startLoop(address, gen)

	s.logger.InfoContext(ctx, "session connected", "address", address.String())
	return s.Snapshot(), nil
}

// Disconnect detaches the wallet. Gateway errors are logged; session state
// is cleared regardless.
func (s *Store) Disconnect(ctx context.Context) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if err := s.gateway.Disconnect(ctx); err != nil {
		s.logger.WarnContext(ctx, "wallet disconnect failed", "error", err)
	}

	s.stop()

	s.mu.Lock()
	s.generation++
	s.session = Session{}
	s.mu.Unlock()
	s.metrics.SetSessionConnected(false)

	s.logger.InfoContext(ctx, "session disconnected")
}

// Refresh re-reads the native balance now.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.RLock()
	address, connected, gen := s.session.Address, s.session.Connected, s.generation
	s.mu.RUnlock()

	if !connected {
		return ErrNotConnected
	}
	return s.refresh(ctx, address, gen)
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Address returns the connected address, or ErrNotConnected.
func (s *Store) Address() (solana.PublicKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.session.Connected {
		return solana.PublicKey{}, ErrNotConnected
	}
	return s.session.Address, nil
}

// Close stops the refresh loop without touching the wallet.
func (s *Store) Close() {
	s.stop()
}

// refresh reads the balance and stores it only if the session it was read
// for is still the active one. A failure keeps the previous balance.
func (s *Store) refresh(ctx context.Context, address solana.PublicKey, gen uint64) error {
	balance, err := s.ledger.GetBalance(ctx, address)
	if err != nil {
		s.metrics.RecordBalanceRefresh("error")
		s.logger.WarnContext(ctx, "balance refresh failed",
			"address", address.String(),
			"error", err,
		)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || !s.session.Connected {
		s.metrics.RecordBalanceRefresh("stale")
		return nil
	}
	s.session.NativeBalance = balance
	s.session.LastRefresh = time.Now()
	s.metrics.RecordBalanceRefresh("success")
	return nil
}

func (s *Store) startLoop(address solana.PublicKey, gen uint64) {
	s.stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.stopLoop = cancel
	s.loopDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.refresh(ctx, address, gen)
			}
		}
	}()
}

// stop cancels the refresh loop and waits for it to exit.
func (s *Store) stop() {
	s.mu.Lock()
	cancel, done := s.stopLoop, s.loopDone
	s.stopLoop, s.loopDone = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
