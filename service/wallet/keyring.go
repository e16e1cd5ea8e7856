package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/99designs/keyring"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// KeyringConfig selects where wallet keys are stored.
type KeyringConfig struct {
	ServiceName string
	// FileDir is used by the file backend. Empty means the keyring default.
	FileDir string
	// FilePassword unlocks the file backend. Empty prompts on the terminal.
	FilePassword string
}

// OpenKeyring opens the OS keychain, falling back to an encrypted file
// backend when no keychain is available (headless Linux).
func OpenKeyring(cfg KeyringConfig) (keyring.Keyring, error) {
	base := keyring.Config{
		ServiceName:              cfg.ServiceName,
		KeychainTrustApplication: true,
		FileDir:                  cfg.FileDir,
	}
	if cfg.FilePassword != "" {
		base.FilePasswordFunc = keyring.FixedStringPrompt(cfg.FilePassword)
	} else {
		base.FilePasswordFunc = keyring.TerminalPrompt
	}

	if runtime.GOOS == "linux" {
		base.AllowedBackends = []keyring.BackendType{
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.FileBackend,
		}
	}

	ring, err := keyring.Open(base)
	if err == nil {
		return ring, nil
	}

	base.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
	ring, fileErr := keyring.Open(base)
	if fileErr != nil {
		return nil, fmt.Errorf("open keyring: %w", errors.Join(err, fileErr))
	}
	return ring, nil
}

// KeyringWallet is a Gateway whose secret key lives in a keyring item.
// Every connection and signature goes through its Approver.
type KeyringWallet struct {
	ring     keyring.Keyring
	name     string
	approver Approver
	logger   *slog.Logger

	mu  sync.Mutex
	key solana.PrivateKey // set while connected
}

// NewKeyringWallet creates a wallet that reads the key stored under name.
func NewKeyringWallet(ring keyring.Keyring, name string, approver Approver, logger *slog.Logger) *KeyringWallet {
	if approver == nil {
		approver = AutoApprove{}
	}
	return &KeyringWallet{
		ring:     ring,
		name:     name,
		approver: approver,
		logger:   logger,
	}
}

func (w *KeyringWallet) itemKey() string {
	return "mintdash.wallet." + w.name
}

// Import validates a base58-encoded 64-byte secret key and stores it.
func (w *KeyringWallet) Import(secret string) (solana.PublicKey, error) {
	raw, err := base58.Decode(secret)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("decode secret key: %w", err)
	}
	return w.store(solana.PrivateKey(raw))
}

// ImportKeygenFile stores the key from a solana-keygen JSON file.
func (w *KeyringWallet) ImportKeygenFile(path string) (solana.PublicKey, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("read keygen file: %w", err)
	}
	return w.store(key)
}

// Generate creates and stores a new random key.
func (w *KeyringWallet) Generate() (solana.PublicKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("generate key: %w", err)
	}
	return w.store(key)
}

func (w *KeyringWallet) store(key solana.PrivateKey) (solana.PublicKey, error) {
	if err := key.Validate(); err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid secret key: %w", err)
	}

	err := w.ring.Set(keyring.Item{
		Key:         w.itemKey(),
		Data:        []byte(base58.Encode(key)),
		Label:       "mintdash wallet " + w.name,
		Description: key.PublicKey().String(),
	})
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("keyring store: %w", err)
	}
	return key.PublicKey(), nil
}

func (w *KeyringWallet) load() (solana.PrivateKey, error) {
	item, err := w.ring.Get(w.itemKey())
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w %q", ErrNoKey, w.name)
	}
	if err != nil {
		return nil, fmt.Errorf("keyring retrieve: %w", err)
	}

	key, err := solana.PrivateKeyFromBase58(string(item.Data))
	if err != nil {
		return nil, fmt.Errorf("stored key for %q is invalid: %w", w.name, err)
	}
	return key, nil
}

// Address returns the public key of the stored wallet without connecting.
func (w *KeyringWallet) Address() (solana.PublicKey, error) {
	key, err := w.load()
	if err != nil {
		return solana.PublicKey{}, err
	}
	return key.PublicKey(), nil
}

// Remove deletes the stored key.
func (w *KeyringWallet) Remove() error {
	w.mu.Lock()
	w.key = nil
	w.mu.Unlock()

	if _, err := w.ring.Get(w.itemKey()); errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("%w %q", ErrNoKey, w.name)
	}
	if err := w.ring.Remove(w.itemKey()); err != nil {
		return fmt.Errorf("keyring remove: %w", err)
	}
	return nil
}

// IsAvailable reports whether a key is stored under the wallet name.
func (w *KeyringWallet) IsAvailable(ctx context.Context) bool {
	_, err := w.load()
	if err != nil {
		w.logger.DebugContext(ctx, "wallet not available", "wallet", w.name, "error", err)
		return false
	}
	return true
}

// Connect unlocks the stored key once the approver accepts.
func (w *KeyringWallet) Connect(ctx context.Context) (solana.PublicKey, error) {
	key, err := w.load()
	if err != nil {
		return solana.PublicKey{}, err
	}

	ok, err := w.approver.ApproveConnection(ctx, key.PublicKey())
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("connection approval: %w", err)
	}
	if !ok {
		return solana.PublicKey{}, ErrConnectionRejected
	}

	w.mu.Lock()
	w.key = key
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "wallet connected",
		"wallet", w.name,
		"address", key.PublicKey().String(),
	)
	return key.PublicKey(), nil
}

// Disconnect forgets the unlocked key.
func (w *KeyringWallet) Disconnect(ctx context.Context) error {
	w.mu.Lock()
	w.key = nil
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "wallet disconnected", "wallet", w.name)
	return nil
}

// SignTransaction asks the approver, then signs with the wallet key and
// any co-signers, returning the serialized transaction.
func (w *KeyringWallet) SignTransaction(ctx context.Context, pending *PendingTransaction) ([]byte, error) {
	w.mu.Lock()
	key := w.key
	w.mu.Unlock()
	if key == nil {
		return nil, ErrNotConnected
	}

	if !pending.FeePayer.Equals(key.PublicKey()) {
		return nil, fmt.Errorf("fee payer %s is not the connected wallet %s", pending.FeePayer, key.PublicKey())
	}

	tx, err := pending.Transaction()
	if err != nil {
		return nil, err
	}

	ok, err := w.approver.ApproveSignature(ctx, pending)
	if err != nil {
		return nil, fmt.Errorf("signature approval: %w", err)
	}
	if !ok {
		w.logger.InfoContext(ctx, "signature request rejected",
			"operation", pending.Operation,
		)
		return nil, ErrSigningRejected
	}

	signers := make(map[solana.PublicKey]solana.PrivateKey, len(pending.CoSigners)+1)
	signers[key.PublicKey()] = key
	for _, co := range pending.CoSigners {
		signers[co.PublicKey()] = co
	}

	_, err = tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if k, ok := signers[pub]; ok {
			return &k
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}
	return raw, nil
}
