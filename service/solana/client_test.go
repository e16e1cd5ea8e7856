package solana

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type mockRPCClient struct {
	balance       uint64
	accounts      map[solana.PublicKey][]byte
	blockhash     solana.Hash
	rent          uint64
	sendSig       solana.Signature
	sent          [][]byte
	statuses      [][]*rpc.SignatureStatusesResult
	statusCalls   int
	signatures    []*rpc.TransactionSignature
	transactions  map[string]*rpc.GetTransactionResult
	tokenAccounts []RawAccount
	err           error
}

func (m *mockRPCClient) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (uint64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.balance, nil
}

func (m *mockRPCClient) GetAccountData(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	data, ok := m.accounts[account]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return data, nil
}

func (m *mockRPCClient) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (solana.Hash, error) {
	if m.err != nil {
		return solana.Hash{}, m.err
	}
	return m.blockhash, nil
}

func (m *mockRPCClient) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.rent, nil
}

func (m *mockRPCClient) SendRawTransaction(ctx context.Context, rawTx []byte, opts rpc.TransactionOpts) (solana.Signature, error) {
	if m.err != nil {
		return solana.Signature{}, m.err
	}
	m.sent = append(m.sent, rawTx)
	return m.sendSig, nil
}

func (m *mockRPCClient) GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) ([]*rpc.SignatureStatusesResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.statuses) == 0 {
		return []*rpc.SignatureStatusesResult{nil}, nil
	}
	idx := min(m.statusCalls, len(m.statuses)-1)
	m.statusCalls++
	return m.statuses[idx], nil
}

func (m *mockRPCClient) GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.signatures, nil
}

func (m *mockRPCClient) GetTransaction(ctx context.Context, signature solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.transactions == nil {
		return nil, nil
	}
	return m.transactions[signature.String()], nil
}

func (m *mockRPCClient) GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, programID solana.PublicKey, commitment rpc.CommitmentType) ([]RawAccount, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.tokenAccounts, nil
}

func newTestClient(mock *mockRPCClient) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(mock, "test", nil, logger, WithPollInterval(time.Millisecond))
}

func encodeMint(t *testing.T, decimals uint8, supply uint64, authority *solana.PublicKey) []byte {
	t.Helper()
	data, err := bin.MarshalBin(token.Mint{
		MintAuthority:   authority,
		Supply:          supply,
		Decimals:        decimals,
		IsInitialized:   true,
		FreezeAuthority: authority,
	})
	require.NoError(t, err)
	return data
}

func encodeTokenAccount(t *testing.T, mint, owner solana.PublicKey, amount uint64) []byte {
	t.Helper()
	data, err := bin.MarshalBin(token.Account{
		Mint:   mint,
		Owner:  owner,
		Amount: amount,
		State:  token.Initialized,
	})
	require.NoError(t, err)
	return data
}

func TestGetBalance_ConvertsLamports(t *testing.T) {
	client := newTestClient(&mockRPCClient{balance: 1_500_000_000})

	balance, err := client.GetBalance(context.Background(), solana.NewWallet().PublicKey())

	require.NoError(t, err)
	assert.Equal(t, "1.5", balance.String())
}

func TestGetBalance_ErrorFromRPC(t *testing.T) {
	client := newTestClient(&mockRPCClient{err: assert.AnError})

	_, err := client.GetBalance(context.Background(), solana.NewWallet().PublicKey())

	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestGetMintInfo_DecodesMint(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	authority := solana.NewWallet().PublicKey()
	mock := &mockRPCClient{
		accounts: map[solana.PublicKey][]byte{
			mint: encodeMint(t, 6, 1_000_000, &authority),
		},
	}
	client := newTestClient(mock)

	info, err := client.GetMintInfo(context.Background(), mint)

	require.NoError(t, err)
	assert.Equal(t, uint8(6), info.Decimals)
	assert.Equal(t, uint64(1_000_000), info.Supply)
	require.NotNil(t, info.MintAuthority)
	assert.Equal(t, authority, *info.MintAuthority)
	require.NotNil(t, info.FreezeAuthority)
	assert.Equal(t, authority, *info.FreezeAuthority)
}

func TestGetMintInfo_NotFound(t *testing.T) {
	client := newTestClient(&mockRPCClient{})

	_, err := client.GetMintInfo(context.Background(), solana.NewWallet().PublicKey())

	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestGetMintInfo_ShortData(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	client := newTestClient(&mockRPCClient{
		accounts: map[solana.PublicKey][]byte{mint: {1, 2, 3}},
	})

	_, err := client.GetMintInfo(context.Background(), mint)

	assert.ErrorIs(t, err, ErrInvalidAccountData)
}

func TestGetOrCreateTokenAccount_Missing(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	client := newTestClient(&mockRPCClient{})

	ref, err := client.GetOrCreateTokenAccount(context.Background(), owner, owner, mint)

	require.NoError(t, err)
	expected, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	assert.Equal(t, expected, ref.Address)
	assert.False(t, ref.Exists())
	require.NotNil(t, ref.Create)
	assert.Equal(t, solana.SPLAssociatedTokenAccountProgramID, ref.Create.ProgramID())
}

func TestGetOrCreateTokenAccount_ExistingIsIdempotent(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)

	client := newTestClient(&mockRPCClient{
		accounts: map[solana.PublicKey][]byte{
			ata: encodeTokenAccount(t, mint, owner, 10),
		},
	})

	first, err := client.GetOrCreateTokenAccount(context.Background(), owner, owner, mint)
	require.NoError(t, err)
	second, err := client.GetOrCreateTokenAccount(context.Background(), owner, owner, mint)
	require.NoError(t, err)

	assert.Equal(t, first.Address, second.Address)
	assert.True(t, first.Exists())
	assert.Nil(t, second.Create)
}

func TestGetOrCreateTokenAccount_RPCError(t *testing.T) {
	client := newTestClient(&mockRPCClient{err: assert.AnError})

	_, err := client.GetOrCreateTokenAccount(context.Background(),
		solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())

	assert.ErrorIs(t, err, assert.AnError)
}

func TestSubmit_ReturnsSignature(t *testing.T) {
	sig := solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")
	mock := &mockRPCClient{sendSig: sig}
	client := newTestClient(mock)

	got, err := client.Submit(context.Background(), []byte{1, 2, 3})

	require.NoError(t, err)
	assert.Equal(t, sig, got)
	require.Len(t, mock.sent, 1)
	assert.Equal(t, []byte{1, 2, 3}, mock.sent[0])
}

func TestConfirm_WaitsForCommitment(t *testing.T) {
	sig := solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")
	mock := &mockRPCClient{
		statuses: [][]*rpc.SignatureStatusesResult{
			{nil},
			{{ConfirmationStatus: rpc.ConfirmationStatusProcessed}},
			{{ConfirmationStatus: rpc.ConfirmationStatusConfirmed}},
		},
	}
	client := newTestClient(mock)

	outcome, err := client.Confirm(context.Background(), sig, rpc.CommitmentConfirmed, time.Second)

	require.NoError(t, err)
	assert.False(t, outcome.Failed())
	assert.Equal(t, "confirmed", outcome.Status)
	assert.Equal(t, 3, mock.statusCalls)
}

func TestConfirm_ReportsLedgerFailure(t *testing.T) {
	sig := solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")
	mock := &mockRPCClient{
		statuses: [][]*rpc.SignatureStatusesResult{
			{{ConfirmationStatus: rpc.ConfirmationStatusConfirmed, Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}}},
		},
	}
	client := newTestClient(mock)

	outcome, err := client.Confirm(context.Background(), sig, rpc.CommitmentConfirmed, time.Second)

	require.NoError(t, err)
	assert.True(t, outcome.Failed())
	assert.Contains(t, *outcome.Err, "InstructionError")
}

func TestConfirm_Timeout(t *testing.T) {
	sig := solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")
	client := newTestClient(&mockRPCClient{})

	_, err := client.Confirm(context.Background(), sig, rpc.CommitmentConfirmed, 20*time.Millisecond)

	assert.ErrorIs(t, err, ErrConfirmationTimeout)
}

func TestConfirm_TimeoutUnderRateLimit(t *testing.T) {
	sig := solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := NewClient(&mockRPCClient{}, "test", nil, logger, WithRateLimit(2), WithPollInterval(time.Millisecond))

	start := time.Now()
	_, err := client.Confirm(context.Background(), sig, rpc.CommitmentConfirmed, 300*time.Millisecond)

	assert.ErrorIs(t, err, ErrConfirmationTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)
}

func TestConfirm_ParentCancelled(t *testing.T) {
	sig := solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")
	client := newTestClient(&mockRPCClient{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Confirm(ctx, sig, rpc.CommitmentConfirmed, time.Second)

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConfirmationTimeout)
}

func TestReachedCommitment(t *testing.T) {
	assert.True(t, reachedCommitment(rpc.ConfirmationStatusConfirmed, rpc.CommitmentConfirmed))
	assert.True(t, reachedCommitment(rpc.ConfirmationStatusFinalized, rpc.CommitmentConfirmed))
	assert.False(t, reachedCommitment(rpc.ConfirmationStatusProcessed, rpc.CommitmentConfirmed))
	assert.False(t, reachedCommitment(rpc.ConfirmationStatusConfirmed, rpc.CommitmentFinalized))
	assert.True(t, reachedCommitment(rpc.ConfirmationStatusProcessed, rpc.CommitmentProcessed))
}

func TestListRecentSignatures(t *testing.T) {
	sig1 := solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")
	sig2 := solana.MustSignatureFromBase58("2TgM4N8qCMqLvfR8dxqTQgKygPNzT5KQkN5b5sT7eZPEkdxyLTXGnNQB3j7KG4DPFg5Qez5yNJBQRQ5r7DDnFfjG")
	now := solana.UnixTimeSeconds(time.Now().Unix())

	mock := &mockRPCClient{
		signatures: []*rpc.TransactionSignature{
			{Signature: sig1, Slot: 100, BlockTime: &now},
			{Signature: sig2, Slot: 99, Err: map[string]interface{}{"InstructionError": "x"}},
		},
	}
	client := newTestClient(mock)

	infos, err := client.ListRecentSignatures(context.Background(), solana.NewWallet().PublicKey(), 10)

	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, sig1, infos[0].Signature)
	assert.Nil(t, infos[0].Err)
	assert.False(t, infos[0].BlockTime.IsZero())
	assert.Equal(t, sig2, infos[1].Signature)
	require.NotNil(t, infos[1].Err)
	assert.True(t, infos[1].BlockTime.IsZero())
}

func TestListRecentSignatures_ErrorFromRPC(t *testing.T) {
	client := newTestClient(&mockRPCClient{err: assert.AnError})

	infos, err := client.ListRecentSignatures(context.Background(), solana.NewWallet().PublicKey(), 10)

	assert.Error(t, err)
	assert.Nil(t, infos)
}

func TestListTokenAccounts_ExcludesZeroAndSorts(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	mintA := solana.NewWallet().PublicKey()
	mintB := solana.NewWallet().PublicKey()
	mintMissing := solana.NewWallet().PublicKey()

	mock := &mockRPCClient{
		accounts: map[solana.PublicKey][]byte{
			mintA: encodeMint(t, 2, 0, &owner),
			mintB: encodeMint(t, 6, 0, &owner),
		},
		tokenAccounts: []RawAccount{
			{Address: solana.NewWallet().PublicKey(), Data: encodeTokenAccount(t, mintA, owner, 1000)},
			{Address: solana.NewWallet().PublicKey(), Data: encodeTokenAccount(t, mintB, owner, 0)},
			{Address: solana.NewWallet().PublicKey(), Data: encodeTokenAccount(t, mintB, owner, 2_500_000)},
			{Address: solana.NewWallet().PublicKey(), Data: encodeTokenAccount(t, mintMissing, owner, 3_000_000_000)},
			{Address: solana.NewWallet().PublicKey(), Data: []byte{0xde, 0xad}},
		},
	}
	client := newTestClient(mock)

	balances, err := client.ListTokenAccounts(context.Background(), owner)

	require.NoError(t, err)
	require.Len(t, balances, 3)
	for i := 1; i < len(balances); i++ {
		assert.Less(t, balances[i-1].Mint.String(), balances[i].Mint.String())
	}

	byMint := make(map[solana.PublicKey]TokenBalance)
	for _, b := range balances {
		byMint[b.Mint] = b
	}
	assert.Equal(t, "10", byMint[mintA].UIBalance.String())
	assert.Equal(t, "2.5", byMint[mintB].UIBalance.String())
	assert.Equal(t, DefaultDecimals, byMint[mintMissing].Decimals)
	assert.Equal(t, "3", byMint[mintMissing].UIBalance.String())
}

func TestBaseUnitsToDecimal(t *testing.T) {
	assert.Equal(t, "3.25", BaseUnitsToDecimal(325, 2).String())
	assert.Equal(t, "0.000001", BaseUnitsToDecimal(1, 6).String())
	assert.Equal(t, "18446744073709551615", BaseUnitsToDecimal(^uint64(0), 0).String())
}
