package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to create a TransactionResultEnvelope from a Transaction.
// Since TransactionResultEnvelope has unexported fields, we go through the
// base64 wire form the RPC node returns.
func makeTransactionEnvelope(t *testing.T, tx *solana.Transaction) *rpc.TransactionResultEnvelope {
	t.Helper()

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	payload := fmt.Sprintf(`{"transaction":[%q,"base64"]}`, base64.StdEncoding.EncodeToString(raw))

	var result rpc.GetTransactionResult
	require.NoError(t, json.Unmarshal([]byte(payload), &result))
	return result.Transaction
}

func buildTransaction(t *testing.T, payer solana.PublicKey, instructions ...solana.Instruction) *solana.Transaction {
	t.Helper()
	tx, err := solana.NewTransaction(instructions, solana.Hash{1}, solana.TransactionPayer(payer))
	require.NoError(t, err)
	return tx
}

func TestParseTransaction_SystemTransfer(t *testing.T) {
	from := solana.NewWallet().PublicKey()
	to := solana.NewWallet().PublicKey()

	tx := buildTransaction(t, from, system.NewTransferInstruction(1_000_000_000, from, to).Build())
	sig := solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")

	parsed, err := parseTransactionResult(sig, &rpc.GetTransactionResult{
		Transaction: makeTransactionEnvelope(t, tx),
	})

	require.NoError(t, err)
	require.Len(t, parsed.Instructions, 1)
	assert.True(t, parsed.Instructions[0].ProgramID.Equals(SystemProgramID))
	assert.True(t, IsSystemTransfer(parsed.Instructions[0]))
	assert.False(t, IsTokenProgram(parsed.Instructions[0].ProgramID))
	assert.Equal(t, []solana.PublicKey{from, to}, parsed.Instructions[0].Accounts)
	assert.Nil(t, parsed.Err)
}

func TestParseTransaction_TokenMintTo(t *testing.T) {
	authority := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	dest := solana.NewWallet().PublicKey()

	tx := buildTransaction(t, authority, token.NewMintToInstruction(2_500_000, mint, dest, authority, nil).Build())
	sig := solana.MustSignatureFromBase58("2TgM4N8qCMqLvfR8dxqTQgKygPNzT5KQkN5b5sT7eZPEkdxyLTXGnNQB3j7KG4DPFg5Qez5yNJBQRQ5r7DDnFfjG")

	parsed, err := parseTransactionResult(sig, &rpc.GetTransactionResult{
		Transaction: makeTransactionEnvelope(t, tx),
	})

	require.NoError(t, err)
	require.Len(t, parsed.Instructions, 1)
	assert.True(t, IsTokenProgram(parsed.Instructions[0].ProgramID))
	assert.False(t, IsSystemTransfer(parsed.Instructions[0]))
}

func TestParseTransaction_MetaError(t *testing.T) {
	from := solana.NewWallet().PublicKey()
	tx := buildTransaction(t, from, system.NewTransferInstruction(1, from, solana.NewWallet().PublicKey()).Build())
	sig := solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")

	parsed, err := parseTransactionResult(sig, &rpc.GetTransactionResult{
		Transaction: makeTransactionEnvelope(t, tx),
		Meta:        &rpc.TransactionMeta{Err: map[string]interface{}{"InstructionError": "x"}},
	})

	require.NoError(t, err)
	require.NotNil(t, parsed.Err)
	assert.Contains(t, *parsed.Err, "InstructionError")
}

func TestParseTransaction_WithMemo(t *testing.T) {
	from := solana.NewWallet().PublicKey()
	memoText := `{"note": "airdrop"}`

	tx := buildTransaction(t, from,
		system.NewTransferInstruction(1, from, solana.NewWallet().PublicKey()).Build(),
		solana.NewInstruction(MemoProgramIDSPL, solana.AccountMetaSlice{}, []byte(memoText)),
	)
	sig := solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")

	parsed, err := parseTransactionResult(sig, &rpc.GetTransactionResult{
		Transaction: makeTransactionEnvelope(t, tx),
	})

	require.NoError(t, err)
	memo, ok := parsed.Memo()
	assert.True(t, ok)
	assert.Equal(t, memoText, memo)
}

func TestParseTransaction_Unavailable(t *testing.T) {
	sig := solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")

	_, err := parseTransactionResult(sig, nil)

	assert.Error(t, err)
}

func TestIsSystemTransfer_OtherSystemInstruction(t *testing.T) {
	ix := ParsedInstruction{
		ProgramID: SystemProgramID,
		Data:      []byte{0, 0, 0, 0}, // CreateAccount
	}
	assert.False(t, IsSystemTransfer(ix))
}

func TestGetParsedTransaction_ViaClient(t *testing.T) {
	from := solana.NewWallet().PublicKey()
	tx := buildTransaction(t, from, system.NewTransferInstruction(5, from, solana.NewWallet().PublicKey()).Build())
	sig := solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")

	client := newTestClient(&mockRPCClient{
		transactions: map[string]*rpc.GetTransactionResult{
			sig.String(): {Transaction: makeTransactionEnvelope(t, tx)},
		},
	})

	parsed, err := client.GetParsedTransaction(context.Background(), sig)

	require.NoError(t, err)
	assert.Equal(t, sig, parsed.Signature)
	require.Len(t, parsed.Instructions, 1)
	assert.True(t, IsSystemTransfer(parsed.Instructions[0]))
}

func TestGetParsedTransaction_Missing(t *testing.T) {
	sig := solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")
	client := newTestClient(&mockRPCClient{})

	_, err := client.GetParsedTransaction(context.Background(), sig)

	assert.Error(t, err)
}
