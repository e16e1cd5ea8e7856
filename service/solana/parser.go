package solana

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

// Well-known Solana program IDs
var (
	// SystemProgramID is the native SOL transfer program
	SystemProgramID = solana.SystemProgramID

	// TokenProgramID is the SPL Token program
	TokenProgramID = solana.TokenProgramID

	// Token2022ProgramID is the Token Extensions program (Token-2022)
	Token2022ProgramID = solana.Token2022ProgramID

	// MemoProgramIDSPL is the SPL Memo program (most common)
	MemoProgramIDSPL = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

	// MemoProgramIDLegacy is the legacy memo program (v1)
	MemoProgramIDLegacy = solana.MustPublicKeyFromBase58("Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo")
)

// System Program instruction types
const (
	SystemProgramTransferInstruction = uint32(2)
)

// Account data sizes
const (
	tokenAccountSize = 165
)

// IsTokenProgram reports whether id is the SPL Token or Token-2022 program.
func IsTokenProgram(id solana.PublicKey) bool {
	return id.Equals(TokenProgramID) || id.Equals(Token2022ProgramID)
}

// IsSystemTransfer reports whether ix is a System Program Transfer.
func IsSystemTransfer(ix ParsedInstruction) bool {
	if !ix.ProgramID.Equals(SystemProgramID) || len(ix.Data) < 4 {
		return false
	}
	return binary.LittleEndian.Uint32(ix.Data[0:4]) == SystemProgramTransferInstruction
}

// Memo returns the text of the first memo instruction, if any.
func (p *ParsedTransaction) Memo() (string, bool) {
	for _, ix := range p.Instructions {
		if ix.ProgramID.Equals(MemoProgramIDSPL) || ix.ProgramID.Equals(MemoProgramIDLegacy) {
			if utf8.Valid(ix.Data) && len(ix.Data) > 0 {
				return string(ix.Data), true
			}
		}
	}
	return "", false
}

// signatureToInfo converts an RPC TransactionSignature to our domain type.
func signatureToInfo(sig *rpc.TransactionSignature) SignatureInfo {
	info := SignatureInfo{
		Signature: sig.Signature,
		Slot:      sig.Slot,
	}

	if sig.BlockTime != nil {
		info.BlockTime = sig.BlockTime.Time()
	}

	if sig.Err != nil {
		errMsg := fmt.Sprintf("transaction failed: %v", sig.Err)
		info.Err = &errMsg
	}

	return info
}

// parseTransactionResult resolves the top-level instructions of a fetched
// transaction. Account indexes that point into address lookup tables are
// left out of Accounts; program ids always live in the static keys.
func parseTransactionResult(sig solana.Signature, result *rpc.GetTransactionResult) (*ParsedTransaction, error) {
	if result == nil || result.Transaction == nil {
		return nil, fmt.Errorf("transaction not available")
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	parsed := &ParsedTransaction{
		Signature:    sig,
		Instructions: make([]ParsedInstruction, 0, len(tx.Message.Instructions)),
	}

	if result.Meta != nil && result.Meta.Err != nil {
		errMsg := fmt.Sprintf("transaction failed: %v", result.Meta.Err)
		parsed.Err = &errMsg
	}

	accountKeys := tx.Message.AccountKeys
	for _, instruction := range tx.Message.Instructions {
		if int(instruction.ProgramIDIndex) >= len(accountKeys) {
			return nil, fmt.Errorf("program index %d out of bounds", instruction.ProgramIDIndex)
		}

		ix := ParsedInstruction{
			ProgramID: accountKeys[instruction.ProgramIDIndex],
			Accounts:  make([]solana.PublicKey, 0, len(instruction.Accounts)),
			Data:      instruction.Data,
		}
		for _, idx := range instruction.Accounts {
			if int(idx) < len(accountKeys) {
				ix.Accounts = append(ix.Accounts, accountKeys[idx])
			}
		}
		parsed.Instructions = append(parsed.Instructions, ix)
	}

	return parsed, nil
}

// decodeMint decodes SPL token mint account data.
func decodeMint(address solana.PublicKey, data []byte) (*MintInfo, error) {
	if len(data) < MintAccountSize {
		return nil, fmt.Errorf("%w: mint data is %d bytes", ErrInvalidAccountData, len(data))
	}

	var mint token.Mint
	if err := bin.NewBinDecoder(data).Decode(&mint); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccountData, err)
	}
	if !mint.IsInitialized {
		return nil, fmt.Errorf("%w: mint is not initialized", ErrInvalidAccountData)
	}

	return &MintInfo{
		Address:         address,
		Decimals:        mint.Decimals,
		Supply:          mint.Supply,
		MintAuthority:   mint.MintAuthority,
		FreezeAuthority: mint.FreezeAuthority,
	}, nil
}

// decodeTokenAccount decodes SPL token account data.
func decodeTokenAccount(data []byte) (*token.Account, error) {
	if len(data) < tokenAccountSize {
		return nil, fmt.Errorf("%w: token account data is %d bytes", ErrInvalidAccountData, len(data))
	}

	var acct token.Account
	if err := bin.NewBinDecoder(data).Decode(&acct); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccountData, err)
	}
	return &acct, nil
}
