package solana

import (
	"crypto/ed25519"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "ChainAgent/internal/errors"
	"ChainAgent/internal/web3"
)

var testBlockhash = solana.MustHashFromBase58("4sGjMW1sUnHzSxGspuhpqLDx6wiyjNtZAMdL4VZHirAn")

func TestBuildMessageOrdersAccounts(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	create, err := NewCreateInstruction(mint, payer, TokenMetadata{Name: "TestCoin", Symbol: "TC", URI: "https://example.com"})
	require.NoError(t, err)
	limit, err := SetComputeUnitLimit(250_000)
	require.NoError(t, err)

	tx, err := BuildMessage([]solana.Instruction{limit, create}, payer, testBlockhash)
	require.NoError(t, err)

	msg := tx.Message
	assert.Equal(t, testBlockhash, msg.RecentBlockhash)
	assert.Equal(t, uint8(2), msg.Header.NumRequiredSignatures)
	assert.Equal(t, uint8(0), msg.Header.NumReadonlySignedAccounts)
	assert.Equal(t, payer, msg.AccountKeys[0])
	assert.Equal(t, mint, msg.AccountKeys[1])
	assert.Equal(t, []solana.PublicKey{payer, mint}, RequiredSigners(msg))

	accounts, err := DeriveCreateAccounts(mint)
	require.NoError(t, err)
	writable := map[solana.PublicKey]bool{
		payer:                           true,
		mint:                            true,
		accounts.BondingCurve:           true,
		accounts.AssociatedBondingCurve: true,
		accounts.Metadata:               true,
	}
	// 15 个去重账户：14 个 create 账户加计算预算程序。
	require.Len(t, msg.AccountKeys, 15)
	total := len(msg.AccountKeys)
	for idx, key := range msg.AccountKeys {
		assert.Equal(t, writable[key], isWritableIndex(msg.Header, idx, total), key.String())
	}
	assert.Equal(t, uint8(total-5), msg.Header.NumReadonlyUnsignedAccounts)

	require.Len(t, msg.Instructions, 2)
	assert.Equal(t, ComputeBudgetProgramID, msg.AccountKeys[msg.Instructions[0].ProgramIDIndex])
	assert.Equal(t, PumpProgramID, msg.AccountKeys[msg.Instructions[1].ProgramIDIndex])
	assert.Len(t, msg.Instructions[1].Accounts, 14)
}

func TestBuildMessageFeePayerFirstWhenNotReferenced(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	price, err := SetComputeUnitPrice(10)
	require.NoError(t, err)

	tx, err := BuildMessage([]solana.Instruction{price}, payer, testBlockhash)
	require.NoError(t, err)
	assert.Equal(t, payer, tx.Message.AccountKeys[0])
	assert.Equal(t, uint8(1), tx.Message.Header.NumRequiredSignatures)
}

func TestBuildMessageErrors(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	price, err := SetComputeUnitPrice(10)
	require.NoError(t, err)

	_, err = BuildMessage(nil, payer, testBlockhash)
	assert.Equal(t, web3.CodeEmptyInstructionSet, xerrors.CodeOf(err))

	_, err = BuildMessage([]solana.Instruction{price}, payer, solana.Hash{})
	assert.Equal(t, web3.CodeInvalidInput, xerrors.CodeOf(err))

	_, err = BuildMessage([]solana.Instruction{price}, solana.PublicKey{}, testBlockhash)
	assert.Equal(t, web3.CodeInvalidInput, xerrors.CodeOf(err))
}

func TestVerifyMessageDetectsUnresolvedAccount(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	stranger := solana.NewWallet().PublicKey()
	instr := solana.NewInstruction(PumpProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(payer, true, true),
	}, []byte{1})

	tx, err := BuildMessage([]solana.Instruction{instr}, payer, testBlockhash)
	require.NoError(t, err)

	other := solana.NewInstruction(PumpProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(stranger, false, false),
	}, []byte{1})
	err = verifyMessage(tx.Message, []solana.Instruction{other}, payer)
	assert.Equal(t, web3.CodeUnresolvedAccount, xerrors.CodeOf(err))

	err = verifyMessage(tx.Message, []solana.Instruction{instr}, stranger)
	assert.Equal(t, web3.CodeUnresolvedAccount, xerrors.CodeOf(err))
}

func TestSignedMessageVerifiesForEverySigner(t *testing.T) {
	payer := solana.NewWallet()
	mint := solana.NewWallet()
	keyring, err := NewKeyring(payer.PrivateKey)
	require.NoError(t, err)

	create, err := NewCreateInstruction(mint.PublicKey(), payer.PublicKey(), TokenMetadata{Name: "TestCoin", Symbol: "TC", URI: "https://example.com"})
	require.NoError(t, err)
	tx, err := BuildMessage([]solana.Instruction{create}, payer.PublicKey(), testBlockhash)
	require.NoError(t, err)

	require.NoError(t, keyring.SignTransaction(tx, mint.PrivateKey))

	message, err := MessageBytes(tx)
	require.NoError(t, err)
	signers := RequiredSigners(tx.Message)
	require.Len(t, tx.Signatures, len(signers))
	for i, signer := range signers {
		assert.True(t, ed25519.Verify(ed25519.PublicKey(signer[:]), message, tx.Signatures[i][:]), signer.String())
	}
	assert.NoError(t, tx.VerifySignatures())
	assert.False(t, keyring.Has(mint.PublicKey()), "ephemeral mint key must not enter the keyring")
}
