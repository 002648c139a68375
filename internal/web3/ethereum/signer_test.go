package ethereum

import (
	"encoding/hex"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "ChainAgent/internal/errors"
	"ChainAgent/internal/web3"
)

func newTestKey(t *testing.T) (string, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return "0x" + hex.EncodeToString(crypto.FromECDSA(key)), crypto.PubkeyToAddress(key.PublicKey)
}

func sampleTx(t *testing.T, nonce uint64) *types.Transaction {
	t.Helper()
	to := common.HexToAddress(sampleRecipient)
	tx, err := BuildTransfer(TransferParams{
		To:       &to,
		Value:    big.NewInt(1_000_000_000_000_000),
		Nonce:    nonce,
		GasPrice: big.NewInt(1_000_000_000),
		GasLimit: DefaultTransferGasLimit,
	})
	require.NoError(t, err)
	return tx
}

func TestSignerRecoveredSenderMatches(t *testing.T) {
	keyHex, sender := newTestKey(t)
	chainID := big.NewInt(421614)

	signer, err := NewSigner(keyHex, sender.Hex(), chainID)
	require.NoError(t, err)
	assert.Equal(t, sender, signer.Address())

	for nonce := uint64(0); nonce < 5; nonce++ {
		signed, err := signer.SignTx(sampleTx(t, nonce))
		require.NoError(t, err)

		from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
		require.NoError(t, err)
		assert.Equal(t, sender, from)
		assert.Zero(t, chainID.Cmp(signed.ChainId()))
	}
}

func TestSignerRejectsMismatchedSender(t *testing.T) {
	keyHex, _ := newTestKey(t)
	_, other := newTestKey(t)

	_, err := NewSigner(keyHex, other.Hex(), big.NewInt(1))
	assert.Equal(t, web3.CodeMissingCredentials, xerrors.CodeOf(err))

	_, err = NewSigner("zz", "", big.NewInt(1))
	assert.Equal(t, web3.CodeMissingCredentials, xerrors.CodeOf(err))
}

func TestSignerWithoutKeyFailsMissingCredentials(t *testing.T) {
	signer, err := NewSigner("", "", big.NewInt(1))
	require.NoError(t, err)
	assert.False(t, signer.Ready())

	_, err = signer.SignTx(sampleTx(t, 0))
	assert.Equal(t, web3.CodeMissingCredentials, xerrors.CodeOf(err))
	assert.Equal(t, string(web3.StageSign), xerrors.MetadataOf(err, web3.MetadataStage))
}

func TestSignerWithoutSenderIsNotReady(t *testing.T) {
	keyHex, _ := newTestKey(t)
	signer, err := NewSigner(keyHex, "  ", big.NewInt(421614))
	require.NoError(t, err)
	assert.False(t, signer.Ready())
	assert.Equal(t, "evm-signer(unconfigured)", signer.String())

	err = signer.CredentialsError(web3.StageValidate)
	assert.Equal(t, web3.CodeMissingCredentials, xerrors.CodeOf(err))
	assert.Equal(t, string(web3.StageValidate), xerrors.MetadataOf(err, web3.MetadataStage))

	_, err = signer.SignTx(sampleTx(t, 0))
	assert.Equal(t, web3.CodeMissingCredentials, xerrors.CodeOf(err))
}

func TestSignerRotateWithoutSenderUsesKeyAddress(t *testing.T) {
	nextHex, next := newTestKey(t)
	signer, err := NewSigner("", "", big.NewInt(1))
	require.NoError(t, err)

	require.NoError(t, signer.Rotate(nextHex, ""))
	assert.True(t, signer.Ready())
	assert.NoError(t, signer.CredentialsError(web3.StageValidate))
	assert.Equal(t, next, signer.Address())
}

func TestSignerStringOmitsKey(t *testing.T) {
	keyHex, sender := newTestKey(t)
	signer, err := NewSigner(keyHex, sender.Hex(), big.NewInt(1))
	require.NoError(t, err)

	text := signer.String()
	assert.Contains(t, text, sender.Hex())
	assert.False(t, strings.Contains(text, strings.TrimPrefix(keyHex, "0x")))
}

func TestSignerConcurrentSignAndRotate(t *testing.T) {
	keyHex, sender := newTestKey(t)
	nextHex, next := newTestKey(t)
	chainID := big.NewInt(1337)

	signer, err := NewSigner(keyHex, sender.Hex(), chainID)
	require.NoError(t, err)

	txs := make([]*types.Transaction, 32)
	for i := range txs {
		txs[i] = sampleTx(t, uint64(i))
	}

	var wg sync.WaitGroup
	for _, tx := range txs {
		wg.Add(1)
		go func(tx *types.Transaction) {
			defer wg.Done()
			signed, err := signer.SignTx(tx)
			if !assert.NoError(t, err) {
				return
			}
			_, err = types.Sender(types.LatestSignerForChainID(chainID), signed)
			assert.NoError(t, err)
		}(tx)
	}
	require.NoError(t, signer.Rotate(nextHex, next.Hex()))
	wg.Wait()

	assert.Equal(t, next, signer.Address())
}
