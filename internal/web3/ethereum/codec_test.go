package ethereum

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "ChainAgent/internal/errors"
	"ChainAgent/internal/web3"
)

const sampleRecipient = "0xDF2b85e90F4Aa7bDC724dE4aF08B45cDc7458593"

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress(sampleRecipient)
	require.NoError(t, err)
	assert.Equal(t, sampleRecipient, FormatAddress(addr))

	lower, err := ParseAddress("0xdf2b85e90f4aa7bdc724de4af08b45cdc7458593")
	require.NoError(t, err)
	assert.Equal(t, addr, lower)

	noPrefix, err := ParseAddress("df2b85e90f4aa7bdc724de4af08b45cdc7458593")
	require.NoError(t, err)
	assert.Equal(t, addr, noPrefix)
}

func TestParseAddressRejects(t *testing.T) {
	cases := map[string]xerrors.Code{
		"":            web3.CodeInvalidInput,
		"0x1234":      web3.CodeInvalidRecipient,
		"not-an-addr": web3.CodeInvalidRecipient,
		"0xdF2b85e90F4Aa7bDC724dE4aF08B45cDc7458593": web3.CodeInvalidRecipient,
		"0x0000000000000000000000000000000000000000": web3.CodeInvalidRecipient,
	}
	for input, code := range cases {
		_, err := ParseAddress(input)
		require.Error(t, err, input)
		assert.Equal(t, code, xerrors.CodeOf(err), input)
		assert.Equal(t, string(web3.StageValidate), xerrors.MetadataOf(err, web3.MetadataStage))
	}
}

func TestEtherToWei(t *testing.T) {
	wei, err := EtherToWei(decimal.RequireFromString("0.001"))
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000", wei.String())

	wei, err = EtherToWei(decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wei.Int64())

	wei, err = ParseEther("1.5")
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", wei.String())
	assert.True(t, WeiToEther(wei).Equal(decimal.RequireFromString("1.5")))

	_, err = EtherToWei(decimal.RequireFromString("-1"))
	assert.Equal(t, web3.CodeInvalidAmount, xerrors.CodeOf(err))

	_, err = EtherToWei(decimal.RequireFromString("0.0000000000000000001"))
	assert.Equal(t, web3.CodeInvalidAmount, xerrors.CodeOf(err))

	_, err = ParseEther("")
	assert.Equal(t, web3.CodeInvalidInput, xerrors.CodeOf(err))

	_, err = ParseEther("abc")
	assert.Equal(t, web3.CodeInvalidAmount, xerrors.CodeOf(err))
}

func TestBuildTransfer(t *testing.T) {
	to := common.HexToAddress(sampleRecipient)
	value, err := EtherToWei(decimal.RequireFromString("0.001"))
	require.NoError(t, err)

	tx, err := BuildTransfer(TransferParams{
		To:       &to,
		Value:    value,
		Nonce:    7,
		GasPrice: big.NewInt(100_000_000),
		GasLimit: DefaultTransferGasLimit,
	})
	require.NoError(t, err)

	assert.Equal(t, "1000000000000000", tx.Value().String())
	require.NotNil(t, tx.To())
	assert.Equal(t, sampleRecipient, tx.To().Hex())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(32000), tx.Gas())
	assert.Empty(t, tx.Data())

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	again, err := BuildTransfer(TransferParams{To: &to, Value: value, Nonce: 7, GasPrice: big.NewInt(100_000_000), GasLimit: DefaultTransferGasLimit})
	require.NoError(t, err)
	rawAgain, err := again.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, raw, rawAgain)
}

func TestBuildTransferValidation(t *testing.T) {
	to := common.HexToAddress(sampleRecipient)
	price := big.NewInt(1)

	_, err := BuildTransfer(TransferParams{Value: big.NewInt(1), GasPrice: price, GasLimit: 1})
	assert.Equal(t, web3.CodeInvalidRecipient, xerrors.CodeOf(err))

	_, err = BuildTransfer(TransferParams{To: &to, Value: big.NewInt(-1), GasPrice: price, GasLimit: 1})
	assert.Equal(t, web3.CodeInvalidAmount, xerrors.CodeOf(err))

	_, err = BuildTransfer(TransferParams{To: &to, GasPrice: price, GasLimit: 1})
	assert.Equal(t, web3.CodeInvalidAmount, xerrors.CodeOf(err))

	_, err = BuildTransfer(TransferParams{To: &to, Value: big.NewInt(1), GasLimit: 1})
	assert.Equal(t, web3.CodeInvalidInput, xerrors.CodeOf(err))

	_, err = BuildTransfer(TransferParams{To: &to, Value: big.NewInt(1), GasPrice: price})
	assert.Equal(t, web3.CodeInvalidInput, xerrors.CodeOf(err))
}
