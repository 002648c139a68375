package main

import (
	"bytes"
	"encoding/json"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChainAgent/internal/web3/solana"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAddressCommandChecksumsEVM(t *testing.T) {
	out, err := execute(t, "address", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.NoError(t, err)

	var res addressResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "evm", res.Chain)
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", res.Address)
	assert.Nil(t, res.OnCurve)
}

func TestAddressCommandRejectsBadChecksum(t *testing.T) {
	_, err := execute(t, "address", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAeD")
	require.Error(t, err)
}

func TestAddressCommandSolana(t *testing.T) {
	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	pub := key.PublicKey()

	out, err := execute(t, "address", pub.String())
	require.NoError(t, err)

	var res addressResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "solana", res.Chain)
	assert.Equal(t, pub.String(), res.Address)
	require.NotNil(t, res.OnCurve)
	assert.True(t, *res.OnCurve)
}

func TestPDACommandMatchesCreateAccounts(t *testing.T) {
	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	mint := key.PublicKey()
	accounts, err := solana.DeriveCreateAccounts(mint)
	require.NoError(t, err)

	out, err := execute(t, "pda", "--seed", "bonding-curve", "--seed", "pubkey:"+mint.String())
	require.NoError(t, err)
	var res pdaResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, accounts.BondingCurve.String(), res.Address)
	assert.Equal(t, solana.PumpProgramID.String(), res.Program)

	out, err = execute(t, "pda", "--seed", "hex:676c6f62616c")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, accounts.Global.String(), res.Address)
}

func TestPDACommandRejectsBadSeed(t *testing.T) {
	_, err := execute(t, "pda", "--seed", "hex:zz")
	require.Error(t, err)

	_, err = execute(t, "pda", "--seed", "0123456789012345678901234567890123456789")
	require.Error(t, err)
}

func TestTransferRequiresFlags(t *testing.T) {
	_, err := execute(t, "transfer", "--to", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	require.Error(t, err)
}
