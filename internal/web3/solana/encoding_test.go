package solana

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCreateGolden(t *testing.T) {
	data, err := EncodeInstructionData(CreateDiscriminator[:],
		String("TestCoin"),
		String("TC"),
		String("https://example.com"),
	)
	require.NoError(t, err)

	want := []byte{24, 30, 200, 40, 5, 28, 7, 119}
	want = append(want, 8, 0, 0, 0)
	want = append(want, "TestCoin"...)
	want = append(want, 2, 0, 0, 0)
	want = append(want, "TC"...)
	want = append(want, 19, 0, 0, 0)
	want = append(want, "https://example.com"...)

	assert.Equal(t, want, data)
	assert.Len(t, data, 8+(4+8)+(4+2)+(4+19))
}

func TestAnchorDiscriminatorMatchesCreate(t *testing.T) {
	assert.Equal(t, CreateDiscriminator, AnchorDiscriminator("create"))
}

func TestEncodeNumericFields(t *testing.T) {
	data, err := EncodeInstructionData([]byte{0xAA}, U8(7), U32(0x01020304), U64(0x0102030405060708), Pubkey(PumpProgramID))
	require.NoError(t, err)

	want := []byte{0xAA, 7, 4, 3, 2, 1, 8, 7, 6, 5, 4, 3, 2, 1}
	want = append(want, PumpProgramID[:]...)
	assert.Equal(t, want, data)
}

func TestEncodeComputeBudget(t *testing.T) {
	limit, err := SetComputeUnitLimit(200_000)
	require.NoError(t, err)
	data, err := limit.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 0x40, 0x0d, 0x03, 0x00}, data)
	assert.Equal(t, ComputeBudgetProgramID, limit.ProgramID())
	assert.Empty(t, limit.Accounts())

	price, err := SetComputeUnitPrice(1_000)
	require.NoError(t, err)
	data, err = price.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 0xe8, 0x03, 0, 0, 0, 0, 0, 0}, data)
}

// decodeStrings 按长度前缀还原字段，用于验证编码可逆。
func decodeStrings(t *testing.T, data []byte, discLen int) []string {
	t.Helper()
	rest := data[discLen:]
	var out []string
	for len(rest) > 0 {
		require.GreaterOrEqual(t, len(rest), 4)
		n := int(binary.LittleEndian.Uint32(rest[:4]))
		require.GreaterOrEqual(t, len(rest)-4, n)
		out = append(out, string(rest[4:4+n]))
		rest = rest[4+n:]
	}
	return out
}

func TestEncodeInjective(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []byte("ab\x00\x01\x02\x03 ")
	randomString := func() string {
		n := rng.Intn(6)
		b := make([]byte, n)
		for i := range b {
			b[i] = alphabet[rng.Intn(len(alphabet))]
		}
		return string(b)
	}

	seen := make(map[string]string)
	for i := 0; i < 5000; i++ {
		fields := []string{randomString(), randomString(), randomString()}
		data, err := EncodeInstructionData(CreateDiscriminator[:], String(fields[0]), String(fields[1]), String(fields[2]))
		require.NoError(t, err)

		assert.Equal(t, fields, decodeStrings(t, data, len(CreateDiscriminator)))

		key := fmt.Sprintf("%q", fields)
		if prev, ok := seen[string(data)]; ok {
			assert.Equal(t, prev, key, "distinct fields produced identical bytes")
		}
		seen[string(data)] = key
	}

	a, err := EncodeInstructionData(nil, String("ab"), String(""))
	require.NoError(t, err)
	b, err := EncodeInstructionData(nil, String("a"), String("b"))
	require.NoError(t, err)
	assert.False(t, bytes.Equal(a, b))
}
