package solana

import (
	"crypto/sha256"
	"strings"

	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"ChainAgent/internal/web3"
)

const (
	// maxSeeds 包含 bump 在内的种子数量上限。
	maxSeeds = 16
	// maxSeedLength 单个种子的最大字节数。
	maxSeedLength = 32
	pdaMarker     = "ProgramDerivedAddress"
)

// ParsePublicKey 将 base-58 文本解码为 32 字节公钥。
func ParsePublicKey(raw string) (solana.PublicKey, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return solana.PublicKey{}, web3.StageError(web3.CodeInvalidInput, web3.StageValidate, nil, "缺少公钥")
	}
	decoded, err := base58.Decode(s)
	if err != nil {
		return solana.PublicKey{}, web3.StageError(web3.CodeInvalidInput, web3.StageValidate, err, "公钥不是合法的 base-58 编码")
	}
	if len(decoded) != solana.PublicKeyLength {
		return solana.PublicKey{}, web3.StageError(web3.CodeInvalidInput, web3.StageValidate, nil, "公钥长度必须为 32 字节")
	}
	return solana.PublicKeyFromBytes(decoded), nil
}

// FormatPublicKey 输出公钥的 base-58 文本。
func FormatPublicKey(key solana.PublicKey) string {
	return base58.Encode(key[:])
}

// IsOnCurve 判断 32 字节是否为 ed25519 曲线上的有效点。
func IsOnCurve(b []byte) bool {
	if len(b) != solana.PublicKeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// DeriveAddress 计算程序派生地址。
//
// bump 从 255 递减，对 seeds ++ [bump] ++ programID ++ "ProgramDerivedAddress"
// 做 SHA-256，返回第一个不在曲线上的结果。所有 bump 都失败时返回
// DERIVATION_EXHAUSTED，调用方不应重试。
func DeriveAddress(seeds [][]byte, programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return deriveAddress(seeds, programID, IsOnCurve)
}

func deriveAddress(seeds [][]byte, programID solana.PublicKey, onCurve func([]byte) bool) (solana.PublicKey, uint8, error) {
	if len(seeds) > maxSeeds-1 {
		return solana.PublicKey{}, 0, web3.StageError(web3.CodeInvalidInput, web3.StageDerive, nil, "种子数量超过上限")
	}
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return solana.PublicKey{}, 0, web3.StageError(web3.CodeInvalidInput, web3.StageDerive, nil, "种子长度超过 32 字节")
		}
	}

	bump := []byte{0}
	for b := 255; b >= 0; b-- {
		bump[0] = byte(b)
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write(bump)
		h.Write(programID[:])
		h.Write([]byte(pdaMarker))
		digest := h.Sum(nil)
		if !onCurve(digest) {
			return solana.PublicKeyFromBytes(digest), uint8(b), nil
		}
	}
	return solana.PublicKey{}, 0, web3.StageError(web3.CodeDerivationExhausted, web3.StageDerive, nil,
		"程序 "+programID.String()+" 的派生地址搜索空间已耗尽")
}

// AssociatedTokenAddress 计算 owner 持有 mint 的关联代币账户地址。
func AssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := DeriveAddress(
		[][]byte{owner[:], solana.TokenProgramID[:], mint[:]},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	return addr, err
}
