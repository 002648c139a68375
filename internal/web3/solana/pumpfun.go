package solana

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"ChainAgent/internal/web3"
)

// pump.fun 程序与其依赖的外部程序。
var (
	PumpProgramID          = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	TokenMetadataProgramID = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")
)

// CreateDiscriminator 是 pump.fun create 指令的判别符。
var CreateDiscriminator = [8]byte{24, 30, 200, 40, 5, 28, 7, 119}

// 元数据字段的长度上限，单位为字节。
const (
	MaxNameLength   = 32
	MaxSymbolLength = 10
	MaxURILength    = 200
)

var (
	seedGlobal         = []byte("global")
	seedMintAuthority  = []byte("mint-authority")
	seedBondingCurve   = []byte("bonding-curve")
	seedMetadata       = []byte("metadata")
	seedEventAuthority = []byte("__event_authority")
)

// TokenMetadata 是新代币的名称、符号与元数据 URI。
type TokenMetadata struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	URI    string `json:"uri"`
}

// Validate 检查字段非空且不超过链上长度限制。
func (m TokenMetadata) Validate() error {
	checks := []struct {
		field string
		value string
		limit int
	}{
		{"name", m.Name, MaxNameLength},
		{"symbol", m.Symbol, MaxSymbolLength},
		{"uri", m.URI, MaxURILength},
	}
	for _, c := range checks {
		if strings.TrimSpace(c.value) == "" {
			return web3.StageError(web3.CodeInvalidInput, web3.StageValidate, nil, "缺少字段 "+c.field)
		}
		if len(c.value) > c.limit {
			return web3.StageError(web3.CodeInvalidInput, web3.StageValidate, nil,
				fmt.Sprintf("字段 %s 超过 %d 字节", c.field, c.limit))
		}
	}
	return nil
}

// CreateAccounts 是 create 指令按顺序引用的派生账户。
type CreateAccounts struct {
	MintAuthority          solana.PublicKey
	BondingCurve           solana.PublicKey
	AssociatedBondingCurve solana.PublicKey
	Global                 solana.PublicKey
	Metadata               solana.PublicKey
	EventAuthority         solana.PublicKey
}

// DeriveCreateAccounts 计算 create 指令所需的全部派生地址。
func DeriveCreateAccounts(mint solana.PublicKey) (CreateAccounts, error) {
	var accounts CreateAccounts
	var err error
	derive := func(programID solana.PublicKey, seeds ...[]byte) solana.PublicKey {
		if err != nil {
			return solana.PublicKey{}
		}
		var addr solana.PublicKey
		addr, _, err = DeriveAddress(seeds, programID)
		return addr
	}

	accounts.MintAuthority = derive(PumpProgramID, seedMintAuthority)
	accounts.BondingCurve = derive(PumpProgramID, seedBondingCurve, mint[:])
	accounts.Global = derive(PumpProgramID, seedGlobal)
	accounts.Metadata = derive(TokenMetadataProgramID, seedMetadata, TokenMetadataProgramID[:], mint[:])
	accounts.EventAuthority = derive(PumpProgramID, seedEventAuthority)
	if err != nil {
		return CreateAccounts{}, err
	}
	accounts.AssociatedBondingCurve, err = AssociatedTokenAddress(accounts.BondingCurve, mint)
	if err != nil {
		return CreateAccounts{}, err
	}
	return accounts, nil
}

// NewCreateInstruction 构造 pump.fun create 指令，mint 与 user 均需签名。
func NewCreateInstruction(mint, user solana.PublicKey, meta TokenMetadata) (solana.Instruction, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	accounts, err := DeriveCreateAccounts(mint)
	if err != nil {
		return nil, err
	}
	data, err := EncodeInstructionData(CreateDiscriminator[:],
		String(meta.Name),
		String(meta.Symbol),
		String(meta.URI),
	)
	if err != nil {
		return nil, err
	}

	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(mint, true, true),
		solana.NewAccountMeta(accounts.MintAuthority, false, false),
		solana.NewAccountMeta(accounts.BondingCurve, true, false),
		solana.NewAccountMeta(accounts.AssociatedBondingCurve, true, false),
		solana.NewAccountMeta(accounts.Global, false, false),
		solana.NewAccountMeta(TokenMetadataProgramID, false, false),
		solana.NewAccountMeta(accounts.Metadata, true, false),
		solana.NewAccountMeta(user, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
		solana.NewAccountMeta(solana.SysVarRentPubkey, false, false),
		solana.NewAccountMeta(accounts.EventAuthority, false, false),
		solana.NewAccountMeta(PumpProgramID, false, false),
	}
	return solana.NewInstruction(PumpProgramID, metas, data), nil
}
