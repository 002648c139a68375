package solana

import (
	"github.com/gagliardetto/solana-go"
)

// ComputeBudgetProgramID 是计算预算程序地址。
var ComputeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

const (
	computeUnitLimitOpcode uint8 = 2
	computeUnitPriceOpcode uint8 = 3
)

// SetComputeUnitLimit 设置交易的计算单元上限。
func SetComputeUnitLimit(units uint32) (solana.Instruction, error) {
	data, err := EncodeInstructionData([]byte{computeUnitLimitOpcode}, U32(units))
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, data), nil
}

// SetComputeUnitPrice 设置每个计算单元的优先费，单位为 micro-lamports。
func SetComputeUnitPrice(microLamports uint64) (solana.Instruction, error) {
	data, err := EncodeInstructionData([]byte{computeUnitPriceOpcode}, U64(microLamports))
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, data), nil
}
