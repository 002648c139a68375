package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"ChainAgent/internal/web3"
)

// BuildMessage 组装未签名交易。
//
// 账户列表去重后按可写签名者、只读签名者、可写非签名者、只读非签名者排序，
// 手续费支付方固定在第一位。编译后逐条核对指令引用的账户与权限。
func BuildMessage(instructions []solana.Instruction, feePayer solana.PublicKey, blockhash solana.Hash) (*solana.Transaction, error) {
	if len(instructions) == 0 {
		return nil, web3.StageError(web3.CodeEmptyInstructionSet, web3.StageBuild, nil, "交易不包含任何指令")
	}
	for i, instr := range instructions {
		if instr == nil {
			return nil, web3.StageError(web3.CodeEmptyInstructionSet, web3.StageBuild, nil, fmt.Sprintf("第 %d 条指令为空", i))
		}
	}
	if feePayer.IsZero() {
		return nil, web3.StageError(web3.CodeInvalidInput, web3.StageBuild, nil, "缺少手续费支付方")
	}
	if blockhash == (solana.Hash{}) {
		return nil, web3.StageError(web3.CodeInvalidInput, web3.StageBuild, nil, "缺少最近区块哈希")
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(feePayer))
	if err != nil {
		return nil, web3.StageError(web3.CodeUnresolvedAccount, web3.StageBuild, err, "编译交易消息失败")
	}
	if err := verifyMessage(tx.Message, instructions, feePayer); err != nil {
		return nil, err
	}
	return tx, nil
}

// MessageBytes 返回签名所覆盖的消息序列化字节。
func MessageBytes(tx *solana.Transaction) ([]byte, error) {
	data, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, web3.StageError(web3.CodeInvalidInput, web3.StageSign, err, "序列化交易消息失败")
	}
	return data, nil
}

// RequiredSigners 返回消息中需要签名的账户，顺序即签名位置。
func RequiredSigners(msg solana.Message) []solana.PublicKey {
	n := int(msg.Header.NumRequiredSignatures)
	if n > len(msg.AccountKeys) {
		n = len(msg.AccountKeys)
	}
	out := make([]solana.PublicKey, n)
	copy(out, msg.AccountKeys[:n])
	return out
}

func verifyMessage(msg solana.Message, instructions []solana.Instruction, feePayer solana.PublicKey) error {
	keys := msg.AccountKeys
	header := msg.Header
	unresolved := func(format string, args ...any) error {
		return web3.StageError(web3.CodeUnresolvedAccount, web3.StageBuild, nil, fmt.Sprintf(format, args...))
	}

	if len(keys) == 0 || header.NumRequiredSignatures == 0 || !keys[0].Equals(feePayer) {
		return unresolved("手续费支付方必须是第一个签名账户")
	}
	if int(header.NumRequiredSignatures) > len(keys) ||
		header.NumReadonlySignedAccounts >= header.NumRequiredSignatures ||
		int(header.NumRequiredSignatures)+int(header.NumReadonlyUnsignedAccounts) > len(keys) {
		return unresolved("消息头与账户列表不一致")
	}
	if len(msg.Instructions) != len(instructions) {
		return unresolved("编译后的指令数量不一致")
	}

	for i, instr := range instructions {
		compiled := msg.Instructions[i]
		if int(compiled.ProgramIDIndex) >= len(keys) || !keys[compiled.ProgramIDIndex].Equals(instr.ProgramID()) {
			return unresolved("指令 %d 的程序 %s 未出现在账户列表中", i, instr.ProgramID())
		}
		metas := instr.Accounts()
		if len(compiled.Accounts) != len(metas) {
			return unresolved("指令 %d 的账户数量不一致", i)
		}
		for j, meta := range metas {
			idx := int(compiled.Accounts[j])
			if idx >= len(keys) || !keys[idx].Equals(meta.PublicKey) {
				return unresolved("指令 %d 引用的账户 %s 未出现在账户列表中", i, meta.PublicKey)
			}
			if meta.IsSigner && idx >= int(header.NumRequiredSignatures) {
				return unresolved("账户 %s 需要签名但不在签名区间", meta.PublicKey)
			}
			if meta.IsWritable && !isWritableIndex(header, idx, len(keys)) {
				return unresolved("账户 %s 需要可写但位于只读区间", meta.PublicKey)
			}
		}
	}
	return nil
}

func isWritableIndex(header solana.MessageHeader, idx, total int) bool {
	signed := int(header.NumRequiredSignatures)
	if idx < signed {
		return idx < signed-int(header.NumReadonlySignedAccounts)
	}
	return idx < total-int(header.NumReadonlyUnsignedAccounts)
}
