package ethereum

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"ChainAgent/internal/web3"
)

// DefaultTransferGasLimit 是普通转账使用的固定 gas 上限。
//
// 不做动态估算，只适用于向外部账户的纯价值转账；向合约转账可能因 gas
// 不足而失败。
const DefaultTransferGasLimit uint64 = 32000

// TransferParams 描述一笔待签名的转账。
type TransferParams struct {
	To       *common.Address
	Value    *big.Int
	Nonce    uint64
	GasPrice *big.Int
	GasLimit uint64
}

// BuildTransfer 构造 legacy 类型的未签名转账交易，签名时再绑定链 ID。
func BuildTransfer(params TransferParams) (*types.Transaction, error) {
	if params.To == nil || *params.To == (common.Address{}) {
		return nil, web3.StageError(web3.CodeInvalidRecipient, web3.StageBuild, nil, "缺少收款地址")
	}
	if params.Value == nil || params.Value.Sign() < 0 {
		return nil, web3.StageError(web3.CodeInvalidAmount, web3.StageBuild, nil, "转账金额必须大于等于 0")
	}
	if params.GasPrice == nil || params.GasPrice.Sign() <= 0 {
		return nil, web3.StageError(web3.CodeInvalidInput, web3.StageBuild, nil, "gas price 无效")
	}
	if params.GasLimit == 0 {
		return nil, web3.StageError(web3.CodeInvalidInput, web3.StageBuild, nil, "gas limit 不能为 0")
	}
	to := *params.To
	return types.NewTx(&types.LegacyTx{
		Nonce:    params.Nonce,
		GasPrice: new(big.Int).Set(params.GasPrice),
		Gas:      params.GasLimit,
		To:       &to,
		Value:    new(big.Int).Set(params.Value),
	}), nil
}
