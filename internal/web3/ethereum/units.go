package ethereum

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"ChainAgent/internal/web3"
)

// etherDecimals 是 ether 与 wei 之间的精度差。
const etherDecimals = 18

// EtherToWei 将以 ether 计的十进制金额精确换算为 wei。
// 负数或精度细于 1 wei 的金额返回 INVALID_AMOUNT。
func EtherToWei(amount decimal.Decimal) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, web3.StageError(web3.CodeInvalidAmount, web3.StageValidate, nil, "金额不能为负数: "+amount.String())
	}
	wei := amount.Shift(etherDecimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, web3.StageError(web3.CodeInvalidAmount, web3.StageValidate, nil, "金额精度超过 18 位小数: "+amount.String())
	}
	return wei.BigInt(), nil
}

// ParseEther 解析文本形式的 ether 金额。
func ParseEther(raw string) (*big.Int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, web3.StageError(web3.CodeInvalidInput, web3.StageValidate, nil, "缺少转账金额")
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return nil, web3.StageError(web3.CodeInvalidAmount, web3.StageValidate, err, "金额格式无效: "+s)
	}
	return EtherToWei(amount)
}

// WeiToEther 将 wei 转换为 ether，用于日志与展示。
func WeiToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -etherDecimals)
}
