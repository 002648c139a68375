package tools

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"ChainAgent/internal/web3"
	"ChainAgent/internal/web3/ethereum"
)

// TransferToolName 是 EVM 转账工具的名称。
const TransferToolName = "send_arbitrum_eth"

const transferDescription = `Sends Ethereum to a specified address. Use exact format:
Input should be a JSON string with keys 'to_address' and 'amount'.
Example: {"to_address": "0x123...", "amount": 0.001}`

// TransferInput 是转账工具的参数，amount 以 ether 计，可以是数字或十进制字符串。
type TransferInput struct {
	ToAddress string              `json:"to_address"`
	Amount    decimal.NullDecimal `json:"amount"`
}

// Intent 校验必填字段并转换为引擎意图。
func (in TransferInput) Intent() (ethereum.TransferIntent, error) {
	if strings.TrimSpace(in.ToAddress) == "" || !in.Amount.Valid {
		return ethereum.TransferIntent{}, web3.StageError(web3.CodeInvalidInput, web3.StageValidate, nil, "缺少 to_address 或 amount")
	}
	return ethereum.TransferIntent{To: strings.TrimSpace(in.ToAddress), Amount: in.Amount.Decimal}, nil
}

// Transferer 是 *ethereum.TransferEngine 提供的能力。
type Transferer interface {
	Chain() string
	Transfer(ctx context.Context, intent ethereum.TransferIntent) web3.Outcome
}

// TransferTool 把转账引擎包装成工具。
type TransferTool struct {
	engine Transferer
}

// NewTransferTool 创建转账工具。
func NewTransferTool(engine Transferer) *TransferTool {
	return &TransferTool{engine: engine}
}

func (t *TransferTool) Name() string        { return TransferToolName }
func (t *TransferTool) Description() string { return transferDescription }
func (t *TransferTool) ReturnDirect() bool  { return true }

// Invoke 解析参数后执行转账，成功时 Status 为 "Done"。
func (t *TransferTool) Invoke(ctx context.Context, input any) web3.Outcome {
	var args TransferInput
	if err := decodeInput(input, "to_address", &args); err != nil {
		return web3.Failed(t.engine.Chain(), web3.StageValidate, err)
	}
	intent, err := args.Intent()
	if err != nil {
		return web3.Failed(t.engine.Chain(), web3.StageValidate, err)
	}
	return t.engine.Transfer(ctx, intent)
}
