package tools

import (
	"context"
	"strings"

	"ChainAgent/internal/web3"
	"ChainAgent/internal/web3/solana"
)

// CreateTokenToolName 是 pump.fun 代币创建工具的名称。
const CreateTokenToolName = "pump_fun_create_token"

const createTokenDescription = `Create Token on Pump fun platform on solana.
Input should be a JSON string with keys 'name', 'symbol' and 'uri'.
Example: {"name": "TestCoin", "symbol": "TC", "uri": "https://example.com"}`

// CreateTokenInput 是代币创建工具的参数。
type CreateTokenInput struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	URI    string `json:"uri"`
}

// Metadata 转换为代币元数据，长度与非空校验由引擎完成。
func (in CreateTokenInput) Metadata() solana.TokenMetadata {
	return solana.TokenMetadata{
		Name:   strings.TrimSpace(in.Name),
		Symbol: strings.TrimSpace(in.Symbol),
		URI:    strings.TrimSpace(in.URI),
	}
}

// TokenCreator 是 *solana.TokenEngine 提供的能力。
type TokenCreator interface {
	Chain() string
	CreateToken(ctx context.Context, meta solana.TokenMetadata) web3.Outcome
}

// CreateTokenTool 把代币创建引擎包装成工具。
type CreateTokenTool struct {
	engine TokenCreator
}

// NewCreateTokenTool 创建代币创建工具。
func NewCreateTokenTool(engine TokenCreator) *CreateTokenTool {
	return &CreateTokenTool{engine: engine}
}

func (t *CreateTokenTool) Name() string        { return CreateTokenToolName }
func (t *CreateTokenTool) Description() string { return createTokenDescription }
func (t *CreateTokenTool) ReturnDirect() bool  { return true }

// Invoke 解析参数后创建代币，成功时 Status 为 mint 地址。
func (t *CreateTokenTool) Invoke(ctx context.Context, input any) web3.Outcome {
	var args CreateTokenInput
	if err := decodeInput(input, "name", &args); err != nil {
		return web3.Failed(t.engine.Chain(), web3.StageValidate, err)
	}
	return t.engine.CreateToken(ctx, args.Metadata())
}
