package solana

import (
	"context"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	xerrors "ChainAgent/internal/errors"
	"ChainAgent/internal/web3"
	loggerpkg "ChainAgent/pkg/logger"
)

// ChainBackend 是代币创建引擎依赖的 RPC 能力，*Client 满足该接口。
type ChainBackend interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	Simulate(ctx context.Context, tx *solana.Transaction) error
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// TransactionSigner 是引擎依赖的签名能力，*Keyring 满足该接口。
type TransactionSigner interface {
	Has(pub solana.PublicKey) bool
	SignTransaction(tx *solana.Transaction, ephemeral ...solana.PrivateKey) error
}

// TokenEngine 编排 pump.fun 代币创建：校验、派生、构造、签名、提交、上报。
type TokenEngine struct {
	chain     string
	client    ChainBackend
	signer    TransactionSigner
	payer     solana.PublicKey
	unitLimit uint32
	unitPrice uint64
	simulate  bool
	newMint   func() (solana.PrivateKey, error)
	observer  web3.Observer
	logger    *slog.Logger
}

// TokenOption 自定义代币创建引擎。
type TokenOption func(*TokenEngine)

// WithComputeBudget 在 create 指令前追加计算预算指令，0 表示不设置。
func WithComputeBudget(unitLimit uint32, microLamports uint64) TokenOption {
	return func(e *TokenEngine) {
		e.unitLimit = unitLimit
		e.unitPrice = microLamports
	}
}

// WithSimulation 控制提交前是否预执行。
func WithSimulation(enabled bool) TokenOption {
	return func(e *TokenEngine) {
		e.simulate = enabled
	}
}

// WithTokenObserver 注册阶段与结果观察者。
func WithTokenObserver(observer web3.Observer) TokenOption {
	return func(e *TokenEngine) {
		if observer != nil {
			e.observer = observer
		}
	}
}

// WithTokenLogger 指定引擎日志实例。
func WithTokenLogger(logger *slog.Logger) TokenOption {
	return func(e *TokenEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewTokenEngine 创建代币创建引擎，payer 同时作为 create 指令的 user。
func NewTokenEngine(chain string, client ChainBackend, signer TransactionSigner, payer solana.PublicKey, opts ...TokenOption) *TokenEngine {
	e := &TokenEngine{
		chain:    chain,
		client:   client,
		signer:   signer,
		payer:    payer,
		newMint:  solana.NewRandomPrivateKey,
		observer: web3.NopObserver(),
		logger:   loggerpkg.L().With("component", "pumpfun_create", "chain", chain),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Chain 返回引擎绑定的链名称。
func (e *TokenEngine) Chain() string {
	return e.chain
}

// CreateToken 创建新代币，成功时 Status 与 Address 均为 mint 地址。
func (e *TokenEngine) CreateToken(ctx context.Context, meta TokenMetadata) web3.Outcome {
	timer := web3.NewStageTimer(e.chain, e.observer)
	mint, sig, err := e.create(ctx, meta, timer)

	var outcome web3.Outcome
	if err != nil {
		outcome = web3.Failed(e.chain, timer.Current(), err)
		e.logger.Warn("代币创建失败",
			"stage", outcome.Stage,
			"code", outcome.Code,
			"symbol", meta.Symbol,
			"error", err,
		)
	} else {
		outcome = web3.Submitted(e.chain, sig.String(), mint.String())
		outcome.Address = mint.String()
		loggerpkg.Audit().Info("pumpfun_create_submitted",
			"chain", e.chain,
			"signature", outcome.TxID,
			"mint", outcome.Address,
			"payer", e.payer.String(),
			"name", meta.Name,
			"symbol", meta.Symbol,
		)
	}
	timer.Finish(outcome)
	return outcome
}

func (e *TokenEngine) create(ctx context.Context, meta TokenMetadata, timer *web3.StageTimer) (solana.PublicKey, solana.Signature, error) {
	if err := meta.Validate(); err != nil {
		return solana.PublicKey{}, solana.Signature{}, err
	}
	if e.payer.IsZero() {
		return solana.PublicKey{}, solana.Signature{}, web3.StageError(web3.CodeMissingCredentials, web3.StageValidate, nil, "未配置付款账户")
	}
	if !e.signer.Has(e.payer) {
		return solana.PublicKey{}, solana.Signature{}, web3.StageError(web3.CodeMissingSignerKey, web3.StageValidate, nil, "未加载付款账户私钥")
	}

	mintKey, err := e.newMint()
	if err != nil {
		return solana.PublicKey{}, solana.Signature{}, web3.StageError(web3.CodeMissingSignerKey, web3.StageValidate, err, "生成 mint 密钥失败")
	}
	defer wipe(mintKey)
	mint := mintKey.PublicKey()

	timer.Enter(web3.StageDerive)
	instructions, err := e.instructions(mint, meta)
	if err != nil {
		return solana.PublicKey{}, solana.Signature{}, err
	}

	timer.Enter(web3.StageBuild)
	blockhash, err := e.client.LatestBlockhash(ctx)
	if err != nil {
		return solana.PublicKey{}, solana.Signature{}, err
	}
	tx, err := BuildMessage(instructions, e.payer, blockhash)
	if err != nil {
		return solana.PublicKey{}, solana.Signature{}, err
	}

	timer.Enter(web3.StageSign)
	if err := e.signer.SignTransaction(tx, mintKey); err != nil {
		return solana.PublicKey{}, solana.Signature{}, web3.AtStage(web3.StageSign, err)
	}

	if e.simulate {
		timer.Enter(web3.StageSimulate)
		if err := e.client.Simulate(ctx, tx); err != nil {
			return solana.PublicKey{}, solana.Signature{}, err
		}
	}

	timer.Enter(web3.StageSubmit)
	if err := ctx.Err(); err != nil {
		return solana.PublicKey{}, solana.Signature{}, web3.StageError(xerrors.CodeCancelled, web3.StageSubmit, err, "提交前调用方已取消")
	}
	sig, err := e.client.SendTransaction(ctx, tx)
	if err != nil {
		return solana.PublicKey{}, solana.Signature{}, err
	}
	timer.Enter(web3.StageReport)
	return mint, sig, nil
}

func (e *TokenEngine) instructions(mint solana.PublicKey, meta TokenMetadata) ([]solana.Instruction, error) {
	var out []solana.Instruction
	if e.unitLimit > 0 {
		instr, err := SetComputeUnitLimit(e.unitLimit)
		if err != nil {
			return nil, web3.AtStage(web3.StageDerive, err)
		}
		out = append(out, instr)
	}
	if e.unitPrice > 0 {
		instr, err := SetComputeUnitPrice(e.unitPrice)
		if err != nil {
			return nil, web3.AtStage(web3.StageDerive, err)
		}
		out = append(out, instr)
	}
	create, err := NewCreateInstruction(mint, e.payer, meta)
	if err != nil {
		return nil, err
	}
	return append(out, create), nil
}
