package ethereum

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	xerrors "ChainAgent/internal/errors"
	"ChainAgent/internal/web3"
	loggerpkg "ChainAgent/pkg/logger"
)

// SuccessStatus 是转账成功时返回给调用方的状态。
const SuccessStatus = "Done"

// TransferIntent 是已解析的转账请求，金额以 ether 计。
type TransferIntent struct {
	To     string
	Amount decimal.Decimal
}

// ChainBackend 是转账引擎依赖的 RPC 能力，*Client 满足该接口。
type ChainBackend interface {
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) (common.Hash, error)
}

// TransferEngine 编排 EVM 转账：校验、准备、构造、签名、提交、上报。
type TransferEngine struct {
	chain    string
	client   ChainBackend
	signer   *Signer
	gasLimit uint64
	observer web3.Observer
	logger   *slog.Logger
}

// EngineOption 自定义转账引擎。
type EngineOption func(*TransferEngine)

// WithGasLimit 覆盖固定 gas 上限。
func WithGasLimit(limit uint64) EngineOption {
	return func(e *TransferEngine) {
		if limit > 0 {
			e.gasLimit = limit
		}
	}
}

// WithObserver 注册阶段与结果观察者。
func WithObserver(observer web3.Observer) EngineOption {
	return func(e *TransferEngine) {
		if observer != nil {
			e.observer = observer
		}
	}
}

// WithLogger 指定引擎日志实例。
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *TransferEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewTransferEngine 创建转账引擎。
func NewTransferEngine(chain string, client ChainBackend, signer *Signer, opts ...EngineOption) *TransferEngine {
	e := &TransferEngine{
		chain:    chain,
		client:   client,
		signer:   signer,
		gasLimit: DefaultTransferGasLimit,
		observer: web3.NopObserver(),
		logger:   loggerpkg.L().With("component", "evm_transfer", "chain", chain),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Chain 返回引擎绑定的链名称。
func (e *TransferEngine) Chain() string {
	return e.chain
}

// Transfer 执行一次转账。所有失败都折叠进 Outcome。
func (e *TransferEngine) Transfer(ctx context.Context, intent TransferIntent) web3.Outcome {
	timer := web3.NewStageTimer(e.chain, e.observer)
	hash, err := e.transfer(ctx, intent, timer)

	var outcome web3.Outcome
	if err != nil {
		outcome = web3.Failed(e.chain, timer.Current(), err)
		e.logger.Warn("转账失败",
			"stage", outcome.Stage,
			"code", outcome.Code,
			"to", intent.To,
			"error", err,
		)
	} else {
		outcome = web3.Submitted(e.chain, hash.Hex(), SuccessStatus)
		loggerpkg.Audit().Info("evm_transfer_submitted",
			"chain", e.chain,
			"tx_hash", outcome.TxID,
			"from", e.signer.Address().Hex(),
			"to", intent.To,
			"amount_ether", intent.Amount.String(),
		)
	}
	timer.Finish(outcome)
	return outcome
}

func (e *TransferEngine) transfer(ctx context.Context, intent TransferIntent, timer *web3.StageTimer) (common.Hash, error) {
	to, err := ParseAddress(intent.To)
	if err != nil {
		return common.Hash{}, err
	}
	value, err := EtherToWei(intent.Amount)
	if err != nil {
		return common.Hash{}, err
	}
	if err := e.signer.CredentialsError(web3.StageValidate); err != nil {
		return common.Hash{}, err
	}
	from := e.signer.Address()

	timer.Enter(web3.StagePrepare)
	nonce, err := e.client.PendingNonce(ctx, from)
	if err != nil {
		return common.Hash{}, err
	}
	gasPrice, err := e.client.GasPrice(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	timer.Enter(web3.StageBuild)
	tx, err := BuildTransfer(TransferParams{
		To:       &to,
		Value:    value,
		Nonce:    nonce,
		GasPrice: gasPrice,
		GasLimit: e.gasLimit,
	})
	if err != nil {
		return common.Hash{}, err
	}

	timer.Enter(web3.StageSign)
	signed, err := e.signer.SignTx(tx)
	if err != nil {
		return common.Hash{}, err
	}

	timer.Enter(web3.StageSubmit)
	if err := ctx.Err(); err != nil {
		return common.Hash{}, web3.StageError(xerrors.CodeCancelled, web3.StageSubmit, err, "提交前调用方已取消")
	}
	e.logger.Debug("提交转账",
		"nonce", nonce,
		"gas_price", gasPrice.String(),
		"gas_limit", e.gasLimit,
		"value_wei", value.String(),
	)
	hash, err := e.client.SendTransaction(ctx, signed)
	if err != nil {
		return common.Hash{}, err
	}
	timer.Enter(web3.StageReport)
	return hash, nil
}
