package web3

import (
	"context"

	xerrors "ChainAgent/internal/errors"
)

// ChainSnapshot represents summarized network metadata for health reporting.
type ChainSnapshot struct {
	Chain       string `json:"chain"`
	Type        string `json:"type"`
	ChainID     string `json:"chain_id,omitempty"`
	BlockNumber string `json:"block_number,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Client defines what every chain client exposes to the provider registry.
type Client interface {
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	Close()
}

// Stage 表示一次提交在引擎状态机中所处的阶段。
type Stage string

const (
	StageValidate Stage = "validate"
	StagePrepare  Stage = "prepare"
	StageDerive   Stage = "derive"
	StageBuild    Stage = "build"
	StageSign     Stage = "sign"
	// StageSimulate 是可选的提交前预执行，交易尚未离开进程。
	StageSimulate Stage = "simulate"
	StageSubmit   Stage = "submit"
	StageReport   Stage = "report"
)

// BeforeSubmit 判断阶段是否早于提交，仅此类失败可以安全重放。
func (s Stage) BeforeSubmit() bool {
	switch s {
	case StageValidate, StagePrepare, StageDerive, StageBuild, StageSign, StageSimulate:
		return true
	default:
		return false
	}
}

// State 是引擎的终态。
type State string

const (
	StateSubmitted State = "submitted"
	StateFailed    State = "failed"
)

// Outcome 是引擎边界上的唯一返回值，错误不会越过引擎向外传播。
type Outcome struct {
	Chain string `json:"chain"`
	State State  `json:"state"`
	Stage Stage  `json:"stage"`
	// TxID 是交易哈希或签名，仅表示节点已接收。
	TxID string `json:"tx_id,omitempty"`
	// Address 携带新创建的资产地址，例如代币的 mint。
	Address string       `json:"address,omitempty"`
	Code    xerrors.Code `json:"code,omitempty"`
	// Status 是面向最终用户的简短描述。
	Status string `json:"status"`
	// Err 保留内部错误，仅用于日志。
	Err error `json:"-"`
}

// Submitted 构造提交成功的结果。
func Submitted(chain, txID, status string) Outcome {
	return Outcome{
		Chain:  chain,
		State:  StateSubmitted,
		Stage:  StageReport,
		TxID:   txID,
		Status: status,
	}
}

// Failed 将任意错误折叠为失败结果，阶段取自错误元数据。
func Failed(chain string, fallback Stage, err error) Outcome {
	code := xerrors.CodeOf(err)
	stage := Stage(xerrors.MetadataOf(err, MetadataStage))
	if stage == "" {
		stage = fallback
	}
	return Outcome{
		Chain:  chain,
		State:  StateFailed,
		Stage:  stage,
		Code:   code,
		Status: StatusText(code),
		Err:    err,
	}
}

// Succeeded 判断是否已被节点接收。
func (o Outcome) Succeeded() bool {
	return o.State == StateSubmitted
}

// Retryable 仅当错误码可重试且失败发生在提交之前时返回 true。
func (o Outcome) Retryable() bool {
	if o.Succeeded() || o.Err == nil {
		return false
	}
	return o.Stage.BeforeSubmit() && xerrors.RetryableError(o.Err)
}
