package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	xerrors "ChainAgent/internal/errors"
	"ChainAgent/internal/storage/mysql"
	"ChainAgent/internal/tools"
	"ChainAgent/internal/web3"
	loggerpkg "ChainAgent/pkg/logger"
)

// TaskRequest 描述了一次工具调用请求。
type TaskRequest struct {
	ID       string          `json:"id,omitempty"`
	Tool     string          `json:"tool"`
	Input    json.RawMessage `json:"input"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// TaskResult 汇总工具调用的结果。
type TaskResult struct {
	Tool         string       `json:"tool"`
	Chain        string       `json:"chain"`
	State        web3.State   `json:"state"`
	Stage        web3.Stage   `json:"stage"`
	TxID         string       `json:"tx_id,omitempty"`
	Address      string       `json:"address,omitempty"`
	Code         xerrors.Code `json:"code,omitempty"`
	Status       string       `json:"status"`
	ReturnDirect bool         `json:"return_direct"`
	CreatedAt    int64        `json:"created_at"`
}

// Succeeded 判断交易是否已被节点接收。
func (r *TaskResult) Succeeded() bool {
	return r != nil && r.State == web3.StateSubmitted
}

// Agent 按名称分派工具调用，并记录每一次提交结果。
type Agent struct {
	tools       *tools.Registry
	submissions mysql.SubmissionRepository
	toolTimeout time.Duration
	logger      *slog.Logger
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// WithToolTimeout 设置单次工具调用的整体超时，包含全部 RPC 往返。
func WithToolTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		if timeout <= 0 {
			a.toolTimeout = 0
			return
		}
		a.toolTimeout = timeout
	}
}

// WithLogger 指定日志实例。
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New 创建一个 Agent。repo 为空时不记录提交结果。
func New(registry *tools.Registry, repo mysql.SubmissionRepository, opts ...Option) *Agent {
	ag := &Agent{
		tools:       registry,
		submissions: repo,
		logger:      loggerpkg.Named("agent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	return ag
}

// Tools 返回可用工具的描述。
func (a *Agent) Tools() []tools.Descriptor {
	if a == nil || a.tools == nil {
		return nil
	}
	return a.tools.Describe()
}

// Execute 调用指定工具。工具执行失败时同时返回结果与错误：
// 错误携带失败码，只有提交前的可重试失败才会被标记为可重试。
func (a *Agent) Execute(ctx context.Context, req TaskRequest) (*TaskResult, error) {
	if a == nil || a.tools == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置工具注册表")
	}
	name := strings.TrimSpace(req.Tool)
	if name == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "工具名称不能为空")
	}
	tool, ok := a.tools.Lookup(name)
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, "未知的工具: "+name)
	}

	toolCtx := ctx
	if a.toolTimeout > 0 {
		var cancel context.CancelFunc
		toolCtx, cancel = context.WithTimeout(ctx, a.toolTimeout)
		defer cancel()
	}

	var input any
	if len(req.Input) > 0 {
		input = string(req.Input)
	}
	outcome := tool.Invoke(toolCtx, input)

	now := time.Now().Unix()
	result := &TaskResult{
		Tool:         name,
		Chain:        outcome.Chain,
		State:        outcome.State,
		Stage:        outcome.Stage,
		TxID:         outcome.TxID,
		Address:      outcome.Address,
		Code:         outcome.Code,
		Status:       outcome.Status,
		ReturnDirect: tool.ReturnDirect(),
		CreatedAt:    now,
	}

	a.record(ctx, req.ID, result)

	if outcome.Succeeded() {
		return result, nil
	}
	a.logger.Warn("工具调用失败",
		"task_id", req.ID,
		"tool", name,
		"chain", outcome.Chain,
		"stage", outcome.Stage,
		"code", outcome.Code,
		"error", outcome.Err,
	)
	return result, outcomeError(outcome)
}

// ListHistory 获取最近的提交记录。
func (a *Agent) ListHistory(ctx context.Context, limit int) ([]mysql.SubmissionRecord, error) {
	if a == nil || a.submissions == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置提交记录仓库")
	}
	records, err := a.submissions.ListLatest(ctx, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询提交记录失败")
	}
	return records, nil
}

// record 保存提交结果。交易可能已经上链，存储失败只记日志，不改变结果。
func (a *Agent) record(ctx context.Context, taskID string, result *TaskResult) {
	if a.submissions == nil {
		return
	}
	record := &mysql.SubmissionRecord{
		TaskID:    taskID,
		Tool:      result.Tool,
		Chain:     result.Chain,
		State:     string(result.State),
		Stage:     string(result.Stage),
		TxID:      result.TxID,
		Address:   result.Address,
		Code:      string(result.Code),
		Status:    result.Status,
		CreatedAt: result.CreatedAt,
	}
	if err := a.submissions.Save(context.WithoutCancel(ctx), record); err != nil {
		a.logger.Error("保存提交记录失败",
			"task_id", taskID,
			"tool", result.Tool,
			"tx_id", result.TxID,
			"error", err,
		)
	}
}

// outcomeError 将失败结果转换为统一错误，重试标记以结果为准。
func outcomeError(outcome web3.Outcome) error {
	code := outcome.Code
	if code == "" {
		code = xerrors.CodeToolFailure
	}
	return xerrors.Wrap(code, outcome.Err, outcome.Status,
		xerrors.WithRetryable(outcome.Retryable()),
		xerrors.WithMetadata(web3.MetadataStage, string(outcome.Stage)),
		xerrors.WithMetadata("chain", outcome.Chain),
	)
}
