package task

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	"ChainAgent/internal/agent"
	xerrors "ChainAgent/internal/errors"
	"ChainAgent/internal/observability/alerting"
	"ChainAgent/internal/web3"
	"ChainAgent/pkg/logger"
)

// Executor 定义了处理器所需的 Agent 能力。
type Executor interface {
	Execute(ctx context.Context, req agent.TaskRequest) (*agent.TaskResult, error)
}

// Processor 负责从队列消费任务并交给 Agent 执行。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
	backoff     time.Duration
	maxBackoff  time.Duration
}

const (
	defaultRetryBackoff    = 2 * time.Second
	defaultMaxRetryBackoff = 30 * time.Second
)

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithRetryBackoff 设置重新入队前的退避：第 n 次尝试失败后等待 n²×base，不超过 maxWait。
// base 为 0 时立即重新入队。
func WithRetryBackoff(base, maxWait time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.backoff = max(base, 0)
		p.maxBackoff = max(maxWait, p.backoff)
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		logger:      logger.Named("task_processor"),
		backoff:     defaultRetryBackoff,
		maxBackoff:  defaultMaxRetryBackoff,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动任务处理循环。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, taskID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	task, err := p.store.Claim(ctx, taskID)
	if err != nil {
		if stdErrors.Is(err, ErrTaskNotFound) || stdErrors.Is(err, ErrTaskCompleted) ||
			stdErrors.Is(err, ErrTaskExhausted) || stdErrors.Is(err, ErrTaskConflict) {
			p.logger.Debug("跳过任务", slog.String("task_id", taskID), slog.String("reason", err.Error()))
			return nil
		}
		p.logger.Error("领取任务失败", slog.Any("error", err), slog.String("task_id", taskID))
		p.emitAlert(ctx, &Task{ID: taskID}, nil, CodeTaskProcessing, err, "claim")
		return err
	}

	result, execErr := p.executor.Execute(ctx, agent.TaskRequest{
		ID:       task.ID,
		Tool:     task.Tool,
		Input:    task.Input,
		Metadata: cloneMetadata(task.Metadata),
	})
	record := toExecutionResult(result)
	if execErr != nil {
		return p.handleExecutionFailure(ctx, task, record, execErr)
	}

	// 交易已被节点接收，此后任何存储失败都不能导致重新投递。
	done := derefResult(record)
	if err := p.store.MarkSucceeded(context.WithoutCancel(ctx), task.ID, done); err != nil {
		p.logger.Error("标记任务成功状态失败", slog.Any("error", err), slog.String("task_id", task.ID))
		p.emitAlert(ctx, task, record, xerrors.CodeStorageFailure, err, "mark_succeeded")
		return nil
	}
	logger.Audit().Info("任务执行成功",
		slog.String("task_id", task.ID),
		slog.String("tool", task.Tool),
		slog.String("chain", done.Chain),
		slog.String("tx_id", done.TxID),
	)
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, task *Task, record *ExecutionResult, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeTaskProcessing
	}
	retryable := xerrors.RetryableError(execErr)
	exhausted := retryable && task.Attempts >= task.MaxRetries
	terminal := exhausted || !retryable

	if storeErr := p.store.MarkFailed(context.WithoutCancel(ctx), task.ID, code, execErr.Error(), record, terminal); storeErr != nil {
		p.logger.Error("标记任务失败状态出错", slog.Any("error", storeErr), slog.String("task_id", task.ID))
		return storeErr
	}
	logger.Audit().Warn("任务执行失败",
		slog.String("task_id", task.ID),
		slog.String("tool", task.Tool),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", task.Attempts),
		slog.Int("max_retries", task.MaxRetries),
	)

	switch {
	case exhausted:
		p.emitAlert(ctx, task, record, CodeTaskExhausted, execErr, "exhausted")
	case xerrors.ShouldAlert(execErr):
		p.emitAlert(ctx, task, record, code, execErr, "failed")
	}

	if !terminal {
		delay := p.retryDelay(task.Attempts)
		if err := sleepContext(ctx, delay); err != nil {
			// 任务已标记为 pending，返回错误让持久化队列重投。
			return xerrors.Wrap(xerrors.CodeCancelled, err, fmt.Sprintf("任务 %s 退避期间处理器已停止", task.ID))
		}
		if pubErr := p.producer.Publish(ctx, task.ID); pubErr != nil {
			return xerrors.Wrap(CodeTaskPublish, pubErr, fmt.Sprintf("任务 %s 重投失败", task.ID))
		}
		p.logger.Debug("任务已重新排队",
			slog.String("task_id", task.ID),
			slog.Int("attempts", task.Attempts),
			slog.Duration("backoff", delay),
		)
	}
	return nil
}

func (p *Processor) emitAlert(ctx context.Context, task *Task, record *ExecutionResult, code xerrors.Code, cause error, reason string) {
	if p == nil || p.alerter == nil || task == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		TaskID:     task.ID,
		Tool:       task.Tool,
		Stage:      xerrors.MetadataOf(cause, web3.MetadataStage),
		Attempts:   task.Attempts,
		MaxRetries: task.MaxRetries,
		Metadata:   map[string]string{"reason": reason},
		OccurredAt: time.Now(),
	}
	if record != nil {
		event.Chain = record.Chain
		if record.TxID != "" {
			event.Metadata["tx_id"] = record.TxID
		}
	}
	if err := p.alerter.Notify(context.WithoutCancel(ctx), event); err != nil {
		p.logger.Error("告警通知失败",
			slog.Any("error", err),
			slog.String("task_id", task.ID),
			slog.String("reason", reason),
		)
	}
}

func toExecutionResult(result *agent.TaskResult) *ExecutionResult {
	if result == nil {
		return nil
	}
	return &ExecutionResult{
		Chain:        result.Chain,
		State:        string(result.State),
		Stage:        string(result.Stage),
		TxID:         result.TxID,
		Address:      result.Address,
		Code:         string(result.Code),
		Status:       result.Status,
		ReturnDirect: result.ReturnDirect,
	}
}

func derefResult(result *ExecutionResult) ExecutionResult {
	if result == nil {
		return ExecutionResult{}
	}
	return *result
}

// retryDelay 返回第 attempts 次尝试失败后的等待时间。
func (p *Processor) retryDelay(attempts int) time.Duration {
	if p.backoff <= 0 || attempts <= 0 {
		return 0
	}
	n := time.Duration(attempts)
	if n > 1<<31 || n*n > p.maxBackoff/p.backoff {
		return p.maxBackoff
	}
	return min(n*n*p.backoff, p.maxBackoff)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
