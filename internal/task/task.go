package task

import (
	"encoding/json"
	stdErrors "errors"

	xerrors "ChainAgent/internal/errors"
)

// Status 表示任务在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ExecutionResult 保存一次工具调用的结果。TxID 只表示节点已接收。
type ExecutionResult struct {
	Chain        string `json:"chain"`
	State        string `json:"state"`
	Stage        string `json:"stage"`
	TxID         string `json:"tx_id,omitempty"`
	Address      string `json:"address,omitempty"`
	Code         string `json:"code,omitempty"`
	Status       string `json:"status"`
	ReturnDirect bool   `json:"return_direct"`
}

// Task 描述了排队执行的工具调用。
type Task struct {
	ID         string           `json:"id"`
	Tool       string           `json:"tool"`
	Input      json.RawMessage  `json:"input,omitempty"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
	Status     Status           `json:"status"`
	Attempts   int              `json:"attempts"`
	MaxRetries int              `json:"max_retries"`
	LastError  string           `json:"last_error,omitempty"`
	ErrorCode  string           `json:"error_code,omitempty"`
	Result     *ExecutionResult `json:"result,omitempty"`
	CreatedAt  int64            `json:"created_at"`
	UpdatedAt  int64            `json:"updated_at"`
}

var (
	// ErrTaskNotFound 表示指定的任务不存在。
	ErrTaskNotFound = xerrors.New(CodeTaskNotFound, "task not found")
	// ErrTaskConflict 表示任务在当前状态下无法进行所请求的操作。
	ErrTaskConflict = xerrors.New(CodeTaskConflict, "task conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrTaskCompleted 表示任务已经结束，成功或终止失败均不再执行。
	ErrTaskCompleted = xerrors.New(CodeTaskCompleted, "task already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrTaskExhausted 表示任务的重试次数已经耗尽。
	ErrTaskExhausted = xerrors.New(CodeTaskExhausted, "task retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

const (
	CodeTaskNotFound   xerrors.Code = "TASK_NOT_FOUND"
	CodeTaskConflict   xerrors.Code = "TASK_CONFLICT"
	CodeTaskCompleted  xerrors.Code = "TASK_COMPLETED"
	CodeTaskExhausted  xerrors.Code = "TASK_RETRIES_EXHAUSTED"
	CodeTaskValidation xerrors.Code = "TASK_VALIDATION_FAILED"
	CodeTaskPublish    xerrors.Code = "TASK_PUBLISH_FAILED"
	CodeTaskProcessing xerrors.Code = "TASK_PROCESSING_FAILED"
)

func init() {
	xerrors.Register(CodeTaskNotFound, xerrors.Attributes{
		Message:  "task not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskConflict, xerrors.Attributes{
		Message:  "task conflict",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeTaskCompleted, xerrors.Attributes{
		Message:  "task already completed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskExhausted, xerrors.Attributes{
		Message:  "task retries exhausted",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
	xerrors.Register(CodeTaskValidation, xerrors.Attributes{
		Message:  "task validation failed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskPublish, xerrors.Attributes{
		Message:   "failed to publish task",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeTaskProcessing, xerrors.Attributes{
		Message:  "task execution failed",
		Severity: xerrors.SeverityWarning,
		Alert:    true,
	})
}

// IsTaskError 判断错误是否为指定的任务错误。
func IsTaskError(err error, target xerrors.Code) bool {
	if err == nil {
		return false
	}
	switch target {
	case CodeTaskNotFound:
		return stdErrors.Is(err, ErrTaskNotFound)
	case CodeTaskConflict:
		return stdErrors.Is(err, ErrTaskConflict)
	case CodeTaskCompleted:
		return stdErrors.Is(err, ErrTaskCompleted)
	case CodeTaskExhausted:
		return stdErrors.Is(err, ErrTaskExhausted)
	default:
		return xerrors.CodeOf(err) == target
	}
}

// Finished 判断任务是否已经结束。
func (t *Task) Finished() bool {
	return t.Status == StatusSucceeded || t.Status == StatusFailed
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	cloned := make(map[string]any, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}
	return cloned
}

func cloneTask(t *Task) *Task {
	dup := *t
	dup.Metadata = cloneMetadata(t.Metadata)
	if t.Input != nil {
		dup.Input = append(json.RawMessage(nil), t.Input...)
	}
	if t.Result != nil {
		result := *t.Result
		dup.Result = &result
	}
	return &dup
}

// IsValidStatus 检查给定的任务状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}
