// Package errors 提供带错误码的统一错误类型。
//
// 错误码在注册表中登记默认属性（消息、严重程度、可否重试、是否告警），
// 单个错误可以用 Option 覆盖这些属性。任务处理器据此决定重试与告警，
// API 层据此选择 HTTP 状态码。
package errors

import (
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Code 表示系统内的统一错误码。
type Code string

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConflict              Code = "CONFLICT"
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodeCancelled             Code = "CANCELLED"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeToolFailure           Code = "TOOL_FAILURE"
	CodeTimeout               Code = "TIMEOUT"
)

// Severity 描述错误的严重程度，用于告警和审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Attributes 为错误码提供默认行为。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
	Alert     bool
}

var (
	registryMu sync.RWMutex
	registry   = make(map[Code]Attributes)
)

func init() {
	for code, attr := range map[Code]Attributes{
		CodeUnknown:               {"unknown error", SeverityCritical, false, true},
		CodeInvalidArgument:       {"invalid argument", SeverityInfo, false, false},
		CodeNotFound:              {"resource not found", SeverityInfo, false, false},
		CodeConflict:              {"resource conflict", SeverityWarning, false, false},
		CodeUnauthorized:          {"unauthorized", SeverityWarning, false, false},
		CodeCancelled:             {"operation cancelled", SeverityInfo, false, false},
		CodeInitializationFailure: {"service not initialized", SeverityWarning, true, true},
		CodeStorageFailure:        {"storage failure", SeverityCritical, true, true},
		CodeToolFailure:           {"tool execution failure", SeverityWarning, true, true},
		CodeTimeout:               {"operation timed out", SeverityWarning, true, true},
	} {
		Register(code, attr)
	}
}

// Register 在初始化阶段登记错误码的默认属性，重复登记会覆盖旧值。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf 返回错误码对应的属性，未登记的错误码按 UNKNOWN 处理。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error 是系统内统一的错误类型。
//
// 属性在读取时才查注册表，包级变量形式的哨兵错误可以先于其错误码登记创建。
// overridden 标记哪些字段被 Option 覆盖，这些字段以 attrs 为准。
type Error struct {
	code       Code
	message    string
	cause      error
	metadata   map[string]string
	attrs      Attributes
	overridden uint8
}

const (
	overrideRetryable uint8 = 1 << iota
	overrideAlert
	overrideSeverity
)

// Option 调整单个错误的属性。
type Option func(*Error)

// WithMetadata 附加一条键值信息，例如失败阶段或 RPC 方法名。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithRetryable 覆盖是否可重试。
func WithRetryable(retryable bool) Option {
	return func(e *Error) {
		e.attrs.Retryable = retryable
		e.overridden |= overrideRetryable
	}
}

// WithAlert 覆盖是否告警。
func WithAlert(alert bool) Option {
	return func(e *Error) {
		e.attrs.Alert = alert
		e.overridden |= overrideAlert
	}
}

// WithSeverity 覆盖严重程度。
func WithSeverity(sev Severity) Option {
	return func(e *Error) {
		e.attrs.Severity = sev
		e.overridden |= overrideSeverity
	}
}

// New 创建错误。message 为空时使用错误码登记的默认消息。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	e.apply(opts)
	return e
}

// Wrap 以 code 包裹 cause。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// With 返回附加了 opts 的副本，原错误不变。
func (e *Error) With(opts ...Option) *Error {
	if e == nil {
		return nil
	}
	clone := *e
	clone.metadata = e.Metadata()
	clone.apply(opts)
	return &clone
}

func (e *Error) apply(opts []Option) {
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 按错误码比较，errors.Is(err, New(code, "")) 可用于判断错误类别。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

// LogValue 让 slog 以分组形式输出错误码与附加信息。
func (e *Error) LogValue() slog.Value {
	if e == nil {
		return slog.StringValue("")
	}
	attrs := []slog.Attr{
		slog.String("code", string(e.code)),
		slog.String("message", e.Error()),
	}
	keys := make([]string, 0, len(e.metadata))
	for k := range e.metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, e.metadata[k]))
	}
	return slog.GroupValue(attrs...)
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回不含 cause 的错误信息。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// attributes 合并注册表默认值与 Option 覆盖。
func (e *Error) attributes() Attributes {
	attr := AttributesOf(e.code)
	if e.overridden&overrideRetryable != 0 {
		attr.Retryable = e.attrs.Retryable
	}
	if e.overridden&overrideAlert != 0 {
		attr.Alert = e.attrs.Alert
	}
	if e.overridden&overrideSeverity != 0 {
		attr.Severity = e.attrs.Severity
	}
	return attr
}

func (e *Error) Retryable() bool { return e != nil && e.attributes().Retryable }
func (e *Error) ShouldAlert() bool { return e != nil && e.attributes().Alert }

func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	return e.attributes().Severity
}

// From 从错误链中取出第一个 *Error。
func From(err error) (*Error, bool) {
	var target *Error
	if err != nil && stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误码，非统一错误返回 UNKNOWN。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// RetryableError 判断任意 error 是否可重试，非统一错误一律不可重试。
func RetryableError(err error) bool {
	e, ok := From(err)
	return ok && e.Retryable()
}

// ShouldAlert 判断是否需要触发告警。
func ShouldAlert(err error) bool {
	e, ok := From(err)
	return ok && e.ShouldAlert()
}

// MetadataOf 返回错误附加信息中 key 对应的值。
func MetadataOf(err error, key string) string {
	if e, ok := From(err); ok {
		return e.metadata[key]
	}
	return ""
}

// SeverityOf 返回错误严重程度。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}
