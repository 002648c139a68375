package task

import (
	"strings"
	"time"

	xerrors "ChainAgent/internal/errors"
)

// SortOrder 控制列表按 updated_at 的排序方向。
type SortOrder int

const (
	SortByUpdatedDesc SortOrder = iota
	SortByUpdatedAsc
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ListOptions 描述任务查询条件，零值表示不过滤。
type ListOptions struct {
	Limit      int
	Offset     int
	Statuses   []Status
	Tool       string
	ErrorCodes []xerrors.Code
	UpdatedGTE int64
	UpdatedLTE int64
	// HasResult 按是否拿到交易标识过滤。
	HasResult *bool
	Order     SortOrder
	Query     string
}

func (opts *ListOptions) applyDefaults() {
	switch {
	case opts.Limit <= 0:
		opts.Limit = defaultListLimit
	case opts.Limit > maxListLimit:
		opts.Limit = maxListLimit
	}
	opts.Offset = max(opts.Offset, 0)
	opts.Statuses = normalizeStatuses(opts.Statuses)
	opts.ErrorCodes = normalizeCodes(opts.ErrorCodes)
	if opts.Order != SortByUpdatedAsc {
		opts.Order = SortByUpdatedDesc
	}
	opts.Query = strings.TrimSpace(opts.Query)
	opts.Tool = strings.TrimSpace(opts.Tool)
}

// ListOption 修改查询条件。
type ListOption func(*ListOptions)

func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) { opts.Limit = limit }
}

func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) { opts.Offset = offset }
}

// WithStatuses 只返回处于给定状态的任务，非法状态被忽略。
func WithStatuses(statuses ...Status) ListOption {
	return func(opts *ListOptions) { opts.Statuses = append(opts.Statuses[:0], statuses...) }
}

func WithTool(name string) ListOption {
	return func(opts *ListOptions) { opts.Tool = name }
}

// WithErrorCodes 按最近一次失败的错误码过滤，例如找出 SUBMISSION_UNKNOWN 待人工对账的任务。
func WithErrorCodes(codes ...xerrors.Code) ListOption {
	return func(opts *ListOptions) { opts.ErrorCodes = append(opts.ErrorCodes[:0], codes...) }
}

// WithUpdatedSince 与 WithUpdatedUntil 都是闭区间，零值表示不限。
func WithUpdatedSince(ts time.Time) ListOption {
	return func(opts *ListOptions) { opts.UpdatedGTE = unixOrZero(ts) }
}

func WithUpdatedUntil(ts time.Time) ListOption {
	return func(opts *ListOptions) { opts.UpdatedLTE = unixOrZero(ts) }
}

func WithResultPresence(hasResult bool) ListOption {
	return func(opts *ListOptions) { opts.HasResult = &hasResult }
}

func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) { opts.Order = order }
}

// WithQuery 在 id、工具名、输入、错误信息与结果中做子串匹配。
func WithQuery(query string) ListOption {
	return func(opts *ListOptions) { opts.Query = query }
}

// BuildListOptions 依次应用 opts 并补齐默认值。
func BuildListOptions(opts []ListOption) ListOptions {
	var options ListOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

func unixOrZero(ts time.Time) int64 {
	if ts.IsZero() {
		return 0
	}
	return ts.Unix()
}

func normalizeStatuses(input []Status) []Status {
	return dedupe(input, IsValidStatus)
}

func normalizeCodes(input []xerrors.Code) []xerrors.Code {
	for i, code := range input {
		input[i] = xerrors.Code(strings.ToUpper(strings.TrimSpace(string(code))))
	}
	return dedupe(input, func(code xerrors.Code) bool { return code != "" })
}

// dedupe 去重并丢弃不合法的值，结果为空时返回 nil。
func dedupe[T comparable](input []T, valid func(T) bool) []T {
	var result []T
	seen := make(map[T]struct{}, len(input))
	for _, v := range input {
		if !valid(v) {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
