package auth

import (
	"context"
	"errors"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Anonymous 是未启用鉴权时的调用方。
const Anonymous = "anonymous"

// Subject 标识一次请求的调用方。Name 是令牌摘要的前缀，不含令牌本身，
// 可以写入任务元数据与审计日志。
type Subject struct {
	Name string
}

type subjectKey struct{}

// WithSubject 把调用方写入 ctx，subject 为 nil 时原样返回。
func WithSubject(ctx context.Context, subject *Subject) context.Context {
	if subject == nil {
		return ctx
	}
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext 取出 WithSubject 写入的调用方，没有时返回 nil。
func SubjectFromContext(ctx context.Context) *Subject {
	subject, _ := ctx.Value(subjectKey{}).(*Subject)
	return subject
}
