package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"strings"

	loggerpkg "ChainAgent/pkg/logger"
)

// Service 校验静态 API 令牌。未配置任何令牌时不启用鉴权。
type Service struct {
	digests [][sha256.Size]byte
	audit   *slog.Logger
}

// Option 自定义鉴权服务。
type Option func(*Service)

// WithAuditLogger 指定审计日志实例。
func WithAuditLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.audit = logger
		}
	}
}

// NewService 以给定令牌创建鉴权服务，空白令牌会被忽略。
func NewService(tokens []string, opts ...Option) *Service {
	s := &Service{}
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		s.digests = append(s.digests, sha256.Sum256([]byte(token)))
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Enabled 判断是否启用了鉴权。
func (s *Service) Enabled() bool {
	return s != nil && len(s.digests) > 0
}

// AuthenticateRequest 解析 Authorization 头并校验 Bearer 令牌。
func (s *Service) AuthenticateRequest(header string) (*Subject, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}
	digest := sha256.Sum256([]byte(strings.TrimSpace(token)))
	matched := 0
	for _, candidate := range s.digests {
		matched |= subtle.ConstantTimeCompare(candidate[:], digest[:])
	}
	if matched != 1 {
		return nil, ErrInvalidToken
	}
	return &Subject{Name: "token-" + hex.EncodeToString(digest[:4])}, nil
}

func (s *Service) auditLogger() *slog.Logger {
	if s != nil && s.audit != nil {
		return s.audit
	}
	return loggerpkg.Audit()
}
