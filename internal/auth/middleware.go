package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Middleware 校验 Bearer 令牌，并为每个请求写一条审计日志。
// event 为空时以请求路径作为事件名；路由带 {name} 时额外记录工具名。
func (s *Service) Middleware(event string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name := event
			if name == "" {
				name = r.URL.Path
			}
			attrs := []slog.Attr{
				slog.String("event", name),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			}
			if tool := r.PathValue("name"); tool != "" {
				attrs = append(attrs, slog.String("tool", tool))
			}

			subject := &Subject{Name: Anonymous}
			if s.Enabled() {
				authenticated, err := s.AuthenticateRequest(r.Header.Get("Authorization"))
				if err != nil {
					denyRequest(w, err)
					attrs = append(attrs, slog.Int("status", http.StatusUnauthorized), slog.String("error", err.Error()))
					s.auditLogger().LogAttrs(r.Context(), slog.LevelWarn, "access_denied", attrs...)
					return
				}
				subject = authenticated
			}

			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r.WithContext(WithSubject(r.Context(), subject)))
			attrs = append(attrs,
				slog.Int("status", sw.status),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("subject", subject.Name),
			)
			s.auditLogger().LogAttrs(r.Context(), slog.LevelInfo, "api_request", attrs...)
		})
	}
}

// denyRequest 以 API 统一的错误结构返回 401。
func denyRequest(w http.ResponseWriter, err error) {
	challenge := `Bearer realm="chainagent"`
	if errors.Is(err, ErrInvalidToken) {
		challenge += `, error="invalid_token"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": "UNAUTHORIZED", "message": err.Error()},
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
