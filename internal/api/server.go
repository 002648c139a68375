package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ChainAgent/internal/agent"
	"ChainAgent/internal/auth"
	xerrors "ChainAgent/internal/errors"
	"ChainAgent/internal/observability/metrics"
	"ChainAgent/internal/task"
	"ChainAgent/internal/web3"
)

// maxBodyBytes 限制请求体大小，工具输入都很小。
const maxBodyBytes = 1 << 20

// ChainStatus 提供各条链的健康快照。
type ChainStatus interface {
	Snapshots(ctx context.Context) []web3.ChainSnapshot
}

// Server 负责暴露 REST 接口，供外部同步调用工具或提交异步任务。
type Server struct {
	addr    string
	agent   *agent.Agent
	tasks   *task.Service
	chains  ChainStatus
	auth    *auth.Service
	metrics *metrics.Metrics
}

// Option 定义可选的服务配置。
type Option func(*Server)

// WithTaskService 启用异步任务接口。
func WithTaskService(svc *task.Service) Option {
	return func(s *Server) { s.tasks = svc }
}

// WithChainStatus 为 /healthz 提供链快照。
func WithChainStatus(chains ChainStatus) Option {
	return func(s *Server) { s.chains = chains }
}

// WithAuth 配置令牌鉴权。
func WithAuth(svc *auth.Service) Option {
	return func(s *Server) { s.auth = svc }
}

// WithMetrics 启用请求指标与 /metrics。
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, ag *agent.Agent, opts ...Option) *Server {
	s := &Server{addr: addr, agent: ag}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回完整的路由，/healthz 与 /metrics 不需要鉴权。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "GET /api/v1/tools", "tools.list", s.handleListTools)
	s.route(mux, "POST /api/v1/tools/{name}", "tools.invoke", s.handleInvokeTool)
	s.route(mux, "POST /api/v1/tasks", "tasks.create", s.handleCreateTask)
	s.route(mux, "GET /api/v1/tasks", "tasks.list", s.handleListTasks)
	s.route(mux, "GET /api/v1/tasks/stats", "tasks.stats", s.handleTaskStats)
	s.route(mux, "GET /api/v1/tasks/{id}", "tasks.get", s.handleGetTask)
	s.route(mux, "GET /api/v1/submissions", "submissions.list", s.handleListSubmissions)

	mux.Handle("GET /healthz", s.instrument("healthz", http.HandlerFunc(s.handleHealth)))
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

func (s *Server) route(mux *http.ServeMux, pattern, event string, handler http.HandlerFunc) {
	var h http.Handler = handler
	h = s.auth.Middleware(event)(h)
	mux.Handle(pattern, s.instrument(event, h))
}

func (s *Server) instrument(name string, h http.Handler) http.Handler {
	if s.metrics == nil {
		return h
	}
	return s.metrics.Middleware(name, h)
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "Agent 未初始化"))
		return
	}
	writeJSON(w, http.StatusOK, s.agent.Tools())
}

// handleInvokeTool 同步调用工具，请求体即工具输入：JSON 对象或单个字符串。
func (s *Server) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "Agent 未初始化"))
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "读取请求体失败"))
		return
	}
	input := json.RawMessage(strings.TrimSpace(string(body)))
	if len(input) > 0 && !json.Valid(input) {
		// 纯文本按位置参数处理。
		input, _ = json.Marshal(string(input))
	}

	result, execErr := s.agent.Execute(r.Context(), agent.TaskRequest{
		Tool:  r.PathValue("name"),
		Input: input,
	})
	if result == nil {
		writeError(w, execErr)
		return
	}
	status := http.StatusOK
	if execErr != nil {
		status = statusForCode(xerrors.CodeOf(execErr))
	}
	writeJSON(w, status, result)
}

type createTaskRequest struct {
	ID       string          `json:"id,omitempty"`
	Tool     string          `json:"tool"`
	Input    json.RawMessage `json:"input"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未启用"))
		return
	}
	var req createTaskRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}
	// submitted_by 以鉴权结果为准，覆盖客户端传入的同名字段。
	if subject := auth.SubjectFromContext(r.Context()); subject != nil {
		if req.Metadata == nil {
			req.Metadata = make(map[string]any, 1)
		}
		req.Metadata["submitted_by"] = subject.Name
	}
	created, err := s.tasks.Submit(r.Context(), agent.TaskRequest{
		ID:       req.ID,
		Tool:     req.Tool,
		Input:    req.Input,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, created)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	s.writeTask(w, r, r.PathValue("id"))
}

func (s *Server) writeTask(w http.ResponseWriter, r *http.Request, id string) {
	if s.tasks == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未启用"))
		return
	}
	found, err := s.tasks.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// handleListTasks 支持 status、tool、q、limit、offset、order 查询参数；携带 id 时返回单个任务。
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if id := strings.TrimSpace(query.Get("id")); id != "" {
		s.writeTask(w, r, id)
		return
	}
	if s.tasks == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未启用"))
		return
	}
	tasks, err := s.tasks.List(r.Context(), listOptionsFromQuery(r)...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未启用"))
		return
	}
	stats, err := s.tasks.Stats(r.Context(), listOptionsFromQuery(r)...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "Agent 未初始化"))
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	records, err := s.agent.ListHistory(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

type healthResponse struct {
	Status string               `json:"status"`
	Chains []web3.ChainSnapshot `json:"chains,omitempty"`
}

// handleHealth 返回链快照。任一链不可达时状态为 degraded，HTTP 状态码仍为 200。
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.chains != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		resp.Chains = s.chains.Snapshots(ctx)
		for _, snapshot := range resp.Chains {
			if snapshot.BlockNumber == "" {
				resp.Status = "degraded"
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func listOptionsFromQuery(r *http.Request) []task.ListOption {
	query := r.URL.Query()
	var opts []task.ListOption
	if raw := query.Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			opts = append(opts, task.WithLimit(limit))
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil {
			opts = append(opts, task.WithOffset(offset))
		}
	}
	if raw := query.Get("status"); raw != "" {
		var statuses []task.Status
		for _, part := range strings.Split(raw, ",") {
			statuses = append(statuses, task.Status(strings.TrimSpace(part)))
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	if tool := query.Get("tool"); tool != "" {
		opts = append(opts, task.WithTool(tool))
	}
	if raw := query.Get("error_code"); raw != "" {
		var codes []xerrors.Code
		for _, part := range strings.Split(raw, ",") {
			codes = append(codes, xerrors.Code(part))
		}
		opts = append(opts, task.WithErrorCodes(codes...))
	}
	if q := query.Get("q"); q != "" {
		opts = append(opts, task.WithQuery(q))
	}
	if query.Get("order") == "asc" {
		opts = append(opts, task.WithSortOrder(task.SortByUpdatedAsc))
	}
	return opts
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
