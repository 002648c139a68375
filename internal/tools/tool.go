package tools

import (
	"context"
	"sort"
	"sync"

	xerrors "ChainAgent/internal/errors"
	"ChainAgent/internal/web3"
)

// Tool 是可被智能体或 API 调用的链上操作。
type Tool interface {
	Name() string
	Description() string
	// ReturnDirect 提示调用方成功后可直接把结果返回给用户，是否采纳由调用方决定。
	ReturnDirect() bool
	// Invoke 接受原生对象或 JSON 字符串，所有失败都折叠进 Outcome。
	Invoke(ctx context.Context, input any) web3.Outcome
}

// Descriptor 是工具对外展示的元数据。
type Descriptor struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	ReturnDirect bool   `json:"return_direct"`
}

// Registry 按名称管理工具。
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry 创建注册表并登记给定工具，nil 会被忽略。
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, tool := range tools {
		if tool != nil {
			r.tools[tool.Name()] = tool
		}
	}
	return r
}

// Register 登记工具，同名工具会被替换。
func (r *Registry) Register(tool Tool) {
	if tool == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Lookup 返回指定名称的工具。
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Invoke 调用指定名称的工具。工具不存在时返回 NOT_FOUND 错误。
func (r *Registry) Invoke(ctx context.Context, name string, input any) (web3.Outcome, error) {
	tool, ok := r.Lookup(name)
	if !ok {
		return web3.Outcome{}, xerrors.New(xerrors.CodeNotFound, "未知的工具: "+name)
	}
	return tool.Invoke(ctx, input), nil
}

// Describe 按名称排序返回全部工具的元数据。
func (r *Registry) Describe() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, Descriptor{
			Name:         tool.Name(),
			Description:  tool.Description(),
			ReturnDirect: tool.ReturnDirect(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
