package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go/rpc"

	"ChainAgent/internal/config"
	"ChainAgent/internal/web3"
	"ChainAgent/internal/web3/ethereum"
	"ChainAgent/internal/web3/solana"
)

// Registry manages the chain clients keyed by human readable names.
type Registry struct {
	mu     sync.RWMutex
	evm    map[string]*ethereum.Client
	solana map[string]*solana.Client
}

// NewRegistry loads chain definitions and instantiates concrete clients.
func NewRegistry(ctx context.Context, cfg config.Web3Config) (*Registry, error) {
	defs, err := web3.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}
	return NewRegistryFromDefinitions(ctx, defs, cfg.CallTimeout())
}

// NewRegistryFromDefinitions 按链类型构造客户端，任一链失败时关闭已创建的客户端。
func NewRegistryFromDefinitions(ctx context.Context, defs web3.ChainDefinitions, callTimeout time.Duration) (*Registry, error) {
	r := &Registry{
		evm:    make(map[string]*ethereum.Client),
		solana: make(map[string]*solana.Client),
	}
	for _, name := range defs.Names("") {
		chain := defs.Chains[name]
		switch chain.Type {
		case web3.ChainTypeEVM:
			client, err := ethereum.NewClient(ctx, ethereum.Config{
				Name:        name,
				RPCURL:      chain.RPCURL,
				ChainID:     chain.ChainID,
				CallTimeout: callTimeout,
				Notes:       chain.Description,
			})
			if err != nil {
				r.Close()
				return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
			}
			r.evm[name] = client
		case web3.ChainTypeSolana:
			client, err := solana.NewClient(solana.Config{
				Name:        name,
				RPCURL:      chain.RPCURL,
				Commitment:  rpc.CommitmentType(chain.Commitment),
				CallTimeout: callTimeout,
				Notes:       chain.Description,
			})
			if err != nil {
				r.Close()
				return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
			}
			r.solana[name] = client
		default:
			r.Close()
			return nil, fmt.Errorf("链 %s 使用了不支持的类型 %s", name, chain.Type)
		}
	}
	if len(r.evm)+len(r.solana) == 0 {
		return nil, errors.New("未配置任何链的 RPC 端点")
	}
	return r, nil
}

// EVM returns the EVM client identified by name.
func (r *Registry) EVM(name string) (*ethereum.Client, error) {
	if r == nil {
		return nil, errors.New("未初始化的链客户端注册表")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.evm[name]
	if !ok {
		return nil, fmt.Errorf("EVM 链 %s 未在注册表中", name)
	}
	return client, nil
}

// Solana returns the Solana client identified by name.
func (r *Registry) Solana(name string) (*solana.Client, error) {
	if r == nil {
		return nil, errors.New("未初始化的链客户端注册表")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.solana[name]
	if !ok {
		return nil, fmt.Errorf("Solana 链 %s 未在注册表中", name)
	}
	return client, nil
}

// Client returns the chain client identified by name regardless of its type.
func (r *Registry) Client(name string) (web3.Client, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if client, ok := r.evm[name]; ok {
		return client, true
	}
	if client, ok := r.solana[name]; ok {
		return client, true
	}
	return nil, false
}

// Chains returns the list of registered chain names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.evm)+len(r.solana))
	for name := range r.evm {
		names = append(names, name)
	}
	for name := range r.solana {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshots 查询每条链的当前高度，单条链失败时在 Notes 中记录错误而不是中断。
func (r *Registry) Snapshots(ctx context.Context) []web3.ChainSnapshot {
	names := r.Chains()
	out := make([]web3.ChainSnapshot, 0, len(names))
	for _, name := range names {
		client, ok := r.Client(name)
		if !ok {
			continue
		}
		snapshot, err := client.FetchChainSnapshot(ctx)
		if err != nil {
			snapshot = web3.ChainSnapshot{Chain: name, Notes: err.Error()}
		}
		out = append(out, snapshot)
	}
	return out
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, client := range r.evm {
		client.Close()
		delete(r.evm, name)
	}
	for name, client := range r.solana {
		client.Close()
		delete(r.solana, name)
	}
}
