package solana

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"ChainAgent/internal/web3"
)

// Config describes how to construct a Solana client.
type Config struct {
	Name        string
	RPCURL      string
	Commitment  rpc.CommitmentType
	CallTimeout time.Duration
	Notes       string
}

// RPC 是客户端依赖的 JSON-RPC 方法，*rpc.Client 满足该接口。
type RPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*rpc.SimulateTransactionResponse, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	Close() error
}

// Client 封装 Solana 节点访问。每次调用受 callTimeout 约束，不做自动重试。
type Client struct {
	name        string
	notes       string
	rpc         RPC
	commitment  rpc.CommitmentType
	callTimeout time.Duration
	closeOnce   sync.Once
}

// NewClient 创建指向固定集群端点的客户端。
func NewClient(cfg Config) (*Client, error) {
	url := strings.TrimSpace(cfg.RPCURL)
	if url == "" {
		return nil, web3.StageError(web3.CodeMissingCredentials, web3.StageBuild, nil, "未配置 Solana RPC 地址")
	}
	return NewClientWithRPC(cfg, rpc.New(url)), nil
}

// NewClientWithRPC 使用现成的 RPC 实现构造客户端。
func NewClientWithRPC(cfg Config, backend RPC) *Client {
	commitment := cfg.Commitment
	if commitment == "" {
		commitment = rpc.CommitmentFinalized
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = web3.DefaultCallTimeout
	}
	return &Client{
		name:        cfg.Name,
		notes:       cfg.Notes,
		rpc:         backend,
		commitment:  commitment,
		callTimeout: timeout,
	}
}

// Name 返回链名称。
func (c *Client) Name() string {
	return c.name
}

// LatestBlockhash 获取最近区块哈希，应在签名前立即调用。
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()
	out, err := c.rpc.GetLatestBlockhash(callCtx, c.commitment)
	if err != nil {
		return solana.Hash{}, web3.ClassifyRPCError(web3.StageBuild, "getLatestBlockhash", err, isRejection)
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, web3.StageError(web3.CodeRPCRejected, web3.StageBuild, nil, "节点未返回区块哈希")
	}
	return out.Value.Blockhash, nil
}

// Simulate 预执行已签名交易，执行失败时携带程序日志返回 RPC_REJECTED。
func (c *Client) Simulate(ctx context.Context, tx *solana.Transaction) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()
	out, err := c.rpc.SimulateTransaction(callCtx, tx)
	if err != nil {
		return web3.ClassifyRPCError(web3.StageSimulate, "simulateTransaction", err, isRejection)
	}
	if out != nil && out.Value != nil && out.Value.Err != nil {
		cause := fmt.Errorf("simulation error: %v; logs: %s", out.Value.Err, strings.Join(out.Value.Logs, " | "))
		return web3.StageError(web3.CodeRPCRejected, web3.StageSimulate, cause, "交易预执行失败")
	}
	return nil
}

// SendTransaction 广播已签名交易并返回签名。
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()
	sig, err := c.rpc.SendTransactionWithOpts(callCtx, tx, rpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return solana.Signature{}, web3.ClassifyRPCError(web3.StageSubmit, "sendTransaction", err, isRejection)
	}
	return sig, nil
}

// FetchChainSnapshot 返回当前 slot 作为高度。
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	if c == nil || c.rpc == nil {
		return web3.ChainSnapshot{}, errors.New("未初始化的 Solana 客户端")
	}
	callCtx, cancel := c.callContext(ctx)
	defer cancel()
	slot, err := c.rpc.GetSlot(callCtx, c.commitment)
	if err != nil {
		return web3.ChainSnapshot{}, web3.ClassifyRPCError(web3.StagePrepare, "getSlot", err, isRejection)
	}
	return web3.ChainSnapshot{
		Chain:       c.name,
		Type:        web3.ChainTypeSolana,
		BlockNumber: fmt.Sprintf("%d", slot),
		Notes:       c.notes,
	}, nil
}

// Close 释放底层连接。
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.rpc != nil {
			_ = c.rpc.Close()
		}
	})
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.callTimeout)
}

// isRejection 判断是否为节点返回的 JSON-RPC 错误对象，例如预检失败或余额不足。
func isRejection(err error) bool {
	var rpcErr *jsonrpc.RPCError
	return errors.As(err, &rpcErr)
}
