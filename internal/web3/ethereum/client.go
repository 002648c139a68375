package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"ChainAgent/internal/web3"
)

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name   string
	RPCURL string
	// ChainID 为 0 时首次使用前向节点查询。
	ChainID     int64
	CallTimeout time.Duration
	Notes       string
}

// Backend 是客户端依赖的最小节点能力集合，ethclient 与模拟后端均满足。
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Client implements the web3.Client interface for EVM compatible chains.
// 每次调用都受 callTimeout 约束，失败按链路错误码分类，不做自动重试。
type Client struct {
	name        string
	notes       string
	backend     Backend
	callTimeout time.Duration
	closeFn     func()

	// mu 保护 closeFn；idMu 只保护链 ID 缓存，查询节点时不持有任何锁。
	mu      sync.Mutex
	idMu    sync.Mutex
	chainID *big.Int
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, web3.StageError(web3.CodeMissingCredentials, web3.StagePrepare, nil, "未配置 EVM RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接 EVM 节点失败: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	client := NewClientWithBackend(cfg, eth)
	client.closeFn = eth.Close
	return client, nil
}

// NewClientWithBackend 使用现成的后端构造客户端。
func NewClientWithBackend(cfg Config, backend Backend) *Client {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = web3.DefaultCallTimeout
	}
	c := &Client{
		name:        cfg.Name,
		notes:       cfg.Notes,
		backend:     backend,
		callTimeout: timeout,
	}
	if cfg.ChainID > 0 {
		c.chainID = big.NewInt(cfg.ChainID)
	}
	return c
}

// NewSimulatedClient wraps a go-ethereum simulated backend for testing purposes.
func NewSimulatedClient(name string, backend *simulated.Backend) *Client {
	return NewClientWithBackend(Config{Name: name, Notes: "simulated backend"}, backend.Client())
}

// Name 返回链名称。
func (c *Client) Name() string {
	return c.name
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeFn != nil {
		c.closeFn()
		c.closeFn = nil
	}
}

// PendingNonce 查询账户在待处理状态下的 nonce。
func (c *Client) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()
	nonce, err := c.backend.PendingNonceAt(callCtx, account)
	if err != nil {
		return 0, web3.ClassifyRPCError(web3.StagePrepare, "eth_getTransactionCount", err, isRejection)
	}
	return nonce, nil
}

// GasPrice 读取节点建议的 gas price。
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()
	price, err := c.backend.SuggestGasPrice(callCtx)
	if err != nil {
		return nil, web3.ClassifyRPCError(web3.StagePrepare, "eth_gasPrice", err, isRejection)
	}
	return price, nil
}

// ChainID 返回链 ID，未配置时向节点查询并缓存。
// 并发的首次查询可能各自请求一次节点，结果相同，先写入者为准。
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.idMu.Lock()
	cached := c.chainID
	c.idMu.Unlock()
	if cached != nil {
		return new(big.Int).Set(cached), nil
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()
	id, err := c.backend.ChainID(callCtx)
	if err != nil {
		return nil, web3.ClassifyRPCError(web3.StagePrepare, "eth_chainId", err, isRejection)
	}

	c.idMu.Lock()
	if c.chainID == nil {
		c.chainID = new(big.Int).Set(id)
	}
	cached = c.chainID
	c.idMu.Unlock()
	return new(big.Int).Set(cached), nil
}

// SendTransaction 广播已签名交易，返回交易哈希。
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()
	if err := c.backend.SendTransaction(callCtx, tx); err != nil {
		return common.Hash{}, web3.ClassifyRPCError(web3.StageSubmit, "eth_sendRawTransaction", err, isRejection)
	}
	return tx.Hash(), nil
}

// FetchChainSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	if c == nil || c.backend == nil {
		return web3.ChainSnapshot{}, errors.New("未初始化的以太坊客户端")
	}
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, err
	}
	callCtx, cancel := c.callContext(ctx)
	defer cancel()
	blockNumber, err := c.backend.BlockNumber(callCtx)
	if err != nil {
		return web3.ChainSnapshot{}, web3.ClassifyRPCError(web3.StagePrepare, "eth_blockNumber", err, isRejection)
	}
	return web3.ChainSnapshot{
		Chain:       c.name,
		Type:        web3.ChainTypeEVM,
		ChainID:     toHexBig(chainID),
		BlockNumber: fmt.Sprintf("0x%x", blockNumber),
		Notes:       c.notes,
	}, nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.callTimeout)
}

// isRejection 判断节点是否返回了应用层错误，例如余额不足或 nonce 重复。
func isRejection(err error) bool {
	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		return true
	}
	var httpErr gethrpc.HTTPError
	if errors.As(err, &httpErr) {
		return isClientStatus(httpErr.StatusCode)
	}
	var httpErrPtr *gethrpc.HTTPError
	if errors.As(err, &httpErrPtr) && httpErrPtr != nil {
		return isClientStatus(httpErrPtr.StatusCode)
	}
	return false
}

func isClientStatus(status int) bool {
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return false
	}
	return status >= 400 && status < 500
}

func toHexBig(n *big.Int) string {
	if n == nil {
		return "0x0"
	}
	return "0x" + n.Text(16)
}
