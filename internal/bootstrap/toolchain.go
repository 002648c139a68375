package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	solanago "github.com/gagliardetto/solana-go"

	"ChainAgent/internal/config"
	"ChainAgent/internal/tools"
	"ChainAgent/internal/web3"
	"ChainAgent/internal/web3/ethereum"
	"ChainAgent/internal/web3/provider"
	"ChainAgent/internal/web3/solana"
	loggerpkg "ChainAgent/pkg/logger"
)

// Toolchain 聚合启动阶段构造的链客户端与工具。
type Toolchain struct {
	Chains *provider.Registry
	Tools  *tools.Registry
}

// Close 释放链客户端持有的连接。
func (t *Toolchain) Close() {
	if t != nil && t.Chains != nil {
		t.Chains.Close()
	}
}

// BuildToolchain 按配置创建链客户端、签名器、引擎，并把引擎登记为工具。
// 配置中未出现的链只会跳过对应工具；凭证缺失不影响启动，首次签名时报错。
func BuildToolchain(ctx context.Context, cfg *config.Config, creds *config.Credentials, observer web3.Observer) (*Toolchain, error) {
	chains, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		return nil, err
	}
	log := loggerpkg.Named("bootstrap")
	registry := tools.NewRegistry()

	if client, err := chains.EVM(cfg.Web3.EVMChain); err != nil {
		log.Warn("跳过转账工具", slog.String("chain", cfg.Web3.EVMChain), slog.Any("error", err))
	} else {
		engine, err := newTransferEngine(ctx, cfg, creds, client, observer)
		if err != nil {
			chains.Close()
			return nil, err
		}
		registry.Register(tools.NewTransferTool(engine))
	}

	if client, err := chains.Solana(cfg.Web3.SolanaChain); err != nil {
		log.Warn("跳过代币创建工具", slog.String("chain", cfg.Web3.SolanaChain), slog.Any("error", err))
	} else {
		engine, err := newTokenEngine(cfg, creds, client, observer)
		if err != nil {
			chains.Close()
			return nil, err
		}
		registry.Register(tools.NewCreateTokenTool(engine))
	}

	return &Toolchain{Chains: chains, Tools: registry}, nil
}

func newTransferEngine(ctx context.Context, cfg *config.Config, creds *config.Credentials, client *ethereum.Client, observer web3.Observer) (*ethereum.TransferEngine, error) {
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询链 %s 的链 ID 失败: %w", client.Name(), err)
	}
	signer, err := ethereum.NewSigner(creds.EVMPrivateKey(), creds.EVMSender(), chainID)
	if err != nil {
		return nil, err
	}
	return ethereum.NewTransferEngine(client.Name(), client, signer,
		ethereum.WithGasLimit(cfg.Web3.GasLimit),
		ethereum.WithObserver(observer),
		ethereum.WithLogger(loggerpkg.Named("evm")),
	), nil
}

func newTokenEngine(cfg *config.Config, creds *config.Credentials, client *solana.Client, observer web3.Observer) (*solana.TokenEngine, error) {
	keyring, err := solana.NewKeyring()
	if err != nil {
		return nil, err
	}
	var payer solanago.PublicKey
	if path := creds.SolanaKeypairPath(); path != "" {
		key, err := solana.LoadKeypairFile(path)
		if err != nil {
			return nil, err
		}
		if err := keyring.Add(key); err != nil {
			return nil, err
		}
		payer = key.PublicKey()
	}
	opts := cfg.Web3.Solana
	return solana.NewTokenEngine(client.Name(), client, keyring, payer,
		solana.WithSimulation(opts.SimulateBeforeSend),
		solana.WithComputeBudget(opts.ComputeUnitLimit, opts.ComputeUnitPrice),
		solana.WithTokenObserver(observer),
		solana.WithTokenLogger(loggerpkg.Named("solana")),
	), nil
}
