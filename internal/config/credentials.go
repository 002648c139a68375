package config

import (
	"os"
	"strings"
)

// 发送方凭证所在的环境变量。
const (
	EnvArbitrumPrivateKey    = "ARBITRUM_PRIVATE_KEY"
	EnvArbitrumSenderAddress = "ARBITRUM_SENDER_ADDRESS"
	EnvSolanaKeypairPath     = "SOLANA_KEYPAIR_PATH"
)

// Credentials 在启动时构造一次，之后只读，按引用传给签名器。
// 核心逻辑不再直接读取环境变量。
type Credentials struct {
	evmPrivateKey     string
	evmSender         string
	solanaKeypairPath string
}

// LoadCredentials 从环境变量读取凭证，cfg 中的密钥文件路径作为 Solana 的兜底。
// 缺失的字段保持为空，由签名器在首次签名前报 MISSING_CREDENTIALS。
func LoadCredentials(cfg *Config) *Credentials {
	return NewCredentials(
		os.Getenv(EnvArbitrumPrivateKey),
		os.Getenv(EnvArbitrumSenderAddress),
		firstNonEmpty(os.Getenv(EnvSolanaKeypairPath), keypairPath(cfg)),
	)
}

// NewCredentials 直接由给定值构造凭证，主要用于测试与 CLI。
func NewCredentials(evmPrivateKey, evmSender, solanaKeypairPath string) *Credentials {
	return &Credentials{
		evmPrivateKey:     strings.TrimSpace(evmPrivateKey),
		evmSender:         strings.TrimSpace(evmSender),
		solanaKeypairPath: strings.TrimSpace(solanaKeypairPath),
	}
}

// EVMPrivateKey 返回十六进制私钥。调用方不得记录该值。
func (c *Credentials) EVMPrivateKey() string {
	if c == nil {
		return ""
	}
	return c.evmPrivateKey
}

// EVMSender 返回配置的发送地址。
func (c *Credentials) EVMSender() string {
	if c == nil {
		return ""
	}
	return c.evmSender
}

// SolanaKeypairPath 返回 Solana 密钥文件路径。
func (c *Credentials) SolanaKeypairPath() string {
	if c == nil {
		return ""
	}
	return c.solanaKeypairPath
}

// String 只报告凭证是否配置，从不输出内容。
func (c *Credentials) String() string {
	if c == nil {
		return "credentials(nil)"
	}
	return "credentials(evm_key=" + presence(c.evmPrivateKey) +
		", evm_sender=" + c.evmSender +
		", solana_keypair=" + presence(c.solanaKeypairPath) + ")"
}

func presence(v string) string {
	if v == "" {
		return "missing"
	}
	return "set"
}

func keypairPath(cfg *Config) string {
	if cfg == nil {
		return ""
	}
	return cfg.Web3.Solana.KeypairPath
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
