package ethereum

import (
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"ChainAgent/internal/web3"
)

// Signer 独占持有发送方私钥，私钥不会离开该结构。
//
// 签名在读锁下进行，允许并发；Rotate 在写锁下替换私钥，不会与签名交错。
type Signer struct {
	mu      sync.RWMutex
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	signer  types.Signer
	// missing 记录未就绪的原因，私钥加载成功后清空。
	missing string
}

// NewSigner 解析十六进制私钥并与配置的发送地址核对。
// 私钥与发送地址都是必需的：任一为空时返回未就绪的 Signer，
// 校验阶段与签名时都报 MISSING_CREDENTIALS。
func NewSigner(privateKeyHex, sender string, chainID *big.Int) (*Signer, error) {
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, web3.StageError(web3.CodeMissingCredentials, web3.StageValidate, nil, "未配置链 ID")
	}
	s := &Signer{
		chainID: new(big.Int).Set(chainID),
		signer:  types.LatestSignerForChainID(chainID),
	}
	switch {
	case strings.TrimSpace(privateKeyHex) == "":
		s.missing = "未配置发送方私钥"
		return s, nil
	case strings.TrimSpace(sender) == "":
		s.missing = "未配置发送方地址"
		return s, nil
	}
	if err := s.load(privateKeyHex, sender); err != nil {
		return nil, err
	}
	return s, nil
}

// Rotate 替换私钥。运行中轮换可以省略 sender，此时以私钥推导出的地址为准，
// 不再与配置核对；sender 非空时必须与私钥匹配。
func (s *Signer) Rotate(privateKeyHex, sender string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(privateKeyHex, sender)
}

func (s *Signer) load(privateKeyHex, sender string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(privateKeyHex, sender)
}

func (s *Signer) loadLocked(privateKeyHex, sender string) error {
	raw := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return web3.StageError(web3.CodeMissingCredentials, web3.StageValidate, nil, "私钥格式无效")
	}
	address := crypto.PubkeyToAddress(key.PublicKey)
	if sender = strings.TrimSpace(sender); sender != "" {
		if !common.IsHexAddress(sender) || common.HexToAddress(sender) != address {
			return web3.StageError(web3.CodeMissingCredentials, web3.StageValidate, nil, "私钥与发送地址不匹配")
		}
	}
	s.key = key
	s.address = address
	s.missing = ""
	return nil
}

// Ready 判断是否已加载私钥。
func (s *Signer) Ready() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key != nil
}

// CredentialsError 在未就绪时返回标注了 stage 的 MISSING_CREDENTIALS 错误。
func (s *Signer) CredentialsError(stage web3.Stage) error {
	if s == nil {
		return web3.StageError(web3.CodeMissingCredentials, stage, nil, "未配置签名器")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key != nil {
		return nil
	}
	reason := s.missing
	if reason == "" {
		reason = "未配置发送方私钥"
	}
	return web3.StageError(web3.CodeMissingCredentials, stage, nil, reason)
}

// Address 返回发送方地址。
func (s *Signer) Address() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// ChainID 返回签名使用的链 ID。
func (s *Signer) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// SignTx 按 EIP-155 对交易哈希签名。
func (s *Signer) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	if err := s.CredentialsError(web3.StageSign); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	signed, err := types.SignTx(tx, s.signer, s.key)
	if err != nil {
		return nil, web3.StageError(web3.CodeInvalidInput, web3.StageSign, err, "交易签名失败")
	}
	return signed, nil
}

// String 只输出地址，避免私钥进入日志。
func (s *Signer) String() string {
	if !s.Ready() {
		return "evm-signer(unconfigured)"
	}
	return "evm-signer(" + s.Address().Hex() + ")"
}
