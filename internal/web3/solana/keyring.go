package solana

import (
	"crypto/ed25519"
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"

	"ChainAgent/internal/web3"
)

// Keyring 独占持有 ed25519 私钥。私钥不会被记录、序列化或传出。
//
// 签名在读锁下并发执行；Add 在写锁下加载新私钥。
type Keyring struct {
	mu   sync.RWMutex
	keys map[solana.PublicKey]solana.PrivateKey
}

// NewKeyring 使用给定私钥创建密钥环。
func NewKeyring(keys ...solana.PrivateKey) (*Keyring, error) {
	k := &Keyring{keys: make(map[solana.PublicKey]solana.PrivateKey, len(keys))}
	for _, key := range keys {
		if err := k.Add(key); err != nil {
			return nil, err
		}
	}
	return k, nil
}

// Add 加载一把私钥，同一公钥会被覆盖。
func (k *Keyring) Add(key solana.PrivateKey) error {
	if len(key) != ed25519.PrivateKeySize {
		return web3.StageError(web3.CodeMissingCredentials, web3.StageValidate, nil, "私钥长度必须为 64 字节")
	}
	owned := make(solana.PrivateKey, len(key))
	copy(owned, key)
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[owned.PublicKey()] = owned
	return nil
}

// Has 判断是否持有指定公钥的私钥。
func (k *Keyring) Has(pub solana.PublicKey) bool {
	if k == nil {
		return false
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.keys[pub]
	return ok
}

// PublicKeys 返回已加载的公钥。
func (k *Keyring) PublicKeys() []solana.PublicKey {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]solana.PublicKey, 0, len(k.keys))
	for pub := range k.keys {
		out = append(out, pub)
	}
	return out
}

// Sign 为每个签名账户对消息字节签名。
// ephemeral 中的私钥只在本次调用中使用，不会进入密钥环。
// 任一账户缺少私钥时不产生任何签名，直接返回 MISSING_SIGNER_KEY。
func (k *Keyring) Sign(message []byte, signers []solana.PublicKey, ephemeral ...solana.PrivateKey) (map[solana.PublicKey]solana.Signature, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	extra := make(map[solana.PublicKey]solana.PrivateKey, len(ephemeral))
	for _, key := range ephemeral {
		if len(key) == ed25519.PrivateKeySize {
			extra[key.PublicKey()] = key
		}
	}

	resolved := make([]solana.PrivateKey, len(signers))
	for i, pub := range signers {
		key, ok := k.keys[pub]
		if !ok {
			key, ok = extra[pub]
		}
		if !ok {
			return nil, web3.StageError(web3.CodeMissingSignerKey, web3.StageSign, nil, "缺少签名账户 "+pub.String()+" 的私钥")
		}
		resolved[i] = key
	}

	out := make(map[solana.PublicKey]solana.Signature, len(signers))
	for i, pub := range signers {
		sig, err := resolved[i].Sign(message)
		if err != nil {
			return nil, web3.StageError(web3.CodeMissingSignerKey, web3.StageSign, err, "签名失败")
		}
		out[pub] = sig
	}
	return out, nil
}

// SignTransaction 按签名位置为交易填充签名。
func (k *Keyring) SignTransaction(tx *solana.Transaction, ephemeral ...solana.PrivateKey) error {
	message, err := MessageBytes(tx)
	if err != nil {
		return err
	}
	signers := RequiredSigners(tx.Message)
	sigs, err := k.Sign(message, signers, ephemeral...)
	if err != nil {
		return err
	}
	tx.Signatures = make([]solana.Signature, len(signers))
	for i, pub := range signers {
		tx.Signatures[i] = sigs[pub]
	}
	return nil
}

// String 只输出公钥数量。
func (k *Keyring) String() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return "solana-keyring(" + strconv.Itoa(len(k.keys)) + " keys)"
}

// LoadKeypairFile 读取 solana-keygen 生成的 JSON 字节数组私钥文件。
func LoadKeypairFile(path string) (solana.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, web3.StageError(web3.CodeMissingCredentials, web3.StageValidate, nil, "未配置私钥文件")
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, web3.StageError(web3.CodeMissingCredentials, web3.StageValidate, err, "读取私钥文件失败")
	}
	return key, nil
}

// ParseKeypair 解析 JSON 字节数组或 base-58 形式的私钥。
func ParseKeypair(raw string) (solana.PrivateKey, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, web3.StageError(web3.CodeMissingCredentials, web3.StageValidate, nil, "私钥为空")
	}
	if strings.HasPrefix(s, "[") {
		var values []int
		if err := json.Unmarshal([]byte(s), &values); err != nil {
			return nil, web3.StageError(web3.CodeMissingCredentials, web3.StageValidate, nil, "私钥字节数组格式无效")
		}
		key := make(solana.PrivateKey, len(values))
		for i, v := range values {
			if v < 0 || v > 255 {
				return nil, web3.StageError(web3.CodeMissingCredentials, web3.StageValidate, nil, "私钥字节越界")
			}
			key[i] = byte(v)
		}
		if len(key) != ed25519.PrivateKeySize {
			return nil, web3.StageError(web3.CodeMissingCredentials, web3.StageValidate, nil, "私钥长度必须为 64 字节")
		}
		return key, nil
	}
	key, err := solana.PrivateKeyFromBase58(s)
	if err != nil || len(key) != ed25519.PrivateKeySize {
		return nil, web3.StageError(web3.CodeMissingCredentials, web3.StageValidate, nil, "私钥 base-58 格式无效")
	}
	return key, nil
}

// wipe 清零一次性私钥。
func wipe(key solana.PrivateKey) {
	for i := range key {
		key[i] = 0
	}
}
