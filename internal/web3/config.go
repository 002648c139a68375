package web3

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// 支持的链类型。
const (
	ChainTypeEVM    = "evm"
	ChainTypeSolana = "solana"
)

// DefaultCallTimeout 是单次 RPC 调用的默认超时。
const DefaultCallTimeout = 15 * time.Second

// ChainDefinitions models the structure of configs/chains.yaml.
type ChainDefinitions struct {
	Chains map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition describes a single chain endpoint definition.
type ChainDefinition struct {
	Type   string `yaml:"type"`
	RPCURL string `yaml:"rpc_url"`
	// ChainID 仅用于 EVM 链，为 0 时启动阶段向节点查询。
	ChainID int64 `yaml:"chain_id"`
	// Commitment 仅用于 Solana 链，默认 finalized。
	Commitment  string `yaml:"commitment"`
	Description string `yaml:"description"`
}

// LoadChainDefinitions parses the YAML file containing chain metadata.
// ${VAR} references are expanded from the process environment so endpoint
// secrets such as INFURA_PROJECT_ID never live in the file itself.
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ChainDefinitions{Chains: map[string]ChainDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}
	return ParseChainDefinitions(content)
}

// ParseChainDefinitions 解析链配置内容并校验每条链的类型与端点。
func ParseChainDefinitions(content []byte) (ChainDefinitions, error) {
	var defs ChainDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ChainDefinitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]ChainDefinition{}
	}
	for name, chain := range defs.Chains {
		chain.Type = strings.ToLower(strings.TrimSpace(chain.Type))
		if chain.Type == "" {
			chain.Type = ChainTypeEVM
		}
		if chain.Type != ChainTypeEVM && chain.Type != ChainTypeSolana {
			return ChainDefinitions{}, fmt.Errorf("链 %s 使用了不支持的类型 %s", name, chain.Type)
		}
		chain.RPCURL = strings.TrimSpace(os.ExpandEnv(chain.RPCURL))
		if chain.RPCURL == "" {
			return ChainDefinitions{}, fmt.Errorf("链 %s 未配置 rpc_url", name)
		}
		defs.Chains[name] = chain
	}
	return defs, nil
}

// Names 返回指定类型的链名称，按字典序排列。
func (d ChainDefinitions) Names(chainType string) []string {
	names := make([]string, 0, len(d.Chains))
	for name, chain := range d.Chains {
		if chainType == "" || chain.Type == chainType {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
