package ethereum

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"ChainAgent/internal/web3"
)

// ParseAddress 校验并解析十六进制地址。
//
// 全小写或全大写的输入按原样接受；大小写混合的输入必须满足 EIP-55 校验和。
// 零地址视为无效收款方。
func ParseAddress(raw string) (common.Address, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return common.Address{}, web3.StageError(web3.CodeInvalidInput, web3.StageValidate, nil, "缺少收款地址")
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, web3.StageError(web3.CodeInvalidRecipient, web3.StageValidate, nil, "地址格式无效: "+s)
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	if isMixedCase(s[2:]) {
		mixed, err := common.NewMixedcaseAddressFromString("0x" + s[2:])
		if err != nil {
			return common.Address{}, web3.StageError(web3.CodeInvalidRecipient, web3.StageValidate, err, "地址格式无效: "+s)
		}
		if !mixed.ValidChecksum() {
			return common.Address{}, web3.StageError(web3.CodeInvalidRecipient, web3.StageValidate, nil, "地址校验和不匹配: "+s)
		}
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, web3.StageError(web3.CodeInvalidRecipient, web3.StageValidate, nil, "不允许向零地址转账")
	}
	return addr, nil
}

// FormatAddress 以 EIP-55 校验和大小写输出地址。
func FormatAddress(addr common.Address) string {
	return addr.Hex()
}

func isMixedCase(hexPart string) bool {
	return strings.ToLower(hexPart) != hexPart && strings.ToUpper(hexPart) != hexPart
}
