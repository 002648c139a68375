package tools

import (
	"bytes"
	"encoding/json"
	"strings"

	"ChainAgent/internal/web3"
)

// decodeInput 把调用方传入的参数解析到 out。
//
// 支持 map、结构体、[]byte、json.RawMessage 与字符串。字符串无法解析为 JSON
// 对象时整体作为 positional 字段的值，这是有意保留的宽松处理。
func decodeInput(input any, positional string, out any) error {
	var raw []byte
	switch v := input.(type) {
	case nil:
		return web3.StageError(web3.CodeInvalidInput, web3.StageValidate, nil, "缺少工具参数")
	case string:
		raw = textInput(v, positional)
	case []byte:
		raw = textInput(string(v), positional)
	case json.RawMessage:
		raw = textInput(string(v), positional)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return web3.StageError(web3.CodeInvalidInput, web3.StageValidate, err, "无法解析工具参数")
		}
		raw = encoded
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return web3.StageError(web3.CodeInvalidInput, web3.StageValidate, err, "工具参数格式错误")
	}
	return nil
}

// textInput 返回可直接解码的 JSON 对象字节。
func textInput(text, positional string) []byte {
	trimmed := strings.TrimSpace(text)
	var object map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &object); err == nil && object != nil {
		return []byte(trimmed)
	}
	value := trimmed
	var quoted string
	if err := json.Unmarshal([]byte(trimmed), &quoted); err == nil {
		value = quoted
	}
	encoded, _ := json.Marshal(map[string]string{positional: value})
	return encoded
}
