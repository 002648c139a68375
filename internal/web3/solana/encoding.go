package solana

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"math"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"ChainAgent/internal/web3"
)

// Field 是指令数据中的一个有序字段。
type Field interface {
	encode(enc *bin.Encoder) error
}

type stringField string

func (f stringField) encode(enc *bin.Encoder) error {
	if uint64(len(f)) > math.MaxUint32 {
		return web3.StageError(web3.CodeInvalidInput, web3.StageBuild, nil, "字符串字段超过 u32 长度上限")
	}
	if err := enc.WriteUint32(uint32(len(f)), binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteBytes([]byte(f), false)
}

type u8Field uint8

func (f u8Field) encode(enc *bin.Encoder) error {
	return enc.WriteUint8(uint8(f))
}

type u32Field uint32

func (f u32Field) encode(enc *bin.Encoder) error {
	return enc.WriteUint32(uint32(f), binary.LittleEndian)
}

type u64Field uint64

func (f u64Field) encode(enc *bin.Encoder) error {
	return enc.WriteUint64(uint64(f), binary.LittleEndian)
}

type publicKeyField solana.PublicKey

func (f publicKeyField) encode(enc *bin.Encoder) error {
	return enc.WriteBytes(f[:], false)
}

// String 编码为 4 字节小端长度前缀加 UTF-8 原始字节。
func String(s string) Field { return stringField(s) }

// U8 编码为单字节。
func U8(v uint8) Field { return u8Field(v) }

// U32 编码为 4 字节小端整数。
func U32(v uint32) Field { return u32Field(v) }

// U64 编码为 8 字节小端整数。
func U64(v uint64) Field { return u64Field(v) }

// Pubkey 编码为 32 字节原始公钥。
func Pubkey(key solana.PublicKey) Field { return publicKeyField(key) }

// EncodeInstructionData 按声明顺序将判别符与字段拼接为指令数据。
// 除长度是否可编码外不做任何内容校验。
func EncodeInstructionData(discriminator []byte, fields ...Field) ([]byte, error) {
	var buf bytes.Buffer
	enc := bin.NewBorshEncoder(&buf)
	if err := enc.WriteBytes(discriminator, false); err != nil {
		return nil, err
	}
	for _, field := range fields {
		if err := field.encode(enc); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// AnchorDiscriminator 返回 Anchor 程序指令的 8 字节判别符。
func AnchorDiscriminator(instruction string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + instruction))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}
