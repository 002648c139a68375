package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ChainAgent/internal/web3"
	"ChainAgent/internal/web3/ethereum"
	"ChainAgent/internal/web3/solana"
)

type pdaResult struct {
	Address string `json:"address"`
	Bump    uint8  `json:"bump"`
	Program string `json:"program"`
}

// newPDACmd 计算程序派生地址。种子默认按 UTF-8 处理，
// hex: 前缀按十六进制解码，pubkey: 前缀按 base-58 公钥解码。
func newPDACmd() *cobra.Command {
	var program string
	var seeds []string
	cmd := &cobra.Command{
		Use:   "pda",
		Short: "计算程序派生地址",
		Example: `  chainagent pda --seed bonding-curve --seed pubkey:<mint>
  chainagent pda --program metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s --seed metadata --seed hex:0b70`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			programID, err := solana.ParsePublicKey(program)
			if err != nil {
				return err
			}
			raw := make([][]byte, 0, len(seeds))
			for _, seed := range seeds {
				decoded, err := decodeSeed(seed)
				if err != nil {
					return err
				}
				raw = append(raw, decoded)
			}
			addr, bump, err := solana.DeriveAddress(raw, programID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pdaResult{
				Address: solana.FormatPublicKey(addr),
				Bump:    bump,
				Program: solana.FormatPublicKey(programID),
			})
		},
	}
	cmd.Flags().StringVar(&program, "program", solana.PumpProgramID.String(), "程序 ID")
	cmd.Flags().StringArrayVar(&seeds, "seed", nil, "种子，可重复")
	return cmd
}

func decodeSeed(seed string) ([]byte, error) {
	switch {
	case strings.HasPrefix(seed, "hex:"):
		b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(seed, "hex:"), "0x"))
		if err != nil {
			return nil, web3.StageError(web3.CodeInvalidInput, web3.StageDerive, err, "种子不是合法的十六进制")
		}
		return b, nil
	case strings.HasPrefix(seed, "pubkey:"):
		key, err := solana.ParsePublicKey(strings.TrimPrefix(seed, "pubkey:"))
		if err != nil {
			return nil, err
		}
		return key[:], nil
	default:
		return []byte(seed), nil
	}
}

type addressResult struct {
	Chain   string `json:"chain"`
	Address string `json:"address"`
	OnCurve *bool  `json:"on_curve,omitempty"`
}

// newAddressCmd 校验地址并输出规范形式：EVM 地址输出 EIP-55 校验和，Solana 公钥输出是否在曲线上。
func newAddressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "address <address>",
		Short: "校验并规范化 EVM 或 Solana 地址",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.TrimSpace(args[0])
			if looksLikeEVM(raw) {
				addr, err := ethereum.ParseAddress(raw)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), addressResult{Chain: web3.ChainTypeEVM, Address: ethereum.FormatAddress(addr)})
			}
			key, err := solana.ParsePublicKey(raw)
			if err != nil {
				return fmt.Errorf("无法识别的地址 %q: %w", raw, err)
			}
			onCurve := solana.IsOnCurve(key[:])
			return printJSON(cmd.OutOrStdout(), addressResult{
				Chain:   web3.ChainTypeSolana,
				Address: solana.FormatPublicKey(key),
				OnCurve: &onCurve,
			})
		},
	}
}

func looksLikeEVM(raw string) bool {
	return strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") || len(raw) == 40
}
