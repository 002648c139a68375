package main

import (
	"github.com/spf13/cobra"

	"ChainAgent/internal/tools"
)

func newTransferCmd(opts *rootOptions) *cobra.Command {
	var to, amount string
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "在配置的 EVM 链上转账",
		Example: `  chainagent transfer --to 0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed --amount 0.001`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTool(cmd.Context(), opts, cmd.OutOrStdout(), tools.TransferToolName, map[string]string{
				"to_address": to,
				"amount":     amount,
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "收款地址")
	cmd.Flags().StringVar(&amount, "amount", "", "转账金额，单位 ether")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newCreateTokenCmd(opts *rootOptions) *cobra.Command {
	var input tools.CreateTokenInput
	cmd := &cobra.Command{
		Use:   "create-token",
		Short: "在 pump.fun 上创建代币",
		Example: `  chainagent create-token --name TestCoin --symbol TC --uri https://example.com/meta.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTool(cmd.Context(), opts, cmd.OutOrStdout(), tools.CreateTokenToolName, input)
		},
	}
	cmd.Flags().StringVar(&input.Name, "name", "", "代币名称")
	cmd.Flags().StringVar(&input.Symbol, "symbol", "", "代币符号")
	cmd.Flags().StringVar(&input.URI, "uri", "", "元数据 URI")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("symbol")
	_ = cmd.MarkFlagRequired("uri")
	return cmd
}
