package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"ChainAgent/internal/agent"
	"ChainAgent/internal/bootstrap"
	"ChainAgent/internal/config"
	"ChainAgent/internal/storage/mysql"
	"ChainAgent/pkg/logger"
)

type rootOptions struct {
	configPath string
}

// newRootCmd 构造根命令，没有子命令时只打印帮助。
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "chainagent",
		Short: "ChainAgent 命令行工具",
		Long: `直接调用 ChainAgent 的链上工具。
transfer 与 create-token 会签名并提交交易；pda 与 address 只做本地计算。`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("CHAINAGENT_CONFIG"), "配置文件路径")

	root.AddCommand(
		newTransferCmd(opts),
		newCreateTokenCmd(opts),
		newPDACmd(),
		newAddressCmd(),
	)
	return root
}

// runTool 加载配置并通过 Agent 执行一次工具调用，提交记录写入数据目录。
func runTool(ctx context.Context, opts *rootOptions, out io.Writer, tool string, input any) error {
	path := opts.configPath
	if path == "" {
		path = filepath.Join("configs", "chainagent.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: "text", OutputPaths: []string{"stderr"}}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	chain, err := bootstrap.BuildToolchain(ctx, cfg, config.LoadCredentials(cfg), nil)
	if err != nil {
		return err
	}
	defer chain.Close()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}
	history, err := mysql.NewFileSubmissionRepository(cfg.Runtime.DataDir)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return err
	}
	ag := agent.New(chain.Tools, history, agent.WithToolTimeout(cfg.Runtime.ToolTimeout()))
	result, execErr := ag.Execute(ctx, agent.TaskRequest{Tool: tool, Input: raw})
	if result != nil {
		if err := printJSON(out, result); err != nil {
			return err
		}
	}
	return execErr
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
