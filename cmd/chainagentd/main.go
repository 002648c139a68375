package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"ChainAgent/internal/agent"
	"ChainAgent/internal/api"
	"ChainAgent/internal/auth"
	"ChainAgent/internal/bootstrap"
	"ChainAgent/internal/config"
	"ChainAgent/internal/observability/alerting"
	"ChainAgent/internal/observability/metrics"
	"ChainAgent/internal/task"
	"ChainAgent/pkg/logger"
)

// main 是 ChainAgent 守护进程的入口。
func main() {
	configPath := flag.String("config", os.Getenv("CHAINAGENT_CONFIG"), "配置文件路径")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("chainagentd 运行失败: %v", err)
	}
}

func run(ctx context.Context, configPath string) error {
	if configPath == "" {
		configPath = filepath.Join("configs", "chainagent.yaml")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(loggerConfig(cfg.Logging)); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	lg := logger.Named("chainagentd")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	creds := config.LoadCredentials(cfg)
	lg.Info("凭证已加载", slog.String("credentials", creds.String()))

	chain, err := bootstrap.BuildToolchain(ctx, cfg, creds, m)
	if err != nil {
		return err
	}
	defer chain.Close()

	storage, err := bootstrap.OpenStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := storage.Close(); err != nil {
			lg.Error("关闭存储失败", slog.Any("error", err))
		}
	}()

	ag := agent.New(chain.Tools, storage.Submissions, agent.WithToolTimeout(cfg.Runtime.ToolTimeout()))

	taskService := task.NewService(storage.Tasks, storage.Queue, cfg.Storage.TaskStore.Retries,
		task.WithToolLookup(func(name string) bool {
			_, ok := chain.Tools.Lookup(name)
			return ok
		}),
	)
	processor := task.NewProcessor(ag, storage.Tasks, storage.Queue, storage.Queue,
		task.WithWorkerCount(cfg.TaskQueue.Worker),
		task.WithRetryBackoff(cfg.TaskQueue.RetryBackoff, cfg.TaskQueue.RetryBackoffMax),
		task.WithAlertDispatcher(newAlerter(cfg.Alerting)),
	)

	server := api.NewServer(cfg.Server.Address, ag,
		api.WithTaskService(taskService),
		api.WithChainStatus(chain.Chains),
		api.WithAuth(auth.NewService(cfg.Server.APITokens)),
		api.WithMetrics(m),
	)

	lg.Info("ChainAgent 启动",
		slog.String("address", cfg.Server.Address),
		slog.Any("chains", chain.Chains.Chains()),
		slog.String("queue", cfg.TaskQueue.Driver),
		slog.Int("workers", cfg.TaskQueue.Worker),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return processor.Start(gctx)
	})
	g.Go(func() error {
		return server.Start(gctx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	lg.Info("ChainAgent 已停止")
	return nil
}

func newAlerter(cfg config.AlertingConfig) alerting.Dispatcher {
	notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, alerting.NewWebhookNotifier(cfg.WebhookURL, time.Duration(cfg.TimeoutSeconds)*time.Second))
	}
	return alerting.NewFanout(notifiers...)
}

func loggerConfig(cfg config.LoggingConfig) logger.Config {
	return logger.Config{
		Level:       cfg.Level,
		Format:      cfg.Format,
		OutputPaths: cfg.Outputs,
		Rotation: logger.RotationConfig{
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAgeDays: cfg.MaxAgeDays,
		},
		Audit: logger.AuditConfig{
			Enabled:    cfg.AuditPath != "",
			Path:       cfg.AuditPath,
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAgeDays: cfg.MaxAgeDays,
		},
	}
}
