package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 是覆盖配置项的环境变量前缀，例如 CHAINAGENT_SERVER_ADDRESS。
const EnvPrefix = "CHAINAGENT"

// Config 描述了 ChainAgent 在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	TaskQueue TaskQueueConfig `mapstructure:"task_queue"`
	Web3      Web3Config      `mapstructure:"web3"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址与访问令牌。
type ServerConfig struct {
	Address string `mapstructure:"address"`
	// APITokens 为空时不启用鉴权。
	APITokens []string `mapstructure:"api_tokens"`
}

// StorageConfig 描述提交记录与任务状态的存储后端。
type StorageConfig struct {
	Submissions SubmissionStoreConfig `mapstructure:"submissions"`
	TaskStore   TaskStoreConfig       `mapstructure:"task_store"`
}

// SubmissionStoreConfig 支持 file（JSON Lines）与 mysql 两种驱动。
type SubmissionStoreConfig struct {
	Driver                 string `mapstructure:"driver"`
	DSN                    string `mapstructure:"dsn"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `mapstructure:"conn_max_idle_time_seconds"`
}

// TaskStoreConfig 控制任务状态存储与重试次数。
type TaskStoreConfig struct {
	Driver  string `mapstructure:"driver"`
	Retries int    `mapstructure:"retries"`
}

// TaskQueueConfig 描述任务队列驱动。
type TaskQueueConfig struct {
	Driver   string         `mapstructure:"driver"`
	Worker   int            `mapstructure:"worker"`
	Buffer   int            `mapstructure:"buffer"`
	Redis    RedisConfig    `mapstructure:"redis"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	// RetryBackoff 是可重试失败重新入队前的基础等待，第 n 次尝试后等待 n²×RetryBackoff，
	// 不超过 RetryBackoffMax。写成 "2s"、"500ms" 等时长字符串。
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	RetryBackoffMax time.Duration `mapstructure:"retry_backoff_max"`
}

// RedisConfig 用于 Redis 列表队列。
type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	Queue     string `mapstructure:"queue"`
	BlockWait int    `mapstructure:"block_wait_seconds"`
}

// RabbitMQConfig 用于 AMQP 队列。
type RabbitMQConfig struct {
	URL        string `mapstructure:"url"`
	Queue      string `mapstructure:"queue"`
	Prefetch   int    `mapstructure:"prefetch"`
	Durable    bool   `mapstructure:"durable"`
	AutoDelete bool   `mapstructure:"auto_delete"`
}

// Web3Config 指定链定义文件以及两条交易链路使用的链。
type Web3Config struct {
	ChainConfig        string       `mapstructure:"chain_config"`
	EVMChain           string       `mapstructure:"evm_chain"`
	SolanaChain        string       `mapstructure:"solana_chain"`
	CallTimeoutSeconds int          `mapstructure:"call_timeout_seconds"`
	GasLimit           uint64       `mapstructure:"gas_limit"`
	Solana             SolanaConfig `mapstructure:"solana"`
}

// SolanaConfig 控制代币创建链路的可选行为。
type SolanaConfig struct {
	KeypairPath        string `mapstructure:"keypair_path"`
	SimulateBeforeSend bool   `mapstructure:"simulate_before_send"`
	ComputeUnitLimit   uint32 `mapstructure:"compute_unit_limit"`
	ComputeUnitPrice   uint64 `mapstructure:"compute_unit_price"`
}

// CallTimeout 返回单次 RPC 调用的超时时间。
func (c Web3Config) CallTimeout() time.Duration {
	if c.CallTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

// LoggingConfig 映射到 pkg/logger 的配置。
type LoggingConfig struct {
	Level      string   `mapstructure:"level"`
	Format     string   `mapstructure:"format"`
	Outputs    []string `mapstructure:"outputs"`
	MaxSizeMB  int      `mapstructure:"max_size_mb"`
	MaxBackups int      `mapstructure:"max_backups"`
	MaxAgeDays int      `mapstructure:"max_age_days"`
	AuditPath  string   `mapstructure:"audit_path"`
}

// AlertingConfig 控制告警推送。
type AlertingConfig struct {
	WebhookURL     string `mapstructure:"webhook_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir            string `mapstructure:"data_dir"`
	ToolTimeoutSeconds int    `mapstructure:"tool_timeout_seconds"`
}

// ToolTimeout 返回单次工具调用的整体超时。
func (r RuntimeConfig) ToolTimeout() time.Duration {
	if r.ToolTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(r.ToolTimeoutSeconds) * time.Second
}

// Load 解析指定路径的 YAML 配置文件。调用前会尝试加载工作目录下的 .env，
// 以 CHAINAGENT_ 开头的环境变量覆盖文件中的同名配置项。path 为空时只使用
// 默认值与环境变量。
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("加载 .env 失败: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	baseDir := "."
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		baseDir = filepath.Dir(path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.applyDefaults(baseDir)
	return &cfg, nil
}

// setDefaults 注册默认值，AutomaticEnv 只对已知键生效。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.api_tokens", []string{})
	v.SetDefault("storage.submissions.driver", "file")
	v.SetDefault("storage.submissions.dsn", "")
	v.SetDefault("storage.task_store.driver", "memory")
	v.SetDefault("storage.task_store.retries", 3)
	v.SetDefault("task_queue.driver", "memory")
	v.SetDefault("task_queue.worker", 4)
	v.SetDefault("task_queue.buffer", 1024)
	v.SetDefault("task_queue.retry_backoff", "2s")
	v.SetDefault("task_queue.retry_backoff_max", "30s")
	v.SetDefault("task_queue.redis.address", "127.0.0.1:6379")
	v.SetDefault("task_queue.redis.queue", "chainagent:tasks")
	v.SetDefault("task_queue.redis.block_wait_seconds", 5)
	v.SetDefault("task_queue.rabbitmq.url", "")
	v.SetDefault("task_queue.rabbitmq.queue", "chainagent.tasks")
	v.SetDefault("task_queue.rabbitmq.prefetch", 1)
	v.SetDefault("task_queue.rabbitmq.durable", true)
	v.SetDefault("web3.chain_config", "chains.yaml")
	v.SetDefault("web3.evm_chain", "arbitrum-sepolia")
	v.SetDefault("web3.solana_chain", "solana-mainnet")
	v.SetDefault("web3.call_timeout_seconds", 15)
	v.SetDefault("web3.gas_limit", 32000)
	v.SetDefault("web3.solana.keypair_path", "")
	v.SetDefault("web3.solana.simulate_before_send", false)
	v.SetDefault("web3.solana.compute_unit_limit", 0)
	v.SetDefault("web3.solana.compute_unit_price", 0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputs", []string{"stdout"})
	v.SetDefault("logging.audit_path", "")
	v.SetDefault("alerting.webhook_url", "")
	v.SetDefault("alerting.timeout_seconds", 5)
	v.SetDefault("runtime.data_dir", "data")
	v.SetDefault("runtime.tool_timeout_seconds", 60)
}

// applyDefaults 处理无法用静态默认值表达的字段，例如相对路径。
func (c *Config) applyDefaults(baseDir string) {
	c.Storage.Submissions.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Submissions.Driver))
	c.Storage.TaskStore.Driver = strings.ToLower(strings.TrimSpace(c.Storage.TaskStore.Driver))
	c.TaskQueue.Driver = strings.ToLower(strings.TrimSpace(c.TaskQueue.Driver))
	if c.TaskQueue.Worker <= 0 {
		c.TaskQueue.Worker = 1
	}
	if c.TaskQueue.RetryBackoff < 0 {
		c.TaskQueue.RetryBackoff = 0
	}
	if c.TaskQueue.RetryBackoffMax < c.TaskQueue.RetryBackoff {
		c.TaskQueue.RetryBackoffMax = c.TaskQueue.RetryBackoff
	}

	c.Runtime.DataDir = resolvePath(baseDir, c.Runtime.DataDir)
	c.Web3.ChainConfig = resolvePath(baseDir, c.Web3.ChainConfig)
	if c.Web3.Solana.KeypairPath != "" {
		c.Web3.Solana.KeypairPath = resolvePath(baseDir, c.Web3.Solana.KeypairPath)
	}

	tokens := c.Server.APITokens[:0]
	for _, token := range c.Server.APITokens {
		if token = strings.TrimSpace(token); token != "" {
			tokens = append(tokens, token)
		}
	}
	c.Server.APITokens = tokens
}

func resolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
