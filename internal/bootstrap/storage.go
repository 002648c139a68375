package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"ChainAgent/internal/config"
	"ChainAgent/internal/storage/mysql"
	"ChainAgent/internal/task"
)

// Storage 持有提交记录仓库、任务存储与任务队列，Close 按相反顺序释放。
type Storage struct {
	Submissions mysql.SubmissionRepository
	Tasks       task.Store
	Queue       task.Queue

	db *sql.DB
}

// OpenStorage 根据配置选择后端。两者都使用 mysql 时共享同一个连接池。
func OpenStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	s := &Storage{}
	ok := false
	defer func() {
		if !ok {
			_ = s.Close()
		}
	}()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	switch cfg.Storage.Submissions.Driver {
	case "", "file":
		repo, err := mysql.NewFileSubmissionRepository(cfg.Runtime.DataDir)
		if err != nil {
			return nil, err
		}
		s.Submissions = repo
	case "mysql":
		db, err := s.database(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.Submissions = mysql.NewSQLSubmissionRepositoryWithDB(db)
	default:
		return nil, fmt.Errorf("%w: %s", mysql.ErrUnsupportedDriver, cfg.Storage.Submissions.Driver)
	}

	switch cfg.Storage.TaskStore.Driver {
	case "", "memory":
		s.Tasks = task.NewMemoryStore()
	case "mysql":
		db, err := s.database(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store, err := task.NewMySQLStore(db)
		if err != nil {
			return nil, err
		}
		s.Tasks = store
	default:
		return nil, fmt.Errorf("%w: %s", mysql.ErrUnsupportedDriver, cfg.Storage.TaskStore.Driver)
	}

	queue, err := OpenQueue(cfg.TaskQueue)
	if err != nil {
		return nil, err
	}
	s.Queue = queue
	ok = true
	return s, nil
}

// database 懒加载共享连接池，迁移只执行一次。
func (s *Storage) database(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}
	sub := cfg.Storage.Submissions
	db, err := mysql.OpenDatabase(ctx, mysql.Config{
		DSN:             sub.DSN,
		MaxOpenConns:    sub.MaxOpenConns,
		MaxIdleConns:    sub.MaxIdleConns,
		ConnMaxLifetime: time.Duration(sub.ConnMaxLifetimeSeconds) * time.Second,
		ConnMaxIdleTime: time.Duration(sub.ConnMaxIdleTimeSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	s.db = db
	return db, nil
}

// OpenQueue 构造任务队列。
func OpenQueue(cfg config.TaskQueueConfig) (task.Queue, error) {
	switch cfg.Driver {
	case "", task.QueueDriverMemory:
		return task.NewMemoryQueue(cfg.Buffer), nil
	case task.QueueDriverRedis:
		queue, err := task.NewRedisQueue(task.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Queue,
			BlockWait: time.Duration(cfg.Redis.BlockWait) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return queue, nil
	case task.QueueDriverRabbitMQ:
		queue, err := task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Queue:      cfg.RabbitMQ.Queue,
			Prefetch:   cfg.RabbitMQ.Prefetch,
			Durable:    cfg.RabbitMQ.Durable,
			AutoDelete: cfg.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return nil, err
		}
		return queue, nil
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Driver)
	}
}

// Close 依次关闭队列、任务存储与提交仓库。共享连接池重复关闭是安全的。
func (s *Storage) Close() error {
	if s == nil {
		return nil
	}
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.Queue != nil {
		record(s.Queue.Close())
	}
	if s.Tasks != nil {
		record(s.Tasks.Close())
	}
	if closer, ok := s.Submissions.(io.Closer); ok {
		record(closer.Close())
	}
	if s.db != nil {
		record(s.db.Close())
	}
	return firstErr
}
