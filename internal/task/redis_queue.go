package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// RedisQueueConfig 描述 Redis 队列的连接参数。
type RedisQueueConfig struct {
	Address   string
	Password  string
	DB        int
	Queue     string
	BlockWait time.Duration
}

// RedisQueue 基于两个 Redis list：待处理列表与处理中列表。
// 消费者用 BLMOVE 把任务原子地移入处理中列表，投递了结后再删除，
// 进程崩溃遗留的任务会在下次 Consume 时被放回待处理列表。
type RedisQueue struct {
	client     redis.UniversalClient
	pending    string
	processing string
	wait       time.Duration
}

// NewRedisQueue 连接 Redis 并创建队列。
func NewRedisQueue(cfg RedisQueueConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return newRedisQueue(client, cfg.Queue, cfg.BlockWait), nil
}

func newRedisQueue(client redis.UniversalClient, name string, wait time.Duration) *RedisQueue {
	if name == "" {
		name = "chainagent:tasks"
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisQueue{
		client:     client,
		pending:    name,
		processing: name + ":processing",
		wait:       wait,
	}
}

// Publish 把任务 ID 追加到待处理列表尾部。
func (q *RedisQueue) Publish(ctx context.Context, taskID string) error {
	if err := q.client.LPush(ctx, q.pending, taskID).Err(); err != nil {
		return fmt.Errorf("Redis 发布任务失败: %w", err)
	}
	return nil
}

// Consume 先回收处理中列表的遗留任务，再启动 workerCount 个阻塞消费者。
// 同一任务被重复领取时由 Store.Claim 拦截。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	if err := q.recoverInflight(ctx); err != nil {
		return err
	}
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < workerCount; i++ {
		group.Go(func() error {
			for {
				taskID, err := q.client.BLMove(groupCtx, q.pending, q.processing, "RIGHT", "LEFT", q.wait).Result()
				switch {
				case errors.Is(err, redis.Nil):
					continue
				case err != nil:
					if groupCtx.Err() != nil {
						return groupCtx.Err()
					}
					return fmt.Errorf("Redis 取任务失败: %w", err)
				}
				q.settle(groupCtx, taskID, handler(groupCtx, taskID))
			}
		})
	}
	return group.Wait()
}

// settle 从处理中列表移除任务；处理失败时重新追加到待处理列表。
func (q *RedisQueue) settle(ctx context.Context, taskID string, handlerErr error) {
	ctx = context.WithoutCancel(ctx)
	_, _ = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, taskID)
		if handlerErr != nil {
			pipe.LPush(ctx, q.pending, taskID)
		}
		return nil
	})
}

func (q *RedisQueue) recoverInflight(ctx context.Context) error {
	for {
		_, err := q.client.LMove(ctx, q.processing, q.pending, "RIGHT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("回收 Redis 处理中任务失败: %w", err)
		}
	}
}

// Close 关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}

var _ Queue = (*RedisQueue)(nil)
