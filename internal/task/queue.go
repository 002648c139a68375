package task

import (
	"context"
	"errors"
)

// 队列驱动名称，与 task_queue.driver 配置对应。
const (
	QueueDriverMemory   = "memory"
	QueueDriverRedis    = "redis"
	QueueDriverRabbitMQ = "rabbitmq"
)

// ErrQueueClosed 表示队列已关闭。
var ErrQueueClosed = errors.New("队列已关闭")

// Handler 处理一条任务投递。
//
// 返回 nil 表示这次投递已经了结：任务完成、终止失败，或已由处理器自行重新排队。
// 返回错误表示任务状态没有落地，持久化队列会把它放回队列。内存队列不做重投，
// 以 Store 中的状态为准。
type Handler func(ctx context.Context, taskID string) error

// Producer 负责向队列投递任务 ID。
type Producer interface {
	Publish(ctx context.Context, taskID string) error
	Close() error
}

// Consumer 以 workerCount 个并发消费者处理投递，直到 ctx 结束。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
