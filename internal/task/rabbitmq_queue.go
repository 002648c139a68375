package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string
	Queue      string
	Prefetch   int
	Durable    bool
	AutoDelete bool
}

// RabbitMQQueue 使用 AMQP 默认交换机投递任务 ID。
// 发布走独立的 channel，消费时每次 Consume 单独开 channel 并手动确认。
type RabbitMQQueue struct {
	conn     *amqp.Connection
	queue    string
	durable  bool
	prefetch int

	mu    sync.Mutex
	pubCh *amqp.Channel
}

// NewRabbitMQQueue 建立连接并声明队列。
func NewRabbitMQQueue(cfg RabbitMQConfig) (*RabbitMQQueue, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "chainagent.tasks"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	pubCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if _, err := pubCh.QueueDeclare(queue, cfg.Durable, cfg.AutoDelete, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
	}
	return &RabbitMQQueue{
		conn:     conn,
		queue:    queue,
		durable:  cfg.Durable,
		prefetch: cfg.Prefetch,
		pubCh:    pubCh,
	}, nil
}

// Publish 投递任务 ID。持久化队列上的消息同样标记为持久化。
func (q *RabbitMQQueue) Publish(ctx context.Context, taskID string) error {
	if q == nil || q.pubCh == nil {
		return errors.New("RabbitMQ 队列未初始化")
	}
	msg := amqp.Publishing{
		ContentType: "text/plain",
		MessageId:   taskID,
		Timestamp:   time.Now(),
		Body:        []byte(taskID),
	}
	if q.durable {
		msg.DeliveryMode = amqp.Persistent
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pubCh.IsClosed() {
		return ErrQueueClosed
	}
	if err := q.pubCh.PublishWithContext(ctx, "", q.queue, false, false, msg); err != nil {
		return fmt.Errorf("RabbitMQ 发布任务失败: %w", err)
	}
	return nil
}

// Consume 处理成功时 Ack。Handler 返回错误时 Nack：首次失败重新入队，重投后仍失败则丢弃。
// 服务端关闭 channel 时返回错误，由调用方决定是否重启。
func (q *RabbitMQQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if q == nil || q.conn == nil {
		return errors.New("RabbitMQ 队列未初始化")
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("创建 RabbitMQ 消费 channel 失败: %w", err)
	}
	defer ch.Close()

	prefetch := q.prefetch
	if prefetch <= 0 {
		prefetch = workerCount
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("设置 RabbitMQ QOS 失败: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("订阅 RabbitMQ 队列失败: %w", err)
	}
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < workerCount; i++ {
		group.Go(func() error {
			for {
				select {
				case <-groupCtx.Done():
					return groupCtx.Err()
				case amqpErr := <-closed:
					if amqpErr != nil {
						return fmt.Errorf("RabbitMQ channel 已关闭: %w", amqpErr)
					}
					return ErrQueueClosed
				case d, ok := <-deliveries:
					if !ok {
						return ErrQueueClosed
					}
					if err := handler(groupCtx, string(d.Body)); err != nil {
						_ = d.Nack(false, !d.Redelivered)
						continue
					}
					_ = d.Ack(false)
				}
			}
		})
	}
	return group.Wait()
}

// Close 关闭发布 channel 与连接。
func (q *RabbitMQQueue) Close() error {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	if q.pubCh != nil {
		_ = q.pubCh.Close()
	}
	q.mu.Unlock()
	if q.conn != nil && !q.conn.IsClosed() {
		return q.conn.Close()
	}
	return nil
}

var _ Queue = (*RabbitMQQueue)(nil)
