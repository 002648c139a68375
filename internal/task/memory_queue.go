package task

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// MemoryQueue 使用 channel 在进程内传递任务 ID，适用于单实例部署与测试。
type MemoryQueue struct {
	ch        chan string
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryQueue 创建一个内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{ch: make(chan string, size), done: make(chan struct{})}
}

// Publish 将任务投递到队列。
func (q *MemoryQueue) Publish(ctx context.Context, taskID string) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	case q.ch <- taskID:
		return nil
	}
}

// Consume 启动指定数量的工作协程，直到 ctx 结束或队列关闭。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < workerCount; i++ {
		group.Go(func() error {
			for {
				select {
				case <-groupCtx.Done():
					return groupCtx.Err()
				case <-q.done:
					return nil
				case taskID := <-q.ch:
					_ = handler(groupCtx, taskID)
				}
			}
		})
	}
	return group.Wait()
}

// Close 关闭内存队列，尚未消费的任务会被丢弃。
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
