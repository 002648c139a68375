package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChainAgent/internal/agent"
	xerrors "ChainAgent/internal/errors"
	"ChainAgent/internal/observability/alerting"
	"ChainAgent/internal/web3"
)

type fakeAgent struct {
	processed atomic.Int32
	latency   time.Duration
	fail      func(attempt int32) error

	mu      sync.Mutex
	startAt []time.Time
}

func (f *fakeAgent) starts() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.startAt...)
}

func (f *fakeAgent) Execute(ctx context.Context, req agent.TaskRequest) (*agent.TaskResult, error) {
	f.mu.Lock()
	f.startAt = append(f.startAt, time.Now())
	f.mu.Unlock()
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	attempt := f.processed.Add(1)
	result := &agent.TaskResult{Tool: req.Tool, Chain: "arbitrum-sepolia", State: web3.StateSubmitted, Stage: web3.StageReport, TxID: "0x" + req.ID, Status: "Done"}
	if f.fail != nil {
		if err := f.fail(attempt); err != nil {
			result.State = web3.StateFailed
			result.TxID = ""
			result.Code = xerrors.CodeOf(err)
			return result, err
		}
	}
	return result, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (r *recordingDispatcher) Notify(_ context.Context, event alerting.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingDispatcher) snapshot() []alerting.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]alerting.Event(nil), r.events...)
}

func startProcessor(t *testing.T, executor Executor, store Store, queue *MemoryQueue, opts ...ProcessorOption) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	// 默认退避缩短到毫秒级，需要验证退避的用例自行覆盖。
	opts = append([]ProcessorOption{WithRetryBackoff(time.Millisecond, 5*time.Millisecond)}, opts...)
	processor := NewProcessor(executor, store, queue, queue, opts...)
	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()
	return cancel
}

func TestProcessorHandlesConcurrentTasks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	executor := &fakeAgent{latency: 10 * time.Millisecond}

	service := NewService(store, queue, 3)
	stop := startProcessor(t, executor, store, queue, WithWorkerCount(8))
	defer stop()

	total := 200
	for i := 0; i < total; i++ {
		input := []byte(fmt.Sprintf(`{"to_address":"0x%040d","amount":"0.001"}`, i))
		if _, err := service.Submit(ctx, agent.TaskRequest{Tool: "send_arbitrum_eth", Input: input}); err != nil {
			t.Fatalf("提交任务失败: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		if int(executor.processed.Load()) >= total {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("任务未能及时处理，已完成 %d", executor.processed.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestProcessorRetriesOnlyBeforeSubmit(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	executor := &fakeAgent{fail: func(attempt int32) error {
		if attempt == 1 {
			return xerrors.New(web3.CodeNetworkUnavailable, "refused", xerrors.WithRetryable(true))
		}
		return nil
	}}
	service := NewService(store, queue, 3)
	stop := startProcessor(t, executor, store, queue)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	submitted, err := service.Submit(ctx, agent.TaskRequest{ID: "retry-1", Tool: "send_arbitrum_eth"})
	require.NoError(t, err)

	done, err := service.WaitUntilCompleted(ctx, submitted.ID, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, done.Status)
	assert.Equal(t, 2, done.Attempts)
	require.NotNil(t, done.Result)
	assert.Equal(t, "0xretry-1", done.Result.TxID)
}

func TestProcessorUnknownSubmissionIsTerminalAndAlerts(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	executor := &fakeAgent{fail: func(int32) error {
		return web3.StageError(web3.CodeSubmissionUnknown, web3.StageSubmit, context.DeadlineExceeded, "timeout", xerrors.WithRetryable(false))
	}}
	alerts := &recordingDispatcher{}
	service := NewService(store, queue, 3)
	stop := startProcessor(t, executor, store, queue, WithAlertDispatcher(alerts))
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	submitted, err := service.Submit(ctx, agent.TaskRequest{ID: "unknown-1", Tool: "send_arbitrum_eth"})
	require.NoError(t, err)

	done, err := service.WaitUntilCompleted(ctx, submitted.ID, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, done.Status)
	assert.Equal(t, 1, done.Attempts)
	assert.Equal(t, string(web3.CodeSubmissionUnknown), done.ErrorCode)
	assert.EqualValues(t, 1, executor.processed.Load())

	require.Eventually(t, func() bool { return len(alerts.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	event := alerts.snapshot()[0]
	assert.Equal(t, web3.CodeSubmissionUnknown, event.Code)
	assert.Equal(t, "submit", event.Stage)
	assert.Equal(t, "unknown-1", event.TaskID)
}

func TestProcessorExhaustsRetries(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	executor := &fakeAgent{fail: func(int32) error {
		return xerrors.New(web3.CodeNetworkUnavailable, "refused", xerrors.WithRetryable(true))
	}}
	alerts := &recordingDispatcher{}
	service := NewService(store, queue, 2)
	stop := startProcessor(t, executor, store, queue, WithAlertDispatcher(alerts))
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	submitted, err := service.Submit(ctx, agent.TaskRequest{Tool: "send_arbitrum_eth"})
	require.NoError(t, err)

	done, err := service.WaitUntilCompleted(ctx, submitted.ID, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, done.Status)
	assert.Equal(t, 2, done.Attempts)

	require.Eventually(t, func() bool { return len(alerts.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, CodeTaskExhausted, alerts.snapshot()[0].Code)
}

func TestProcessorBacksOffBetweenRetries(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	executor := &fakeAgent{fail: func(int32) error {
		return xerrors.New(web3.CodeNetworkUnavailable, "refused", xerrors.WithRetryable(true))
	}}
	service := NewService(store, queue, 3)
	base := 40 * time.Millisecond
	stop := startProcessor(t, executor, store, queue, WithRetryBackoff(base, time.Second))
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	submitted, err := service.Submit(ctx, agent.TaskRequest{Tool: "send_arbitrum_eth"})
	require.NoError(t, err)

	done, err := service.WaitUntilCompleted(ctx, submitted.ID, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, done.Status)
	assert.Equal(t, 3, done.Attempts)

	starts := executor.starts()
	require.Len(t, starts, 3)
	if gap := starts[1].Sub(starts[0]); gap < base {
		t.Fatalf("第二次尝试过早: 间隔 %s，至少应为 %s", gap, base)
	}
	if gap := starts[2].Sub(starts[1]); gap < 4*base {
		t.Fatalf("第三次尝试过早: 间隔 %s，至少应为 %s", gap, 4*base)
	}
}

func TestProcessorRetryDelay(t *testing.T) {
	p := NewProcessor(nil, nil, nil, nil, WithRetryBackoff(time.Second, 10*time.Second))
	cases := map[int]time.Duration{
		0:       0,
		1:       time.Second,
		2:       4 * time.Second,
		3:       9 * time.Second,
		4:       10 * time.Second,
		1 << 40: 10 * time.Second,
	}
	for attempts, want := range cases {
		if got := p.retryDelay(attempts); got != want {
			t.Fatalf("attempts=%d: want %s, got %s", attempts, want, got)
		}
	}

	immediate := NewProcessor(nil, nil, nil, nil, WithRetryBackoff(0, 0))
	if got := immediate.retryDelay(5); got != 0 {
		t.Fatalf("expected no delay, got %s", got)
	}
}

func TestProcessorBackoffHonoursCancellation(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(4)
	require.NoError(t, store.Create(context.Background(), &Task{ID: "slow-retry", Tool: "send_arbitrum_eth", Status: StatusPending, MaxRetries: 3}))
	executor := &fakeAgent{fail: func(int32) error {
		return xerrors.New(web3.CodeNetworkUnavailable, "refused", xerrors.WithRetryable(true))
	}}
	p := NewProcessor(executor, store, queue, queue, WithRetryBackoff(time.Hour, time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := p.handle(ctx, "slow-retry")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	got, err := store.Get(context.Background(), "slow-retry")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	select {
	case id := <-queue.ch:
		t.Fatalf("task %s must not be republished after cancellation", id)
	default:
	}
}

func TestServiceSubmitValidation(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(4)
	service := NewService(store, queue, 3, WithToolLookup(func(name string) bool { return name == "send_arbitrum_eth" }))
	ctx := context.Background()

	_, err := service.Submit(ctx, agent.TaskRequest{})
	assert.True(t, IsTaskError(err, CodeTaskValidation))

	_, err = service.Submit(ctx, agent.TaskRequest{Tool: "unknown"})
	assert.True(t, IsTaskError(err, CodeTaskValidation))

	_, err = service.Submit(ctx, agent.TaskRequest{Tool: "send_arbitrum_eth", Input: []byte(`{broken`)})
	assert.True(t, IsTaskError(err, CodeTaskValidation))

	first, err := service.Submit(ctx, agent.TaskRequest{ID: "same", Tool: "send_arbitrum_eth", Input: []byte(`"0xabc"`)})
	require.NoError(t, err)
	second, err := service.Submit(ctx, agent.TaskRequest{ID: "same", Tool: "send_arbitrum_eth"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.JSONEq(t, `"0xabc"`, string(second.Input))

	stats, err := service.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestServiceSubmitPublishFailureMarksTaskFailed(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(4)
	require.NoError(t, queue.Close())
	service := NewService(store, queue, 3)

	_, err := service.Submit(context.Background(), agent.TaskRequest{ID: "p1", Tool: "send_arbitrum_eth"})
	require.Error(t, err)
	assert.True(t, IsTaskError(err, CodeTaskPublish))

	task, err := store.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, string(CodeTaskPublish), task.ErrorCode)
}
