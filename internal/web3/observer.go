package web3

import "time"

// Observer 接收引擎的阶段耗时与最终结果，用于指标采集。
type Observer interface {
	ObserveStage(chain string, stage Stage, elapsed time.Duration)
	ObserveOutcome(outcome Outcome)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, Stage, time.Duration) {}
func (nopObserver) ObserveOutcome(Outcome)                    {}

// NopObserver 返回不做任何处理的 Observer。
func NopObserver() Observer {
	return nopObserver{}
}

// StageTimer 记录一次引擎执行中各阶段的耗时。
type StageTimer struct {
	chain    string
	observer Observer
	stage    Stage
	started  time.Time
}

// NewStageTimer 从校验阶段开始计时。
func NewStageTimer(chain string, observer Observer) *StageTimer {
	if observer == nil {
		observer = NopObserver()
	}
	return &StageTimer{chain: chain, observer: observer, stage: StageValidate, started: time.Now()}
}

// Enter 结束当前阶段并进入下一阶段。
func (t *StageTimer) Enter(next Stage) {
	now := time.Now()
	t.observer.ObserveStage(t.chain, t.stage, now.Sub(t.started))
	t.stage = next
	t.started = now
}

// Current 返回当前所处阶段。
func (t *StageTimer) Current() Stage {
	return t.stage
}

// Finish 结束计时并上报结果。
func (t *StageTimer) Finish(outcome Outcome) {
	t.observer.ObserveStage(t.chain, t.stage, time.Since(t.started))
	t.observer.ObserveOutcome(outcome)
}
