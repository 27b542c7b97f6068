package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tide-labs/tide/internal/domain"
	"github.com/tide-labs/tide/internal/infra/metrics"
	"github.com/tide-labs/tide/internal/infra/trade"
)

const (
	// announceInterval is the shortest pause worth a "waiting" event.
	announceInterval = 5 * time.Second
	// idleBackoff bounds the retry rate of a worker that found every key busy.
	idleBackoff = 50 * time.Millisecond
)

// worker is one trading loop of a task. cfg is a snapshot taken at spawn.
type worker struct {
	id     uint32
	taskID string
	chain  domain.Chain
	cfg    domain.TradeConfig
	exec   Executor
	reg    *Registry
	log    *zap.Logger
}

func (w *worker) run(ctx context.Context) {
	defer w.reg.wg.Done()

	for {
		t, ok := w.reg.lookup(w.taskID)
		if !ok {
			w.log.Warn("task not found, worker exiting")
			return
		}

		state, left, stopped := t.poll()
		switch state {
		case domain.TaskCreated, domain.TaskStopped:
			return

		case domain.TaskStopping:
			w.emit(domain.EventStopped, fmt.Sprintf("Worker %d stop succeeded", w.id))
			if stopped {
				w.reg.emit(domain.NewTaskEvent(w.taskID, domain.EventStopped,
					fmt.Sprintf("task %s stop succeeded", w.taskID)))
				w.log.Info("task stopped")
			}
			w.log.Debug("worker checked out", zap.Uint32("left", left))
			return

		case domain.TaskRunning:
			traded, err := w.cycle(ctx, t)
			switch {
			case !traded:
			case err != nil:
				w.emit(domain.EventExecuted, err.Error())
				w.emit(domain.EventExecuted, "")
			default:
				w.emit(domain.EventExecuted, "trade cycle completed")
				w.emit(domain.EventExecuted, "")
			}

			interval := w.cfg.Interval()
			if !traded && interval < idleBackoff {
				interval = idleBackoff
			}
			if interval >= announceInterval {
				w.emit(domain.EventExecuted, fmt.Sprintf("waiting %d seconds for next trade ......", w.cfg.IntervalSecs))
			}
			w.sleep(ctx, interval)
		}
	}
}

// cycle leases a key and runs one trade. traded is false when no key was
// free; nothing is emitted for that case.
func (w *worker) cycle(ctx context.Context, t *Task) (traded bool, err error) {
	lease, ok := t.lease()
	if !ok {
		w.log.Debug("no private key for worker")
		metrics.LeaseMisses.WithLabelValues(string(w.chain)).Inc()
		return false, nil
	}
	defer lease.Release()
	traded = true

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("trade cycle panicked", zap.Any("panic", r))
			err = fmt.Errorf("trade cycle panicked: %v", r)
		}
		metrics.TradeCycleDuration.WithLabelValues(string(w.chain)).Observe(time.Since(start).Seconds())
		metrics.TradeCycles.WithLabelValues(string(w.chain), cycleResult(err)).Inc()
	}()

	err = w.exec.Execute(ctx, lease.Key, trade.Cycle{
		TaskID:   w.taskID,
		WorkerID: w.id,
		Config:   w.cfg,
		Narrate: func(msg string) {
			w.emit(domain.EventExecuted, msg)
		},
	})
	if err != nil && !errors.Is(err, domain.ErrSkipTrade) {
		w.log.Warn("trade cycle failed", zap.Error(err))
	}
	return traded, err
}

// sleep pauses for d; only process shutdown cuts it short.
func (w *worker) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *worker) emit(kind domain.EventKind, msg string) {
	w.reg.emit(domain.NewWorkerEvent(w.taskID, w.id, kind, msg))
}

func cycleResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrSkipTrade):
		return "skip"
	default:
		return "failed"
	}
}
