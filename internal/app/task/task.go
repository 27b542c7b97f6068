package task

import (
	"sync"
	"time"

	"github.com/tide-labs/tide/internal/domain"
	"github.com/tide-labs/tide/internal/infra/metrics"
)

// Task is one trading task. mu guards state, running and keys; the rest is
// fixed at creation.
type Task struct {
	id         string
	groupID    string
	chain      domain.Chain
	workersCnt uint32
	cfg        domain.TradeConfig
	exec       Executor
	createdAt  time.Time

	mu      sync.Mutex
	state   domain.TaskState
	running uint32
	keys    *KeyPool
}

func newTask(id string, spec domain.TaskSpec, group domain.WalletGroup, exec Executor) *Task {
	return &Task{
		id:         id,
		groupID:    spec.WalletGroupID,
		chain:      group.Chain,
		workersCnt: spec.WorkersCnt,
		cfg:        spec.TradeConfig,
		exec:       exec,
		createdAt:  time.Now(),
		state:      domain.TaskCreated,
		keys:       NewKeyPool(group.Keys),
	}
}

// Info returns a consistent snapshot of the task.
func (t *Task) Info() domain.TaskInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return domain.TaskInfo{
		ID:             t.id,
		WalletGroupID:  t.groupID,
		Chain:          t.chain,
		WorkersCnt:     t.workersCnt,
		RunningWorkers: t.running,
		State:          t.state,
		Wallets:        t.keys.Len(),
		LeasedKeys:     t.keys.Leased(),
		CreatedAt:      t.createdAt,
		TradeConfig:    t.cfg,
	}
}

// setState applies a lifecycle edge. Caller holds mu.
func (t *Task) setState(to domain.TaskState) bool {
	if !domain.CanTransition(t.state, to) {
		return false
	}
	t.state = to
	metrics.TaskTransitions.WithLabelValues(string(to)).Inc()
	return true
}

// start moves Created/Stopped to Running and accounts for n new workers.
// It reports how many workers the caller must spawn.
func (t *Task) start() (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case domain.TaskRunning:
		return 0, nil
	case domain.TaskStopping:
		return 0, domain.ErrTaskStopping
	}
	t.setState(domain.TaskRunning)
	t.running += t.workersCnt
	metrics.WorkersRunning.Add(float64(t.workersCnt))
	return t.workersCnt, nil
}

// stop moves Running to Stopping. Any other state is left untouched.
func (t *Task) stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != domain.TaskRunning {
		return false
	}
	return t.setState(domain.TaskStopping)
}

// removable reports whether the task may be deleted, and if not, why.
func (t *Task) removable() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Removable() {
		return nil
	}
	if t.state == domain.TaskStopping {
		return domain.ErrTaskStopping
	}
	return domain.ErrTaskRunning
}

// poll reads the state for a worker at the top of its loop. When the task
// is Stopping the worker checks out in the same critical section: left is
// the remaining worker count and stopped is true for the last one out.
func (t *Task) poll() (state domain.TaskState, left uint32, stopped bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != domain.TaskStopping {
		return t.state, t.running, false
	}
	if t.running > 0 {
		t.running--
		metrics.WorkersRunning.Dec()
	}
	if t.running == 0 {
		t.setState(domain.TaskStopped)
		return domain.TaskStopping, 0, true
	}
	return domain.TaskStopping, t.running, false
}

// Lease is a wallet key held by one worker for one cycle.
// Caller MUST call Release() (use defer).
type Lease struct {
	Key  domain.PrivateKey
	task *Task
	once sync.Once
}

// Release returns the key to its task's pool. Safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.task.mu.Lock()
		l.task.keys.Release(l.Key)
		l.task.mu.Unlock()
		metrics.KeysLeased.Dec()
	})
}

// lease takes a free key without blocking.
func (t *Task) lease() (*Lease, bool) {
	t.mu.Lock()
	key, ok := t.keys.Take()
	t.mu.Unlock()
	if !ok {
		return nil, false
	}
	metrics.KeysLeased.Inc()
	return &Lease{Key: key, task: t}, true
}
