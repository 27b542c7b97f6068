// Package task runs trading tasks: a registry of tasks, each driving a set
// of concurrent workers that lease wallet keys and execute trade cycles.
//
// Lock order is registry → task. Workers never hold a task lock while
// taking the registry lock.
package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tide-labs/tide/internal/domain"
	"github.com/tide-labs/tide/internal/infra/metrics"
	"github.com/tide-labs/tide/internal/infra/trade"
)

// ErrClosed is returned by Start after Shutdown.
var ErrClosed = errors.New("task registry is shut down")

// Executor runs one trade cycle with a leased key. Implemented by
// trade.SolanaExecutor and trade.EVMExecutor.
type Executor interface {
	Execute(ctx context.Context, key domain.PrivateKey, c trade.Cycle) error
}

// Registry is the process-wide set of tasks.
type Registry struct {
	mu     sync.RWMutex
	tasks  map[string]*Task
	closed bool

	wallets   domain.WalletGroupStore
	executors map[domain.Chain]Executor
	sink      domain.EventSink
	log       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates an empty registry. executors maps each supported
// chain to its trade strategy.
func NewRegistry(wallets domain.WalletGroupStore, executors map[domain.Chain]Executor, sink domain.EventSink, logger *zap.Logger) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		tasks:     make(map[string]*Task),
		wallets:   wallets,
		executors: executors,
		sink:      sink,
		log:       logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Create registers a new task in the Created state. The task binds to the
// chain of its wallet group.
func (r *Registry) Create(spec domain.TaskSpec) (domain.TaskInfo, error) {
	if err := spec.Validate(); err != nil {
		return domain.TaskInfo{}, err
	}

	group, err := r.wallets.WalletGroup(spec.WalletGroupID)
	if err != nil {
		return domain.TaskInfo{}, err
	}
	if len(group.Keys) == 0 {
		return domain.TaskInfo{}, fmt.Errorf("%w: %s", domain.ErrEmptyWalletGroup, spec.WalletGroupID)
	}
	exec, ok := r.executors[group.Chain]
	if !ok {
		return domain.TaskInfo{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedChain, group.Chain)
	}
	if spec.Token.Chain != "" && spec.Token.Chain != group.Chain {
		return domain.TaskInfo{}, fmt.Errorf("%w: token is on %s, wallet group on %s",
			domain.ErrInvalidTaskSpec, spec.Token.Chain, group.Chain)
	}

	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[id]; exists {
		return domain.TaskInfo{}, fmt.Errorf("%w: %s", domain.ErrTaskExists, id)
	}
	t := newTask(id, spec, group, exec)
	r.tasks[id] = t
	metrics.TasksRegistered.Set(float64(len(r.tasks)))

	r.log.Info("task created",
		zap.String("task", id),
		zap.String("chain", string(group.Chain)),
		zap.Uint32("workers", spec.WorkersCnt),
		zap.Int("wallets", len(group.Keys)),
	)
	return t.Info(), nil
}

// Start transitions Created/Stopped → Running and spawns WorkersCnt workers.
// Starting a Running task is a no-op.
func (r *Registry) Start(id string) error {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrClosed
	}
	t, ok := r.tasks[id]
	if !ok {
		r.mu.RUnlock()
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	n, err := t.start()
	if err == nil && n > 0 {
		r.wg.Add(int(n))
	}
	r.mu.RUnlock()
	if err != nil {
		return err
	}

	for i := uint32(0); i < n; i++ {
		w := &worker{
			id:     i,
			taskID: t.id,
			chain:  t.chain,
			cfg:    t.cfg,
			exec:   t.exec,
			reg:    r,
			log:    r.log.With(zap.String("task", t.id), zap.Uint32("worker", i)),
		}
		go w.run(r.ctx)
	}
	if n > 0 {
		r.log.Info("task started", zap.String("task", id), zap.Uint32("workers", n))
	}
	return nil
}

// Stop requests a Running task to stop. Workers observe the request at the
// top of their next iteration; the last one out marks the task Stopped.
// Stopping a task that is not Running is a no-op.
func (r *Registry) Stop(id string) error {
	t, ok := r.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	if t.stop() {
		r.log.Info("task stopping", zap.String("task", id))
	}
	return nil
}

// Remove deletes a Created or Stopped task.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	if err := t.removable(); err != nil {
		return err
	}
	delete(r.tasks, id)
	metrics.TasksRegistered.Set(float64(len(r.tasks)))
	r.log.Info("task removed", zap.String("task", id))
	return nil
}

// Get returns a snapshot of one task.
func (r *Registry) Get(id string) (domain.TaskInfo, error) {
	t, ok := r.lookup(id)
	if !ok {
		return domain.TaskInfo{}, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	return t.Info(), nil
}

// List returns snapshots of all tasks, oldest first.
func (r *Registry) List() []domain.TaskInfo {
	r.mu.RLock()
	out := make([]domain.TaskInfo, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.Info())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Shutdown stops every Running task, interrupts sleeping and confirming
// workers, and waits for all workers to check out or ctx to end.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for _, t := range r.tasks {
		t.stop()
	}
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info("task registry shut down")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for workers: %w", ctx.Err())
	}
}

func (r *Registry) lookup(id string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	return t, ok
}

func (r *Registry) emit(evt domain.Event) {
	if r.sink != nil {
		r.sink.Emit(evt)
	}
}
