// Package events delivers task events to observers. Emit never blocks:
// events go into a bounded buffer and are dropped (and counted) when it is
// full. A single Run loop fans them out to per-task subscribers and to
// forwarders such as Kafka.
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tide-labs/tide/internal/domain"
	"github.com/tide-labs/tide/internal/infra/metrics"
)

// Forwarder exports events outside the process.
type Forwarder interface {
	Forward(ctx context.Context, evt domain.Event) error
	Close() error
}

// Config sizes the hub buffers.
type Config struct {
	Buffer           int // hub intake
	SubscriberBuffer int // per subscriber
}

// DefaultConfig returns the standard buffer sizes.
func DefaultConfig() Config {
	return Config{Buffer: 1024, SubscriberBuffer: 256}
}

type subscriber struct {
	ch   chan domain.Event
	once sync.Once
}

// Hub is the process-wide event sink.
type Hub struct {
	in         chan domain.Event
	subBuf     int
	forwarders []Forwarder
	log        *zap.Logger

	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

// NewHub creates a hub. Call Run to start delivery.
func NewHub(cfg Config, logger *zap.Logger, forwarders ...Forwarder) *Hub {
	def := DefaultConfig()
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = def.SubscriberBuffer
	}
	return &Hub{
		in:         make(chan domain.Event, cfg.Buffer),
		subBuf:     cfg.SubscriberBuffer,
		forwarders: forwarders,
		log:        logger,
		subs:       make(map[string]map[*subscriber]struct{}),
	}
}

// Emit queues evt for delivery, dropping it if the buffer is full.
func (h *Hub) Emit(evt domain.Event) {
	select {
	case h.in <- evt:
		metrics.EventsEmitted.WithLabelValues(string(evt.Kind)).Inc()
	default:
		metrics.EventsDropped.WithLabelValues("hub").Inc()
	}
}

// Subscribe returns a channel of taskID's events and a cancel func that
// unsubscribes and closes the channel.
func (h *Hub) Subscribe(taskID string) (<-chan domain.Event, func()) {
	s := &subscriber{ch: make(chan domain.Event, h.subBuf)}

	h.mu.Lock()
	set, ok := h.subs[taskID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[taskID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[taskID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, taskID)
			}
		}
		s.once.Do(func() { close(s.ch) })
	}
	return s.ch, cancel
}

// Subscribers is the number of live subscriptions for taskID.
func (h *Hub) Subscribers(taskID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[taskID])
}

// Run delivers events until ctx ends, then flushes what is already queued
// and closes the forwarders.
func (h *Hub) Run(ctx context.Context) {
	defer h.closeForwarders()
	for {
		select {
		case evt := <-h.in:
			h.deliver(ctx, evt)
		case <-ctx.Done():
			for {
				select {
				case evt := <-h.in:
					h.deliver(context.Background(), evt)
				default:
					return
				}
			}
		}
	}
}

func (h *Hub) deliver(ctx context.Context, evt domain.Event) {
	h.mu.RLock()
	for s := range h.subs[evt.TaskID] {
		select {
		case s.ch <- evt:
		default:
			metrics.EventsDropped.WithLabelValues("subscriber").Inc()
		}
	}
	h.mu.RUnlock()

	for _, f := range h.forwarders {
		if err := f.Forward(ctx, evt); err != nil {
			metrics.EventsDropped.WithLabelValues("forwarder").Inc()
			h.log.Warn("forward event", zap.String("task", evt.TaskID), zap.Error(err))
		}
	}
}

func (h *Hub) closeForwarders() {
	for _, f := range h.forwarders {
		if err := f.Close(); err != nil {
			h.log.Warn("close forwarder", zap.Error(err))
		}
	}
}
