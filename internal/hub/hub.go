package hub

import (
	"context"
	"errors"
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/DoyleJ11/queue-draft-backend/internal/engine"
	"github.com/DoyleJ11/queue-draft-backend/internal/lobby"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("hub: closed")

type HubMsg interface{ isHubMsg() }

// Factory builds the actor for a queue that does not exist yet.
type Factory func(ctx context.Context, id int) *lobby.Queue

type EnsureQueue struct {
	ID    int
	Reply chan *lobby.Queue
}

type GetQueue struct {
	ID    int
	Reply chan *lobby.Queue // nil queue when absent
}

type ListQueues struct {
	Reply chan []*lobby.Queue // ascending by id
}

type ShutdownHub struct{}

func (EnsureQueue) isHubMsg() {}
func (GetQueue) isHubMsg()    {}
func (ListQueues) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

// DefaultMaxQueueID bounds the ids GetOrCreate accepts. Queues are never
// removed, so the bound also caps memory and per-queue metric series.
const DefaultMaxQueueID = 100

type Option func(*Hub)

// WithMaxQueueID accepts queue ids 1..n.
func WithMaxQueueID(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxID = n
		}
	}
}

// Hub owns every queue actor. Queues are created on first use and never
// removed.
type Hub struct {
	maxID   int
	inbox   chan HubMsg
	queues  map[int]*lobby.Queue
	factory Factory
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewHub(parent context.Context, factory Factory, log *zap.Logger, opts ...Option) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		maxID:   DefaultMaxQueueID,
		inbox:   make(chan HubMsg, 64),
		queues:  make(map[int]*lobby.Queue),
		factory: factory,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureQueue:
				q := h.queues[msg.ID]
				if q == nil {
					q = h.factory(h.ctx, msg.ID)
					h.queues[msg.ID] = q
					h.log.Info("queue created", zap.Int("queue", msg.ID))
				}
				msg.Reply <- q

			case GetQueue:
				msg.Reply <- h.queues[msg.ID] // May be nil

			case ListQueues:
				ids := slices.Sorted(maps.Keys(h.queues))
				out := make([]*lobby.Queue, len(ids))
				for i, id := range ids {
					out[i] = h.queues[id]
				}
				msg.Reply <- out

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// shutdown stops every queue in parallel and waits for them.
func (h *Hub) shutdown() {
	var wg sync.WaitGroup
	for _, q := range h.queues {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Shutdown()
		}()
	}
	wg.Wait()
	clear(h.queues)
	h.cancel()
}

func ask[T any](ctx context.Context, h *Hub, msg HubMsg, reply chan T) (T, error) {
	var zero T
	select {
	case h.inbox <- msg:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-h.done:
		return zero, ErrClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-h.done:
		return zero, ErrClosed
	}
}

// GetOrCreate returns queue id, starting it in Filling if it is new.
func (h *Hub) GetOrCreate(ctx context.Context, id int) (*lobby.Queue, error) {
	if id < 1 || id > h.maxID {
		return nil, engine.ErrInvalidQueue
	}
	reply := make(chan *lobby.Queue, 1)
	return ask(ctx, h, EnsureQueue{ID: id, Reply: reply}, reply)
}

func (h *Hub) Get(ctx context.Context, id int) (*lobby.Queue, bool, error) {
	reply := make(chan *lobby.Queue, 1)
	q, err := ask(ctx, h, GetQueue{ID: id, Reply: reply}, reply)
	return q, q != nil, err
}

// List yields (id, snapshot) pairs in ascending id order. Snapshots are taken
// lazily as the sequence is consumed, and each range over the sequence
// starts afresh. Queues that stop mid-iteration are skipped.
func (h *Hub) List(ctx context.Context) iter.Seq2[int, lobby.Snapshot] {
	return func(yield func(int, lobby.Snapshot) bool) {
		reply := make(chan []*lobby.Queue, 1)
		queues, err := ask(ctx, h, ListQueues{Reply: reply}, reply)
		if err != nil {
			return
		}
		for _, q := range queues {
			snap, err := q.Snapshot(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if !yield(q.ID(), snap) {
				return
			}
		}
	}
}

// Shutdown stops every queue and the hub itself.
func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.done:
	}
	<-h.done
}

func (h *Hub) Done() <-chan struct{} { return h.done }
