package events

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"creatoros-backend/internal/logger"
	"creatoros-backend/internal/metrics"
)

var (
	ErrQueueFull       = errors.New("event queue full")
	ErrPublisherClosed = errors.New("event publisher closed")
)

type AsyncOptions struct {
	Workers   int
	QueueSize int           // per worker
	Timeout   time.Duration // per delivery
}

type queuedEvent struct {
	topic string
	key   string
	event any
}

// AsyncPublisher hands events to background workers so callers never wait on
// the broker. Events with the same key go to the same worker and are
// delivered in the order they were published.
type AsyncPublisher struct {
	next    Publisher
	timeout time.Duration
	queues  []chan queuedEvent
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewAsyncPublisher(next Publisher, opts AsyncOptions) *AsyncPublisher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	p := &AsyncPublisher{
		next:    next,
		timeout: opts.Timeout,
		queues:  make([]chan queuedEvent, opts.Workers),
	}
	for i := range p.queues {
		p.queues[i] = make(chan queuedEvent, opts.QueueSize)
		p.wg.Add(1)
		go p.run(p.queues[i])
	}
	return p
}

// Publish enqueues the event without blocking. ctx is not used for delivery,
// which outlives the caller.
func (p *AsyncPublisher) Publish(ctx context.Context, topic, key string, event any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	select {
	case p.queues[p.shard(key)] <- queuedEvent{topic: topic, key: key, event: event}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events, drains the queues and closes the next publisher.
func (p *AsyncPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	p.wg.Wait()
	return p.next.Close()
}

func (p *AsyncPublisher) shard(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.queues)))
}

func (p *AsyncPublisher) run(queue <-chan queuedEvent) {
	defer p.wg.Done()
	for e := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.next.Publish(ctx, e.topic, e.key, e.event)
		cancel()
		if err != nil {
			metrics.RecordEventPublishFailure()
		}
		logger.ExternalServiceResult("events", "deliver", err, "topic", e.topic, "key", e.key)
	}
}
