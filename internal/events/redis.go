package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisTimeout bounds a single PUBLISH.
	DefaultRedisTimeout = 2 * time.Second
	// DefaultRedisBuffer is how many events may wait for the worker.
	DefaultRedisBuffer = 256
)

// RedisPublisher forwards events to a Redis pub/sub channel so observers
// outside this process can follow lifecycle changes. Publish only queues
// the event; one worker sends queued events in order.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	timeout time.Duration
	now     func() time.Time

	queue     chan Event
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewRedisPublisher creates a publisher for the given server and channel
// and starts its worker. Close stops it.
func NewRedisPublisher(addr, channel string) *RedisPublisher {
	return newRedisPublisher(addr, channel, DefaultRedisTimeout, DefaultRedisBuffer)
}

func newRedisPublisher(addr, channel string, timeout time.Duration, buffer int) *RedisPublisher {
	ctx, cancel := context.WithCancel(context.Background())
	p := &RedisPublisher{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			DialTimeout:  timeout,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
			MaxRetries:   -1,
		}),
		channel: channel,
		timeout: timeout,
		now:     time.Now,
		queue:   make(chan Event, buffer),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Ping checks that the server is reachable.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Publish queues the event without blocking. When the worker has fallen
// behind, or the publisher is closed, the event is dropped.
func (p *RedisPublisher) Publish(name string, payload any) {
	if p.ctx.Err() != nil {
		return
	}

	select {
	case p.queue <- Event{Name: name, Payload: payload, At: p.now().UTC()}:
	default:
		slog.Warn("redis event queue full, dropping event", "event", name, "channel", p.channel)
	}
}

func (p *RedisPublisher) run() {
	defer close(p.done)
	for {
		select {
		case <-p.ctx.Done():
			return
		case ev := <-p.queue:
			p.send(ev)
		}
	}
}

func (p *RedisPublisher) send(ev Event) {
	data, err := encode(ev)
	if err != nil {
		slog.Error("encoding event", "event", ev.Name, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		slog.Warn("publishing event to redis", "event", ev.Name, "channel", p.channel, "error", err)
	}
}

// Close stops the worker, abandoning queued events, and releases the
// client's connections. Closing the client interrupts a send in flight.
func (p *RedisPublisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.cancel()
		err = p.client.Close()
		<-p.done
	})
	return err
}

func encode(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}
