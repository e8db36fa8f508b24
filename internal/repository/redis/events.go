package redis

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"franklin/internal/domain/entity"
)

const (
	eventChannelPrefix = "franklin:events:"
	publishTimeout     = 2 * time.Second

	defaultPublishQueue = 64
)

func eventChannel(jobID string) string {
	return eventChannelPrefix + jobID
}

// EventPublisher sends progress events over redis pub/sub so that sockets
// held by any gateway process receive them. Publish only enqueues; a single
// goroutine does the redis round trips and events are dropped when it falls
// behind.
type EventPublisher struct {
	client *redis.Client
	logger *log.Logger

	queue chan outgoingEvent
	quit  chan struct{}
	once  sync.Once
}

type outgoingEvent struct {
	jobID string
	data  []byte
}

func NewEventPublisher(client *redis.Client, logger *log.Logger) *EventPublisher {
	return NewEventPublisherWithQueue(client, logger, defaultPublishQueue)
}

func NewEventPublisherWithQueue(client *redis.Client, logger *log.Logger, size int) *EventPublisher {
	if logger == nil {
		logger = log.Default()
	}
	if size <= 0 {
		size = defaultPublishQueue
	}
	p := &EventPublisher{
		client: client,
		logger: logger,
		queue:  make(chan outgoingEvent, size),
		quit:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish never blocks. Failures are logged and never returned.
func (p *EventPublisher) Publish(_ context.Context, event entity.ProgressEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Printf("[JOB %s] encode event: %v", event.JobID, err)
		return
	}

	select {
	case <-p.quit:
		return
	default:
	}
	select {
	case p.queue <- outgoingEvent{jobID: event.JobID, data: data}:
	default:
		p.logger.Printf("[JOB %s] event queue full, dropping %s update", event.JobID, event.Stage)
	}
}

func (p *EventPublisher) run() {
	for {
		select {
		case <-p.quit:
			return
		case ev := <-p.queue:
			p.send(ev)
		}
	}
}

func (p *EventPublisher) send(ev outgoingEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.client.Publish(ctx, eventChannel(ev.jobID), ev.data).Err(); err != nil {
		p.logger.Printf("[JOB %s] publish event: %v", ev.jobID, err)
	}
}

// Close stops the sender. Queued events are dropped.
func (p *EventPublisher) Close() {
	p.once.Do(func() { close(p.quit) })
}

type EventSink interface {
	Publish(ctx context.Context, event entity.ProgressEvent)
}

// EventRelay forwards every job event from redis into a local sink.
type EventRelay struct {
	client *redis.Client
	sink   EventSink
	logger *log.Logger
	ready  chan struct{}
}

func NewEventRelay(client *redis.Client, sink EventSink, logger *log.Logger) *EventRelay {
	if logger == nil {
		logger = log.Default()
	}
	return &EventRelay{client: client, sink: sink, logger: logger, ready: make(chan struct{})}
}

// Ready is closed once the pattern subscription is confirmed.
func (r *EventRelay) Ready() <-chan struct{} {
	return r.ready
}

func (r *EventRelay) Run(ctx context.Context) error {
	sub := r.client.PSubscribe(ctx, eventChannelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	close(r.ready)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				r.logger.Println("redis event subscription closed")
				return nil
			}

			var event entity.ProgressEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Printf("drop malformed event on %s: %v", msg.Channel, err)
				continue
			}
			if event.JobID == "" {
				event.JobID = strings.TrimPrefix(msg.Channel, eventChannelPrefix)
			}
			r.sink.Publish(ctx, event)
		}
	}
}
