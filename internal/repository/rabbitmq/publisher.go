package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"franklin/internal/domain/entity"
	"franklin/pkg/utils"
)

const (
	DefaultExchange   = "franklin.exchange"
	DefaultRoutingKey = "questions.created"
	DefaultQueue      = "franklin.questions"
)

type RabbitPublisher struct {
	mu         sync.Mutex
	channel    *amqp.Channel
	exchange   string
	routingKey string
	now        func() time.Time
}

func NewRabbitPublisher(conn *amqp.Connection, exchange, routingKey string) (*RabbitPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	if err := declareExchange(ch, exchange); err != nil {
		return nil, err
	}

	return &RabbitPublisher{
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
		now:        time.Now,
	}, nil
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(
		exchange,
		"topic",
		true, // durable
		false,
		false,
		false,
		nil,
	)
}

func (p *RabbitPublisher) Publish(ctx context.Context, body json.RawMessage) error {
	// amqp channels are not safe for concurrent publishes
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(ctx,
		p.exchange,
		p.routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Dispatch hands a freshly written job to whichever worker consumes the queue.
func (p *RabbitPublisher) Dispatch(ctx context.Context, job *entity.Job) error {
	body, err := jobCreatedBody(job, p.now())
	if err != nil {
		return err
	}
	if err := p.Publish(ctx, body); err != nil {
		return fmt.Errorf("publish job %s: %w", job.ID, err)
	}
	return nil
}

func (p *RabbitPublisher) Close() error {
	return p.channel.Close()
}

func jobCreatedBody(job *entity.Job, now time.Time) (json.RawMessage, error) {
	return utils.ToRawMessage(entity.JobCreatedMessage{
		JobID:    job.ID,
		Question: job.Question,
		QueuedAt: now.UTC(),
	})
}
