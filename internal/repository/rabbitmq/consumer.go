package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"franklin/internal/domain/entity"
	"franklin/internal/domain/usecase"
)

type outcome int

const (
	outcomeAck outcome = iota
	outcomeRequeue
	outcomeDrop
)

// JobConsumer runs every job published by the gateway.
type JobConsumer struct {
	channel  *amqp.Channel
	queue    string
	runner   usecase.Runner
	logger   *log.Logger
	prefetch int
	wg       sync.WaitGroup
}

func NewJobConsumer(conn *amqp.Connection, exchange, routingKey, queue string, prefetch int, runner usecase.Runner, logger *log.Logger) (*JobConsumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if prefetch <= 0 {
		prefetch = 1
	}

	consumer := newJobConsumer(runner, logger)
	consumer.channel = ch
	consumer.queue = queue
	consumer.prefetch = prefetch

	if err := declareExchange(ch, exchange); err != nil {
		return nil, err
	}

	_, err = ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}

	if err := ch.QueueBind(
		queue,
		routingKey,
		exchange,
		false,
		nil,
	); err != nil {
		return nil, err
	}

	if err := ch.Qos(consumer.prefetch, 0, false); err != nil {
		return nil, err
	}

	return consumer, nil
}

func newJobConsumer(runner usecase.Runner, logger *log.Logger) *JobConsumer {
	if logger == nil {
		logger = log.Default()
	}
	return &JobConsumer{runner: runner, logger: logger}
}

// Start consumes until ctx is done, then waits for in-flight jobs to return.
func (c *JobConsumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}
	defer c.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			c.logger.Println("JobConsumer shutting down")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Println("RabbitMQ channel closed")
				return nil
			}

			c.wg.Add(1)
			go func(msg amqp.Delivery) {
				defer c.wg.Done()
				c.settle(msg, c.handle(context.WithoutCancel(ctx), msg.Body))
			}(msg)
		}
	}
}

func (c *JobConsumer) settle(msg amqp.Delivery, o outcome) {
	var err error
	switch o {
	case outcomeAck:
		err = msg.Ack(false)
	case outcomeRequeue:
		err = msg.Nack(false, true)
	case outcomeDrop:
		err = msg.Nack(false, false)
	}
	if err != nil {
		c.logger.Printf("settle delivery %d: %v", msg.DeliveryTag, err)
	}
}

// handle runs one delivery. Stage failures are already recorded on the job,
// so only a job that could not be loaded goes back on the queue.
func (c *JobConsumer) handle(ctx context.Context, body []byte) outcome {
	var msg entity.JobCreatedMessage
	if err := json.Unmarshal(body, &msg); err != nil || msg.JobID == "" {
		c.logger.Printf("drop malformed job message: %v", err)
		return outcomeDrop
	}

	err := c.runner.Run(ctx, msg.JobID)
	switch {
	case err == nil:
		return outcomeAck
	case errors.Is(err, usecase.ErrJobNotLoaded):
		c.logger.Printf("[JOB %s] requeue: %v", msg.JobID, err)
		return outcomeRequeue
	case errors.Is(err, entity.ErrJobNotFound):
		c.logger.Printf("[JOB %s] no longer exists, dropping", msg.JobID)
		return outcomeAck
	default:
		c.logger.Printf("[JOB %s] finished with error: %v", msg.JobID, err)
		return outcomeAck
	}
}
