package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MessageHandler processes one analysis request body. A nil return acks the delivery.
type MessageHandler func(ctx context.Context, body []byte) error

// ErrDeliveriesClosed is returned by Start when the broker closes the delivery channel.
var ErrDeliveriesClosed = errors.New("rabbitmq: delivery channel closed")

const maxBackoff = 60 * time.Second

type Consumer struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	queue       string
	workerCount int
	baseDelay   time.Duration
	handler     MessageHandler
	logger      *zap.Logger
}

const (
	AnalysisRoutingKey = "embryo.analysis.request"
	ResultRoutingKey   = "embryo.analysis.result"
)

type ConsumerConfig struct {
	URL         string
	Queue       string
	Exchange    string
	DLQ         string
	ResultQueue string
	Prefetch    int
	WorkerCount int
	BaseDelayMs int
}

// bindings lists the exchange bindings; the DLQ is written to directly and stays unbound.
func (cfg ConsumerConfig) bindings() map[string]string {
	return map[string]string{
		cfg.Queue:       AnalysisRoutingKey,
		cfg.ResultQueue: ResultRoutingKey,
	}
}

func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("worker count must be at least 1, got %d", cfg.WorkerCount)
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Consumer{
		conn:        conn,
		channel:     ch,
		queue:       cfg.Queue,
		workerCount: cfg.WorkerCount,
		baseDelay:   time.Duration(cfg.BaseDelayMs) * time.Millisecond,
		handler:     handler,
		logger:      logger,
	}, nil
}

func declareTopology(ch *amqp.Channel, cfg ConsumerConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, q := range []string{cfg.Queue, cfg.DLQ, cfg.ResultQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	for queue, key := range cfg.bindings() {
		if err := ch.QueueBind(queue, key, cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", queue, key, err)
		}
	}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

// Start runs the worker pool until ctx is cancelled or the broker closes the delivery
// channel. In-flight deliveries finish before it returns.
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(
		ctx,
		c.queue,
		"",
		false, // autoAck=false
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.logger.Info("starting worker pool",
		zap.Int("workers", c.workerCount),
		zap.String("queue", c.queue),
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.workerCount; i++ {
		g.Go(func() error {
			return c.worker(gctx, i, deliveries)
		})
	}

	err = g.Wait()
	if ctx.Err() != nil {
		c.logger.Info("context cancelled, workers drained")
		return nil
	}
	return err
}

func (c *Consumer) worker(ctx context.Context, id int, deliveries <-chan amqp.Delivery) error {
	log := c.logger.With(zap.Int("worker_id", id))
	log.Info("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				log.Warn("delivery channel closed")
				return ErrDeliveriesClosed
			}
			c.processDelivery(ctx, d, log)
		}
	}
}

func (c *Consumer) processDelivery(ctx context.Context, d amqp.Delivery, log *zap.Logger) {
	ctx = extractTrace(ctx, d.Headers)
	ctx, span := otel.Tracer("rabbitmq").Start(ctx, "consume "+c.queue,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", c.queue),
			attribute.String("messaging.message.id", d.MessageId),
			attribute.Bool("messaging.rabbitmq.redelivered", d.Redelivered),
		),
	)
	defer span.End()

	err := c.handler(ctx, d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	span.SetStatus(codes.Error, err.Error())
	attempt := c.getAttemptFromHeaders(d)
	delay := c.calculateBackoff(attempt)
	log.Warn("message processing failed, requeueing after backoff",
		zap.Error(err),
		zap.Uint64("delivery_tag", d.DeliveryTag),
		zap.Bool("redelivered", d.Redelivered),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
	)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		_ = d.Nack(false, true)
	case <-ctx.Done():
		// Shutting down: requeue now so the job survives the restart.
		_ = d.Nack(false, true)
	}
}

func (c *Consumer) getAttemptFromHeaders(d amqp.Delivery) int {
	return max(deathCount(d.Headers), 1)
}

func (c *Consumer) calculateBackoff(attempt int) time.Duration {
	return backoff(c.baseDelay, attempt)
}

func backoff(base time.Duration, attempt int) time.Duration {
	delay := base * time.Duration(math.Pow(2, float64(max(attempt, 1)-1)))
	if delay > maxBackoff || delay < 0 {
		delay = maxBackoff
	}
	return delay
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
