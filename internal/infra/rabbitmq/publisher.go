package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/vikrammonish02/EMprion/internal/domain/entity"
	"github.com/vikrammonish02/EMprion/internal/domain/port"
)

type Publisher struct {
	channel  *amqp.Channel
	exchange string
}

func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	return &Publisher{channel: ch, exchange: exchange}, nil
}

func (p *Publisher) Close() error {
	return p.channel.Close()
}

func (p *Publisher) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	msg.DeliveryMode = amqp.Persistent
	msg.Timestamp = time.Now().UTC()
	msg.Headers = injectTrace(ctx, msg.Headers)
	if err := p.channel.PublishWithContext(ctx, exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("publish to %q: %w", key, err)
	}
	return nil
}

// ResultPublisher publishes finished analyses, reports and rejections alike.
type ResultPublisher struct {
	pub        *Publisher
	routingKey string
}

func NewResultPublisher(pub *Publisher, routingKey string) *ResultPublisher {
	return &ResultPublisher{pub: pub, routingKey: routingKey}
}

func (rp *ResultPublisher) PublishResult(ctx context.Context, result entity.AnalysisResultMessage) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return rp.pub.publish(ctx, rp.pub.exchange, rp.routingKey, resultPublishing(result, body))
}

func resultPublishing(result entity.AnalysisResultMessage, body []byte) amqp.Publishing {
	return amqp.Publishing{
		ContentType:   "application/json",
		Type:          string(result.Status),
		MessageId:     result.JobID.String(),
		CorrelationId: result.JobID.String(),
		Body:          body,
	}
}

type DLQPublisher struct {
	pub   *Publisher
	queue string
}

func NewDLQPublisher(pub *Publisher, dlqQueue string) *DLQPublisher {
	return &DLQPublisher{pub: pub, queue: dlqQueue}
}

func (dp *DLQPublisher) PublishToDLQ(ctx context.Context, letter port.DeadLetter) error {
	return dp.pub.publish(ctx, "", dp.queue, deadLetterPublishing(letter))
}

func deadLetterPublishing(letter port.DeadLetter) amqp.Publishing {
	headers := amqp.Table{"x-dlq-reason": letter.Reason}
	if letter.JobID != "" {
		headers["x-job-id"] = letter.JobID
		headers["x-attempt"] = strconv.Itoa(letter.Attempt)
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: letter.JobID,
		Body:          letter.Body,
		Headers:       headers,
	}
}
