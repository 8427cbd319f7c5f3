package rabbitmq

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestBackoff(t *testing.T) {
	base := 500 * time.Millisecond
	assert.Equal(t, base, backoff(base, 0))
	assert.Equal(t, base, backoff(base, 1))
	assert.Equal(t, 2*time.Second, backoff(base, 3))
	assert.Equal(t, 60*time.Second, backoff(base, 20))
}

func TestAttemptFromHeaders(t *testing.T) {
	c := &Consumer{baseDelay: time.Second, logger: zap.NewNop()}

	assert.Equal(t, 1, c.getAttemptFromHeaders(amqp.Delivery{}))
	assert.Equal(t, 2, c.getAttemptFromHeaders(amqp.Delivery{Headers: amqp.Table{
		"x-death": []interface{}{amqp.Table{}, amqp.Table{}},
	}}))
	assert.Equal(t, 3, c.getAttemptFromHeaders(amqp.Delivery{Headers: amqp.Table{
		"x-death": []interface{}{amqp.Table{"count": int64(3), "queue": "embryo.analysis"}},
	}}))
	assert.Equal(t, 4*time.Second, c.calculateBackoff(3))
}

func TestConsumerBindings(t *testing.T) {
	cfg := ConsumerConfig{Queue: "embryo.analysis", ResultQueue: "embryo.results", DLQ: "embryo.analysis.dlq"}
	assert.Equal(t, map[string]string{
		"embryo.analysis": AnalysisRoutingKey,
		"embryo.results":  ResultRoutingKey,
	}, cfg.bindings())
}

func TestNewConsumerRejectsEmptyPool(t *testing.T) {
	_, err := NewConsumer(ConsumerConfig{URL: "amqp://unused", WorkerCount: 0}, nil, zap.NewNop())
	assert.ErrorContains(t, err, "worker count")
}
