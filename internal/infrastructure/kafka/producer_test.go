package kafka

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestNewProducer_WriterConfig(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"})
	defer p.Close()

	assert.LessOrEqual(t, p.writer.BatchTimeout, 10*time.Millisecond)
	assert.NotZero(t, p.writer.BatchTimeout)
	assert.Equal(t, kafka.RequireOne, p.writer.RequiredAcks)
	assert.IsType(t, &kafka.Hash{}, p.writer.Balancer)
}
