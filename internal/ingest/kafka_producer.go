// Package ingest moves the raw driver location stream through Kafka so the
// HTTP tier can accept pings without blocking on downstream stores.
package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/horlami228/blaze/internal/models"
)

// PingEnvelope is the wire shape for one driver location ping, keyed by
// the driver's user id so one driver's pings stay in one partition.
type PingEnvelope struct {
	UserID string              `json:"user_id"`
	Ping   models.LocationPing `json:"ping"`
	SentAt time.Time           `json:"sent_at"`
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &Producer{writer: w}
}

func (p *Producer) PublishPing(userID string, ping models.LocationPing) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, err := json.Marshal(PingEnvelope{UserID: userID, Ping: ping, SentAt: time.Now()})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(userID), Value: b})
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
