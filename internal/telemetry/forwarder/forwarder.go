// Package forwarder moves auth events from the Kafka topic into Loki.
package forwarder

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageReader is the subset of *kafka.Reader used by the forwarder.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Sink receives raw event JSON.
type Sink interface {
	PushEventJSON(ctx context.Context, rawJSON []byte) error
}

// NewReader returns a consumer-group reader for topic.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})
}

// Forwarder copies every message to the sink and commits it afterwards. A failed push is logged and the
// message is still committed; Loki is a convenience view, the audit table is the record.
type Forwarder struct {
	reader MessageReader
	sink   Sink
	log    *zap.Logger
}

func New(reader MessageReader, sink Sink, log *zap.Logger) *Forwarder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Forwarder{reader: reader, sink: sink, log: log}
}

// Run forwards until ctx is cancelled.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		msg, err := f.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			f.log.Warn("kafka read failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		pushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := f.sink.PushEventJSON(pushCtx, msg.Value); err != nil {
			f.log.Warn("loki push failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
		cancel()
		if err := f.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			f.log.Warn("kafka commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}
