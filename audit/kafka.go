// Package audit publishes challenge lifecycle events.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cardinal-app/magiclink"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink implements magiclink.EventSink using segmentio/kafka-go.
// Events are JSON encoded and keyed by username so one user's events stay
// ordered within a partition.
type KafkaSink struct {
	writer messageWriter
}

// NewKafkaSink creates a sink writing to topic. Call Close when shutting
// down. The writer's internal errors go to logger; failed writes are
// returned from Emit and left to the caller to report.
func NewKafkaSink(brokers []string, topic string, logger *zap.Logger) *KafkaSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return newKafkaSink(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		ErrorLogger:  kafka.LoggerFunc(logger.Sugar().Errorf),
	})
}

func newKafkaSink(w messageWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}

// Emit writes e with a short timeout so a slow broker does not hold up
// sign-in.
func (s *KafkaSink) Emit(ctx context.Context, e magiclink.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	err = s.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(e.Username),
		Value: payload,
		Time:  e.Time,
	})
	if err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close closes the writer. Safe to call on a nil sink.
func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
