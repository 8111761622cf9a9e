package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/omnifeed/feed-export-service/config"
)

// FeedCompletedEvent is published after every finished run so downstream
// feed consumers can pick up the file without polling the export directory.
type FeedCompletedEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	RunID      string    `json:"run_id"`
	ExportType string    `json:"export_type"`
	File       string    `json:"file"`
	Rows       int64     `json:"rows"`
	Status     string    `json:"status"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// Producer publishes feed lifecycle events. A nil Producer is a valid no-op;
// NewProducer returns nil when no brokers are configured.
type Producer struct {
	writer *kafka.Writer
	log    *zap.Logger
}

func NewProducer(cfg config.KafkaConfig, log *zap.Logger) *Producer {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
		log: log,
	}
}

func (p *Producer) FeedCompleted(ctx context.Context, runID, exportType, path string, rows int64, status string, took time.Duration) error {
	if p == nil {
		return nil
	}

	event := FeedCompletedEvent{
		EventID:    uuid.NewString(),
		EventType:  "FeedCompleted",
		RunID:      runID,
		ExportType: exportType,
		File:       path,
		Rows:       rows,
		Status:     status,
		DurationMS: took.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}

	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	p.log.Debug("publishing feed event", zap.String("run_id", runID), zap.String("status", status))
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(runID),
		Value: value,
	})
}

func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
