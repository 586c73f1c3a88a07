package events

import (
	"context"
	"encoding/json"
	"time"

	"medallion/internal/observability"
	"medallion/pkg/errors"
	"medallion/pkg/models"

	"github.com/segmentio/kafka-go"
)

// Event types emitted for each run
const (
	TypeRunStarted   = "run.started"
	TypeRunSucceeded = "run.succeeded"
	TypeRunFailed    = "run.failed"
	TypeStageDone    = "stage.finished"
)

// Event is one operational signal of a pipeline run
type Event struct {
	Type       string              `json:"type"`
	RunID      string              `json:"run_id"`
	SnapshotID string              `json:"snapshot_id,omitempty"`
	Time       time.Time           `json:"time"`
	Stage      *models.StageReport `json:"stage,omitempty"`
	Result     *models.RunResult   `json:"result,omitempty"`
}

// Sink receives run events
type Sink interface {
	Emit(ctx context.Context, event Event) error
	Close() error
}

// LogSink writes events as log lines
type LogSink struct {
	logger *observability.Logger
}

// NewLogSink creates a sink over logger
func NewLogSink(logger *observability.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit logs the event at info level
func (s *LogSink) Emit(ctx context.Context, event Event) error {
	fields := map[string]interface{}{
		"event":  event.Type,
		"run_id": event.RunID,
	}
	if event.SnapshotID != "" {
		fields["snapshot_id"] = event.SnapshotID
	}
	if event.Stage != nil {
		fields["stage"] = event.Stage.Stage
		fields["rows_in"] = event.Stage.RowsIn
		fields["rows_out"] = event.Stage.RowsOut
		fields["dropped"] = event.Stage.Dropped
		fields["repaired"] = event.Stage.Repaired
		fields["duration_ms"] = event.Stage.Duration.Milliseconds()
	}
	if event.Result != nil {
		fields["status"] = string(event.Result.Status)
		if event.Result.ErrorCode != "" {
			fields["error_code"] = event.Result.ErrorCode
		}
	}
	s.logger.InfoWithFields("pipeline event", fields)
	return nil
}

// Close is a no-op
func (s *LogSink) Close() error {
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events as JSON messages keyed by run id
type KafkaSink struct {
	writer messageWriter
	topic  string
}

// NewKafkaSink creates a producer for topic on brokers
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.ConfigError("kafka brokers and topic are required", "events.kafka")
	}
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
		topic: topic,
	}, nil
}

// Emit writes the event to Kafka
func (s *KafkaSink) Emit(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to encode event")
	}
	msg := kafka.Message{
		Key:   []byte(event.RunID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, errors.ErrCodeConnectionFailed, "failed to publish event").
			WithContext("topic", s.topic).
			WithContext("event", event.Type).
			AsRecoverable()
	}
	return nil
}

// Close flushes and closes the producer
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// Multi fans an event out to several sinks. Delivery failures are logged and
// never fail the run.
type Multi struct {
	sinks  []Sink
	logger *observability.Logger
}

// NewMulti combines sinks
func NewMulti(logger *observability.Logger, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, logger: logger}
}

// Emit forwards event to every sink
func (m *Multi) Emit(ctx context.Context, event Event) error {
	for _, s := range m.sinks {
		if err := s.Emit(ctx, event); err != nil {
			m.logger.WarnWithFields("event delivery failed", map[string]interface{}{
				"event":      event.Type,
				"error_code": string(errors.GetErrorCode(err)),
				"error":      err.Error(),
			})
		}
	}
	return nil
}

// Close closes every sink and returns the first error
func (m *Multi) Close() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
