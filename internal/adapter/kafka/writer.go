package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/couchcryptid/rail-notice-etl/internal/config"
	"github.com/couchcryptid/rail-notice-etl/internal/domain"
)

// Writer produces one message per new version to the sink topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *zap.Logger
}

// changeMessage is the sink payload: the announcement identity, its current
// classification and the version that was just recorded.
type changeMessage struct {
	ID            string                `json:"id"`
	Title         string                `json:"title"`
	PublishDate   string                `json:"publish_date"`
	Outcome       domain.Outcome        `json:"outcome"`
	VersionIndex  int                   `json:"version_index"`
	Category      domain.Category       `json:"category"`
	EventGroupID  string                `json:"event_group_id"`
	ScrapedAt     time.Time             `json:"scraped_at"`
	ContentHash   string                `json:"content_hash"`
	ExtractedData *domain.ExtractedData `json:"extracted_data"`
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *zap.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "kafka" }

// Publish writes created and appended changes in a single WriteMessages call.
// Unchanged observations are not published.
func (w *Writer) Publish(ctx context.Context, changes []domain.Change) error {
	msgs := make([]kafkago.Message, 0, len(changes))
	processedAt := domain.Now()
	for _, c := range changes {
		if c.Outcome == domain.OutcomeUnchanged {
			continue
		}
		msg, err := serializeToMessage(c, processedAt)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages: %w", len(msgs), err)
	}
	w.logger.Debug("published changes", zap.Int("count", len(msgs)), zap.String("topic", w.writer.Topic))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a change into a Kafka message keyed by
// announcement id, so every version of one notice lands on one partition.
func serializeToMessage(c domain.Change, processedAt time.Time) (kafkago.Message, error) {
	a := c.Announcement
	data, err := json.Marshal(changeMessage{
		ID:            a.ID,
		Title:         a.Title,
		PublishDate:   a.PublishDate,
		Outcome:       c.Outcome,
		VersionIndex:  c.Index,
		Category:      a.Classification.Category,
		EventGroupID:  a.Classification.EventGroupID,
		ScrapedAt:     c.Version.ScrapedAt,
		ContentHash:   c.Version.ContentHash,
		ExtractedData: c.Version.ExtractedData,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize change for %s: %w", a.ID, err)
	}
	return kafkago.Message{
		Key:   []byte(a.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "category", Value: []byte(a.Classification.Category)},
			{Key: "outcome", Value: []byte(c.Outcome)},
			{Key: "processed_at", Value: []byte(processedAt.Format(time.RFC3339))},
		},
	}, nil
}
