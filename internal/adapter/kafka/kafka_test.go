package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/couchcryptid/rail-notice-etl/internal/domain"
)

func TestMapMessageToRawObservation(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("8844"),
		Value:     []byte(`{"id":"8844"}`),
		Topic:     "rail-notice-observations",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "scraper", Value: []byte("v2")},
		},
	}

	raw := mapMessageToRawObservation(msg)

	assert.Equal(t, []byte("8844"), raw.Key)
	assert.JSONEq(t, `{"id":"8844"}`, string(raw.Value))
	assert.Equal(t, "rail-notice-observations", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "v2", raw.Headers["scraper"])
	assert.Nil(t, raw.Commit)
}

func testChange(outcome domain.Outcome) domain.Change {
	status := domain.StatusResumedSingleTrack
	data := domain.NewExtractedData()
	data.Status = &status
	rec := domain.VersionRecord{
		ScrapedAt:     time.Date(2025, 5, 20, 17, 0, 0, 0, domain.Taipei),
		ContentText:   "已於16:48恢復單線。",
		ContentHash:   "md5:abc",
		ExtractedData: data,
	}
	return domain.Change{
		Outcome: outcome,
		Announcement: &domain.Announcement{
			ID:          "8844",
			Title:       "北迴線落石",
			PublishDate: "2025/05/20",
			Classification: domain.Classification{
				Category:     domain.CategoryResumption,
				Keywords:     []string{"恢復單線"},
				EventGroupID: "20250520_落石",
			},
		},
		Version: rec,
		Index:   1,
	}
}

func TestSerializeToMessage(t *testing.T) {
	processed := time.Date(2025, 5, 20, 17, 0, 5, 0, domain.Taipei)

	msg, err := serializeToMessage(testChange(domain.OutcomeAppended), processed)
	require.NoError(t, err)

	assert.Equal(t, []byte("8844"), msg.Key)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "category", msg.Headers[0].Key)
	assert.Equal(t, []byte("Disruption_Resumption"), msg.Headers[0].Value)
	assert.Equal(t, "outcome", msg.Headers[1].Key)
	assert.Equal(t, []byte("appended"), msg.Headers[1].Value)
	assert.Equal(t, "processed_at", msg.Headers[2].Key)
	assert.Equal(t, []byte("2025-05-20T17:00:05+08:00"), msg.Headers[2].Value)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "8844", got["id"])
	assert.Equal(t, "appended", got["outcome"])
	assert.EqualValues(t, 1, got["version_index"])
	assert.Equal(t, "20250520_落石", got["event_group_id"])
	assert.Equal(t, "2025-05-20T17:00:00+08:00", got["scraped_at"])
	extracted, ok := got["extracted_data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Resumed_Single_Track", extracted["status"])
	assert.Nil(t, extracted["predicted_resumption_time"])
	assert.NotContains(t, got, "content_html")
}

func TestPublish_SkipsUnchanged(t *testing.T) {
	// No broker is configured: reaching WriteMessages would fail.
	w := &Writer{writer: &kafkago.Writer{Topic: "unused"}, logger: zap.NewNop()}

	err := w.Publish(context.Background(), []domain.Change{
		testChange(domain.OutcomeUnchanged),
		testChange(domain.OutcomeUnchanged),
	})
	require.NoError(t, err)
	assert.Equal(t, "kafka", w.Name())
}
