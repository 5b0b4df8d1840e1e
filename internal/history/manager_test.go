package history

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/couchcryptid/rail-notice-etl/internal/canonical"
	"github.com/couchcryptid/rail-notice-etl/internal/classify"
	"github.com/couchcryptid/rail-notice-etl/internal/domain"
	"github.com/couchcryptid/rail-notice-etl/internal/extract"
	"github.com/couchcryptid/rail-notice-etl/internal/lexicon"
)

const (
	testID    = "8844"
	testTitle = "北迴線和仁=崇德間落石(第3報)"
)

type countingExtractor struct {
	inner Extractor
	calls int
}

func (c *countingExtractor) Extract(in extract.Input) *domain.ExtractedData {
	c.calls++
	return c.inner.Extract(in)
}

func newTestManager(t *testing.T, logger *zap.Logger) (*Manager, *countingExtractor) {
	t.Helper()
	lex, err := lexicon.Default()
	require.NoError(t, err)
	ex := &countingExtractor{inner: extract.New(lex, zap.NewNop())}
	return NewManager(ex, classify.New(lex), logger), ex
}

func observation(markup string, at time.Time) domain.Observation {
	return domain.Observation{
		ID:          testID,
		Title:       testTitle,
		PublishDate: "2025/05/20",
		DetailURL:   "https://example.test/news/8844",
		ContentHTML: markup,
		ObservedAt:  at,
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 5, 20, hour, minute, 0, 0, domain.Taipei)
}

func TestObserve_NewAnnouncement(t *testing.T) {
	m, ex := newTestManager(t, zap.NewNop())
	coll, err := domain.NewCollection()
	require.NoError(t, err)

	change, err := m.Observe(coll, observation("<p>已於16:48恢復單線，預計18時恢復雙線。</p>", at(17, 0)))
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeCreated, change.Outcome)
	assert.Equal(t, 0, change.Index)
	assert.Equal(t, 1, ex.calls)

	a, ok := coll.Get(testID)
	require.True(t, ok)
	assert.Equal(t, testTitle, a.Title)
	assert.Equal(t, 1, a.History.Len())
	assert.Equal(t, domain.CategoryResumption, a.Classification.Category)
	assert.Equal(t, "20250520_落石", a.Classification.EventGroupID)

	rec := a.History.At(0)
	assert.Equal(t, "已於16:48恢復單線,預計18時恢復雙線。", rec.ContentText)
	assert.Equal(t, canonical.Fingerprint(rec.ContentText), rec.ContentHash)
	require.NotNil(t, rec.ExtractedData)
	require.NotNil(t, rec.ExtractedData.PredictedResumptionTime)
	assert.True(t, at(18, 0).Equal(*rec.ExtractedData.PredictedResumptionTime))
}

func TestObserve_ReplayIsIdempotent(t *testing.T) {
	m, ex := newTestManager(t, zap.NewNop())
	coll, err := domain.NewCollection()
	require.NoError(t, err)

	obs := observation("<p>預計18時恢復雙線。</p>", at(17, 0))
	_, err = m.Observe(coll, obs)
	require.NoError(t, err)

	for _, ts := range []time.Time{at(17, 0), at(17, 10), at(18, 0)} {
		obs.ObservedAt = ts
		change, err := m.Observe(coll, obs)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeUnchanged, change.Outcome)
	}

	a, _ := coll.Get(testID)
	assert.Equal(t, 1, a.History.Len())
	assert.Equal(t, 1, ex.calls)
}

func TestObserve_MarkupOnlyChangeIsUnchanged(t *testing.T) {
	m, _ := newTestManager(t, zap.NewNop())
	coll, err := domain.NewCollection()
	require.NoError(t, err)

	_, err = m.Observe(coll, observation("<p>預計18時恢復雙線。</p>", at(17, 0)))
	require.NoError(t, err)

	change, err := m.Observe(coll, observation("<div class=\"news\">\n  <span>預計18時恢復雙線。</span>\n</div>", at(17, 5)))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnchanged, change.Outcome)
}

func TestObserve_ContentChangeAppends(t *testing.T) {
	m, _ := newTestManager(t, zap.NewNop())
	coll, err := domain.NewCollection()
	require.NoError(t, err)

	_, err = m.Observe(coll, observation("<p>和仁=崇德間落石，列車停駛。</p>", at(10, 0)))
	require.NoError(t, err)
	a, _ := coll.Get(testID)
	firstClass := a.Classification

	next := observation("<p>已於16:48恢復單線雙向通車。</p>", at(17, 0))
	next.Title = "標題改變不影響實體"
	change, err := m.Observe(coll, next)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeAppended, change.Outcome)
	assert.Equal(t, 1, change.Index)
	assert.Equal(t, 2, a.History.Len())
	assert.Equal(t, testTitle, a.Title)
	assert.True(t, a.History.At(0).ScrapedAt.Before(a.History.At(1).ScrapedAt))
	assert.Equal(t, "和仁=崇德間落石,列車停駛。", a.History.At(0).ContentText, "earlier record untouched")

	assert.Equal(t, domain.CategorySuspension, firstClass.Category)
	assert.Equal(t, domain.CategoryResumption, a.Classification.Category)

	data := a.History.At(1).ExtractedData
	require.NotNil(t, data)
	require.NotNil(t, data.ActualResumptionTime)
	assert.True(t, at(16, 48).Equal(*data.ActualResumptionTime))
}

func TestObserve_EmptyMarkupStoresNullExtraction(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	m, ex := newTestManager(t, zap.New(core))
	coll, err := domain.NewCollection()
	require.NoError(t, err)

	change, err := m.Observe(coll, observation("<div></div>", at(9, 0)))
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeCreated, change.Outcome)
	assert.Nil(t, change.Version.ExtractedData)
	assert.Empty(t, change.Version.ContentText)
	assert.Equal(t, canonical.Fingerprint("<div></div>"), change.Version.ContentHash)
	assert.Equal(t, 0, ex.calls)
	assert.Equal(t, 1, logs.FilterMessage("markup yielded no text, storing version without extracted data").Len())
}

// nilExtractor stands in for an extraction that failed outright.
type nilExtractor struct{}

func (nilExtractor) Extract(extract.Input) *domain.ExtractedData { return nil }

func TestObserve_FailedExtractionPersistsNull(t *testing.T) {
	lex, err := lexicon.Default()
	require.NoError(t, err)
	m := NewManager(nilExtractor{}, classify.New(lex), zap.NewNop())
	coll, err := domain.NewCollection()
	require.NoError(t, err)

	change, err := m.Observe(coll, observation("<p>預計18時恢復雙線。</p>", at(9, 0)))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCreated, change.Outcome)
	assert.Nil(t, change.Version.ExtractedData)
	assert.Equal(t, "預計18時恢復雙線。", change.Version.ContentText)

	data, err := json.Marshal(coll)
	require.NoError(t, err)
	var doc []struct {
		History []map[string]json.RawMessage `json:"version_history"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc, 1)
	require.Len(t, doc[0].History, 1)
	raw, ok := doc[0].History[0]["extracted_data"]
	require.True(t, ok, "extracted_data is always present")
	assert.JSONEq(t, "null", string(raw))
}

func TestObserve_FingerprintCollisionAppends(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	m, _ := newTestManager(t, zap.New(core))

	text := "預計18時恢復雙線。"
	a := &domain.Announcement{ID: testID, Title: testTitle, PublishDate: "2025/05/20"}
	require.NoError(t, a.Append(domain.VersionRecord{
		ScrapedAt:   at(10, 0),
		ContentText: "不同的內容",
		ContentHash: canonical.Fingerprint(text),
	}))
	coll, err := domain.NewCollection(a)
	require.NoError(t, err)

	change, err := m.Observe(coll, observation("<p>"+text+"</p>", at(11, 0)))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAppended, change.Outcome)
	assert.Equal(t, 2, a.History.Len())
	assert.Equal(t, 1, logs.FilterMessage("fingerprint collision, recording as new version").Len())
}

func TestObserve_OutOfOrderObservationFails(t *testing.T) {
	m, _ := newTestManager(t, zap.NewNop())
	coll, err := domain.NewCollection()
	require.NoError(t, err)

	_, err = m.Observe(coll, observation("<p>第一版</p>", at(12, 0)))
	require.NoError(t, err)

	_, err = m.Observe(coll, observation("<p>第二版</p>", at(11, 0)))
	require.ErrorIs(t, err, domain.ErrOutOfOrder)

	a, _ := coll.Get(testID)
	assert.Equal(t, 1, a.History.Len())
}

func TestObserve_StaleReplayOfEarlierVersion(t *testing.T) {
	m, _ := newTestManager(t, zap.NewNop())
	coll, err := domain.NewCollection()
	require.NoError(t, err)

	first := observation("<p>第一版</p>", at(10, 0))
	_, err = m.Observe(coll, first)
	require.NoError(t, err)
	_, err = m.Observe(coll, observation("<p>第二版</p>", at(11, 0)))
	require.NoError(t, err)

	change, err := m.Observe(coll, first)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnchanged, change.Outcome)

	a, _ := coll.Get(testID)
	assert.Equal(t, 2, a.History.Len())
}

func TestObserve_DefaultsToClock(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2025, 5, 20, 1, 2, 3, 0, time.UTC))
	domain.SetClock(fake)
	t.Cleanup(func() { domain.SetClock(nil) })

	m, _ := newTestManager(t, zap.NewNop())
	coll, err := domain.NewCollection()
	require.NoError(t, err)

	change, err := m.Observe(coll, observation("<p>內容</p>", time.Time{}))
	require.NoError(t, err)

	assert.True(t, at(9, 2).Add(3*time.Second).Equal(change.Version.ScrapedAt))
	_, offset := change.Version.ScrapedAt.Zone()
	assert.Equal(t, 8*3600, offset)
}

func TestObserve_MissingID(t *testing.T) {
	m, _ := newTestManager(t, zap.NewNop())
	coll, err := domain.NewCollection()
	require.NoError(t, err)

	_, err = m.Observe(coll, domain.Observation{ContentHTML: "<p>x</p>"})
	require.ErrorIs(t, err, domain.ErrInvalidObservation)
	assert.Equal(t, 0, coll.Len())
}
