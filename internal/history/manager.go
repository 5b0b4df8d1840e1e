// Package history applies observations to the announcement collection. An
// announcement is either unseen (New) or tracked (Existing); an observation of
// a tracked announcement appends a version only when its canonical content
// changed.
package history

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/couchcryptid/rail-notice-etl/internal/canonical"
	"github.com/couchcryptid/rail-notice-etl/internal/domain"
	"github.com/couchcryptid/rail-notice-etl/internal/extract"
)

// Extractor derives structured fields from canonical text.
type Extractor interface {
	Extract(in extract.Input) *domain.ExtractedData
}

// Classifier categorizes an announcement.
type Classifier interface {
	Classify(title, content, publishDate string) domain.Classification
}

// Manager decides, per observation, whether to create, append or skip.
type Manager struct {
	extractor  Extractor
	classifier Classifier
	logger     *zap.Logger
}

// NewManager creates a Manager.
func NewManager(e Extractor, c Classifier, logger *zap.Logger) *Manager {
	return &Manager{extractor: e, classifier: c, logger: logger}
}

// Observe applies obs to coll. Replaying an observation whose content is
// already recorded is a no-op; an older observation with new content fails
// with domain.ErrOutOfOrder.
func (m *Manager) Observe(coll *domain.Collection, obs domain.Observation) (domain.Change, error) {
	if obs.ID == "" {
		return domain.Change{}, fmt.Errorf("%w: missing id", domain.ErrInvalidObservation)
	}

	observedAt := obs.ObservedAt
	if observedAt.IsZero() {
		observedAt = domain.Now()
	}
	observedAt = observedAt.In(domain.Taipei)

	doc, parseErr := canonical.Canonicalize(obs.ContentHTML)
	log := m.logger.With(zap.String("announcement_id", obs.ID))

	existing, ok := coll.Get(obs.ID)
	if !ok {
		return m.create(coll, obs, doc, parseErr, observedAt, log)
	}

	latest, hasLatest := existing.History.Latest()
	if hasLatest && !observedAt.After(latest.ScrapedAt) && seenBefore(&existing.History, doc) {
		log.Debug("stale replay of a recorded version", zap.Time("scraped_at", observedAt))
		return domain.Change{Outcome: domain.OutcomeUnchanged, Announcement: existing}, nil
	}
	if hasLatest && latest.ContentHash == doc.Fingerprint {
		if latest.ContentText == doc.Text {
			log.Debug("content unchanged", zap.String("content_hash", doc.Fingerprint))
			return domain.Change{Outcome: domain.OutcomeUnchanged, Announcement: existing}, nil
		}
		log.Warn("fingerprint collision, recording as new version",
			zap.String("content_hash", doc.Fingerprint))
	}

	rec := m.version(existing.Title, existing.PublishDate, obs.ContentHTML, doc, parseErr, observedAt, log)
	if err := existing.Append(rec); err != nil {
		return domain.Change{}, fmt.Errorf("append version for %s: %w", obs.ID, err)
	}
	existing.Classification = m.classifier.Classify(existing.Title, doc.Text, existing.PublishDate)

	log.Info("version appended",
		zap.Int("version_index", existing.History.Len()-1),
		zap.String("content_hash", rec.ContentHash),
		zap.String("category", string(existing.Classification.Category)),
	)
	return domain.Change{
		Outcome:      domain.OutcomeAppended,
		Announcement: existing,
		Version:      rec,
		Index:        existing.History.Len() - 1,
	}, nil
}

func (m *Manager) create(coll *domain.Collection, obs domain.Observation, doc canonical.Document, parseErr error, observedAt time.Time, log *zap.Logger) (domain.Change, error) {
	a := &domain.Announcement{
		ID:          obs.ID,
		Title:       obs.Title,
		PublishDate: obs.PublishDate,
		DetailURL:   obs.DetailURL,
	}
	rec := m.version(a.Title, a.PublishDate, obs.ContentHTML, doc, parseErr, observedAt, log)
	if err := a.Append(rec); err != nil {
		return domain.Change{}, fmt.Errorf("first version for %s: %w", obs.ID, err)
	}
	a.Classification = m.classifier.Classify(a.Title, doc.Text, a.PublishDate)
	if err := coll.Add(a); err != nil {
		return domain.Change{}, err
	}

	log.Info("announcement created",
		zap.String("title", a.Title),
		zap.String("content_hash", rec.ContentHash),
		zap.String("category", string(a.Classification.Category)),
	)
	return domain.Change{Outcome: domain.OutcomeCreated, Announcement: a, Version: rec, Index: 0}, nil
}

// seenBefore reports whether doc equals any recorded version.
func seenBefore(h *domain.History, doc canonical.Document) bool {
	for _, rec := range h.All() {
		if rec.ContentHash == doc.Fingerprint && rec.ContentText == doc.Text {
			return true
		}
	}
	return false
}

// version builds the record for one observation. Markup without text is
// stored with null extracted data.
func (m *Manager) version(title, publishDate, markup string, doc canonical.Document, parseErr error, observedAt time.Time, log *zap.Logger) domain.VersionRecord {
	rec := domain.VersionRecord{
		ScrapedAt:   observedAt,
		ContentHTML: markup,
		ContentText: doc.Text,
		ContentHash: doc.Fingerprint,
	}
	if parseErr != nil {
		if errors.Is(parseErr, canonical.ErrNoText) {
			log.Warn("markup yielded no text, storing version without extracted data")
		} else {
			log.Warn("canonicalization failed", zap.Error(parseErr))
		}
		return rec
	}
	rec.ExtractedData = m.extractor.Extract(extract.Input{
		Title:     title,
		Text:      doc.Text,
		Reference: extract.ReferenceDate(publishDate, observedAt),
	})
	return rec
}
