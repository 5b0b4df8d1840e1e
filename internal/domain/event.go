package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RawObservation is an undecoded observation as delivered by a source.
type RawObservation struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Observation is one scrape of an announcement page handed over by the
// upstream scraper.
type Observation struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	PublishDate string    `json:"publish_date"`
	DetailURL   string    `json:"detail_url"`
	ContentHTML string    `json:"content_html"`
	ObservedAt  time.Time `json:"scraped_at,omitempty"`
}

// observationPayload is the wire form. The scraper historically keyed notices
// by "news_no"; it is accepted when "id" is missing.
type observationPayload struct {
	ID          string `json:"id"`
	NewsNo      string `json:"news_no"`
	Title       string `json:"title"`
	PublishDate string `json:"publish_date"`
	DetailURL   string `json:"detail_url"`
	ContentHTML string `json:"content_html"`
	ScrapedAt   string `json:"scraped_at"`
}

// DecodeObservation parses a raw observation. The message timestamp is used as
// the observation time when the payload carries none.
func DecodeObservation(raw RawObservation) (Observation, error) {
	var p observationPayload
	if err := json.Unmarshal(raw.Value, &p); err != nil {
		return Observation{}, fmt.Errorf("%w: decode: %w", ErrInvalidObservation, err)
	}

	id := strings.TrimSpace(p.ID)
	if id == "" {
		id = strings.TrimSpace(p.NewsNo)
	}
	if id == "" {
		id = strings.TrimSpace(string(raw.Key))
	}
	if id == "" {
		return Observation{}, fmt.Errorf("%w: missing id", ErrInvalidObservation)
	}

	obs := Observation{
		ID:          id,
		Title:       strings.TrimSpace(p.Title),
		PublishDate: strings.TrimSpace(p.PublishDate),
		DetailURL:   strings.TrimSpace(p.DetailURL),
		ContentHTML: p.ContentHTML,
	}

	switch {
	case p.ScrapedAt != "":
		t, err := time.Parse(time.RFC3339, p.ScrapedAt)
		if err != nil {
			return Observation{}, fmt.Errorf("%w: scraped_at %q: %w", ErrInvalidObservation, p.ScrapedAt, err)
		}
		obs.ObservedAt = t.In(Taipei)
	case !raw.Timestamp.IsZero():
		obs.ObservedAt = raw.Timestamp.In(Taipei)
	}

	return obs, nil
}

// Outcome is the result of feeding one observation into the version history.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeAppended  Outcome = "appended"
	OutcomeUnchanged Outcome = "unchanged"
)

// Change describes what an observation did to the collection. Version and
// Index are only meaningful when Outcome is created or appended.
type Change struct {
	Outcome      Outcome
	Announcement *Announcement
	Version      VersionRecord
	Index        int
}
