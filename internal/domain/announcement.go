package domain

import (
	"strings"
	"time"
)

// PublishDateLayout is the layout of Announcement.PublishDate, e.g. "2025/05/20".
const PublishDateLayout = "2006/01/02"

// Announcement is one railway notice tracked over time. Title, PublishDate and
// DetailURL are fixed at creation; Classification is recomputed whenever a new
// version is appended.
type Announcement struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	PublishDate    string         `json:"publish_date"`
	DetailURL      string         `json:"detail_url"`
	Classification Classification `json:"classification"`
	History        History        `json:"version_history"`
}

// Classification is the derived category of an announcement.
type Classification struct {
	Category     Category `json:"category"`
	Keywords     []string `json:"keywords"`
	EventGroupID string   `json:"event_group_id"`
}

// VersionRecord is an immutable snapshot of announcement content at one point in time.
type VersionRecord struct {
	ScrapedAt     time.Time      `json:"scraped_at"`
	ContentHTML   string         `json:"content_html"`
	ContentText   string         `json:"content_text"`
	ContentHash   string         `json:"content_hash"`
	ExtractedData *ExtractedData `json:"extracted_data"`
}

// ExtractedData holds the structured fields derived from one version.
// Nil pointers serialize as JSON null; list fields are never nil once extracted.
type ExtractedData struct {
	ReportVersion           *string      `json:"report_version"`
	EventType               *EventType   `json:"event_type"`
	Status                  *Status      `json:"status"`
	AffectedLines           []string     `json:"affected_lines"`
	AffectedStations        []string     `json:"affected_stations"`
	PredictedResumptionTime *time.Time   `json:"predicted_resumption_time"`
	ActualResumptionTime    *time.Time   `json:"actual_resumption_time"`
	ServiceType             *ServiceType `json:"service_type"`
	ServiceDetails          *string      `json:"service_details"`
}

// NewExtractedData returns an ExtractedData with every field absent.
func NewExtractedData() *ExtractedData {
	return &ExtractedData{AffectedLines: []string{}, AffectedStations: []string{}}
}

// Append adds a version record to the announcement's history.
func (a *Announcement) Append(rec VersionRecord) error {
	return a.History.Append(rec)
}

// PublishTime parses PublishDate as a Taipei calendar day.
func (a *Announcement) PublishTime() (time.Time, bool) {
	return ParsePublishDate(a.PublishDate)
}

// ParsePublishDate parses "YYYY/MM/DD" (dashes are accepted as well) as
// midnight in Taipei.
func ParsePublishDate(s string) (time.Time, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "-", "/")
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(PublishDateLayout, s, Taipei)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
