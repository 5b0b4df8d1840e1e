// Command validate performs integrity checks over a persisted announcement
// document. It decodes the file loosely so every problem is reported, not
// just the first one the store's strict decoder would stop at.
//
// Usage:
//
//	go run ./cmd/validate -store data/master.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/couchcryptid/rail-notice-etl/internal/canonical"
	"github.com/couchcryptid/rail-notice-etl/internal/domain"
)

var eventGroupRe = regexp.MustCompile(`^(\d{8}|UNKNOWN)_.+$`)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// Loose mirrors of the stored document. Raw messages keep null and missing
// apart.
type announcement struct {
	ID             *string         `json:"id"`
	Title          *string         `json:"title"`
	PublishDate    *string         `json:"publish_date"`
	DetailURL      *string         `json:"detail_url"`
	Classification *classification `json:"classification"`
	History        []version       `json:"version_history"`

	keys map[string]json.RawMessage
}

type classification struct {
	Category     domain.Category `json:"category"`
	Keywords     []string        `json:"keywords"`
	EventGroupID string          `json:"event_group_id"`
}

type version struct {
	ScrapedAt     string          `json:"scraped_at"`
	ContentHTML   string          `json:"content_html"`
	ContentText   string          `json:"content_text"`
	ContentHash   string          `json:"content_hash"`
	ExtractedData json.RawMessage `json:"extracted_data"`
}

type extracted struct {
	ReportVersion           *string             `json:"report_version"`
	EventType               *domain.EventType   `json:"event_type"`
	Status                  *domain.Status      `json:"status"`
	AffectedLines           *[]string           `json:"affected_lines"`
	AffectedStations        *[]string           `json:"affected_stations"`
	PredictedResumptionTime *string             `json:"predicted_resumption_time"`
	ActualResumptionTime    *string             `json:"actual_resumption_time"`
	ServiceType             *domain.ServiceType `json:"service_type"`
	ServiceDetails          *string             `json:"service_details"`
}

// extractedKeys must all be present in a non-null extracted_data object.
var extractedKeys = []string{
	"report_version", "event_type", "status", "affected_lines", "affected_stations",
	"predicted_resumption_time", "actual_resumption_time", "service_type", "service_details",
}

func main() {
	storePath := flag.String("store", "data/master.json", "path to the announcement document")
	flag.Parse()

	os.Exit(run(*storePath))
}

func run(path string) int {
	fmt.Println("=== Announcement Store Integrity Validation ===")
	fmt.Println()

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read %s: %v\n", path, err)
		return 1
	}
	items, err := decode(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: decode %s: %v\n", path, err)
		return 1
	}

	phases := validate(items)

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Announcements: %d, versions: %d\n", len(items), countVersions(items))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func decode(data []byte) ([]announcement, error) {
	var raws []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}
	var items []announcement
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	for i := range items {
		items[i].keys = raws[i]
	}
	return items, nil
}

func countVersions(items []announcement) int {
	n := 0
	for _, a := range items {
		n += len(a.History)
	}
	return n
}

func validate(items []announcement) []*phase {
	return []*phase{
		validateIdentity(items),
		validateHistoryOrder(items),
		validateHashes(items),
		validateExtractedData(items),
		validateClassification(items),
	}
}

func label(i int, a announcement) string {
	if a.ID != nil && *a.ID != "" {
		return fmt.Sprintf("announcement %q", *a.ID)
	}
	return fmt.Sprintf("announcement #%d", i)
}

// ── Identity and required fields ──

func validateIdentity(items []announcement) *phase {
	p := &phase{name: "Identity & required fields"}
	seen := make(map[string]int, len(items))
	for i, a := range items {
		name := label(i, a)
		for _, key := range []string{"id", "title", "publish_date", "detail_url", "classification", "version_history"} {
			if _, ok := a.keys[key]; !ok {
				p.errorf("%s: missing %s", name, key)
			}
		}
		if a.ID != nil && *a.ID != "" {
			if first, dup := seen[*a.ID]; dup {
				p.errorf("%s: duplicate id (first at #%d)", name, first)
			} else {
				seen[*a.ID] = i
			}
		} else if a.ID != nil {
			p.errorf("%s: empty id", name)
		}
		if a.PublishDate != nil && *a.PublishDate != "" {
			if _, ok := domain.ParsePublishDate(*a.PublishDate); !ok {
				p.errorf("%s: publish_date %q is not YYYY/MM/DD", name, *a.PublishDate)
			}
		}
		if len(a.History) == 0 {
			p.errorf("%s: empty version_history", name)
		}
	}
	return p
}

// ── Version ordering ──

func validateHistoryOrder(items []announcement) *phase {
	p := &phase{name: "Version history ordering"}
	for i, a := range items {
		name := label(i, a)
		var prev time.Time
		for j, v := range a.History {
			t, err := time.Parse(time.RFC3339Nano, v.ScrapedAt)
			if err != nil {
				p.errorf("%s v%d: scraped_at %q: %v", name, j, v.ScrapedAt, err)
				continue
			}
			if j > 0 && !prev.IsZero() && !t.After(prev) {
				p.errorf("%s v%d: scraped_at %s does not follow %s", name, j,
					t.Format(time.RFC3339), prev.Format(time.RFC3339))
			}
			prev = t
		}
	}
	return p
}

// ── Hash determinism ──

func validateHashes(items []announcement) *phase {
	p := &phase{name: "Content hash determinism"}
	for i, a := range items {
		name := label(i, a)
		for j, v := range a.History {
			want := expectedHash(v)
			if v.ContentHash != want {
				p.errorf("%s v%d: content_hash %s, recomputed %s", name, j, v.ContentHash, want)
			}
			if j > 0 {
				prev := a.History[j-1]
				if prev.ContentHash == v.ContentHash && prev.ContentText == v.ContentText {
					p.errorf("%s v%d: identical to previous version", name, j)
				}
			}
		}
	}
	return p
}

// expectedHash covers the canonical text, or the raw markup when no text
// survived canonicalization.
func expectedHash(v version) string {
	if v.ContentText == "" {
		return canonical.Fingerprint(v.ContentHTML)
	}
	return canonical.Fingerprint(v.ContentText)
}

// ── Extracted data ──

func validateExtractedData(items []announcement) *phase {
	p := &phase{name: "Extracted data presence & enums"}
	for i, a := range items {
		name := label(i, a)
		for j, v := range a.History {
			checkExtracted(p.errorf, fmt.Sprintf("%s v%d", name, j), v)
		}
	}
	return p
}

func checkExtracted(pf func(string, ...any), where string, v version) {
	if len(v.ExtractedData) == 0 {
		pf("%s: missing extracted_data", where)
		return
	}
	if string(v.ExtractedData) == "null" {
		if v.ContentText != "" {
			pf("%s: extracted_data is null but content_text is not empty", where)
		}
		return
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(v.ExtractedData, &keys); err != nil {
		pf("%s: extracted_data: %v", where, err)
		return
	}
	for _, k := range extractedKeys {
		if _, ok := keys[k]; !ok {
			pf("%s: extracted_data missing %s", where, k)
		}
	}

	var e extracted
	if err := json.Unmarshal(v.ExtractedData, &e); err != nil {
		pf("%s: extracted_data: %v", where, err)
		return
	}
	if e.EventType != nil && !e.EventType.Valid() {
		pf("%s: invalid event_type %q", where, *e.EventType)
	}
	if e.Status != nil && !e.Status.Valid() {
		pf("%s: invalid status %q", where, *e.Status)
	}
	if e.ServiceType != nil && !e.ServiceType.Valid() {
		pf("%s: invalid service_type %q", where, *e.ServiceType)
	}
	if e.AffectedLines == nil {
		pf("%s: affected_lines is null, want a list", where)
	}
	if e.AffectedStations == nil {
		pf("%s: affected_stations is null, want a list", where)
	}
	checkTime(pf, where, "predicted_resumption_time", e.PredictedResumptionTime)
	checkTime(pf, where, "actual_resumption_time", e.ActualResumptionTime)
}

func checkTime(pf func(string, ...any), where, field string, s *string) {
	if s == nil {
		return
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		pf("%s: %s %q: %v", where, field, *s, err)
		return
	}
	if _, offset := t.Zone(); offset != 8*60*60 {
		pf("%s: %s %q is not in +08:00", where, field, *s)
	}
}

// ── Classification ──

func validateClassification(items []announcement) *phase {
	p := &phase{name: "Classification"}
	for i, a := range items {
		name := label(i, a)
		c := a.Classification
		if c == nil {
			continue
		}
		if !c.Category.Valid() {
			p.errorf("%s: invalid category %q", name, c.Category)
		}
		if c.Keywords == nil {
			p.errorf("%s: keywords is null, want a list", name)
		}
		if !eventGroupRe.MatchString(c.EventGroupID) {
			p.errorf("%s: event_group_id %q is not YYYYMMDD_<fragment>", name, c.EventGroupID)
		}
	}
	return p
}
