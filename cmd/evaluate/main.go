// Command evaluate reports dataset statistics for a persisted announcement
// document and re-runs field extraction over every stored version, printing
// where the current lexicon disagrees with what was recorded. The document is
// never modified.
//
// Usage:
//
//	go run ./cmd/evaluate -store data/master.json -lexicon lexicon.yaml -max-diffs 20
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/couchcryptid/rail-notice-etl/internal/domain"
	"github.com/couchcryptid/rail-notice-etl/internal/extract"
	"github.com/couchcryptid/rail-notice-etl/internal/lexicon"
	"github.com/couchcryptid/rail-notice-etl/internal/storage"
)

// report is the dataset summary. Distributions count latest versions only.
type report struct {
	Announcements      int            `json:"announcements"`
	Versions           int            `json:"versions"`
	NullExtractions    int            `json:"null_extractions"`
	PredictedCoverage  float64        `json:"predicted_coverage"`
	ActualCoverage     float64        `json:"actual_coverage"`
	Categories         map[string]int `json:"categories"`
	EventTypes         map[string]int `json:"event_types"`
	Statuses           map[string]int `json:"statuses"`
	ReextractedDiffers int            `json:"reextracted_differs"`
}

// drift is one stored version whose re-extraction differs.
type drift struct {
	ID    string `json:"id"`
	Index int    `json:"version_index"`
	Diff  string `json:"diff"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	storePath := flag.String("store", "data/master.json", "path to the announcement document")
	lexiconPath := flag.String("lexicon", "", "lexicon YAML (embedded default when empty)")
	maxDiffs := flag.Int("max-diffs", 20, "number of re-extraction diffs to print")
	asJSON := flag.Bool("json", false, "print the report as JSON")
	flag.Parse()

	lex, err := lexicon.Load(*lexiconPath)
	if err != nil {
		return fmt.Errorf("load lexicon: %w", err)
	}

	store := storage.NewFileStore(storage.Options{Path: *storePath}, zap.NewNop())
	coll, err := store.Load()
	if err != nil {
		return fmt.Errorf("load store: %w", err)
	}

	rep := summarize(coll)
	drifts := reextract(coll, extract.New(lex, zap.NewNop()))
	rep.ReextractedDiffers = len(drifts)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Report report  `json:"report"`
			Drift  []drift `json:"drift"`
		}{rep, drifts})
	}

	printReport(os.Stdout, rep, lex.Version)
	for i, d := range drifts {
		if i == *maxDiffs {
			fmt.Printf("\n... %d more\n", len(drifts)-i)
			break
		}
		fmt.Printf("\n--- %s v%d (-stored +current) ---\n%s", d.ID, d.Index, d.Diff)
	}
	return nil
}

func summarize(coll *domain.Collection) report {
	rep := report{
		Announcements: coll.Len(),
		Categories:    map[string]int{},
		EventTypes:    map[string]int{},
		Statuses:      map[string]int{},
	}
	var extracted, predicted, actual int
	for _, a := range coll.All() {
		rep.Categories[string(a.Classification.Category)]++
		for _, rec := range a.History.All() {
			rep.Versions++
			if rec.ExtractedData == nil {
				rep.NullExtractions++
				continue
			}
			extracted++
			if rec.ExtractedData.PredictedResumptionTime != nil {
				predicted++
			}
			if rec.ExtractedData.ActualResumptionTime != nil {
				actual++
			}
		}

		latest, ok := a.History.Latest()
		if !ok || latest.ExtractedData == nil {
			continue
		}
		if et := latest.ExtractedData.EventType; et != nil {
			rep.EventTypes[string(*et)]++
		} else {
			rep.EventTypes["null"]++
		}
		if st := latest.ExtractedData.Status; st != nil {
			rep.Statuses[string(*st)]++
		} else {
			rep.Statuses["null"]++
		}
	}
	if extracted > 0 {
		rep.PredictedCoverage = float64(predicted) / float64(extracted)
		rep.ActualCoverage = float64(actual) / float64(extracted)
	}
	return rep
}

// reextract runs the extractor over every stored version that has text and
// returns the versions whose result differs from the recorded one.
func reextract(coll *domain.Collection, ex *extract.Extractor) []drift {
	var out []drift
	for _, a := range coll.All() {
		for i, rec := range a.History.All() {
			if rec.ContentText == "" {
				continue
			}
			fresh := ex.Extract(extract.Input{
				Title:     a.Title,
				Text:      rec.ContentText,
				Reference: extract.ReferenceDate(a.PublishDate, rec.ScrapedAt),
			})
			if d := cmp.Diff(rec.ExtractedData, fresh); d != "" {
				out = append(out, drift{ID: a.ID, Index: i, Diff: d})
			}
		}
	}
	return out
}

func printReport(w io.Writer, rep report, lexiconVersion int) {
	fmt.Fprintf(w, "=== Announcement Dataset Report (lexicon v%d) ===\n\n", lexiconVersion)
	fmt.Fprintf(w, "  announcements       %d\n", rep.Announcements)
	fmt.Fprintf(w, "  versions            %d\n", rep.Versions)
	fmt.Fprintf(w, "  null extractions    %d\n", rep.NullExtractions)
	fmt.Fprintf(w, "  predicted coverage  %.1f%%\n", rep.PredictedCoverage*100)
	fmt.Fprintf(w, "  actual coverage     %.1f%%\n", rep.ActualCoverage*100)
	fmt.Fprintf(w, "  re-extraction drift %d\n", rep.ReextractedDiffers)

	printDistribution(w, "categories", rep.Categories)
	printDistribution(w, "event types (latest)", rep.EventTypes)
	printDistribution(w, "statuses (latest)", rep.Statuses)
}

func printDistribution(w io.Writer, title string, counts map[string]int) {
	fmt.Fprintf(w, "\n%s:\n", title)
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		fmt.Fprintf(w, "  %-24s %d\n", k, counts[k])
	}
}
