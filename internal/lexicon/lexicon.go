// Package lexicon loads the versioned keyword tables that drive field
// extraction and classification. Tables are loaded once at startup and shared
// read-only afterwards.
package lexicon

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/rail-notice-etl/internal/domain"
)

//go:embed default.yaml
var defaultTables []byte

// Family is a named group of terms, e.g. the terms that indicate a typhoon.
type Family struct {
	Name  string  `yaml:"name"`
	Terms TermSet `yaml:"terms"`
}

// Extraction holds the cue lists used by the field extractor.
type Extraction struct {
	Estimate         TermSet `yaml:"estimate"`
	Completed        TermSet `yaml:"completed"`
	Resumption       TermSet `yaml:"resumption"`
	RepairCompletion TermSet `yaml:"repair_completion"`
	FullStage        TermSet `yaml:"full_stage"`
	PartialStage     TermSet `yaml:"partial_stage"`
	Arrival          TermSet `yaml:"arrival"`
	Suspension       TermSet `yaml:"suspension"`
	Conditional      TermSet `yaml:"conditional"`
	FirstTrain       TermSet `yaml:"first_train"`
	ShuttleBus       TermSet `yaml:"shuttle_bus"`
	ShuttleRail      TermSet `yaml:"shuttle_rail"`
	Shuttle          TermSet `yaml:"shuttle"`
	ShuttleCancel    TermSet `yaml:"shuttle_cancel"`
}

// TitleFilters holds the title patterns that suppress a predicted resumption time.
type TitleFilters struct {
	Typhoon         TermSet `yaml:"typhoon"`
	TyphoonService  TermSet `yaml:"typhoon_service"`
	RepairSubject   TermSet `yaml:"repair_subject"`
	RepairProgress  TermSet `yaml:"repair_progress"`
	Shuttle         TermSet `yaml:"shuttle"`
	TrainResumption TermSet `yaml:"train_resumption"`
}

// Classification holds the classifier's indicator list and ordered category families.
type Classification struct {
	Indicators TermSet  `yaml:"indicators"`
	Categories []Family `yaml:"categories"`
}

// Lexicon is the full set of keyword tables.
type Lexicon struct {
	Version        int            `yaml:"version"`
	Lines          TermSet        `yaml:"lines"`
	Stations       TermSet        `yaml:"stations"`
	EventTypes     []Family       `yaml:"event_types"`
	Statuses       []Family       `yaml:"statuses"`
	Extraction     Extraction     `yaml:"extraction"`
	TitleFilters   TitleFilters   `yaml:"title_filters"`
	Classification Classification `yaml:"classification"`
}

// Default returns the tables compiled into the binary.
func Default() (*Lexicon, error) {
	return Parse(defaultTables)
}

// Load reads tables from path. An empty path selects the built-in tables.
func Load(path string) (*Lexicon, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	lex, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("lexicon %s: %w", path, err)
	}
	return lex, nil
}

// Parse decodes and validates YAML tables. Unknown keys are rejected so a
// typo in a table name does not silently disable a rule.
func Parse(data []byte) (*Lexicon, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var lex Lexicon
	if err := dec.Decode(&lex); err != nil {
		return nil, fmt.Errorf("decode lexicon: %w", err)
	}
	lex.fold()
	if err := lex.validate(); err != nil {
		return nil, err
	}
	return &lex, nil
}

func (l *Lexicon) validate() error {
	var errs []error
	if l.Version <= 0 {
		errs = append(errs, errors.New("version must be positive"))
	}
	if len(l.Lines) == 0 {
		errs = append(errs, errors.New("lines must not be empty"))
	}
	if len(l.Stations) == 0 {
		errs = append(errs, errors.New("stations must not be empty"))
	}
	for _, f := range l.EventTypes {
		if !domain.EventType(f.Name).Valid() {
			errs = append(errs, fmt.Errorf("event_types: unknown name %q", f.Name))
		}
	}
	for _, f := range l.Statuses {
		if !domain.Status(f.Name).Valid() {
			errs = append(errs, fmt.Errorf("statuses: unknown name %q", f.Name))
		}
	}
	for _, f := range l.Classification.Categories {
		if !domain.Category(f.Name).Valid() || domain.Category(f.Name) == domain.CategoryGeneralOperation {
			errs = append(errs, fmt.Errorf("classification.categories: unknown name %q", f.Name))
		}
	}
	if len(l.Classification.Indicators) == 0 {
		errs = append(errs, errors.New("classification.indicators must not be empty"))
	}
	if len(l.Extraction.Estimate) == 0 || len(l.Extraction.Resumption) == 0 {
		errs = append(errs, errors.New("extraction.estimate and extraction.resumption must not be empty"))
	}
	for _, set := range l.allSets() {
		for _, term := range *set {
			if strings.TrimSpace(term) == "" {
				errs = append(errs, errors.New("empty term"))
				break
			}
		}
	}
	return errors.Join(errs...)
}

func (l *Lexicon) fold() {
	for _, set := range l.allSets() {
		for i, term := range *set {
			(*set)[i] = Fold(strings.TrimSpace(term))
		}
	}
}

func (l *Lexicon) allSets() []*TermSet {
	x, tf := &l.Extraction, &l.TitleFilters
	sets := []*TermSet{
		&l.Lines, &l.Stations,
		&x.Estimate, &x.Completed, &x.Resumption, &x.RepairCompletion, &x.FullStage,
		&x.PartialStage, &x.Arrival, &x.Suspension, &x.Conditional, &x.FirstTrain,
		&x.ShuttleBus, &x.ShuttleRail, &x.Shuttle, &x.ShuttleCancel,
		&tf.Typhoon, &tf.TyphoonService, &tf.RepairSubject, &tf.RepairProgress,
		&tf.Shuttle, &tf.TrainResumption,
		&l.Classification.Indicators,
	}
	for i := range l.EventTypes {
		sets = append(sets, &l.EventTypes[i].Terms)
	}
	for i := range l.Statuses {
		sets = append(sets, &l.Statuses[i].Terms)
	}
	for i := range l.Classification.Categories {
		sets = append(sets, &l.Classification.Categories[i].Terms)
	}
	return sets
}
