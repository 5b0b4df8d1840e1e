// Package extract derives structured fields from the canonical text of an
// announcement version. Every field is produced by an ordered rule chain; a
// field no rule can determine is left absent rather than guessed.
package extract

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/couchcryptid/rail-notice-etl/internal/domain"
	"github.com/couchcryptid/rail-notice-etl/internal/lexicon"
)

// Input is the text of one version plus the day relative dates resolve against.
type Input struct {
	Title     string
	Text      string
	Reference time.Time
}

// Extractor applies the rule chains. It is safe for concurrent use once built.
type Extractor struct {
	lex    *lexicon.Lexicon
	logger *zap.Logger
}

// New creates an Extractor over the given keyword tables.
func New(lex *lexicon.Lexicon, logger *zap.Logger) *Extractor {
	return &Extractor{lex: lex, logger: logger}
}

// Extract populates an ExtractedData from in. A panic inside any rule is
// recovered and logged, and yields nil so the version is stored with
// "extracted_data": null instead of aborting the cycle.
func (e *Extractor) Extract(in Input) (data *domain.ExtractedData) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("field extraction panicked",
				zap.Any("panic", r),
				zap.String("title", in.Title),
				zap.Stack("stack"),
			)
			data = nil
		}
	}()

	doc := e.parse(in)
	data = domain.NewExtractedData()

	data.ReportVersion = reportVersion(doc)
	data.EventType = e.eventType(doc)
	data.Status = e.status(doc)
	data.AffectedLines, data.AffectedStations = e.places(doc)

	if c, ok := e.predicted(doc); ok {
		at := c.at
		data.PredictedResumptionTime = &at
	}
	if c, ok := e.actual(doc); ok {
		at := c.at
		data.ActualResumptionTime = &at
		data.ServiceType, data.ServiceDetails = e.service(doc, c)
	}
	return data
}

// ReferenceDate returns the day relative dates resolve against: the publish
// date when it parses, otherwise the observation day.
func ReferenceDate(publishDate string, observedAt time.Time) time.Time {
	if t, ok := domain.ParsePublishDate(publishDate); ok {
		return t
	}
	d := civilOf(observedAt)
	return d.at(0, 0)
}

// clause is a comma-delimited piece of a sentence with its time mentions.
type clause struct {
	text     string
	mentions []mention
}

type sentence struct {
	clauses []clause
}

// document is the folded, segmented form of an Input.
type document struct {
	title     string
	body      string
	titleSent sentence
	sentences []sentence
	ref       time.Time
}

func (d *document) all() string { return d.title + "\n" + d.body }

func (e *Extractor) parse(in Input) *document {
	ref := in.Reference
	if ref.IsZero() {
		ref = domain.Now()
	}
	scanner := &timeScanner{ref: ref.In(domain.Taipei), firstTrain: e.lex.Extraction.FirstTrain}

	doc := &document{
		title: lexicon.Fold(in.Title),
		body:  lexicon.Fold(in.Text),
		ref:   scanner.ref,
	}
	doc.titleSent = buildSentence(scanner, doc.title)
	for _, raw := range splitSentences(doc.body) {
		doc.sentences = append(doc.sentences, buildSentence(scanner, raw))
	}
	return doc
}

func buildSentence(scanner *timeScanner, raw string) sentence {
	parts := splitClauses(raw)
	mentions := scanner.scanSentence(parts)
	s := sentence{clauses: make([]clause, len(parts))}
	for i, p := range parts {
		s.clauses[i] = clause{text: p, mentions: mentions[i]}
	}
	return s
}

func splitSentences(text string) []string {
	return splitOn(text, func(r rune) bool {
		switch r {
		case '。', ';', '!', '?', '\n', '；', '！', '？':
			return true
		}
		return false
	})
}

func splitClauses(s string) []string {
	return splitOn(s, func(r rune) bool { return r == ',' || r == '，' })
}

func splitOn(s string, sep func(rune) bool) []string {
	var out []string
	for _, p := range strings.FieldsFunc(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
