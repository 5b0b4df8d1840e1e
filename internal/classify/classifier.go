// Package classify assigns announcements to a category and an event group.
//
// Classification is title-first: the title decides whether a notice concerns a
// disruption at all, so promotional notices whose body happens to mention a
// suspension stay General_Operation.
package classify

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/couchcryptid/rail-notice-etl/internal/domain"
	"github.com/couchcryptid/rail-notice-etl/internal/lexicon"
)

const (
	unknownDate      = "UNKNOWN"
	generalFragment  = "General"
	maxFragmentRunes = 30
)

var (
	typhoonNameRe = regexp.MustCompile(`(?:因應|受到|受|配合|防範|針對)?(\p{Han}{2,3})颱風`)
	titleDateRe   = regexp.MustCompile(`(\d{4})/(\d{2})/(\d{2})`)
	reportNoRe    = regexp.MustCompile(`第\s*(?:[0-9]+|[一二三四五六七八九十]+)\s*[報發次]`)
	clockTextRe   = regexp.MustCompile(`\d{1,2}:\d{2}|\d{1,2}[時點](?:\d{1,2}分)?`)
	nonWordRe     = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// nameStopChars never occur in a typhoon name; a capture containing one ran
// into the surrounding sentence.
const nameStopChars = "因應受到配合防範針對之的及與為"

// Classifier is safe for concurrent use.
type Classifier struct {
	lex *lexicon.Lexicon
}

// New creates a Classifier over the given keyword tables.
func New(lex *lexicon.Lexicon) *Classifier {
	return &Classifier{lex: lex}
}

// Classify categorizes an announcement from its title and canonical content.
func (c *Classifier) Classify(title, content, publishDate string) domain.Classification {
	return domain.Classification{
		Category:     c.category(title, content),
		Keywords:     c.keywords(title, content),
		EventGroupID: c.EventGroupID(title, publishDate),
	}
}

func (c *Classifier) category(title, content string) domain.Category {
	if !c.lex.Classification.Indicators.In(lexicon.Fold(title)) {
		return domain.CategoryGeneralOperation
	}
	text := lexicon.Fold(title + " " + content)
	for _, f := range c.lex.Classification.Categories {
		if f.Terms.In(text) {
			return domain.Category(f.Name)
		}
	}
	return domain.CategoryGeneralOperation
}

// keywords lists every matched term across all families in priority order,
// without duplicates. A title without disruption indicators has none.
func (c *Classifier) keywords(title, content string) []string {
	out := []string{}
	if !c.lex.Classification.Indicators.In(lexicon.Fold(title)) {
		return out
	}
	text := lexicon.Fold(title + " " + content)
	seen := make(map[string]bool)
	for _, f := range c.lex.Classification.Categories {
		for _, kw := range f.Terms.Matches(text) {
			if !seen[kw] {
				seen[kw] = true
				out = append(out, kw)
			}
		}
	}
	return out
}

// EventGroupID builds "YYYYMMDD_<fragment>" so notices about the same
// incident on the same day share an id.
func (c *Classifier) EventGroupID(title, publishDate string) string {
	return datePart(title, publishDate) + "_" + c.fragment(title)
}

func datePart(title, publishDate string) string {
	if t, ok := domain.ParsePublishDate(publishDate); ok {
		return t.Format("20060102")
	}
	if m := titleDateRe.FindStringSubmatch(title); m != nil {
		return m[1] + m[2] + m[3]
	}
	return unknownDate
}

// fragment picks, in order: a named typhoon, the earliest incident term, the
// earliest line, the earliest station, then the sanitized title.
func (c *Classifier) fragment(title string) string {
	cleaned := lexicon.Fold(title)
	cleaned = reportNoRe.ReplaceAllString(cleaned, "")
	cleaned = clockTextRe.ReplaceAllString(cleaned, "")

	for _, m := range typhoonNameRe.FindAllStringSubmatch(cleaned, -1) {
		if !strings.ContainsAny(m[1], nameStopChars) {
			return m[1] + "颱風"
		}
	}

	var incidentTerms lexicon.TermSet
	for _, f := range c.lex.EventTypes {
		incidentTerms = append(incidentTerms, f.Terms...)
	}
	for _, set := range []lexicon.TermSet{incidentTerms, c.lex.Lines, c.lex.Stations} {
		if term, _, ok := set.First(cleaned); ok {
			return term
		}
	}

	name := strings.Trim(nonWordRe.ReplaceAllString(cleaned, "_"), "_")
	if name == "" {
		return generalFragment
	}
	if utf8.RuneCountInString(name) > maxFragmentRunes {
		name = string([]rune(name)[:maxFragmentRunes])
	}
	return name
}
