package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/couchcryptid/rail-notice-etl/internal/domain"
	"github.com/couchcryptid/rail-notice-etl/internal/lexicon"
)

// reportVersionRe matches "第3報", "第 12 發", "第三次".
var reportVersionRe = regexp.MustCompile(`第\s*([0-9]+|[一二三四五六七八九十]+)\s*[報發次]`)

// reportVersion reads the report number from the title, then the body.
// "第N次列車" is a train number, not a report number.
func reportVersion(d *document) *string {
	for _, text := range []string{d.title, d.body} {
		for _, m := range reportVersionRe.FindAllStringSubmatchIndex(text, -1) {
			rest := text[m[1]:]
			if strings.HasPrefix(rest, "列車") || strings.HasPrefix(rest, "車") {
				continue
			}
			n, ok := parseNumeral(text[m[2]:m[3]])
			if !ok || n <= 0 {
				continue
			}
			v := strconv.Itoa(n)
			return &v
		}
	}
	return nil
}

var chineseDigits = map[rune]int{
	'一': 1, '二': 2, '三': 3, '四': 4, '五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

// parseNumeral reads Arabic digits or Chinese numerals up to 99.
func parseNumeral(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	runes := []rune(s)
	switch len(runes) {
	case 1:
		if runes[0] == '十' {
			return 10, true
		}
		n, ok := chineseDigits[runes[0]]
		return n, ok
	case 2:
		if runes[0] == '十' {
			n, ok := chineseDigits[runes[1]]
			return 10 + n, ok
		}
		if runes[1] == '十' {
			n, ok := chineseDigits[runes[0]]
			return n * 10, ok
		}
	case 3:
		tens, ok1 := chineseDigits[runes[0]]
		ones, ok2 := chineseDigits[runes[2]]
		if runes[1] == '十' && ok1 && ok2 {
			return tens*10 + ones, true
		}
	}
	return 0, false
}

// eventType returns the first family, in table order, with a term anywhere
// in the title or body.
func (e *Extractor) eventType(d *document) *domain.EventType {
	all := d.all()
	for _, f := range e.lex.EventTypes {
		if f.Terms.In(all) {
			et := domain.EventType(f.Name)
			return &et
		}
	}
	return nil
}

// status describes each factual clause by the first matching status family
// and returns the most advanced one. Forecast and conditional clauses say
// nothing about the current state and are skipped.
func (e *Extractor) status(d *document) *domain.Status {
	x := &e.lex.Extraction
	var best domain.Status
	consider := func(text string) {
		if x.Estimate.In(text) || x.Conditional.In(text) {
			return
		}
		for _, f := range e.lex.Statuses {
			if f.Terms.In(text) {
				if s := domain.Status(f.Name); s.Rank() > best.Rank() {
					best = s
				}
				return
			}
		}
	}

	for _, cl := range d.titleSent.clauses {
		consider(cl.text)
	}
	for _, s := range d.sentences {
		for _, cl := range s.clauses {
			consider(cl.text)
		}
	}
	if best == "" {
		return nil
	}
	return &best
}

type span struct{ start, end int }

// places returns the affected lines and stations in order of first
// appearance. Longer names claim their span first, and station names inside
// a line name ("臺東" in "臺東線") are not stations.
func (e *Extractor) places(d *document) ([]string, []string) {
	text := d.all()
	lines, lineSpans := gazetteer(text, e.lex.Lines, nil)
	stations, _ := gazetteer(text, e.lex.Stations, lineSpans)
	return lines, stations
}

func gazetteer(text string, terms lexicon.TermSet, blocked []span) ([]string, []span) {
	type hit struct {
		term string
		span
	}
	var hits []hit
	for _, t := range terms {
		for from := 0; ; {
			i := strings.Index(text[from:], t)
			if i < 0 {
				break
			}
			start := from + i
			hits = append(hits, hit{term: t, span: span{start, start + len(t)}})
			from = start + len(t)
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].start != hits[j].start {
			return hits[i].start < hits[j].start
		}
		return hits[i].end-hits[i].start > hits[j].end-hits[j].start
	})

	names := []string{}
	var claimed []span
	seen := make(map[string]bool)
	for _, h := range hits {
		if overlapsSpan(blocked, h.span) || overlapsSpan(claimed, h.span) {
			continue
		}
		claimed = append(claimed, h.span)
		if !seen[h.term] {
			seen[h.term] = true
			names = append(names, h.term)
		}
	}
	return names, claimed
}

func overlapsSpan(spans []span, s span) bool {
	for _, o := range spans {
		if s.start < o.end && o.start < s.end {
			return true
		}
	}
	return false
}

// service describes how service came back, given the chosen actual
// resumption candidate. A shuttle offer counts unless a later cancellation
// retracts it.
func (e *Extractor) service(d *document, actual candidate) (*domain.ServiceType, *string) {
	x := &e.lex.Extraction
	all := d.all()
	masked := x.ShuttleCancel.Mask(all)

	lastOffer := -1
	for _, set := range []lexicon.TermSet{x.ShuttleBus, x.ShuttleRail, x.Shuttle} {
		for _, t := range set {
			if i := strings.LastIndex(masked, t); i > lastOffer {
				lastOffer = i
			}
		}
	}
	lastCancel := -1
	for _, t := range x.ShuttleCancel {
		if i := strings.LastIndex(all, t); i > lastCancel {
			lastCancel = i
		}
	}

	var st domain.ServiceType
	var details string
	switch {
	case lastOffer >= 0 && lastOffer > lastCancel:
		st = domain.ServiceShuttle
		switch {
		case x.ShuttleBus.In(masked):
			details = "公路接駁"
		case x.ShuttleRail.In(masked):
			details = "鐵路接駁"
		default:
			details = "接駁"
		}
	case actual.stage == stagePartial:
		st = domain.ServicePartialOperation
		details = strings.Trim(actual.scope, " ,、")
	default:
		st = domain.ServiceNormalTrain
		details = strings.Trim(actual.scope, " ,、")
	}
	return &st, &details
}
