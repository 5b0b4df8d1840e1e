package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/rail-notice-etl/internal/domain"
	"github.com/couchcryptid/rail-notice-etl/internal/lexicon"
)

const (
	firstTrainHour, firstTrainMinute     = 5, 30
	earlyMorningHour, earlyMorningMinute = 5, 0

	// A year-less date further than this from the reference date belongs to
	// the adjacent year (a notice posted 12/30 about 1月2日).
	yearWindow = 183 * 24 * time.Hour
)

var (
	// dateRe matches "5月21日", "114年5月21日", "2025年5月21日(三)".
	dateRe = regexp.MustCompile(`(?:(\d{2,4})\s*年\s*)?(\d{1,2})\s*月\s*(\d{1,2})\s*[日號](?:\s*\([一二三四五六日天]\))?`)

	// clockRe matches "16:48", "16時05分", "18時", "18點半" with an optional
	// part-of-day modifier.
	clockRe = regexp.MustCompile(`(上午|下午|晚上|晚間|中午|凌晨|清晨|早上)?\s*(\d{1,2})\s*(?::\s*(\d{2})|[時點]\s*(?:(\d{1,2})\s*分|(半))?)`)

	relativeDayRe = regexp.MustCompile(`今日|今天|本日|今晚|今晨|明日|明天|明晨|翌日|隔日|後天`)

	bareEarlyMorningRe = regexp.MustCompile(`凌晨|清晨`)
)

var relativeDays = map[string]int{
	"今日": 0, "今天": 0, "本日": 0, "今晚": 0, "今晨": 0,
	"明日": 1, "明天": 1, "明晨": 1, "翌日": 1, "隔日": 1,
	"後天": 2,
}

// civilDate is a calendar day in Taipei.
type civilDate struct {
	year  int
	month time.Month
	day   int
}

func civilOf(t time.Time) civilDate {
	t = t.In(domain.Taipei)
	return civilDate{year: t.Year(), month: t.Month(), day: t.Day()}
}

// at returns the instant at hour:minute on the day. Hour 24 rolls over to
// 00:00 of the next day.
func (d civilDate) at(hour, minute int) time.Time {
	return time.Date(d.year, d.month, d.day, hour, minute, 0, 0, domain.Taipei)
}

type tokenKind int

const (
	tokDate tokenKind = iota + 1
	tokClock
	tokFirstTrain
	tokEarlyMorning
)

type token struct {
	kind         tokenKind
	start, end   int
	date         civilDate
	hour, minute int
}

// mention is a resolved time expression inside a clause.
type mention struct {
	at         time.Time
	start, end int
}

type timeScanner struct {
	ref        time.Time
	firstTrain lexicon.TermSet
}

// scanSentence resolves time mentions clause by clause. A date seen earlier in
// the sentence applies to later clock times that carry none.
func (s *timeScanner) scanSentence(clauses []string) [][]mention {
	out := make([][]mention, len(clauses))
	carry := civilOf(s.ref)
	for i, cl := range clauses {
		out[i], carry = s.scanClause(cl, carry)
	}
	return out
}

func (s *timeScanner) scanClause(clause string, carry civilDate) ([]mention, civilDate) {
	toks := s.tokens(clause)

	hasDate, hasClock := false, false
	for _, t := range toks {
		switch t.kind {
		case tokDate:
			hasDate = true
		case tokClock:
			hasClock = true
		}
	}

	var out []mention
	current := carry
	for _, t := range toks {
		switch t.kind {
		case tokDate:
			current = t.date
		case tokClock:
			out = append(out, mention{at: current.at(t.hour, t.minute), start: t.start, end: t.end})
		case tokFirstTrain:
			if !hasClock {
				out = append(out, mention{at: current.at(firstTrainHour, firstTrainMinute), start: t.start, end: t.end})
			}
		case tokEarlyMorning:
			if !hasClock && hasDate {
				out = append(out, mention{at: current.at(earlyMorningHour, earlyMorningMinute), start: t.start, end: t.end})
			}
		}
	}
	if hasDate {
		carry = current
	}
	return dedupeMentions(out), carry
}

// dedupeMentions drops a derived first-train or early-morning mention that
// resolves to the same instant as the one before it.
func dedupeMentions(ms []mention) []mention {
	if len(ms) < 2 {
		return ms
	}
	out := ms[:1]
	for _, m := range ms[1:] {
		if m.at.Equal(out[len(out)-1].at) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (s *timeScanner) tokens(clause string) []token {
	var toks []token

	for _, m := range dateRe.FindAllStringSubmatchIndex(clause, -1) {
		if d, ok := s.resolveDate(clause, m); ok {
			toks = append(toks, token{kind: tokDate, start: m[0], end: m[1], date: d})
		}
	}
	for _, m := range relativeDayRe.FindAllStringIndex(clause, -1) {
		if overlaps(toks, m[0], m[1]) {
			continue
		}
		offset := relativeDays[clause[m[0]:m[1]]]
		toks = append(toks, token{kind: tokDate, start: m[0], end: m[1], date: civilOf(s.ref.AddDate(0, 0, offset))})
	}
	for _, m := range clockRe.FindAllStringSubmatchIndex(clause, -1) {
		digitsStart := m[4]
		if digitsStart > 0 && isASCIIDigit(clause[digitsStart-1]) {
			continue
		}
		if overlaps(toks, m[0], m[1]) {
			continue
		}
		hour, minute, ok := parseClock(clause, m)
		if !ok {
			continue
		}
		toks = append(toks, token{kind: tokClock, start: m[0], end: m[1], hour: hour, minute: minute})
	}
	for _, term := range s.firstTrain {
		if i := strings.Index(clause, term); i >= 0 && !overlaps(toks, i, i+len(term)) {
			toks = append(toks, token{kind: tokFirstTrain, start: i, end: i + len(term)})
			break
		}
	}
	for _, m := range bareEarlyMorningRe.FindAllStringIndex(clause, -1) {
		if !overlaps(toks, m[0], m[1]) {
			toks = append(toks, token{kind: tokEarlyMorning, start: m[0], end: m[1]})
		}
	}

	sort.SliceStable(toks, func(i, j int) bool { return toks[i].start < toks[j].start })
	return toks
}

func (s *timeScanner) resolveDate(clause string, m []int) (civilDate, bool) {
	month, _ := strconv.Atoi(clause[m[4]:m[5]])
	day, _ := strconv.Atoi(clause[m[6]:m[7]])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return civilDate{}, false
	}

	var year int
	if m[2] >= 0 {
		year, _ = strconv.Atoi(clause[m[2]:m[3]])
		if year < 1000 {
			year += 1911 // Republic of China era
		}
	} else {
		year = s.nearestYear(time.Month(month), day)
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, domain.Taipei)
	if t.Month() != time.Month(month) || t.Day() != day {
		return civilDate{}, false
	}
	return civilDate{year: year, month: time.Month(month), day: day}, true
}

func (s *timeScanner) nearestYear(month time.Month, day int) int {
	year := s.ref.Year()
	candidate := time.Date(year, month, day, 0, 0, 0, 0, domain.Taipei)
	switch {
	case candidate.Sub(s.ref) > yearWindow:
		return year - 1
	case s.ref.Sub(candidate) > yearWindow:
		return year + 1
	default:
		return year
	}
}

func parseClock(clause string, m []int) (hour, minute int, ok bool) {
	hour, _ = strconv.Atoi(clause[m[4]:m[5]])
	switch {
	case m[6] >= 0:
		minute, _ = strconv.Atoi(clause[m[6]:m[7]])
	case m[8] >= 0:
		minute, _ = strconv.Atoi(clause[m[8]:m[9]])
	case m[10] >= 0:
		minute = 30
	}

	if m[2] >= 0 {
		switch clause[m[2]:m[3]] {
		case "下午", "晚上", "晚間":
			if hour < 12 {
				hour += 12
			}
		case "中午":
			if hour < 11 {
				hour += 12
			}
		case "凌晨":
			if hour == 12 {
				hour = 0
			}
		}
	}

	if hour > 24 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, 0, false
	}
	return hour, minute, true
}

func overlaps(toks []token, start, end int) bool {
	for _, t := range toks {
		if start < t.end && t.start < end {
			return true
		}
	}
	return false
}

func isASCIIDigit(b byte) bool { return b >= '0' && b <= '9' }
