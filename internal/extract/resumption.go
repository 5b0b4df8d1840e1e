package extract

import (
	"sort"
	"strings"
	"time"
)

type stage int

const (
	stageGeneric stage = iota + 1
	stagePartial
	stageFull
)

type resumptionKind int

const (
	kindNone resumptionKind = iota
	kindRepair
	kindTrain
)

// candidate is one time mention together with the text it governs.
type candidate struct {
	at time.Time
	// own is the clause segment the time expression sits in.
	own string
	// scope is own, extended by the following time-less clause of the same
	// sentence when own carries no resumption language.
	scope string
	// prefix is the clause text before own.
	prefix string
	// suffix is the rest of the sentence after own.
	suffix string
	order  int

	kind      resumptionKind
	stage     stage
	completed bool
}

// rule rejects a candidate when match returns true. Rules are evaluated in
// order and the first rejection ends evaluation.
type rule struct {
	name  string
	match func(c candidate) bool
}

// titleFilter suppresses the predicted time for a whole document.
type titleFilter struct {
	name     string
	suppress func(d *document) bool
}

func (e *Extractor) titleFilters() []titleFilter {
	x, tf := &e.lex.Extraction, &e.lex.TitleFilters
	return []titleFilter{
		{
			name: "typhoon-suspension",
			suppress: func(d *document) bool {
				return tf.Typhoon.In(d.title) && tf.TyphoonService.In(d.title) &&
					!tf.TrainResumption.In(d.all())
			},
		},
		{
			name: "repair-progress",
			suppress: func(d *document) bool {
				if !tf.RepairSubject.In(d.title) || !tf.RepairProgress.In(d.title) {
					return false
				}
				for _, s := range d.sentences {
					text := s.text()
					if x.Estimate.In(text) && x.Resumption.In(x.Suspension.Mask(text)) {
						return false
					}
				}
				return true
			},
		},
		{
			name: "shuttle-notice",
			suppress: func(d *document) bool {
				return tf.Shuttle.In(d.title) && !tf.TrainResumption.In(d.all())
			},
		},
	}
}

func (e *Extractor) exclusions() []rule {
	x := &e.lex.Extraction
	return []rule{
		{name: "no-resumption", match: func(c candidate) bool { return c.kind == kindNone }},
		{name: "train-arrival", match: func(c candidate) bool { return x.Arrival.In(c.scope) }},
		{name: "suspension-start", match: func(c candidate) bool { return e.describesSuspension(c.own) }},
		{name: "conditional", match: func(c candidate) bool { return x.Conditional.In(c.scope) }},
	}
}

func (e *Extractor) predictedRules() []rule {
	x := &e.lex.Extraction
	return append([]rule{
		{name: "no-estimate", match: func(c candidate) bool { return !e.isEstimate(c) }},
		// A caveat later in the sentence ("，惟仍需視現場狀況而定") qualifies the
		// estimate as well.
		{name: "conditional-tail", match: func(c candidate) bool { return x.Conditional.In(c.suffix) }},
	}, e.exclusions()...)
}

func (e *Extractor) actualRules() []rule {
	return append([]rule{
		{name: "estimate", match: e.isEstimate},
	}, e.exclusions()...)
}

// predicted returns the best predicted-resumption candidate: not yet
// completed first, then train resumption over repair completion, then the
// fuller stage, then the later time.
func (e *Extractor) predicted(d *document) (candidate, bool) {
	for _, f := range e.titleFilters() {
		if f.suppress(d) {
			return candidate{}, false
		}
	}
	cs := filter(e.candidates(d), e.predictedRules())
	if len(cs) == 0 {
		return candidate{}, false
	}
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.completed != b.completed {
			return !a.completed
		}
		if a.kind != b.kind {
			return a.kind > b.kind
		}
		if a.stage != b.stage {
			return a.stage > b.stage
		}
		if !a.at.Equal(b.at) {
			return a.at.After(b.at)
		}
		return a.order < b.order
	})
	return cs[0], true
}

// actual returns the best actual-resumption candidate: train resumption over
// repair completion, then the earliest time.
func (e *Extractor) actual(d *document) (candidate, bool) {
	cs := filter(e.candidates(d), e.actualRules())
	if len(cs) == 0 {
		return candidate{}, false
	}
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.kind != b.kind {
			return a.kind > b.kind
		}
		if !a.at.Equal(b.at) {
			return a.at.Before(b.at)
		}
		return a.order < b.order
	})
	return cs[0], true
}

func filter(cs []candidate, rules []rule) []candidate {
	out := cs[:0]
next:
	for _, c := range cs {
		for _, r := range rules {
			if r.match(c) {
				continue next
			}
		}
		out = append(out, c)
	}
	return out
}

// candidates builds one candidate per time mention in the body.
func (e *Extractor) candidates(d *document) []candidate {
	x := &e.lex.Extraction
	var out []candidate
	order := 0
	for _, s := range d.sentences {
		for ci, cl := range s.clauses {
			cuts := segmentCuts(cl)
			for mi, m := range cl.mentions {
				own := cl.text[cuts[mi]:cuts[mi+1]]
				scope := own
				last := mi == len(cl.mentions)-1
				if last && e.kindOf(own) == kindNone && ci+1 < len(s.clauses) && len(s.clauses[ci+1].mentions) == 0 {
					scope = own + "," + s.clauses[ci+1].text
				}
				out = append(out, candidate{
					at:        m.at,
					own:       own,
					scope:     scope,
					prefix:    cl.text[:cuts[mi]],
					suffix:    s.tail(ci, cuts[mi+1]),
					order:     order,
					kind:      e.kindOf(scope),
					stage:     e.stageOf(scope),
					completed: x.Completed.In(own),
				})
				order++
			}
		}
	}
	return out
}

// segmentCuts splits a clause with several time mentions into one segment per
// mention. Each boundary sits just after the last enumeration mark between two
// mentions, or at the end of the earlier mention when there is none.
func segmentCuts(cl clause) []int {
	cuts := make([]int, len(cl.mentions)+1)
	cuts[len(cl.mentions)] = len(cl.text)
	for i := 1; i < len(cl.mentions); i++ {
		prevEnd, start := cl.mentions[i-1].end, cl.mentions[i].start
		cut := prevEnd
		if start > prevEnd {
			between := cl.text[prevEnd:start]
			if j := lastSeparator(between); j >= 0 {
				cut = prevEnd + j
			}
		}
		cuts[i] = cut
	}
	return cuts
}

func lastSeparator(s string) int {
	best := -1
	for _, sep := range []string{"、", "及", "並", "再"} {
		if i := strings.LastIndex(s, sep); i >= 0 && i+len(sep) > best {
			best = i + len(sep)
		}
	}
	return best
}

// isEstimate reports whether the candidate is a forecast: its own segment
// carries an estimate cue, or an earlier part of the clause does and the
// segment is not marked as already done.
func (e *Extractor) isEstimate(c candidate) bool {
	x := &e.lex.Extraction
	if x.Estimate.In(c.own) {
		return true
	}
	return x.Estimate.In(c.prefix) && !x.Completed.In(c.own)
}

// describesSuspension reports whether s talks about service stopping rather
// than resuming.
func (e *Extractor) describesSuspension(s string) bool {
	x := &e.lex.Extraction
	return x.Suspension.In(s) && !x.Resumption.In(x.Suspension.Mask(s))
}

func (e *Extractor) kindOf(s string) resumptionKind {
	x := &e.lex.Extraction
	switch {
	case x.Resumption.In(x.Suspension.Mask(s)):
		return kindTrain
	case x.RepairCompletion.In(s):
		return kindRepair
	default:
		return kindNone
	}
}

func (e *Extractor) stageOf(s string) stage {
	x := &e.lex.Extraction
	switch {
	case x.PartialStage.In(s):
		return stagePartial
	case x.FullStage.In(s):
		return stageFull
	default:
		return stageGeneric
	}
}

// tail returns the sentence text after byte offset off of clause ci.
func (s sentence) tail(ci, off int) string {
	parts := []string{s.clauses[ci].text[off:]}
	for _, c := range s.clauses[ci+1:] {
		parts = append(parts, c.text)
	}
	return strings.Join(parts, ",")
}

func (s sentence) text() string {
	parts := make([]string, len(s.clauses))
	for i, c := range s.clauses {
		parts[i] = c.text
	}
	return strings.Join(parts, ",")
}
