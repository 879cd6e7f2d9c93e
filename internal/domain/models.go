package domain

import (
	"sort"
	"strings"
)

// QuestionType classifies how a question is answered and aggregated.
type QuestionType string

const (
	// SingleChoice questions take exactly one option from a declared set.
	SingleChoice QuestionType = "single_choice"
	// Combination questions take a subset of options; the valid option set
	// is discovered from observed answers, not predeclared.
	Combination QuestionType = "combination"
	// Scale and FreeText are reserved types: persisted but never scored or
	// tallied.
	Scale    QuestionType = "scale"
	FreeText QuestionType = "free_text"
)

// Scorable reports whether answers of this type contribute to coordinates.
func (t QuestionType) Scorable() bool {
	return t == SingleChoice || t == Combination
}

// Tallyable reports whether answers of this type have vote-count semantics.
func (t QuestionType) Tallyable() bool {
	return t == SingleChoice || t == Combination
}

// Known reports whether the type is one the catalog accepts.
func (t QuestionType) Known() bool {
	switch t {
	case SingleChoice, Combination, Scale, FreeText:
		return true
	}
	return false
}

// Weight is the (x, y) contribution of one option or whole combination.
type Weight struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Question is one catalog entry. Options is only meaningful for
// SingleChoice; Weights is keyed by option, or by canonical combo key for a
// whole-combination weight.
type Question struct {
	ID      string            `json:"id" yaml:"id"`
	Type    QuestionType      `json:"type" yaml:"type"`
	Options []string          `json:"options,omitempty" yaml:"options"`
	Weights map[string]Weight `json:"weights,omitempty" yaml:"weights"`
}

// HasOption reports whether opt is in the declared option set.
func (q Question) HasOption(opt string) bool {
	for _, o := range q.Options {
		if o == opt {
			return true
		}
	}
	return false
}

// Vote-count fields are prefixed by answer kind so combination options can be
// discovered from a stats record without a predeclared list.
const (
	OptionFieldPrefix = "option:"
	ComboFieldPrefix  = "combo:"
)

// TallyFields returns the vote-count fields one answer contributes to: one
// option field for SingleChoice, one combo field per selected option for
// Combination, nothing for reserved types.
func (q Question) TallyFields(selected []string) []string {
	if !q.Type.Tallyable() || len(selected) == 0 {
		return nil
	}
	prefix := OptionFieldPrefix
	if q.Type == Combination {
		prefix = ComboFieldPrefix
	}
	fields := make([]string, 0, len(selected))
	for _, opt := range selected {
		fields = append(fields, prefix+opt)
	}
	return fields
}

// AnswerSet maps question ID to the selected option(s). SingleChoice entries
// carry exactly one element once normalized.
type AnswerSet map[string][]string

// Clone returns a deep copy so stored records never alias caller memory.
func (a AnswerSet) Clone() AnswerSet {
	if a == nil {
		return nil
	}
	out := make(AnswerSet, len(a))
	for qid, selected := range a {
		out[qid] = append([]string(nil), selected...)
	}
	return out
}

// ComboKey is the canonical identity of a combination: options sorted and
// comma-joined.
func ComboKey(options []string) string {
	sorted := append([]string(nil), options...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// Score is a user's identity coordinate.
type Score struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns the score shifted by one weight contribution.
func (s Score) Add(w Weight) Score {
	return Score{X: s.X + w.X, Y: s.Y + w.Y}
}

// QuestionStats is the raw tally state for one question. VoteCounts is keyed
// by prefixed field (option:* or combo:*).
type QuestionStats struct {
	QuestionID  string
	VoteCounts  map[string]int64
	Respondents int64
}

// GlobalAggregate is the running sum/count behind the average coordinate.
type GlobalAggregate struct {
	SumX      float64
	SumY      float64
	UserCount int64
}

// Average returns the mean coordinate, or ok=false when no user has a score.
func (g GlobalAggregate) Average() (Score, bool) {
	if g.UserCount == 0 {
		return Score{}, false
	}
	n := float64(g.UserCount)
	return Score{X: g.SumX / n, Y: g.SumY / n}, true
}

// AverageSnapshot is a feed-friendly view of the global average.
type AverageSnapshot struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	UserCount int64   `json:"userCount"`
}
