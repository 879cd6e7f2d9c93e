package catalog

import (
	"fmt"
	"sort"

	"identity-map-service/internal/domain"
)

// Catalog is the immutable question configuration: identifiers, types,
// declared options, and scoring weights. It is validated once on
// construction and never mutated afterwards.
type Catalog struct {
	questions map[string]domain.Question
	ids       []string
}

// New validates the question list and builds a catalog from it.
func New(questions []domain.Question) (*Catalog, error) {
	byID := make(map[string]domain.Question, len(questions))
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		if q.ID == "" {
			return nil, fmt.Errorf("catalog: question with empty id")
		}
		if !q.Type.Known() {
			return nil, fmt.Errorf("catalog: question %s has unknown type %q", q.ID, q.Type)
		}
		if _, dup := byID[q.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate question id %s", q.ID)
		}
		if q.Type == domain.SingleChoice {
			if len(q.Options) == 0 {
				return nil, fmt.Errorf("catalog: single-choice question %s has no options", q.ID)
			}
			for opt := range q.Weights {
				if !q.HasOption(opt) {
					return nil, fmt.Errorf("catalog: question %s weighs undeclared option %q", q.ID, opt)
				}
			}
		}
		byID[q.ID] = q
		ids = append(ids, q.ID)
	}
	sort.Strings(ids)
	return &Catalog{questions: byID, ids: ids}, nil
}

// Question looks up one catalog entry by ID.
func (c *Catalog) Question(id string) (domain.Question, bool) {
	q, ok := c.questions[id]
	return q, ok
}

// IDs returns all question IDs in sorted order.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.ids...)
}

// Len returns the number of questions.
func (c *Catalog) Len() int {
	return len(c.questions)
}

// Normalize validates a raw answer set and returns the canonical form that
// gets stored and tallied:
//
//   - empty selections are dropped (an empty pick is no answer),
//   - single-choice answers must be exactly one declared option,
//   - combination selections are deduplicated and sorted,
//   - answers to questions the catalog does not know are passed through
//     verbatim so records survive catalog evolution.
func (c *Catalog) Normalize(answers domain.AnswerSet) (domain.AnswerSet, error) {
	out := make(domain.AnswerSet, len(answers))
	for qid, selected := range answers {
		if len(selected) == 0 {
			continue
		}
		q, ok := c.questions[qid]
		if !ok {
			out[qid] = append([]string(nil), selected...)
			continue
		}
		switch q.Type {
		case domain.SingleChoice:
			if len(selected) != 1 {
				return nil, fmt.Errorf("%w: question %s expects exactly one option", domain.ErrInvalidAnswer, qid)
			}
			if !q.HasOption(selected[0]) {
				return nil, fmt.Errorf("%w: option %q not declared for question %s", domain.ErrInvalidAnswer, selected[0], qid)
			}
			out[qid] = []string{selected[0]}
		case domain.Combination:
			out[qid] = dedupeSorted(selected)
		default:
			out[qid] = append([]string(nil), selected...)
		}
	}
	return out, nil
}

func dedupeSorted(selected []string) []string {
	seen := make(map[string]struct{}, len(selected))
	out := make([]string, 0, len(selected))
	for _, opt := range selected {
		if _, dup := seen[opt]; dup {
			continue
		}
		seen[opt] = struct{}{}
		out = append(out, opt)
	}
	sort.Strings(out)
	return out
}
