package scoring

import (
	"sort"

	"identity-map-service/internal/catalog"
	"identity-map-service/internal/domain"
)

// Engine converts one user's answer set into an identity coordinate using
// the catalog's weights. It is pure: no I/O, no state beyond the catalog it
// was built with, so the same answers always map to the same coordinate.
type Engine struct {
	catalog *catalog.Catalog
}

func NewEngine(c *catalog.Catalog) *Engine {
	return &Engine{catalog: c}
}

// Score sums the weight contributions of every answered question. Unknown
// question IDs and unweighted options contribute zero; questions left
// unanswered contribute zero. The result is an unweighted sum, so answering
// more questions neither penalizes nor boosts a user.
//
// Combination policy: if the catalog declares a weight under the canonical
// combo key of the whole selection, that single weight is used; otherwise
// per-option weights are summed.
func (e *Engine) Score(answers domain.AnswerSet) domain.Score {
	// Questions are visited in sorted ID order so float summation is
	// reproducible run to run.
	ids := make([]string, 0, len(answers))
	for qid := range answers {
		ids = append(ids, qid)
	}
	sort.Strings(ids)

	var total domain.Score
	for _, qid := range ids {
		selected := answers[qid]
		q, ok := e.catalog.Question(qid)
		if !ok || !q.Type.Scorable() || len(selected) == 0 {
			continue
		}
		switch q.Type {
		case domain.SingleChoice:
			if w, ok := q.Weights[selected[0]]; ok {
				total = total.Add(w)
			}
		case domain.Combination:
			if w, ok := q.Weights[domain.ComboKey(selected)]; ok {
				total = total.Add(w)
				continue
			}
			for _, opt := range selected {
				if w, ok := q.Weights[opt]; ok {
					total = total.Add(w)
				}
			}
		}
	}
	return total
}
