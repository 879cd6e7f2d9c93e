package app

import (
	"context"
	"sort"

	"identity-map-service/internal/catalog"
	"identity-map-service/internal/domain"
)

// Aggregator keeps the Global Aggregate and per-question stats consistent
// with the current answer record of every user, incrementally. It never
// rescans other users' records: each submission folds in as a delta between
// the user's old and new contributions, which is what keeps resubmission
// from double-counting.
type Aggregator struct {
	catalog *catalog.Catalog
	store   AggregateStore
}

func NewAggregator(c *catalog.Catalog, store AggregateStore) *Aggregator {
	return &Aggregator{catalog: c, store: store}
}

// Apply folds one user's record change into the shared aggregates.
// oldScore is nil for a first submission. For resubmissions the old
// contribution is removed in the same delta that adds the new one.
func (a *Aggregator) Apply(ctx context.Context, oldAnswers domain.AnswerSet, oldScore *domain.Score, newAnswers domain.AnswerSet, newScore domain.Score) error {
	dx, dy := newScore.X, newScore.Y
	var userDelta int64 = 1
	if oldScore != nil {
		dx -= oldScore.X
		dy -= oldScore.Y
		userDelta = 0
	}
	if err := a.store.ApplyGlobalDelta(ctx, dx, dy, userDelta); err != nil {
		return err
	}

	for _, qid := range unionQuestionIDs(oldAnswers, newAnswers) {
		q, ok := a.catalog.Question(qid)
		if !ok || !q.Type.Tallyable() {
			continue
		}

		votes := make(map[string]int64)
		for _, field := range q.TallyFields(oldAnswers[qid]) {
			votes[field]--
		}
		for _, field := range q.TallyFields(newAnswers[qid]) {
			votes[field]++
		}
		for field, delta := range votes {
			if delta == 0 {
				delete(votes, field)
			}
		}

		var respondentDelta int64
		_, hadOld := oldAnswers[qid]
		_, hasNew := newAnswers[qid]
		switch {
		case hadOld && !hasNew:
			respondentDelta = -1
		case !hadOld && hasNew:
			respondentDelta = 1
		}

		if len(votes) == 0 && respondentDelta == 0 {
			continue
		}
		if err := a.store.ApplyStatDeltas(ctx, qid, votes, respondentDelta); err != nil {
			return err
		}
	}
	return nil
}

// unionQuestionIDs returns the sorted union of question IDs present in
// either record.
func unionQuestionIDs(prev, next domain.AnswerSet) []string {
	seen := make(map[string]struct{}, len(prev)+len(next))
	ids := make([]string, 0, len(prev)+len(next))
	for qid := range prev {
		seen[qid] = struct{}{}
		ids = append(ids, qid)
	}
	for qid := range next {
		if _, dup := seen[qid]; !dup {
			ids = append(ids, qid)
		}
	}
	sort.Strings(ids)
	return ids
}
