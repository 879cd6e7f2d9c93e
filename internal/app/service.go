package app

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/singleflight"

	"identity-map-service/internal/catalog"
	"identity-map-service/internal/domain"
	"identity-map-service/internal/scoring"
)

// Service wires the answer store, scoring engine, and aggregator into the
// submission and read use cases. Submissions for the same user serialize on
// a per-user lock; different users proceed in parallel, and reads never take
// those locks.
type Service struct {
	catalog *catalog.Catalog
	engine  *scoring.Engine
	store   Store
	agg     *Aggregator
	feed    *feed

	sf singleflight.Group

	mu    sync.Mutex
	users map[string]*sync.Mutex
}

func NewService(c *catalog.Catalog, store Store) *Service {
	return &Service{
		catalog: c,
		engine:  scoring.NewEngine(c),
		store:   store,
		agg:     NewAggregator(c, store),
		feed:    newFeed(),
		users:   make(map[string]*sync.Mutex),
	}
}

// Submit replaces the user's answer record and folds the change into the
// shared aggregates. Resubmitting the same answers is a no-op on every
// aggregate; resubmitting different answers removes the old contribution
// before adding the new one.
func (s *Service) Submit(ctx context.Context, userID string, answers domain.AnswerSet) (domain.Score, error) {
	if userID == "" {
		return domain.Score{}, fmt.Errorf("%w: empty user id", domain.ErrInvalidAnswer)
	}
	normalized, err := s.catalog.Normalize(answers)
	if err != nil {
		return domain.Score{}, err
	}

	unlock := s.lockUser(userID)
	defer unlock()

	prev, existed, err := s.store.PutAnswers(ctx, userID, normalized)
	if err != nil {
		return domain.Score{}, fmt.Errorf("store answers: %w", err)
	}

	newScore := s.engine.Score(normalized)
	var oldScore *domain.Score
	if existed {
		// Recompute rather than trust the cache; scoring is deterministic.
		sc := s.engine.Score(prev)
		oldScore = &sc
	}

	if err := s.store.PutScore(ctx, userID, newScore); err != nil {
		return domain.Score{}, fmt.Errorf("cache score: %w", err)
	}
	if err := s.agg.Apply(ctx, prev, oldScore, normalized, newScore); err != nil {
		return domain.Score{}, fmt.Errorf("apply aggregates: %w", err)
	}

	s.publishAverage(ctx)
	return newScore, nil
}

// UserScore returns the user's coordinate, recomputing from the stored
// answers on cache miss. Concurrent misses for the same user collapse into
// one recompute.
func (s *Service) UserScore(ctx context.Context, userID string) (domain.Score, error) {
	if score, ok, err := s.store.GetScore(ctx, userID); err != nil {
		return domain.Score{}, fmt.Errorf("read score: %w", err)
	} else if ok {
		return score, nil
	}

	v, err, _ := s.sf.Do("score:"+userID, func() (interface{}, error) {
		answers, err := s.store.GetAnswers(ctx, userID)
		if err != nil {
			return nil, err
		}
		score := s.engine.Score(answers)
		if err := s.store.PutScore(ctx, userID, score); err != nil {
			log.Printf("score cache write for %s failed: %v", userID, err)
		}
		return score, nil
	})
	if err != nil {
		return domain.Score{}, err
	}
	return v.(domain.Score), nil
}

// GlobalAverage returns the mean coordinate over all current users, and how
// many users it averages. Returns domain.ErrAggregateUnavailable before the
// first submission rather than dividing by zero.
func (s *Service) GlobalAverage(ctx context.Context) (domain.Score, int64, error) {
	agg, err := s.store.GlobalAggregate(ctx)
	if err != nil {
		return domain.Score{}, 0, fmt.Errorf("read aggregate: %w", err)
	}
	avg, ok := agg.Average()
	if !ok {
		return domain.Score{}, 0, domain.ErrAggregateUnavailable
	}
	return avg, agg.UserCount, nil
}

// QuestionStats returns the raw tallies for one catalog question; zeroed
// stats when nobody answered it yet.
func (s *Service) QuestionStats(ctx context.Context, questionID string) (domain.QuestionStats, error) {
	if _, ok := s.catalog.Question(questionID); !ok {
		return domain.QuestionStats{}, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, questionID)
	}
	stats, err := s.store.QuestionStats(ctx, questionID)
	if err != nil {
		return domain.QuestionStats{}, fmt.Errorf("read stats: %w", err)
	}
	return stats, nil
}

// Distribution returns the formatted percentage breakdown for one question.
func (s *Service) Distribution(ctx context.Context, questionID string) (Distribution, error) {
	q, ok := s.catalog.Question(questionID)
	if !ok {
		return Distribution{}, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, questionID)
	}
	stats, err := s.store.QuestionStats(ctx, questionID)
	if err != nil {
		return Distribution{}, fmt.Errorf("read stats: %w", err)
	}
	return FormatDistribution(q, stats)
}

// Subscribe returns a channel that receives the global average after each
// applied submission, seeded with the current value. The caller must invoke
// the returned cancel function to avoid leaks.
func (s *Service) Subscribe(ctx context.Context) (<-chan domain.AverageSnapshot, func(), error) {
	agg, err := s.store.GlobalAggregate(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read aggregate: %w", err)
	}
	ch, cancel := s.feed.subscribe(snapshot(agg))
	return ch, cancel, nil
}

func (s *Service) publishAverage(ctx context.Context) {
	agg, err := s.store.GlobalAggregate(ctx)
	if err != nil {
		log.Printf("aggregate read for feed failed: %v", err)
		return
	}
	s.feed.publish(snapshot(agg))
}

func snapshot(agg domain.GlobalAggregate) domain.AverageSnapshot {
	avg, _ := agg.Average()
	return domain.AverageSnapshot{X: avg.X, Y: avg.Y, UserCount: agg.UserCount}
}

// lockUser serializes submissions per user ID. Locks are retained for the
// process lifetime, matching the retention of the answer records themselves.
func (s *Service) lockUser(userID string) func() {
	s.mu.Lock()
	l, ok := s.users[userID]
	if !ok {
		l = &sync.Mutex{}
		s.users[userID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}
