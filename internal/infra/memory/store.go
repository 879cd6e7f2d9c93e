package memory

import (
	"context"
	"sync"

	"identity-map-service/internal/domain"
)

// Store is an in-memory implementation of app.Store: the same contract as
// the Redis store, backed by maps and a mutex. Used in tests and when no
// Redis address is configured.
type Store struct {
	mu      sync.RWMutex
	answers map[string]domain.AnswerSet
	scores  map[string]domain.Score
	stats   map[string]*questionStats
	global  domain.GlobalAggregate
}

type questionStats struct {
	votes       map[string]int64
	respondents int64
}

func NewStore() *Store {
	return &Store{
		answers: make(map[string]domain.AnswerSet),
		scores:  make(map[string]domain.Score),
		stats:   make(map[string]*questionStats),
	}
}

func (s *Store) PutAnswers(_ context.Context, userID string, answers domain.AnswerSet) (domain.AnswerSet, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.answers[userID]
	s.answers[userID] = answers.Clone()
	return prev, existed, nil
}

func (s *Store) GetAnswers(_ context.Context, userID string) (domain.AnswerSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	answers, ok := s.answers[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return answers.Clone(), nil
}

func (s *Store) PutScore(_ context.Context, userID string, score domain.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[userID] = score
	return nil
}

func (s *Store) GetScore(_ context.Context, userID string) (domain.Score, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	score, ok := s.scores[userID]
	return score, ok, nil
}

func (s *Store) ApplyGlobalDelta(_ context.Context, dx, dy float64, userDelta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.global.SumX += dx
	s.global.SumY += dy
	s.global.UserCount += userDelta
	return nil
}

func (s *Store) GlobalAggregate(_ context.Context) (domain.GlobalAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.global, nil
}

func (s *Store) ApplyStatDeltas(_ context.Context, questionID string, votes map[string]int64, respondentDelta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	qs, ok := s.stats[questionID]
	if !ok {
		qs = &questionStats{votes: make(map[string]int64)}
		s.stats[questionID] = qs
	}
	for field, delta := range votes {
		qs.votes[field] += delta
	}
	qs.respondents += respondentDelta
	return nil
}

func (s *Store) QuestionStats(_ context.Context, questionID string) (domain.QuestionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := domain.QuestionStats{
		QuestionID: questionID,
		VoteCounts: make(map[string]int64),
	}
	qs, ok := s.stats[questionID]
	if !ok {
		return stats, nil
	}
	for field, count := range qs.votes {
		stats.VoteCounts[field] = count
	}
	stats.Respondents = qs.respondents
	return stats, nil
}
