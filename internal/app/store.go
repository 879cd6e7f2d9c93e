package app

import (
	"context"

	"identity-map-service/internal/domain"
)

// AnswerStore persists raw answer records and cached scores. PutAnswers
// installs the new record and returns the prior one in the same operation,
// so callers can compute deltas without a separate read.
type AnswerStore interface {
	PutAnswers(ctx context.Context, userID string, answers domain.AnswerSet) (prev domain.AnswerSet, existed bool, err error)
	// GetAnswers returns domain.ErrUserNotFound for users that never submitted.
	GetAnswers(ctx context.Context, userID string) (domain.AnswerSet, error)
	PutScore(ctx context.Context, userID string, score domain.Score) error
	GetScore(ctx context.Context, userID string) (domain.Score, bool, error)
}

// AggregateStore holds the shared counters: the global sum/count and the
// per-question tallies. Every delta must be applied as an atomic
// read-modify-write (HINCRBY-style); ordering across keys is not required.
type AggregateStore interface {
	ApplyGlobalDelta(ctx context.Context, dx, dy float64, userDelta int64) error
	GlobalAggregate(ctx context.Context) (domain.GlobalAggregate, error)
	ApplyStatDeltas(ctx context.Context, questionID string, votes map[string]int64, respondentDelta int64) error
	// QuestionStats returns zeroed stats for questions nobody answered yet.
	QuestionStats(ctx context.Context, questionID string) (domain.QuestionStats, error)
}

// Store is the full shared key-value surface the engine runs against. The
// redis and memory implementations under internal/infra both satisfy it.
type Store interface {
	AnswerStore
	AggregateStore
}
