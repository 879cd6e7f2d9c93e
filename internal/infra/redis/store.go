package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"identity-map-service/internal/domain"
)

// Store implements app.Store on Redis. Layout:
//
//	answers:{userID}   string, JSON answer set
//	score:{userID}     string, JSON coordinate
//	stats:{questionID} hash, option:*/combo:* vote fields plus "respondents"
//	aggregate:global   hash, "sum_x" "sum_y" (floats) and "users"
//
// Counters only ever move through HINCRBY/HINCRBYFLOAT, so concurrent
// submitters never lose updates; deltas for one submission are batched into
// a pipeline.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) PutAnswers(ctx context.Context, userID string, answers domain.AnswerSet) (domain.AnswerSet, bool, error) {
	data, err := json.Marshal(answers)
	if err != nil {
		return nil, false, fmt.Errorf("encode answers: %w", err)
	}
	// GETSET installs the new record and hands back the old one atomically.
	raw, err := s.client.GetSet(ctx, answersKey(userID), data).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("put answers: %w", err)
	}
	var prev domain.AnswerSet
	if err := json.Unmarshal([]byte(raw), &prev); err != nil {
		return nil, false, fmt.Errorf("decode previous answers: %w", err)
	}
	return prev, true, nil
}

func (s *Store) GetAnswers(ctx context.Context, userID string) (domain.AnswerSet, error) {
	raw, err := s.client.Get(ctx, answersKey(userID)).Result()
	if err == redis.Nil {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get answers: %w", err)
	}
	var answers domain.AnswerSet
	if err := json.Unmarshal([]byte(raw), &answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	return answers, nil
}

func (s *Store) PutScore(ctx context.Context, userID string, score domain.Score) error {
	data, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("encode score: %w", err)
	}
	if err := s.client.Set(ctx, scoreKey(userID), data, 0).Err(); err != nil {
		return fmt.Errorf("put score: %w", err)
	}
	return nil
}

func (s *Store) GetScore(ctx context.Context, userID string) (domain.Score, bool, error) {
	raw, err := s.client.Get(ctx, scoreKey(userID)).Result()
	if err == redis.Nil {
		return domain.Score{}, false, nil
	}
	if err != nil {
		return domain.Score{}, false, fmt.Errorf("get score: %w", err)
	}
	var score domain.Score
	if err := json.Unmarshal([]byte(raw), &score); err != nil {
		return domain.Score{}, false, fmt.Errorf("decode score: %w", err)
	}
	return score, true, nil
}

const globalKey = "aggregate:global"

func (s *Store) ApplyGlobalDelta(ctx context.Context, dx, dy float64, userDelta int64) error {
	pipe := s.client.Pipeline()
	pipe.HIncrByFloat(ctx, globalKey, "sum_x", dx)
	pipe.HIncrByFloat(ctx, globalKey, "sum_y", dy)
	if userDelta != 0 {
		pipe.HIncrBy(ctx, globalKey, "users", userDelta)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("apply global delta: %w", err)
	}
	return nil
}

func (s *Store) GlobalAggregate(ctx context.Context) (domain.GlobalAggregate, error) {
	fields, err := s.client.HGetAll(ctx, globalKey).Result()
	if err != nil {
		return domain.GlobalAggregate{}, fmt.Errorf("get aggregate: %w", err)
	}
	var agg domain.GlobalAggregate
	agg.SumX, _ = strconv.ParseFloat(fields["sum_x"], 64)
	agg.SumY, _ = strconv.ParseFloat(fields["sum_y"], 64)
	agg.UserCount, _ = strconv.ParseInt(fields["users"], 10, 64)
	return agg, nil
}

func (s *Store) ApplyStatDeltas(ctx context.Context, questionID string, votes map[string]int64, respondentDelta int64) error {
	key := statsKey(questionID)
	pipe := s.client.Pipeline()
	for field, delta := range votes {
		pipe.HIncrBy(ctx, key, field, delta)
	}
	if respondentDelta != 0 {
		pipe.HIncrBy(ctx, key, "respondents", respondentDelta)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("apply stat deltas: %w", err)
	}
	return nil
}

func (s *Store) QuestionStats(ctx context.Context, questionID string) (domain.QuestionStats, error) {
	fields, err := s.client.HGetAll(ctx, statsKey(questionID)).Result()
	if err != nil {
		return domain.QuestionStats{}, fmt.Errorf("get stats: %w", err)
	}
	stats := domain.QuestionStats{
		QuestionID: questionID,
		VoteCounts: make(map[string]int64, len(fields)),
	}
	for field, raw := range fields {
		count, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		if field == "respondents" {
			stats.Respondents = count
			continue
		}
		if strings.HasPrefix(field, domain.OptionFieldPrefix) || strings.HasPrefix(field, domain.ComboFieldPrefix) {
			stats.VoteCounts[field] = count
		}
	}
	return stats, nil
}

func answersKey(userID string) string {
	return "answers:" + userID
}

func scoreKey(userID string) string {
	return "score:" + userID
}

func statsKey(questionID string) string {
	return "stats:" + questionID
}
