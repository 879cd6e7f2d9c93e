package app_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync"
	"testing"

	"identity-map-service/internal/app"
	"identity-map-service/internal/catalog"
	"identity-map-service/internal/domain"
	"identity-map-service/internal/infra/memory"
	"identity-map-service/internal/scoring"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]domain.Question{
		{
			ID: "q1", Type: domain.SingleChoice, Options: []string{"a", "b"},
			Weights: map[string]domain.Weight{
				"a": {X: 1, Y: 0},
				"b": {X: 0, Y: 1},
			},
		},
		{
			ID: "q2", Type: domain.SingleChoice, Options: []string{"yes", "no"},
			Weights: map[string]domain.Weight{
				"yes": {X: 0.5, Y: 0.5},
				"no":  {X: -0.5, Y: -0.5},
			},
		},
		{
			ID: "toppings", Type: domain.Combination,
			Weights: map[string]domain.Weight{
				"spicy": {X: 0, Y: 1},
				"mild":  {X: 0, Y: -1},
			},
		},
		{ID: "mood", Type: domain.Scale},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return cat
}

func newTestService(t *testing.T) (*app.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return app.NewService(testCatalog(t), store), store
}

// The worked example from the read contract: two users on q1, then a
// resubmission that flips u1's vote.
func TestSubmitAndGlobalAverage(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)

	score, err := service.Submit(ctx, "u1", domain.AnswerSet{"q1": {"a"}})
	if err != nil {
		t.Fatalf("submit u1: %v", err)
	}
	if score != (domain.Score{X: 1, Y: 0}) {
		t.Fatalf("u1 score = %+v, want (1,0)", score)
	}

	avg, users, err := service.GlobalAverage(ctx)
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	if users != 1 || avg != (domain.Score{X: 1, Y: 0}) {
		t.Fatalf("average = %+v users=%d, want (1,0) users=1", avg, users)
	}

	if _, err := service.Submit(ctx, "u2", domain.AnswerSet{"q1": {"b"}}); err != nil {
		t.Fatalf("submit u2: %v", err)
	}

	avg, users, err = service.GlobalAverage(ctx)
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	if users != 2 || avg != (domain.Score{X: 0.5, Y: 0.5}) {
		t.Fatalf("average = %+v users=%d, want (0.5,0.5) users=2", avg, users)
	}

	stats, err := service.QuestionStats(ctx, "q1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Respondents != 2 {
		t.Fatalf("respondents = %d, want 2", stats.Respondents)
	}
	if stats.VoteCounts["option:a"] != 1 || stats.VoteCounts["option:b"] != 1 {
		t.Fatalf("vote counts = %v, want a:1 b:1", stats.VoteCounts)
	}

	dist, err := service.Distribution(ctx, "q1")
	if err != nil {
		t.Fatalf("distribution: %v", err)
	}
	want := map[string]string{"a": "50.00%", "b": "50.00%"}
	if !reflect.DeepEqual(dist.Percentages, want) {
		t.Fatalf("distribution = %v, want %v", dist.Percentages, want)
	}

	// u1 flips to b: average moves to (0,1), a's count drains to zero.
	if _, err := service.Submit(ctx, "u1", domain.AnswerSet{"q1": {"b"}}); err != nil {
		t.Fatalf("resubmit u1: %v", err)
	}
	avg, users, err = service.GlobalAverage(ctx)
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	if users != 2 || avg != (domain.Score{X: 0, Y: 1}) {
		t.Fatalf("average = %+v users=%d, want (0,1) users=2", avg, users)
	}
	stats, err = service.QuestionStats(ctx, "q1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.VoteCounts["option:a"] != 0 || stats.VoteCounts["option:b"] != 2 || stats.Respondents != 2 {
		t.Fatalf("stats after flip = %+v, want a:0 b:2 respondents:2", stats)
	}
}

func TestResubmissionIdempotent(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)

	answers := domain.AnswerSet{"q1": {"a"}, "toppings": {"spicy", "mild"}}
	if _, err := service.Submit(ctx, "u1", answers); err != nil {
		t.Fatalf("submit: %v", err)
	}

	avgBefore, usersBefore, _ := service.GlobalAverage(ctx)
	statsBefore, _ := service.QuestionStats(ctx, "toppings")

	if _, err := service.Submit(ctx, "u1", answers); err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	avgAfter, usersAfter, _ := service.GlobalAverage(ctx)
	statsAfter, _ := service.QuestionStats(ctx, "toppings")

	if avgBefore != avgAfter || usersBefore != usersAfter {
		t.Fatalf("average changed on identical resubmission: %+v/%d -> %+v/%d", avgBefore, usersBefore, avgAfter, usersAfter)
	}
	if !reflect.DeepEqual(statsBefore, statsAfter) {
		t.Fatalf("stats changed on identical resubmission: %+v -> %+v", statsBefore, statsAfter)
	}
}

// A question answered in A but dropped in B must lose its respondent and
// votes; a question new in B must gain them, each exactly once.
func TestResubmissionCorrection(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)

	if _, err := service.Submit(ctx, "u1", domain.AnswerSet{"q1": {"a"}, "q2": {"yes"}}); err != nil {
		t.Fatalf("submit A: %v", err)
	}
	if _, err := service.Submit(ctx, "u1", domain.AnswerSet{"q2": {"no"}, "toppings": {"spicy"}}); err != nil {
		t.Fatalf("submit B: %v", err)
	}

	q1, _ := service.QuestionStats(ctx, "q1")
	if q1.Respondents != 0 || q1.VoteCounts["option:a"] != 0 {
		t.Fatalf("q1 stats = %+v, want fully drained", q1)
	}

	q2, _ := service.QuestionStats(ctx, "q2")
	if q2.Respondents != 1 || q2.VoteCounts["option:yes"] != 0 || q2.VoteCounts["option:no"] != 1 {
		t.Fatalf("q2 stats = %+v, want yes:0 no:1 respondents:1", q2)
	}

	toppings, _ := service.QuestionStats(ctx, "toppings")
	if toppings.Respondents != 1 || toppings.VoteCounts["combo:spicy"] != 1 {
		t.Fatalf("toppings stats = %+v, want spicy:1 respondents:1", toppings)
	}
}

// The incremental aggregate must equal the mean recomputed from scratch
// over every user's current record, after any submission sequence.
func TestIncrementalAggregateMatchesGroundTruth(t *testing.T) {
	ctx := context.Background()
	cat := testCatalog(t)
	store := memory.NewStore()
	service := app.NewService(cat, store)
	engine := scoring.NewEngine(cat)

	submissions := []struct {
		user    string
		answers domain.AnswerSet
	}{
		{"u1", domain.AnswerSet{"q1": {"a"}}},
		{"u2", domain.AnswerSet{"q1": {"b"}, "q2": {"yes"}}},
		{"u3", domain.AnswerSet{"toppings": {"spicy"}}},
		{"u1", domain.AnswerSet{"q1": {"b"}, "toppings": {"mild", "spicy"}}},
		{"u2", domain.AnswerSet{"q2": {"no"}}},
		{"u1", domain.AnswerSet{"q1": {"b"}, "toppings": {"mild", "spicy"}}},
	}
	current := map[string]domain.AnswerSet{}
	for _, sub := range submissions {
		if _, err := service.Submit(ctx, sub.user, sub.answers); err != nil {
			t.Fatalf("submit %s: %v", sub.user, err)
		}
		current[sub.user] = sub.answers
	}

	var wantX, wantY float64
	for user := range current {
		answers, err := store.GetAnswers(ctx, user)
		if err != nil {
			t.Fatalf("get answers %s: %v", user, err)
		}
		sc := engine.Score(answers)
		wantX += sc.X
		wantY += sc.Y
	}
	wantX /= float64(len(current))
	wantY /= float64(len(current))

	avg, users, err := service.GlobalAverage(ctx)
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	if users != int64(len(current)) {
		t.Fatalf("users = %d, want %d", users, len(current))
	}
	if math.Abs(avg.X-wantX) > 1e-9 || math.Abs(avg.Y-wantY) > 1e-9 {
		t.Fatalf("average = %+v, ground truth = (%v, %v)", avg, wantX, wantY)
	}
}

func TestConcurrentSubmissions(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)

	const users = 50
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			option := "a"
			if i%2 == 1 {
				option = "b"
			}
			user := fmt.Sprintf("user-%d", i)
			// Each user submits twice; the second replaces the first.
			if _, err := service.Submit(ctx, user, domain.AnswerSet{"q1": {"a"}}); err != nil {
				t.Errorf("submit %s: %v", user, err)
			}
			if _, err := service.Submit(ctx, user, domain.AnswerSet{"q1": {option}}); err != nil {
				t.Errorf("resubmit %s: %v", user, err)
			}
		}(i)
	}
	wg.Wait()

	avg, count, err := service.GlobalAverage(ctx)
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	if count != users {
		t.Fatalf("user count = %d, want %d", count, users)
	}
	// Half answered a=(1,0), half b=(0,1).
	if math.Abs(avg.X-0.5) > 1e-9 || math.Abs(avg.Y-0.5) > 1e-9 {
		t.Fatalf("average = %+v, want (0.5, 0.5)", avg)
	}

	stats, err := service.QuestionStats(ctx, "q1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Respondents != users || stats.VoteCounts["option:a"] != users/2 || stats.VoteCounts["option:b"] != users/2 {
		t.Fatalf("stats = %+v, want %d respondents split evenly", stats, users)
	}
}

func TestUserScoreRecomputesOnCacheMiss(t *testing.T) {
	ctx := context.Background()
	service, store := newTestService(t)

	// Seed an answer record without a cached score, as if the cache was lost.
	if _, _, err := store.PutAnswers(ctx, "u1", domain.AnswerSet{"q1": {"a"}}); err != nil {
		t.Fatalf("seed answers: %v", err)
	}

	score, err := service.UserScore(ctx, "u1")
	if err != nil {
		t.Fatalf("user score: %v", err)
	}
	if score != (domain.Score{X: 1, Y: 0}) {
		t.Fatalf("score = %+v, want (1,0)", score)
	}
	if _, ok, _ := store.GetScore(ctx, "u1"); !ok {
		t.Fatalf("expected recomputed score to be cached")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)

	if _, err := service.UserScore(ctx, "ghost"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, _, err := service.GlobalAverage(ctx); !errors.Is(err, domain.ErrAggregateUnavailable) {
		t.Fatalf("expected ErrAggregateUnavailable, got %v", err)
	}
	if _, err := service.QuestionStats(ctx, "nope"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
	if _, err := service.Distribution(ctx, "mood"); !errors.Is(err, domain.ErrUnsupportedDistribution) {
		t.Fatalf("expected ErrUnsupportedDistribution, got %v", err)
	}
	if _, err := service.Submit(ctx, "u1", domain.AnswerSet{"q1": {"z"}}); !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("expected ErrInvalidAnswer, got %v", err)
	}
}

func TestSubscribeReceivesAverageUpdates(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)

	ch, cancel, err := service.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	initial := <-ch
	if initial.UserCount != 0 {
		t.Fatalf("initial snapshot = %+v, want empty", initial)
	}

	if _, err := service.Submit(ctx, "u1", domain.AnswerSet{"q1": {"a"}}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	update := <-ch
	if update.UserCount != 1 || update.X != 1 || update.Y != 0 {
		t.Fatalf("update = %+v, want (1,0) over 1 user", update)
	}
}
