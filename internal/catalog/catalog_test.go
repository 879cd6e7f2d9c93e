package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"identity-map-service/internal/domain"
)

func TestNewRejectsBadCatalogs(t *testing.T) {
	cases := []struct {
		name      string
		questions []domain.Question
	}{
		{"empty id", []domain.Question{{ID: "", Type: domain.SingleChoice, Options: []string{"a"}}}},
		{"unknown type", []domain.Question{{ID: "q1", Type: "ranked"}}},
		{"duplicate id", []domain.Question{
			{ID: "q1", Type: domain.Combination},
			{ID: "q1", Type: domain.Combination},
		}},
		{"single choice without options", []domain.Question{{ID: "q1", Type: domain.SingleChoice}}},
		{"weight for undeclared option", []domain.Question{{
			ID: "q1", Type: domain.SingleChoice, Options: []string{"a"},
			Weights: map[string]domain.Weight{"b": {X: 1}},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.questions); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	cat, err := New([]domain.Question{
		{ID: "q1", Type: domain.SingleChoice, Options: []string{"a", "b"}},
		{ID: "q2", Type: domain.Combination},
	})
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}

	got, err := cat.Normalize(domain.AnswerSet{
		"q1":      {"a"},
		"q2":      {"z", "x", "z"},
		"unknown": {"whatever"},
		"empty":   {},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := domain.AnswerSet{
		"q1":      {"a"},
		"q2":      {"x", "z"},
		"unknown": {"whatever"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("normalized = %v, want %v", got, want)
	}
}

func TestNormalizeRejectsInvalidSingleChoice(t *testing.T) {
	cat, err := New([]domain.Question{
		{ID: "q1", Type: domain.SingleChoice, Options: []string{"a", "b"}},
	})
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}

	if _, err := cat.Normalize(domain.AnswerSet{"q1": {"c"}}); !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("expected ErrInvalidAnswer for undeclared option, got %v", err)
	}
	if _, err := cat.Normalize(domain.AnswerSet{"q1": {"a", "b"}}); !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("expected ErrInvalidAnswer for multi-select, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	raw := `questions:
  - id: q1
    type: single_choice
    options: [a, b]
    weights:
      a: {x: 1, y: 0}
      b: {x: 0, y: 1}
  - id: q2
    type: combination
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write catalog file: %v", err)
	}

	cat, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cat.Len() != 2 {
		t.Fatalf("expected 2 questions, got %d", cat.Len())
	}
	q, ok := cat.Question("q1")
	if !ok {
		t.Fatalf("q1 missing")
	}
	if q.Weights["a"] != (domain.Weight{X: 1, Y: 0}) {
		t.Fatalf("unexpected weight for a: %+v", q.Weights["a"])
	}
}
