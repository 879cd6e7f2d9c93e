package domain

import "errors"

var (
	// ErrUserNotFound is returned when a user has no answer record yet.
	ErrUserNotFound = errors.New("user not found")
	// ErrQuestionNotFound indicates a question ID unknown to the catalog.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidAnswer indicates a single-choice answer outside the declared option set.
	ErrInvalidAnswer = errors.New("invalid answer")
	// ErrUnsupportedDistribution indicates a distribution request for a question type without vote-tally semantics.
	ErrUnsupportedDistribution = errors.New("distribution not supported for question type")
	// ErrAggregateUnavailable is returned for the global average before anyone has submitted.
	ErrAggregateUnavailable = errors.New("global average unavailable: no submissions")
)
