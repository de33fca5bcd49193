package exam

import (
	"context"
	"errors"
)

var (
	ErrTestNotFound    = errors.New("test not found")
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrSubmitted       = errors.New("attempt already submitted")
	ErrInvalidTest     = errors.New("invalid test")
)

type AttemptListOpts struct {
	TestID string
	UserID string
	Status Status
	Limit  int
	Offset int
}

func (o AttemptListOpts) limit() int {
	if o.Limit <= 0 || o.Limit > 500 {
		return 100
	}
	return o.Limit
}

func (o AttemptListOpts) offset() int {
	if o.Offset < 0 {
		return 0
	}
	return o.Offset
}

type Store interface {
	PutTest(ctx context.Context, t Test) error
	GetTest(ctx context.Context, id string) (Test, error)      // candidate-safe (no answer keys)
	GetTestAdmin(ctx context.Context, id string) (Test, error) // full test, for grading/admin
	ListTests(ctx context.Context, module Module) ([]TestSummary, error)

	// CreateRun returns the candidate's in-progress attempt on testID, or
	// starts a new one. created reports which.
	CreateRun(ctx context.Context, testID, userID string) (a Attempt, created bool, err error)
	SaveAnswers(ctx context.Context, attemptID string, answers Answers) (Attempt, error)
	// Submit merges final, grades and finalizes. Submitting twice returns
	// the stored result.
	Submit(ctx context.Context, attemptID string, final Answers) (Attempt, error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)
}
