// Package attemptid keeps one attempt id per (module, test) on the client.
package attemptid

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mind-engage/ielts-mock/internal/client/localstore"
	"github.com/mind-engage/ielts-mock/internal/exam"
)

// RunCreator starts or resumes an attempt on the server.
type RunCreator interface {
	CreateRun(ctx context.Context, module exam.Module, testID string) (exam.Attempt, error)
}

type Resolver struct {
	kv  localstore.KV
	api RunCreator
}

func NewResolver(kv localstore.KV, api RunCreator) *Resolver {
	return &Resolver{kv: kv, api: api}
}

// Resolve returns the cached attempt id for the test, or asks the server
// for one and caches it.
func (r *Resolver) Resolve(ctx context.Context, module exam.Module, testID string) (string, error) {
	key := localstore.AttemptKey(string(module), testID)
	raw, err := r.kv.Get(key)
	switch {
	case err == nil:
		if id := strings.TrimSpace(string(raw)); id != "" {
			return id, nil
		}
	case !errors.Is(err, localstore.ErrNotFound):
		return "", fmt.Errorf("read cached attempt: %w", err)
	}

	a, err := r.api.CreateRun(ctx, module, testID)
	if err != nil {
		return "", err
	}
	if err := r.kv.Set(key, []byte(a.ID)); err != nil {
		return "", fmt.Errorf("cache attempt: %w", err)
	}
	return a.ID, nil
}

// Forget drops the cached id so the next Resolve starts a new attempt.
func (r *Resolver) Forget(module exam.Module, testID string) error {
	return r.kv.Delete(localstore.AttemptKey(string(module), testID))
}
