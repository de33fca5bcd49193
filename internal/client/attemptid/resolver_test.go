package attemptid

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/ielts-mock/internal/client/localstore"
	"github.com/mind-engage/ielts-mock/internal/exam"
)

type fakeAPI struct {
	calls int
	err   error
}

func (f *fakeAPI) CreateRun(_ context.Context, module exam.Module, testID string) (exam.Attempt, error) {
	if f.err != nil {
		return exam.Attempt{}, f.err
	}
	f.calls++
	return exam.Attempt{ID: fmt.Sprintf("%s-%s-%d", module, testID, f.calls), Module: module, TestID: testID}, nil
}

func TestResolveCachesID(t *testing.T) {
	ctx := context.Background()
	kv := localstore.NewMemory()
	api := &fakeAPI{}
	r := NewResolver(kv, api)

	id, err := r.Resolve(ctx, exam.ModuleReading, "r1")
	require.NoError(t, err)
	assert.Equal(t, "reading-r1-1", id)

	again, err := r.Resolve(ctx, exam.ModuleReading, "r1")
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, api.calls)

	raw, err := kv.Get("mock:reading:attempt:r1")
	require.NoError(t, err)
	assert.Equal(t, id, string(raw))

	// different test, different id
	other, err := r.Resolve(ctx, exam.ModuleReading, "r2")
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func TestForgetStartsFresh(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	r := NewResolver(localstore.NewMemory(), api)

	first, err := r.Resolve(ctx, exam.ModuleListening, "l1")
	require.NoError(t, err)
	require.NoError(t, r.Forget(exam.ModuleListening, "l1"))
	second, err := r.Resolve(ctx, exam.ModuleListening, "l1")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestResolveErrorNotCached(t *testing.T) {
	ctx := context.Background()
	kv := localstore.NewMemory()
	boom := errors.New("offline")
	r := NewResolver(kv, &fakeAPI{err: boom})

	_, err := r.Resolve(ctx, exam.ModuleReading, "r1")
	assert.ErrorIs(t, err, boom)
	_, err = kv.Get(localstore.AttemptKey("reading", "r1"))
	assert.ErrorIs(t, err, localstore.ErrNotFound)
}
