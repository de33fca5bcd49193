package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	api "github.com/mind-engage/ielts-mock/internal/api/http"
	authmw "github.com/mind-engage/ielts-mock/internal/auth/middleware"
	"github.com/mind-engage/ielts-mock/internal/checkpoint"
	"github.com/mind-engage/ielts-mock/internal/client/apiclient"
	"github.com/mind-engage/ielts-mock/internal/client/localstore"
	"github.com/mind-engage/ielts-mock/internal/client/scheduler"
	"github.com/mind-engage/ielts-mock/internal/client/session"
	"github.com/mind-engage/ielts-mock/internal/exam"
	"github.com/mind-engage/ielts-mock/internal/notes"
)

func newRunner(t *testing.T) (*runner, *bytes.Buffer, *session.Session) {
	t.Helper()
	ctx := context.Background()
	exams := exam.NewInMemoryStore(nil)
	require.NoError(t, exams.PutTest(ctx, exam.Test{
		ID: "r1", Module: exam.ModuleReading, Title: "Reading 1", TimeLimitSec: 3600,
		Sections: []exam.Section{{ID: "p1", Text: "Bees communicate by dancing."}},
		Questions: []exam.Question{
			{ID: "q1", Type: "gap_fill", AnswerKey: []string{"dancing"}, Points: 1},
			{ID: "q2", Type: "true_false_not_given", AnswerKey: []string{"TRUE"}, Points: 1},
		},
	}))
	srv := httptest.NewServer(api.NewRouter(api.Deps{
		Exams:       exams,
		Checkpoints: checkpoint.NewInMemoryStore(),
		Notes:       notes.NewService(notes.NewInMemoryStore()),
		Auth:        authmw.NewAuthService("k"),
	}))
	t.Cleanup(srv.Close)

	client := apiclient.NewClient(srv.URL)
	_, err := client.Guest(ctx)
	require.NoError(t, err)

	kv, err := localstore.Open(t.TempDir() + "/runner.db")
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	s, err := session.Open(ctx, client, kv, session.Options{
		Module:    exam.ModuleReading,
		TestID:    "r1",
		TimeLimit: 3600,
		Scheduler: scheduler.Config{ActiveInterval: time.Hour, IdleInterval: time.Hour, IdleAfter: time.Hour},
		Logger:    zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	out := &bytes.Buffer{}
	return &runner{s: s, notes: client, out: out}, out, s
}

func TestRunnerCommands(t *testing.T) {
	r, out, s := newRunner(t)
	ctx := context.Background()

	for _, line := range []string{
		"begin",
		"answer q1 dancing",
		"a q2 TRUE",
		"flag q2",
		"section 0",
		"layout stacked",
		"focus on",
		"filter type gap_fill",
		"",
	} {
		quit, err := r.exec(ctx, line)
		require.NoError(t, err, line)
		require.False(t, quit, line)
	}

	st := s.State()
	assert.True(t, st.Started)
	assert.Equal(t, exam.AnswerEntry{Value: "TRUE", Flagged: true}, st.Answers["q2"])
	assert.Equal(t, "stacked", st.LayoutMode)
	assert.True(t, st.FocusMode)
	assert.Equal(t, "gap_fill", st.Filters["type"])

	_, err := r.exec(ctx, "begin")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "clock already running")

	out.Reset()
	_, err = r.exec(ctx, "note p1 0 4 bees")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "highlight ")
	_, err = r.exec(ctx, "note p1 2 6")
	assert.Error(t, err, "overlapping highlight")

	out.Reset()
	_, err = r.exec(ctx, "notes")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "bees")

	out.Reset()
	_, err = r.exec(ctx, "state")
	require.NoError(t, err)
	assert.Contains(t, out.String(), `q1 = "dancing"`)
	assert.Contains(t, out.String(), "[flagged]")

	quit, err := r.exec(ctx, "submit")
	require.NoError(t, err)
	assert.True(t, quit)
	a, ok := s.Result()
	require.True(t, ok)
	assert.Equal(t, 2.0, a.RawScore)
}

func TestRunnerUsageErrors(t *testing.T) {
	r, _, _ := newRunner(t)
	ctx := context.Background()

	for _, line := range []string{"answer q1", "flag", "section x", "focus maybe", "note p1 0", "bogus"} {
		_, err := r.exec(ctx, line)
		assert.Error(t, err, line)
	}
	quit, err := r.exec(ctx, "quit")
	require.NoError(t, err)
	assert.True(t, quit)
}
