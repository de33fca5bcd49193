package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mind-engage/ielts-mock/internal/exam"
)

type Store interface {
	// Upsert stores s. A full snapshot replaces the stored one; a delta
	// merges its answers into the stored answers and replaces the rest.
	Upsert(ctx context.Context, s Snapshot) (Snapshot, error)
	Get(ctx context.Context, attemptID string) (Snapshot, error)
}

// apply folds incoming onto the stored snapshot (if any).
func apply(stored *Snapshot, incoming Snapshot, now time.Time) Snapshot {
	out := incoming.Clone()
	if out.Answers == nil {
		out.Answers = exam.Answers{}
	}
	if incoming.Delta && stored != nil {
		merged := stored.Answers.Clone()
		if merged == nil {
			merged = exam.Answers{}
		}
		merged.Merge(incoming.Answers)
		out.Answers = merged
	}
	out.Delta = false
	out.SavedAt = now.Unix()
	return out
}

type memoryStore struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
	now   func() time.Time
}

func NewInMemoryStore() Store {
	return &memoryStore{snaps: map[string]Snapshot{}, now: time.Now}
}

func (m *memoryStore) Upsert(_ context.Context, s Snapshot) (Snapshot, error) {
	if s.AttemptID == "" {
		return Snapshot{}, ErrMissingID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var stored *Snapshot
	if prev, ok := m.snaps[s.AttemptID]; ok {
		stored = &prev
	}
	out := apply(stored, s, m.now())
	m.snaps[s.AttemptID] = out
	return out.Clone(), nil
}

func (m *memoryStore) Get(_ context.Context, attemptID string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snaps[attemptID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return s.Clone(), nil
}

type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) Upsert(ctx context.Context, snap Snapshot) (Snapshot, error) {
	if snap.AttemptID == "" {
		return Snapshot{}, ErrMissingID
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var stored *Snapshot
	if snap.Delta {
		prev, err := s.get(ctx, tx, snap.AttemptID)
		switch {
		case err == nil:
			stored = &prev
		case !errors.Is(err, ErrNotFound):
			return Snapshot{}, err
		}
	}
	out := apply(stored, snap, s.now())
	buf, err := json.Marshal(out)
	if err != nil {
		return Snapshot{}, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO checkpoints (attempt_id, snapshot_json, saved_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (attempt_id) DO UPDATE SET snapshot_json=EXCLUDED.snapshot_json, saved_at=EXCLUDED.saved_at`,
		out.AttemptID, string(buf), out.SavedAt)
	if err != nil {
		return Snapshot{}, fmt.Errorf("upsert checkpoint: %w", err)
	}
	return out, tx.Commit()
}

func (s *SQLStore) Get(ctx context.Context, attemptID string) (Snapshot, error) {
	return s.get(ctx, s.db, attemptID)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) get(ctx context.Context, q rowQuerier, attemptID string) (Snapshot, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT snapshot_json FROM checkpoints WHERE attempt_id=$1`, attemptID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	if snap.Answers == nil {
		snap.Answers = exam.Answers{}
	}
	return snap, nil
}
