package notes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

type memoryStore struct {
	mu    sync.RWMutex
	notes map[string]Note
}

func NewInMemoryStore() Store {
	return &memoryStore{notes: map[string]Note{}}
}

func (m *memoryStore) Insert(_ context.Context, n Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes[n.ID] = n
	return nil
}

func (m *memoryStore) Get(_ context.Context, id string) (Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notes[id]
	if !ok {
		return Note{}, ErrNotFound
	}
	return n, nil
}

func (m *memoryStore) Update(_ context.Context, n Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notes[n.ID]; !ok {
		return ErrNotFound
	}
	m.notes[n.ID] = n
	return nil
}

func (m *memoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notes[id]; !ok {
		return ErrNotFound
	}
	delete(m.notes, id)
	return nil
}

func (m *memoryStore) List(_ context.Context, attemptID, passageID string) ([]Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Note, 0)
	for _, n := range m.notes {
		if n.AttemptID != attemptID || (passageID != "" && n.PassageID != passageID) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type SQLStore struct{ db *sql.DB }

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) Insert(ctx context.Context, n Note) error {
	rj, err := json.Marshal(n.Ranges)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO notes (id,attempt_id,passage_id,ranges_json,color,note_text,created_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		n.ID, n.AttemptID, n.PassageID, string(rj), n.Color, n.Text, n.CreatedAt, n.UpdatedAt)
	return err
}

const noteCols = `id,attempt_id,passage_id,ranges_json,color,note_text,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (Note, error) {
	var n Note
	var rj string
	if err := row.Scan(&n.ID, &n.AttemptID, &n.PassageID, &rj, &n.Color, &n.Text, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return Note{}, err
	}
	if err := json.Unmarshal([]byte(rj), &n.Ranges); err != nil {
		return Note{}, fmt.Errorf("decode ranges: %w", err)
	}
	return n, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (Note, error) {
	n, err := scanNote(s.db.QueryRowContext(ctx, `SELECT `+noteCols+` FROM notes WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, ErrNotFound
	}
	return n, err
}

func (s *SQLStore) Update(ctx context.Context, n Note) error {
	rj, err := json.Marshal(n.Ranges)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE notes SET ranges_json=$1, color=$2, note_text=$3, updated_at=$4 WHERE id=$5`,
		string(rj), n.Color, n.Text, n.UpdatedAt, n.ID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *SQLStore) List(ctx context.Context, attemptID, passageID string) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+noteCols+` FROM notes
		WHERE attempt_id=$1 AND ($2 = '' OR passage_id = $2) ORDER BY created_at ASC, id ASC`, attemptID, passageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Note, 0)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
