package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/ielts-mock/internal/grading"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLStore struct {
	db     *sql.DB
	grader grading.Grader
	now    func() time.Time
}

func NewSQLStore(db *sql.DB, g grading.Grader) *SQLStore {
	if g == nil {
		g = grading.NewDefaultGrader()
	}
	return &SQLStore{db: db, grader: g, now: time.Now}
}

func (s *SQLStore) PutTest(ctx context.Context, t Test) error {
	if err := t.Normalize(); err != nil {
		return err
	}
	sj, err := json.Marshal(t.Sections)
	if err != nil {
		return err
	}
	qj, err := json.Marshal(t.Questions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO tests (id,module,title,time_limit_sec,sections_json,questions_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET module=EXCLUDED.module, title=EXCLUDED.title,
			time_limit_sec=EXCLUDED.time_limit_sec, sections_json=EXCLUDED.sections_json,
			questions_json=EXCLUDED.questions_json`,
		t.ID, string(t.Module), t.Title, t.TimeLimitSec, string(sj), string(qj), s.now().Unix())
	if err != nil {
		return fmt.Errorf("put test: %w", err)
	}
	return nil
}

func (s *SQLStore) GetTest(ctx context.Context, id string) (Test, error) {
	t, err := getTest(ctx, s.db, id)
	if err != nil {
		return Test{}, err
	}
	return t.stripKeys(), nil
}

func (s *SQLStore) GetTestAdmin(ctx context.Context, id string) (Test, error) {
	return getTest(ctx, s.db, id)
}

func getTest(ctx context.Context, q querier, id string) (Test, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id,module,title,time_limit_sec,sections_json,questions_json,created_at FROM tests WHERE id=$1`, id)
	var t Test
	var module, sj, qj string
	if err := row.Scan(&t.ID, &module, &t.Title, &t.TimeLimitSec, &sj, &qj, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Test{}, ErrTestNotFound
		}
		return Test{}, err
	}
	t.Module = Module(module)
	if err := json.Unmarshal([]byte(sj), &t.Sections); err != nil {
		return Test{}, fmt.Errorf("decode sections: %w", err)
	}
	if err := json.Unmarshal([]byte(qj), &t.Questions); err != nil {
		return Test{}, fmt.Errorf("decode questions: %w", err)
	}
	return t, nil
}

func (s *SQLStore) ListTests(ctx context.Context, module Module) ([]TestSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,module,title,time_limit_sec,questions_json,created_at FROM tests
		 WHERE ($1 = '' OR module = $1) ORDER BY created_at DESC, id ASC`, string(module))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]TestSummary, 0)
	for rows.Next() {
		var ts TestSummary
		var mod, qj string
		if err := rows.Scan(&ts.ID, &mod, &ts.Title, &ts.TimeLimitSec, &qj, &ts.CreatedAt); err != nil {
			return nil, err
		}
		ts.Module = Module(mod)
		var qs []json.RawMessage
		if err := json.Unmarshal([]byte(qj), &qs); err == nil {
			ts.QuestionCount = len(qs)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateRun(ctx context.Context, testID, userID string) (Attempt, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	t, err := getTest(ctx, tx, testID)
	if err != nil {
		return Attempt{}, false, err
	}

	var existingID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM attempts WHERE test_id=$1 AND user_id=$2 AND status=$3 ORDER BY started_at DESC LIMIT 1`,
		testID, userID, string(StatusInProgress)).Scan(&existingID)
	switch {
	case err == nil:
		a, err := getAttempt(ctx, tx, existingID)
		if err != nil {
			return Attempt{}, false, err
		}
		return a, false, tx.Commit()
	case !errors.Is(err, sql.ErrNoRows):
		return Attempt{}, false, err
	}

	now := s.now()
	a := Attempt{
		ID:         uuid.NewString(),
		TestID:     testID,
		UserID:     userID,
		Module:     t.Module,
		Status:     StatusInProgress,
		Answers:    Answers{},
		MaxScore:   t.MaxScore(),
		StartedAt:  now.Unix(),
		DeadlineAt: now.Add(time.Duration(t.TimeLimitSec) * time.Second).Unix(),
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO attempts
		(id,test_id,user_id,module,status,answers_json,raw_score,max_score,band,started_at,deadline_at)
		VALUES ($1,$2,$3,$4,$5,'{}',0,$6,0,$7,$8)`,
		a.ID, a.TestID, a.UserID, string(a.Module), string(a.Status), a.MaxScore, a.StartedAt, a.DeadlineAt)
	if err != nil {
		return Attempt{}, false, fmt.Errorf("insert attempt: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Attempt{}, false, err
	}
	return a, true, nil
}

func (s *SQLStore) SaveAnswers(ctx context.Context, attemptID string, answers Answers) (Attempt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, err
	}
	defer func() { _ = tx.Rollback() }()

	a, err := getAttempt(ctx, tx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Submitted() {
		return Attempt{}, ErrSubmitted
	}
	a.Answers.Merge(answers)
	buf, err := json.Marshal(a.Answers)
	if err != nil {
		return Attempt{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE attempts SET answers_json=$1 WHERE id=$2`, string(buf), attemptID); err != nil {
		return Attempt{}, fmt.Errorf("save answers: %w", err)
	}
	return a, tx.Commit()
}

func (s *SQLStore) Submit(ctx context.Context, attemptID string, final Answers) (Attempt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, err
	}
	defer func() { _ = tx.Rollback() }()

	a, err := getAttempt(ctx, tx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Submitted() {
		return a, nil
	}
	t, err := getTest(ctx, tx, a.TestID)
	if err != nil {
		return Attempt{}, err
	}

	a.Answers.Merge(final)
	a.RawScore, a.MaxScore, a.Band = Score(ctx, s.grader, t, a.Answers)
	a.Status = StatusSubmitted
	a.SubmittedAt = s.now().Unix()
	buf, err := json.Marshal(a.Answers)
	if err != nil {
		return Attempt{}, err
	}
	_, err = tx.ExecContext(ctx, `UPDATE attempts SET status=$1, answers_json=$2, raw_score=$3, max_score=$4, band=$5, submitted_at=$6
		WHERE id=$7`,
		string(a.Status), string(buf), a.RawScore, a.MaxScore, a.Band, a.SubmittedAt, attemptID)
	if err != nil {
		return Attempt{}, fmt.Errorf("submit attempt: %w", err)
	}
	return a, tx.Commit()
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return getAttempt(ctx, s.db, id)
}

const attemptCols = `id,test_id,user_id,module,status,answers_json,raw_score,max_score,band,started_at,deadline_at,submitted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (Attempt, error) {
	var a Attempt
	var module, status, aj string
	var submitted sql.NullInt64
	if err := row.Scan(&a.ID, &a.TestID, &a.UserID, &module, &status, &aj,
		&a.RawScore, &a.MaxScore, &a.Band, &a.StartedAt, &a.DeadlineAt, &submitted); err != nil {
		return Attempt{}, err
	}
	a.Module, a.Status = Module(module), Status(status)
	a.SubmittedAt = submitted.Int64
	if err := json.Unmarshal([]byte(aj), &a.Answers); err != nil || a.Answers == nil {
		a.Answers = Answers{}
	}
	return a, nil
}

func getAttempt(ctx context.Context, q querier, id string) (Attempt, error) {
	a, err := scanAttempt(q.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, err
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	var where []string
	var args []any
	add := func(col, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	add("test_id", opts.TestID)
	add("user_id", opts.UserID)
	add("status", string(opts.Status))

	q := `SELECT ` + attemptCols + ` FROM attempts`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, opts.limit(), opts.offset())
	q += fmt.Sprintf(` ORDER BY started_at DESC, id ASC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Attempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
