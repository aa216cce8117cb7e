package questionbank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the Postgres-backed Bank.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a question repository over a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Add validates and inserts one question.
func (r *Repository) Add(ctx context.Context, q *Question) error {
	if q.ID == "" {
		q.ID = NewQuestionID()
	}
	if q.Difficulty == "" {
		q.Difficulty = DifficultyMedium
	}
	if err := q.Validate(); err != nil {
		return err
	}
	const query = `INSERT INTO questions (id, text, option_a, option_b, option_c, option_d, correct_index, tags, difficulty, time_limit_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`
	return r.pool.QueryRow(ctx, query,
		q.ID, q.Text, q.Options[0], q.Options[1], q.Options[2], q.Options[3],
		q.CorrectIndex, q.Tags, q.Difficulty, nullableSeconds(q.TimeLimitSeconds)).
		Scan(&q.CreatedAt)
}

// AddBatch inserts all questions in one transaction, or none.
func (r *Repository) AddBatch(ctx context.Context, qs []*Question) ([]string, error) {
	for i, q := range qs {
		if q.ID == "" {
			q.ID = NewQuestionID()
		}
		if q.Difficulty == "" {
			q.Difficulty = DifficultyMedium
		}
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const query = `INSERT INTO questions (id, text, option_a, option_b, option_c, option_d, correct_index, tags, difficulty, time_limit_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	ids := make([]string, 0, len(qs))
	for _, q := range qs {
		if _, err := tx.Exec(ctx, query,
			q.ID, q.Text, q.Options[0], q.Options[1], q.Options[2], q.Options[3],
			q.CorrectIndex, q.Tags, q.Difficulty, nullableSeconds(q.TimeLimitSeconds)); err != nil {
			return nil, fmt.Errorf("insert question %s: %w", q.ID, err)
		}
		ids = append(ids, q.ID)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

// Get returns a question by id.
func (r *Repository) Get(ctx context.Context, id string) (*Question, error) {
	const query = selectColumns + ` WHERE id = $1`
	q, err := scanQuestion(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return q, err
}

// List returns all questions, oldest first.
func (r *Repository) List(ctx context.Context) ([]*Question, error) {
	return r.query(ctx, selectColumns+` ORDER BY created_at, id`)
}

// Search filters by text substring, tag membership and difficulty.
func (r *Repository) Search(ctx context.Context, query, tag, difficulty string) ([]*Question, error) {
	sql := selectColumns + ` WHERE ($1 = '' OR text ILIKE '%' || $1 || '%')
		AND ($2 = '' OR $2 ILIKE ANY(tags))
		AND ($3 = '' OR difficulty = UPPER($3))
		ORDER BY created_at, id`
	return r.query(ctx, sql, query, tag, difficulty)
}

// Update rewrites a stored question.
func (r *Repository) Update(ctx context.Context, q *Question) error {
	if err := q.Validate(); err != nil {
		return err
	}
	const query = `UPDATE questions SET text = $2, option_a = $3, option_b = $4, option_c = $5, option_d = $6,
		correct_index = $7, tags = $8, difficulty = $9, time_limit_seconds = $10 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query,
		q.ID, q.Text, q.Options[0], q.Options[1], q.Options[2], q.Options[3],
		q.CorrectIndex, q.Tags, q.Difficulty, nullableSeconds(q.TimeLimitSeconds))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, q.ID)
	}
	return nil
}

// Delete removes a question by id.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

const selectColumns = `SELECT id, text, option_a, option_b, option_c, option_d, correct_index, tags, difficulty, time_limit_seconds, created_at FROM questions`

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]*Question, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (*Question, error) {
	var (
		q       Question
		limit   *int
		created time.Time
	)
	err := row.Scan(&q.ID, &q.Text, &q.Options[0], &q.Options[1], &q.Options[2], &q.Options[3],
		&q.CorrectIndex, &q.Tags, &q.Difficulty, &limit, &created)
	if err != nil {
		return nil, err
	}
	if limit != nil {
		q.TimeLimitSeconds = *limit
	}
	q.CreatedAt = created
	return &q, nil
}

func nullableSeconds(s int) *int {
	if s <= 0 {
		return nil
	}
	return &s
}
