package question

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/victornm/quizduel/internal/domain"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// LoadPostgres reads the whole bank, ordered by position, from the questions table:
//
//	CREATE TABLE questions (
//		position INT PRIMARY KEY,
//		prompt   TEXT NOT NULL,
//		options  TEXT[] NOT NULL,
//		answer   TEXT NOT NULL
//	);
func LoadPostgres(ctx context.Context, db Querier) ([]domain.Question, error) {
	const stmt = `SELECT prompt, options, answer FROM questions ORDER BY position;`

	rows, err := db.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}

	qs, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		var q domain.Question
		if err := r.Scan(&q.Prompt, &q.Options, &q.Answer); err != nil {
			return domain.Question{}, err
		}
		return q, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect questions: %w", err)
	}

	if err := Validate(qs); err != nil {
		return nil, err
	}

	return qs, nil
}
