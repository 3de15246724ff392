package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/eval-consensus/internal/types"
)

// TokenFunc resolves the identifying token of an evaluation
type TokenFunc func(types.Evaluation) string

// Repository handles database operations
type Repository struct {
	db    *DB
	token TokenFunc
}

// NewRepository creates a new repository. token resolves records that carry
// no explicit token; nil keeps only explicit tokens and rejects the rest.
func NewRepository(db *DB, token TokenFunc) *Repository {
	return &Repository{db: db, token: token}
}

func (r *Repository) resolveToken(ev types.Evaluation) string {
	if t := strings.TrimSpace(ev.Token); t != "" {
		return t
	}
	if r.token != nil {
		return strings.TrimSpace(r.token(ev))
	}
	return ""
}

// ImportEvaluations upserts evaluations by token inside one transaction.
// Duplicate tokens within evals collapse to the last occurrence.
func (r *Repository) ImportEvaluations(ctx context.Context, source string, evals []types.Evaluation) (*ImportBatch, error) {
	type row struct {
		token   string
		payload string
	}

	order := make([]string, 0, len(evals))
	rows := make(map[string]row, len(evals))
	for i, ev := range evals {
		token := r.resolveToken(ev)
		if token == "" {
			return nil, fmt.Errorf("evaluation %d has no token", i)
		}
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode evaluation %d: %w", i, err)
		}
		if _, seen := rows[token]; !seen {
			order = append(order, token)
		}
		rows[token] = row{token: token, payload: string(payload)}
	}

	batch := NewImportBatch(source, len(order))

	insertBatch, err := r.db.GetPreparedStatement(stmtInsertBatch)
	if err != nil {
		return nil, err
	}
	upsert, err := r.db.GetPreparedStatement(stmtUpsertEvaluation)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.StmtContext(ctx, insertBatch).ExecContext(ctx, batch.ID, batch.Source, batch.Count, batch.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to record import batch: %w", err)
	}

	existing, err := existingTokens(ctx, tx, order)
	if err != nil {
		return nil, err
	}

	upsertTx := tx.StmtContext(ctx, upsert)
	for _, token := range order {
		if _, err := upsertTx.ExecContext(ctx, uuid.New().String(), token, batch.ID, rows[token].payload, batch.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to store evaluation %s: %w", token, err)
		}
		if existing[token] {
			batch.Updated++
		} else {
			batch.Inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}

	return batch, nil
}

func existingTokens(ctx context.Context, tx *sql.Tx, tokens []string) (map[string]bool, error) {
	found := make(map[string]bool, len(tokens))

	// stay well under sqlite's bound-parameter limit
	const chunk = 500
	for start := 0; start < len(tokens); start += chunk {
		end := start + chunk
		if end > len(tokens) {
			end = len(tokens)
		}
		part := tokens[start:end]

		args := make([]interface{}, len(part))
		for i, t := range part {
			args[i] = t
		}
		query := "SELECT token FROM evaluations WHERE token IN (?" + strings.Repeat(",?", len(part)-1) + ")"

		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to look up existing tokens: %w", err)
		}
		for rows.Next() {
			var t string
			if err := rows.Scan(&t); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan token: %w", err)
			}
			found[t] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return found, nil
}

// ListEvaluations returns every stored evaluation ordered by import time, then token
func (r *Repository) ListEvaluations(ctx context.Context) ([]types.Evaluation, error) {
	stmt, err := r.db.GetPreparedStatement(stmtListEvaluations)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	var evals []types.Evaluation
	for rows.Next() {
		var s StoredEvaluation
		if err := rows.Scan(&s.ID, &s.Token, &s.BatchID, &s.Payload, &s.ImportedAt); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		ev, err := s.Evaluation()
		if err != nil {
			return nil, fmt.Errorf("failed to decode evaluation %s: %w", s.Token, err)
		}
		evals = append(evals, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}

	return evals, nil
}

// CountEvaluations returns the number of stored evaluations
func (r *Repository) CountEvaluations(ctx context.Context) (int, error) {
	stmt, err := r.db.GetPreparedStatement(stmtCountEvaluations)
	if err != nil {
		return 0, err
	}

	var n int
	if err := stmt.QueryRowContext(ctx).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count evaluations: %w", err)
	}
	return n, nil
}

// ListBatches returns import batches, newest first
func (r *Repository) ListBatches(ctx context.Context) ([]ImportBatch, error) {
	stmt, err := r.db.GetPreparedStatement(stmtListBatches)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var batches []ImportBatch
	for rows.Next() {
		var b ImportBatch
		if err := rows.Scan(&b.ID, &b.Source, &b.Count, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}
