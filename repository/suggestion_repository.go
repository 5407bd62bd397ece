package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// SuggestionRepository defines the interface for the popularity
// counters behind search suggestions.
type SuggestionRepository interface {
	Bump(ctx context.Context, query string) error
	ByPrefix(ctx context.Context, prefix string, limit int) ([]string, error)
}

// mysqlSuggestionRepository implements SuggestionRepository for MySQL.
type mysqlSuggestionRepository struct {
	db *sql.DB
}

// NewMySQLSuggestionRepository creates a new mysqlSuggestionRepository.
func NewMySQLSuggestionRepository(db *sql.DB) SuggestionRepository {
	return &mysqlSuggestionRepository{db: db}
}

// Bump upserts the counter row for a query.
func (r *mysqlSuggestionRepository) Bump(ctx context.Context, query string) error {
	const stmt = `INSERT INTO popular_searches (query, hits, last_seen) VALUES (?, 1, NOW())
		ON DUPLICATE KEY UPDATE hits = hits + 1, last_seen = NOW()`
	if _, err := r.db.ExecContext(ctx, stmt, query); err != nil {
		return fmt.Errorf("failed to bump popular search %q: %w", query, err)
	}
	return nil
}

// ByPrefix returns the most popular queries starting with prefix.
func (r *mysqlSuggestionRepository) ByPrefix(ctx context.Context, prefix string, limit int) ([]string, error) {
	const stmt = `SELECT query FROM popular_searches WHERE query LIKE CONCAT(?, '%')
		ORDER BY hits DESC, last_seen DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, stmt, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions for prefix %q: %w", prefix, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion row: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate suggestion rows: %w", err)
	}
	return out, nil
}
