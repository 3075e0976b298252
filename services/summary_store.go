package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"goalchat/models"
)

const summarySchema = `
CREATE TABLE IF NOT EXISTS conversation_summaries (
    id          BIGSERIAL PRIMARY KEY,
    user_id     TEXT NOT NULL,
    summary     TEXT NOT NULL,
    vector      FLOAT8[] NOT NULL,
    start_time  TIMESTAMPTZ NOT NULL,
    end_time    TIMESTAMPTZ NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (user_id, start_time, end_time)
)`

// SummaryWriter persists batch summaries.
type SummaryWriter interface {
	SaveSummary(ctx context.Context, s models.ConversationSummary) error
}

// PostgresSummaryStore keeps summaries in the conversation_summaries table.
type PostgresSummaryStore struct {
	db *sql.DB
}

// OpenPostgresSummaryStore connects and pings the database. sslmode defaults
// to disable when the URI does not set it.
func OpenPostgresSummaryStore(ctx context.Context, uri string) (*PostgresSummaryStore, error) {
	db, err := sql.Open("postgres", withSSLModeDisabled(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &PostgresSummaryStore{db: db}, nil
}

func (s *PostgresSummaryStore) Close() error {
	return s.db.Close()
}

func (s *PostgresSummaryStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, summarySchema); err != nil {
		return fmt.Errorf("create conversation_summaries: %w", err)
	}
	return nil
}

func (s *PostgresSummaryStore) SaveSummary(ctx context.Context, sum models.ConversationSummary) error {
	const query = `
        INSERT INTO conversation_summaries
        (user_id, summary, vector, start_time, end_time)
        VALUES ($1, $2, $3::float8[], $4, $5)
        ON CONFLICT (user_id, start_time, end_time)
        DO UPDATE SET
            summary = EXCLUDED.summary,
            vector = EXCLUDED.vector`

	_, err := s.db.ExecContext(ctx, query, sum.UserID, sum.Summary, sum.Vector, sum.StartTime, sum.EndTime)
	if err != nil {
		return fmt.Errorf("failed to save to postgres: %w", err)
	}
	return nil
}

// ListSummaries returns the user's most recent summaries, newest first.
func (s *PostgresSummaryStore) ListSummaries(ctx context.Context, userID string, limit int) ([]models.ConversationSummary, error) {
	const query = `
        SELECT id, user_id, summary, vector, start_time, end_time, created_at
        FROM conversation_summaries
        WHERE user_id = $1
        ORDER BY end_time DESC
        LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("summary query failed: %w", err)
	}
	defer rows.Close()

	var out []models.ConversationSummary
	for rows.Next() {
		var sum models.ConversationSummary
		if err := rows.Scan(&sum.ID, &sum.UserID, &sum.Summary, &sum.Vector,
			&sum.StartTime, &sum.EndTime, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("row scan failed: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func withSSLModeDisabled(uri string) string {
	if strings.Contains(uri, "sslmode=") {
		return uri
	}
	if strings.HasPrefix(uri, "postgres://") || strings.HasPrefix(uri, "postgresql://") {
		if strings.Contains(uri, "?") {
			return uri + "&sslmode=disable"
		}
		return uri + "?sslmode=disable"
	}
	return strings.TrimSpace(uri + " sslmode=disable")
}
