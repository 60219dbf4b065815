package history

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/pario-ai/tokenash/pkg/logger"
	"github.com/pario-ai/tokenash/pkg/models"
)

const createTables = `
CREATE TABLE IF NOT EXISTS usage_days (
	day TEXT PRIMARY KEY,
	total_tokens INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS usage_providers (
	day TEXT NOT NULL,
	provider TEXT NOT NULL,
	tokens INTEGER NOT NULL,
	PRIMARY KEY (day, provider)
);
`

// SQLiteStore persists the ledger in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at dbPath. The schema is created lazily
// so that an unreadable file surfaces on Load as an empty ledger.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTables); err != nil {
		return fmt.Errorf("migrate ledger db: %w", err)
	}
	return nil
}

// Load reads every day and its provider counts. Any database error is
// logged and yields an empty ledger.
func (s *SQLiteStore) Load(ctx context.Context) *History {
	h, err := s.load(ctx)
	if err != nil {
		logger.FromContext(ctx).Warn("usage ledger db unreadable, starting empty", zap.Error(err))
		return New()
	}
	return h
}

func (s *SQLiteStore) load(ctx context.Context) (*History, error) {
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}

	h := New()
	rows, err := s.db.QueryContext(ctx, `SELECT day FROM usage_days ORDER BY day`)
	if err != nil {
		return nil, fmt.Errorf("query days: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		if _, err := models.ParseDay(day); err != nil {
			return nil, err
		}
		h.Merge(models.NewUsageRecord(day))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prow, err := s.db.QueryContext(ctx, `SELECT day, provider, tokens FROM usage_providers ORDER BY day, provider`)
	if err != nil {
		return nil, fmt.Errorf("query providers: %w", err)
	}
	defer prow.Close()
	for prow.Next() {
		var day, provider string
		var tokens int64
		if err := prow.Scan(&day, &provider, &tokens); err != nil {
			return nil, fmt.Errorf("scan provider count: %w", err)
		}
		if _, err := models.ParseDay(day); err != nil {
			return nil, err
		}
		if tokens < 0 {
			return nil, fmt.Errorf("negative count %d for %s on %s", tokens, provider, day)
		}
		h.Merge(models.UsageRecord{Day: day, Providers: map[string]int64{provider: tokens}})
	}
	return h, prow.Err()
}

// Save replaces the stored ledger with h in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, h *History) error {
	if err := s.migrate(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM usage_providers`); err != nil {
		return fmt.Errorf("clear providers: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM usage_days`); err != nil {
		return fmt.Errorf("clear days: %w", err)
	}

	for _, r := range h.Records() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO usage_days (day, total_tokens) VALUES (?, ?)`,
			r.Day, r.Total(),
		); err != nil {
			return fmt.Errorf("insert day %s: %w", r.Day, err)
		}
		for p, n := range r.Providers {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO usage_providers (day, provider, tokens) VALUES (?, ?, ?)`,
				r.Day, p, n,
			); err != nil {
				return fmt.Errorf("insert %s count for %s: %w", p, r.Day, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
