package limiter

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteHistory keeps trigger times in a local database so the budget
// survives restarts.
type SQLiteHistory struct {
	db  *sql.DB
	key string
}

// OpenSQLite opens (and creates) the database at path.
func OpenSQLite(path, key string) (*SQLiteHistory, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS trigger_history (
		key TEXT NOT NULL,
		ts_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trigger_history_key_ts ON trigger_history(key, ts_ms);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate trigger history: %w", err)
	}
	return &SQLiteHistory{db: db, key: key}, nil
}

func (h *SQLiteHistory) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := h.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trigger_history WHERE key = ? AND ts_ms > ?`,
		h.key, since.UnixMilli()).Scan(&n)
	return n, err
}

func (h *SQLiteHistory) Record(ctx context.Context, at time.Time, window time.Duration) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO trigger_history (key, ts_ms) VALUES (?, ?)`, h.key, at.UnixMilli()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM trigger_history WHERE key = ? AND ts_ms <= ?`, h.key, at.Add(-window).UnixMilli()); err != nil {
		return err
	}
	return tx.Commit()
}

func (h *SQLiteHistory) Reserve(ctx context.Context, at time.Time, window time.Duration, max int) (bool, error) {
	// BEGIN IMMEDIATE takes the write lock before the count so processes
	// sharing the file are serialized. The driver's BeginTx is always
	// deferred, hence the raw statements on a dedicated connection.
	conn, err := h.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return false, fmt.Errorf("begin immediate transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if _, err := conn.ExecContext(ctx,
		`DELETE FROM trigger_history WHERE key = ? AND ts_ms <= ?`, h.key, at.Add(-window).UnixMilli()); err != nil {
		return false, err
	}
	var n int
	if err := conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trigger_history WHERE key = ?`, h.key).Scan(&n); err != nil {
		return false, err
	}
	reserved := n < max
	if reserved {
		if _, err := conn.ExecContext(ctx,
			`INSERT INTO trigger_history (key, ts_ms) VALUES (?, ?)`, h.key, at.UnixMilli()); err != nil {
			return false, err
		}
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	committed = true
	return reserved, nil
}

func (h *SQLiteHistory) Close() error {
	return h.db.Close()
}
