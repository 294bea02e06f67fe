package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS thanks (
	username    TEXT PRIMARY KEY,
	recorded_at TEXT NOT NULL
)`

// SQLiteLedger keeps the ledger in a SQLite table whose primary key makes
// the check-and-insert a single atomic statement.
type SQLiteLedger struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteLedger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteLedger{db: db, logger: logger}, nil
}

// Has reports whether username is recorded.
func (l *SQLiteLedger) Has(ctx context.Context, username string) (bool, error) {
	name, err := normalizeUsername(username)
	if err != nil {
		return false, err
	}

	var one int
	err = l.db.QueryRowContext(ctx, `SELECT 1 FROM thanks WHERE username = ?`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query ledger: %w", err)
	}
	return true, nil
}

// Record inserts username unless present.
func (l *SQLiteLedger) Record(ctx context.Context, username string) (bool, error) {
	name, err := normalizeUsername(username)
	if err != nil {
		return false, err
	}

	res, err := l.db.ExecContext(ctx,
		`INSERT INTO thanks (username, recorded_at) VALUES (?, ?) ON CONFLICT(username) DO NOTHING`,
		name, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("insert ledger: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert ledger: %w", err)
	}
	if affected == 1 {
		l.logger.Info("thanks recorded", zap.String("username", name))
	}
	return affected == 1, nil
}

// List returns usernames in insertion order.
func (l *SQLiteLedger) List(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT username FROM thanks ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close closes the database.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
