// Package ledger records which users already said "thanks".
//
// A ledger is an append-only set of exact usernames. Record is idempotent:
// it adds a username at most once, no matter how many callers race on it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/tagbot/backend/internal/config"
)

// ErrInvalidUsername is returned for empty or multi-line usernames.
var ErrInvalidUsername = errors.New("invalid username")

// Ledger is the acknowledgment store shared by all users.
type Ledger interface {
	// Has reports whether username is already recorded.
	Has(ctx context.Context, username string) (bool, error)
	// Record adds username and reports whether it was newly added.
	Record(ctx context.Context, username string) (bool, error)
	// List returns all recorded usernames in insertion order.
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Open builds the ledger selected by cfg.
func Open(cfg config.LedgerConfig, logger *zap.Logger) (Ledger, error) {
	switch cfg.Backend {
	case "", "file":
		return OpenFile(cfg.Path, logger)
	case "sqlite":
		return OpenSQLite(cfg.Path, logger)
	case "bolt":
		return OpenBolt(cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}

func normalizeUsername(username string) (string, error) {
	name := strings.TrimSpace(username)
	if name == "" || strings.ContainsAny(name, "\r\n") {
		return "", fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}
	return name, nil
}
