package ledger

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// FileLedger stores one username per line in a flat text file.
//
// The in-process mutex serializes goroutines; the flock on a sibling
// ".lock" file serializes other processes sharing the same file, so the
// reload-check-append sequence in Record is atomic for both.
type FileLedger struct {
	mu      sync.Mutex
	path    string
	lock    *flock.Flock
	seen    map[string]struct{}
	entries []string
	logger  *zap.Logger
}

// OpenFile opens (creating if needed) the ledger file at path.
func OpenFile(path string, logger *zap.Logger) (*FileLedger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger file: %w", err)
	}
	_ = f.Close()

	l := &FileLedger{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger,
	}

	if err := l.lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock ledger: %w", err)
	}
	defer l.unlock()
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Has reports whether username is recorded. Entries are never removed, so a
// positive answer from memory is final; otherwise the file is re-read to see
// entries appended by other processes.
func (l *FileLedger) Has(_ context.Context, username string) (bool, error) {
	name, err := normalizeUsername(username)
	if err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[name]; ok {
		return true, nil
	}

	if err := l.lock.RLock(); err != nil {
		return false, fmt.Errorf("lock ledger: %w", err)
	}
	defer l.unlock()

	if err := l.reload(); err != nil {
		return false, err
	}
	_, ok := l.seen[name]
	return ok, nil
}

// Record appends username unless it is already present.
func (l *FileLedger) Record(_ context.Context, username string) (bool, error) {
	name, err := normalizeUsername(username)
	if err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.lock.Lock(); err != nil {
		return false, fmt.Errorf("lock ledger: %w", err)
	}
	defer l.unlock()

	if err := l.reload(); err != nil {
		return false, err
	}
	if _, ok := l.seen[name]; ok {
		return false, nil
	}

	if err := l.appendLine(name); err != nil {
		return false, err
	}
	l.seen[name] = struct{}{}
	l.entries = append(l.entries, name)

	l.logger.Info("thanks recorded", zap.String("username", name))
	return true, nil
}

// List returns all usernames in file order.
func (l *FileLedger) List(_ context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock ledger: %w", err)
	}
	defer l.unlock()

	if err := l.reload(); err != nil {
		return nil, err
	}
	return append([]string(nil), l.entries...), nil
}

// Close releases the lock file handle.
func (l *FileLedger) Close() error {
	return l.lock.Close()
}

func (l *FileLedger) unlock() {
	if err := l.lock.Unlock(); err != nil {
		l.logger.Warn("failed to release ledger lock", zap.Error(err))
	}
}

// reload rebuilds the set from disk. Caller holds both locks.
func (l *FileLedger) reload() error {
	f, err := os.Open(l.path)
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}
	defer f.Close()

	seen := make(map[string]struct{})
	var entries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := parseLine(scanner.Text())
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		entries = append(entries, name)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}

	l.seen = seen
	l.entries = entries
	return nil
}

func (l *FileLedger) appendLine(name string) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger for append: %w", err)
	}

	line := name + "\n"
	// A hand-edited file may lack its final newline.
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat ledger: %w", err)
	}
	if size := info.Size(); size > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, size-1); err != nil {
			_ = f.Close()
			return fmt.Errorf("read ledger tail: %w", err)
		}
		if last[0] != '\n' {
			line = "\n" + line
		}
	}

	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append ledger: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync ledger: %w", err)
	}
	return f.Close()
}

// parseLine accepts bare usernames and the older "Thanks from <name>!" lines.
func parseLine(line string) string {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "Thanks from ") && strings.HasSuffix(line, "!") {
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(line, "Thanks from "), "!"))
	}
	return line
}
