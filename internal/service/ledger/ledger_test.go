package ledger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/tagbot/backend/internal/config"
)

func openBackends(t *testing.T) map[string]Ledger {
	t.Helper()
	dir := t.TempDir()

	file, err := Open(config.LedgerConfig{Backend: "file", Path: filepath.Join(dir, "thanks_list.txt")}, nil)
	require.NoError(t, err)
	db, err := Open(config.LedgerConfig{Backend: "sqlite", Path: filepath.Join(dir, "thanks.db")}, nil)
	require.NoError(t, err)
	kv, err := Open(config.LedgerConfig{Backend: "bolt", Path: filepath.Join(dir, "thanks.bolt")}, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = file.Close()
		_ = db.Close()
		_ = kv.Close()
	})
	return map[string]Ledger{"file": file, "sqlite": db, "bolt": kv}
}

func TestRecordIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, l := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			added, err := l.Record(ctx, "alice")
			require.NoError(t, err)
			assert.True(t, added)

			added, err = l.Record(ctx, " alice ")
			require.NoError(t, err)
			assert.False(t, added)

			has, err := l.Has(ctx, "alice")
			require.NoError(t, err)
			assert.True(t, has)

			names, err := l.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"alice"}, names)
		})
	}
}

func TestHasMatchesExactUsername(t *testing.T) {
	ctx := context.Background()
	for name, l := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := l.Record(ctx, "alice")
			require.NoError(t, err)

			for _, other := range []string{"al", "lice", "Alice", "alice2"} {
				has, err := l.Has(ctx, other)
				require.NoError(t, err)
				assert.Falsef(t, has, "%q must not match alice", other)
			}

			added, err := l.Record(ctx, "al")
			require.NoError(t, err)
			assert.True(t, added)
		})
	}
}

func TestRejectsInvalidUsernames(t *testing.T) {
	ctx := context.Background()
	for name, l := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			for _, bad := range []string{"", "   ", "bob\nmallory"} {
				_, err := l.Record(ctx, bad)
				require.ErrorIs(t, err, ErrInvalidUsername)
				_, err = l.Has(ctx, bad)
				require.ErrorIs(t, err, ErrInvalidUsername)
			}
		})
	}
}

func TestConcurrentRecordSameUser(t *testing.T) {
	ctx := context.Background()
	for name, l := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			var added atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 32; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := l.Record(ctx, "alice")
					if err != nil {
						t.Errorf("Record err: %v", err)
						return
					}
					if ok {
						added.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), added.Load())
			names, err := l.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"alice"}, names)
		})
	}
}

func TestConcurrentRecordTwoUsersWritesTwoLines(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "thanks_list.txt")
	l, err := OpenFile(path, nil)
	require.NoError(t, err)
	defer l.Close()

	var wg sync.WaitGroup
	for _, user := range []string{"alice", "bob", "alice", "bob"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			if _, err := l.Record(ctx, user); err != nil {
				t.Errorf("Record err: %v", err)
			}
		}(user)
	}
	wg.Wait()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.ElementsMatch(t, []string{"alice", "bob"}, lines)
}

func TestFileLedgerSharedAcrossHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "thanks_list.txt")

	first, err := OpenFile(path, nil)
	require.NoError(t, err)
	defer first.Close()
	second, err := OpenFile(path, nil)
	require.NoError(t, err)
	defer second.Close()

	added, err := first.Record(ctx, "alice")
	require.NoError(t, err)
	require.True(t, added)

	has, err := second.Has(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, has)

	added, err = second.Record(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, added)
}

func TestFileLedgerReadsLegacyLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thanks_list.txt")
	require.NoError(t, os.WriteFile(path, []byte("Thanks from alice!\nbob\n\n"), 0o644))

	l, err := OpenFile(path, nil)
	require.NoError(t, err)
	defer l.Close()

	names, err := l.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, names)
}

func TestFileLedgerAppendsAfterMissingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thanks_list.txt")
	require.NoError(t, os.WriteFile(path, []byte("Thanks from alice!"), 0o644))

	l, err := OpenFile(path, nil)
	require.NoError(t, err)
	defer l.Close()

	added, err := l.Record(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, added)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Thanks from alice!\nbob\n", string(content))

	reopened, err := OpenFile(path, nil)
	require.NoError(t, err)
	defer reopened.Close()
	names, err := reopened.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, names)
}

func TestBoltLedgerKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "thanks.bolt")

	l, err := OpenBolt(path, nil)
	require.NoError(t, err)
	for _, name := range []string{"zoe", "alice", "mike", "alice"} {
		_, err := l.Record(ctx, name)
		require.NoError(t, err)
	}
	require.NoError(t, l.Close())

	reopened, err := OpenBolt(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	names, err := reopened.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"zoe", "alice", "mike"}, names)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(config.LedgerConfig{Backend: "redis"}, nil)
	require.Error(t, err)
}
