package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var (
	bucketNames = []byte("thanks")
	bucketOrder = []byte("thanks_order")
)

// BoltLedger keeps the ledger in a bbolt file. The "thanks" bucket maps a
// username to its record time and "thanks_order" maps a sequence number to
// the username so List can return insertion order.
type BoltLedger struct {
	db     *bolt.DB
	logger *zap.Logger
}

// OpenBolt opens or creates the database at path.
func OpenBolt(path string, logger *zap.Logger) (*BoltLedger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketNames); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketOrder)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltLedger{db: db, logger: logger}, nil
}

// Has reports whether username is recorded.
func (l *BoltLedger) Has(_ context.Context, username string) (bool, error) {
	name, err := normalizeUsername(username)
	if err != nil {
		return false, err
	}

	var found bool
	err = l.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketNames).Get([]byte(name)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("query ledger: %w", err)
	}
	return found, nil
}

// Record inserts username unless present. bbolt allows one writer at a
// time, so the check and the insert cannot interleave.
func (l *BoltLedger) Record(_ context.Context, username string) (bool, error) {
	name, err := normalizeUsername(username)
	if err != nil {
		return false, err
	}

	var added bool
	err = l.db.Update(func(tx *bolt.Tx) error {
		names := tx.Bucket(bucketNames)
		if names.Get([]byte(name)) != nil {
			return nil
		}

		order := tx.Bucket(bucketOrder)
		seq, err := order.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		if err := order.Put(key, []byte(name)); err != nil {
			return err
		}
		if err := names.Put([]byte(name), []byte(time.Now().UTC().Format(time.RFC3339Nano))); err != nil {
			return err
		}
		added = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("insert ledger: %w", err)
	}
	if added {
		l.logger.Info("thanks recorded", zap.String("username", name))
	}
	return added, nil
}

// List returns usernames in insertion order.
func (l *BoltLedger) List(_ context.Context) ([]string, error) {
	var names []string
	err := l.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOrder).ForEach(func(_, v []byte) error {
			names = append(names, string(v))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	return names, nil
}

// Close closes the database.
func (l *BoltLedger) Close() error {
	return l.db.Close()
}
