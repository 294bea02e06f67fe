package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrUnknownHandle is returned for handles that were never issued or were already claimed.
var ErrUnknownHandle = errors.New("unknown file handle")

// ErrTooLarge is returned by Put when the upload exceeds the size cap.
var ErrTooLarge = errors.New("file too large")

// Error wraps a failed storage operation.
type Error struct {
	Op     string
	Handle string
	Err    error
}

func (e *Error) Error() string {
	if e.Handle != "" {
		return fmt.Sprintf("storage %s %s: %v", e.Op, e.Handle, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Store keeps uploaded blobs on local disk until a session claims them.
// Each blob is addressed by an opaque uuid handle.
type Store struct {
	dir      string
	maxBytes int64
	logger   *zap.Logger
}

// New creates the upload directory if needed. maxBytes <= 0 disables the size cap.
func New(dir string, maxBytes int64, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, maxBytes: maxBytes, logger: logger}, nil
}

// Put stores r and returns the handle under which it can be retrieved.
func (s *Store) Put(_ context.Context, r io.Reader) (string, error) {
	handle := uuid.NewString()
	path := s.blobPath(handle)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", &Error{Op: "put", Err: err}
	}

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	written, err := io.Copy(f, src)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && s.maxBytes > 0 && written > s.maxBytes {
		err = fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxBytes)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", &Error{Op: "put", Err: err}
	}

	s.logger.Debug("blob stored", zap.String("handle", handle), zap.Int64("bytes", written))
	return handle, nil
}

// Download moves the blob behind handle into destDir under fileName and
// returns the new path. The blob is gone from the store afterwards, so the
// caller becomes the only owner of the file.
func (s *Store) Download(ctx context.Context, handle, destDir, fileName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &Error{Op: "download", Handle: handle, Err: err}
	}
	if _, err := uuid.Parse(handle); err != nil {
		return "", &Error{Op: "download", Handle: handle, Err: ErrUnknownHandle}
	}

	src := s.blobPath(handle)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = ErrUnknownHandle
		}
		return "", &Error{Op: "download", Handle: handle, Err: err}
	}

	if err := os.MkdirAll(destDir, 0o700); err != nil {
		return "", &Error{Op: "download", Handle: handle, Err: err}
	}
	dst := filepath.Join(destDir, SanitizeFileName(fileName))

	if err := os.Rename(src, dst); err != nil {
		// Cross-device moves fall back to copy and delete.
		if copyErr := copyFile(src, dst); copyErr != nil {
			_ = os.Remove(dst)
			return "", &Error{Op: "download", Handle: handle, Err: copyErr}
		}
		_ = os.Remove(src)
	}
	return dst, nil
}

// Sweep removes blobs that were never claimed and are older than cutoff.
func (s *Store) Sweep(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, &Error{Op: "sweep", Err: err}
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), blobExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("swept unclaimed uploads", zap.Int("count", removed))
	}
	return removed, nil
}

const blobExt = ".blob"

func (s *Store) blobPath(handle string) string {
	return filepath.Join(s.dir, handle+blobExt)
}

// SanitizeFileName reduces a client supplied name to a safe base name.
func SanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "." || name == "/" || name == ".." || name == "" {
		return "audio"
	}
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "audio"
	}
	return name
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
