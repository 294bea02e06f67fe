package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CanonicalExt is the extension of the container every delivered file uses.
const CanonicalExt = ".mp3"

// NormalizerConfig names the codec binaries and the fixed quality target.
type NormalizerConfig struct {
	FFmpegPath  string
	FFprobePath string
	Bitrate     string
}

// Normalizer re-encodes non-MP3 audio into MP3 with ffmpeg.
type Normalizer struct {
	ffmpeg  string
	ffprobe string
	bitrate string
	logger  *zap.Logger
}

// NewNormalizer creates a Normalizer. Empty fields fall back to binaries on
// PATH and 320k.
func NewNormalizer(cfg NormalizerConfig, logger *zap.Logger) *Normalizer {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.Bitrate == "" {
		cfg.Bitrate = "320k"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		ffmpeg:  cfg.FFmpegPath,
		ffprobe: cfg.FFprobePath,
		bitrate: cfg.Bitrate,
		logger:  logger,
	}
}

// Normalize returns the path of an MP3 rendition of path.
//
// Files that already are MP3 keep their audio data untouched and are only
// renamed when their extension is not ".mp3". Anything else is fully
// decoded and re-encoded; on success the source file is deleted and the
// result lives next to it with the ".mp3" extension. On failure the source
// is left in place and no partial output remains.
func (n *Normalizer) Normalize(ctx context.Context, path string) (string, error) {
	canonical, err := n.isCanonical(ctx, path)
	if err != nil {
		return "", err
	}
	if canonical {
		return ensureCanonicalExt(path)
	}

	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, "."+uuid.NewString()+CanonicalExt)
	if err := n.encode(ctx, path, tmp); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}

	if err := n.verify(ctx, tmp); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}

	dst := strings.TrimSuffix(path, filepath.Ext(path)) + CanonicalExt
	if err := os.Remove(path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("remove source %s: %w", path, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("move encoded file to %s: %w", dst, err)
	}

	n.logger.Debug("audio normalized", zap.String("source", path), zap.String("path", dst), zap.String("bitrate", n.bitrate))
	return dst, nil
}

func (n *Normalizer) isCanonical(ctx context.Context, path string) (bool, error) {
	sniffed, err := SniffMP3(path)
	if err != nil {
		return false, &DecodeError{Path: path, Err: err}
	}
	if sniffed {
		return true, nil
	}

	// Some MP3 files start with junk before the first frame; ask ffprobe.
	result, err := Inspect(ctx, n.ffprobe, path)
	if err != nil {
		var unsupported *UnsupportedFormatError
		if errors.As(err, &unsupported) {
			n.logger.Debug("ffprobe unavailable, relying on ffmpeg", zap.String("path", path))
			return false, nil
		}
		return false, err
	}
	if result.AudioStreamCount() == 0 {
		return false, &DecodeError{Path: path, Err: errors.New("no audio stream")}
	}
	return result.IsCanonical(), nil
}

func (n *Normalizer) encode(ctx context.Context, src, dst string) error {
	args := []string{
		"-hide_banner", "-nostdin", "-v", "error", "-y",
		"-i", src,
		"-vn", "-map", "0:a:0",
		"-c:a", "libmp3lame", "-b:a", n.bitrate,
		"-f", "mp3", dst,
	}
	cmd := exec.CommandContext(ctx, n.ffmpeg, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return classifyFFmpegError(src, err, stderr.String())
	}
	return nil
}

func (n *Normalizer) verify(ctx context.Context, path string) error {
	result, err := Inspect(ctx, n.ffprobe, path)
	if err != nil {
		var unsupported *UnsupportedFormatError
		if errors.As(err, &unsupported) {
			return nil
		}
		return err
	}
	if result.AudioStreamCount() == 0 {
		return &DecodeError{Path: path, Err: errors.New("encoded file has no audio stream")}
	}
	return nil
}

var unsupportedMarkers = []string{
	"unknown encoder",
	"encoder not found",
	"decoder not found",
	"unknown decoder",
	"not currently supported",
	"no decoder",
}

func classifyFFmpegError(path string, err error, stderr string) error {
	detail := strings.TrimSpace(stderr)
	if binaryMissing(err) {
		return &UnsupportedFormatError{Path: path, Err: fmt.Errorf("ffmpeg unavailable: %w", err)}
	}

	lower := strings.ToLower(detail)
	for _, marker := range unsupportedMarkers {
		if strings.Contains(lower, marker) {
			return &UnsupportedFormatError{Path: path, Format: strings.TrimPrefix(filepath.Ext(path), "."), Err: fmt.Errorf("ffmpeg: %w: %s", err, detail)}
		}
	}
	return &DecodeError{Path: path, Err: fmt.Errorf("ffmpeg: %w: %s", err, detail)}
}

func ensureCanonicalExt(path string) (string, error) {
	ext := filepath.Ext(path)
	if strings.EqualFold(ext, CanonicalExt) {
		return path, nil
	}
	dst := strings.TrimSuffix(path, ext) + CanonicalExt
	if err := os.Rename(path, dst); err != nil {
		return "", fmt.Errorf("rename %s: %w", path, err)
	}
	return dst, nil
}
