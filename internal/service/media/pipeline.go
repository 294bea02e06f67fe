package media

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// FormatNormalizer converts a file into the canonical container.
type FormatNormalizer interface {
	Normalize(ctx context.Context, path string) (string, error)
}

// TagCodec persists title and artist into a canonical file.
type TagCodec interface {
	Write(path string, tags Tags) error
}

// Pipeline normalizes a file and then writes its tags.
type Pipeline struct {
	normalizer FormatNormalizer
	tagger     TagCodec
	logger     *zap.Logger
}

// NewPipeline wires a normalizer and a tag codec.
func NewPipeline(normalizer FormatNormalizer, tagger TagCodec, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{normalizer: normalizer, tagger: tagger, logger: logger}
}

// Process runs normalize-then-tag on src and returns the path of the
// resulting file, which the caller owns. Errors are *DecodeError,
// *UnsupportedFormatError or *TagWriteError where the cause is known.
func (p *Pipeline) Process(ctx context.Context, src string, tags Tags) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("pipeline cancelled: %w", err)
	}

	path, err := p.normalizer.Normalize(ctx, src)
	if err != nil {
		return "", err
	}

	if err := p.tagger.Write(path, tags); err != nil {
		return path, err
	}

	p.logger.Info("tags written", zap.String("path", path), zap.String("title", tags.Title), zap.String("artist", tags.Artist))
	return path, nil
}
