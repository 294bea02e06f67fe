package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/tagbot/backend/internal/service/media"
)

func newRetagCommand(ctx *commandContext) *cobra.Command {
	var title, artist, out string

	cmd := &cobra.Command{
		Use:   "retag <file>",
		Short: "Convert a file to MP3 and set its title and artist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(title) == "" || strings.TrimSpace(artist) == "" {
				return errors.New("--title and --artist are required")
			}

			src, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			info, err := os.Stat(src)
			if err != nil {
				return fmt.Errorf("inspect file: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", src)
			}

			dst := out
			if dst == "" {
				dst = strings.TrimSuffix(src, filepath.Ext(src)) + media.CanonicalExt
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.ensureLogger()

			// The pipeline consumes its input, so it works on a private copy.
			work, err := os.MkdirTemp("", "tagtool-")
			if err != nil {
				return fmt.Errorf("create work dir: %w", err)
			}
			defer os.RemoveAll(work)

			staged := filepath.Join(work, filepath.Base(src))
			if err := copyFile(src, staged); err != nil {
				return err
			}

			pipeline := media.NewPipeline(media.NewNormalizer(media.NormalizerConfig{
				FFmpegPath:  cfg.Media.FFmpegPath,
				FFprobePath: cfg.Media.FFprobePath,
				Bitrate:     cfg.Media.Bitrate,
			}, logger), media.NewTagger(), logger)

			result, err := pipeline.Process(cmd.Context(), staged, media.Tags{Title: title, Artist: artist})
			if err != nil {
				return err
			}
			if err := copyFile(result, dst); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (title=%q artist=%q)\n", dst, title, artist)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Title tag to write")
	cmd.Flags().StringVar(&artist, "artist", "", "Artist tag to write")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output path (defaults to the input name with .mp3)")
	return cmd
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	outFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(outFile, in); err != nil {
		_ = outFile.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return outFile.Close()
}
