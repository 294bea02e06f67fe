package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
)

// ProbeResult is the part of ffprobe's JSON output the pipeline cares about.
type ProbeResult struct {
	Streams []ProbeStream `json:"streams"`
	Format  ProbeFormat   `json:"format"`
}

// ProbeStream describes one stream of the container.
type ProbeStream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
}

// ProbeFormat captures container-level metadata.
type ProbeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

// AudioStreamCount returns the number of audio streams discovered.
func (r ProbeResult) AudioStreamCount() int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			count++
		}
	}
	return count
}

// IsCanonical reports whether ffprobe saw an MP3 container carrying MP3 audio.
func (r ProbeResult) IsCanonical() bool {
	if !containsFormat(r.Format.FormatName, "mp3") {
		return false
	}
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") && stream.CodecName == "mp3" {
			return true
		}
	}
	return false
}

func containsFormat(formatName, want string) bool {
	for _, name := range strings.Split(formatName, ",") {
		if strings.EqualFold(strings.TrimSpace(name), want) {
			return true
		}
	}
	return false
}

// Inspect executes ffprobe against path and decodes the JSON response.
func Inspect(ctx context.Context, binary, path string) (ProbeResult, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return ProbeResult{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if binaryMissing(err) {
			return ProbeResult{}, &UnsupportedFormatError{Path: path, Err: fmt.Errorf("ffprobe unavailable: %w", err)}
		}
		return ProbeResult{}, &DecodeError{Path: path, Err: fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(stderr.String()))}
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return ProbeResult{}, &DecodeError{Path: path, Err: fmt.Errorf("ffprobe parse: %w", err)}
	}
	return result, nil
}

func binaryMissing(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

const id3HeaderSize = 10

// SniffMP3 reports whether path starts with an MPEG audio layer III frame,
// optionally behind an ID3v2 tag. Other containers may carry ID3v2 tags as
// well, so the frame after the tag decides. A false result means "ask
// ffprobe", not "not an MP3".
func SniffMP3(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	header, err := readUpTo(f, id3HeaderSize)
	if err != nil {
		return false, err
	}

	if bytes.HasPrefix(header, []byte("ID3")) {
		if len(header) < id3HeaderSize {
			return false, nil
		}
		offset := int64(id3HeaderSize) + int64(synchsafe(header[6:10]))
		// Footer present flag.
		if header[5]&0x10 != 0 {
			offset += id3HeaderSize
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return false, err
		}
		if header, err = readUpTo(f, 2); err != nil {
			return false, err
		}
	}
	return isLayer3Sync(header), nil
}

func readUpTo(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:read], nil
}

// synchsafe decodes a 28-bit ID3v2 size stored as four 7-bit bytes.
func synchsafe(b []byte) uint32 {
	return uint32(b[0]&0x7F)<<21 | uint32(b[1]&0x7F)<<14 | uint32(b[2]&0x7F)<<7 | uint32(b[3]&0x7F)
}

// isLayer3Sync checks for 11 sync bits followed by layer bits 01.
func isLayer3Sync(b []byte) bool {
	return len(b) >= 2 && b[0] == 0xFF && b[1]&0xE0 == 0xE0 && b[1]&0x06 == 0x02
}
