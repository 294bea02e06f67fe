package media

import (
	"github.com/bogem/id3v2"
)

// Tags holds the metadata fields the bot edits.
type Tags struct {
	Title  string
	Artist string
}

// Tagger reads and writes the ID3v2 title (TIT2) and artist (TPE1) frames
// of MP3 files. Other frames already present in the file are preserved.
type Tagger struct{}

// NewTagger creates a Tagger.
func NewTagger() *Tagger {
	return &Tagger{}
}

// Write sets title and artist on the file at path and persists the change
// in place. The audio frames after the tag are not modified.
func (t *Tagger) Write(path string, tags Tags) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return &TagWriteError{Path: path, Err: err}
	}
	defer tag.Close()

	// v2.4 is the only version that allows UTF-8 text frames.
	tag.SetVersion(4)
	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetTitle(tags.Title)
	tag.SetArtist(tags.Artist)

	if err := tag.Save(); err != nil {
		return &TagWriteError{Path: path, Err: err}
	}
	return nil
}

// Read returns the title and artist stored in the file at path.
func (t *Tagger) Read(path string) (Tags, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true, ParseFrames: []string{"Title", "Artist"}})
	if err != nil {
		return Tags{}, &DecodeError{Path: path, Err: err}
	}
	defer tag.Close()

	return Tags{Title: tag.Title(), Artist: tag.Artist()}, nil
}
