package chat

import "time"

// State is where a user stands in the tag-edit conversation.
type State int

const (
	StateIdle State = iota
	StateAwaitingTitle
	StateAwaitingArtist
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingTitle:
		return "awaiting_title"
	case StateAwaitingArtist:
		return "awaiting_artist"
	default:
		return "unknown"
	}
}

// Session captures one user's in-progress tag-edit request.
//
// SourcePath is set in every state except StateIdle, Title only from
// StateAwaitingArtist on. WorkDir is owned by the session and removed at
// teardown together with everything inside it.
type Session struct {
	UserID     string    `json:"userId"`
	State      State     `json:"state"`
	WorkDir    string    `json:"workDir,omitempty"`
	FileName   string    `json:"fileName,omitempty"`
	SourcePath string    `json:"sourcePath,omitempty"`
	Title      string    `json:"title,omitempty"`
	Artist     string    `json:"artist,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// IdleSince reports whether the session saw no message after cutoff.
func (s Session) IdleSince(cutoff time.Time) bool {
	return s.UpdatedAt.Before(cutoff)
}
