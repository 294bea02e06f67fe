package chat

import "time"

// PayloadKind distinguishes what a user sent.
type PayloadKind int

const (
	KindAudio PayloadKind = iota + 1
	KindText
	KindChoice
)

func (k PayloadKind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindText:
		return "text"
	case KindChoice:
		return "choice"
	default:
		return "unknown"
	}
}

// AudioRef points at an uploaded file that still has to be retrieved.
type AudioRef struct {
	FileName string `json:"fileName"`
	Handle   string `json:"handle"`
}

// Message is one inbound message from a user. Exactly one of Audio, Text
// or Choice is meaningful, selected by Kind.
type Message struct {
	UserID     string      `json:"userId"`
	Username   string      `json:"username,omitempty"`
	Kind       PayloadKind `json:"kind"`
	Audio      AudioRef    `json:"audio,omitempty"`
	Text       string      `json:"text,omitempty"`
	Choice     string      `json:"choice,omitempty"`
	ReceivedAt time.Time   `json:"receivedAt"`
}

// Option is one button of a multiple-choice question.
type Option struct {
	Label string `json:"label"`
	Token string `json:"token"`
}
