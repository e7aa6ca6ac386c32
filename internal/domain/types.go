package domain

type UserID string
type SourceID string

// Mode is the verbosity requested from the upstream service.
type Mode string

const (
	ModeConcise  Mode = "concise"  // Short summary, the default
	ModeDetailed Mode = "detailed" // Professional depth with key figures
)

// Query is built once per inbound message and dropped after the reply.
type Query struct {
	Raw    string
	Prompt string
	Mode   Mode
}

// Result crosses from the execution context back to the waiting caller.
type Result struct {
	Answer string
	Err    error
}

// TextMessage is one inbound text event from the messaging platform.
type TextMessage struct {
	EventID    string
	Text       string
	ReplyToken string // single use, short validity window
	UserID     UserID
}
