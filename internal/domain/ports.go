package domain

import "context"

// Connector opens a connection to the upstream knowledge base from
// credentials persisted on disk.
type Connector interface {
	Connect(ctx context.Context, credentialPath string) (Connection, error)
}

// Connection is the authenticated upstream client handle. Implementations
// need not be safe for concurrent use: the session manager serializes all calls.
type Connection interface {
	// KeepSessionOpen establishes the resident session. It is not paired
	// with a close; the session lives as long as the process.
	KeepSessionOpen(ctx context.Context) error
	RefreshAuth(ctx context.Context) error
	ListSources(ctx context.Context, notebookID string) ([]SourceID, error)
	Ask(ctx context.Context, notebookID, prompt string, sourceIDs []SourceID) (string, error)
}

// Replier sends a text back through a reply handle.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}
