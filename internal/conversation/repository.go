// Package conversation stores chat history for agent memory.
package conversation

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

type Repository interface {
	// AddMessage appends messages to the history of a session
	AddMessage(ctx context.Context, sessionID string, messages ...*schema.Message) error

	// LoadHistory retrieves the history of a session
	LoadHistory(ctx context.Context, sessionID string) (*History, error)

	// ClearHistory removes all history of a session
	ClearHistory(ctx context.Context, sessionID string) error

	// GetMessageCount returns the number of messages in the session
	GetMessageCount(ctx context.Context, sessionID string) (int, error)
}

// History is loaded session data.
type History struct {
	SessionID string
	Messages  []*schema.Message
}
