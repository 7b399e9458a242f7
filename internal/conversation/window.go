package conversation

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// Window is the memory an agent sees: the last turns of one session.
type Window struct {
	repo      Repository
	sessionID string
	// maxMessages is twice the configured turn count; a turn is a user and an assistant message.
	maxMessages int
}

// NewWindow returns a window over sessionID keeping contextWindow turns. Zero or less keeps everything.
func NewWindow(repo Repository, sessionID string, contextWindow int) *Window {
	return &Window{repo: repo, sessionID: sessionID, maxMessages: contextWindow * 2}
}

func (w *Window) SessionID() string {
	return w.sessionID
}

// Load returns the messages in the window, oldest first.
func (w *Window) Load(ctx context.Context) ([]*schema.Message, error) {
	history, err := w.repo.LoadHistory(ctx, w.sessionID)
	if err != nil {
		return nil, err
	}
	return trimTail(history.Messages, w.maxMessages), nil
}

// SaveTurn records a user input and the reply to it.
func (w *Window) SaveTurn(ctx context.Context, input, output string) error {
	return w.repo.AddMessage(ctx, w.sessionID, schema.UserMessage(input), schema.AssistantMessage(output, nil))
}

func (w *Window) Clear(ctx context.Context) error {
	return w.repo.ClearHistory(ctx, w.sessionID)
}

func trimTail(messages []*schema.Message, max int) []*schema.Message {
	source := messages
	if max > 0 && len(messages) > max {
		source = messages[len(messages)-max:]
	}
	result := make([]*schema.Message, 0, len(source))
	for _, m := range source {
		if m != nil {
			result = append(result, m)
		}
	}
	return result
}
