// Package observers holds eino callback handlers: zerolog loggers for debug runs and
// the Langfuse handler that records runs as observations.
package observers

import (
	einocb "github.com/cloudwego/eino/callbacks"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"
	"github.com/rs/zerolog"
)

// NewLogCallbacks aggregates the model, prompt and tool loggers into one callbacks.Handler.
func NewLogCallbacks(log zerolog.Logger) einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		Tool(newToolHandler(log)).
		ChatModel(newModelHandler(log)).
		Prompt(newPromptHandler(log)).
		Handler()
}
