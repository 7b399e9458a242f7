package langchain

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// fakeModel answers with respond and records every call.
type fakeModel struct {
	mu      sync.Mutex
	respond func(in []*schema.Message) (*schema.Message, error)
	// generate, when set, replaces respond and sees the call context.
	generate func(ctx context.Context, in []*schema.Message) (*schema.Message, error)
	calls    [][]*schema.Message
	tools    []*schema.ToolInfo
}

var _ model.ToolCallingChatModel = (*fakeModel)(nil)

func echoModel() *fakeModel {
	return &fakeModel{respond: func(in []*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage("echo: "+lastUser(in), nil), nil
	}}
}

func lastUser(in []*schema.Message) string {
	for i := len(in) - 1; i >= 0; i-- {
		if in[i].Role == schema.User {
			return in[i].Content
		}
	}
	return ""
}

func (f *fakeModel) Generate(ctx context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]*schema.Message(nil), in...))
	f.mu.Unlock()
	if f.generate != nil {
		return f.generate(ctx, in)
	}
	return f.respond(in)
}

func (f *fakeModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (f *fakeModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tools = tools
	return f, nil
}

func (f *fakeModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// scriptedModel replies with the given messages in order.
func scriptedModel(replies ...*schema.Message) *fakeModel {
	var mu sync.Mutex
	i := 0
	return &fakeModel{respond: func([]*schema.Message) (*schema.Message, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(replies) {
			return nil, fmt.Errorf("no scripted reply left")
		}
		r := replies[i]
		i++
		return r, nil
	}}
}

func toolCall(id, name, args string) schema.ToolCall {
	return schema.ToolCall{ID: id, Function: schema.FunctionCall{Name: name, Arguments: args}}
}
