package langchain

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	errx "github.com/langfuse-nodes/server/internal/core/error"
	"github.com/langfuse-nodes/server/internal/credentials"
	"github.com/langfuse-nodes/server/internal/host"
	ports "github.com/langfuse-nodes/server/internal/schema"
)

const LmChatGeminiType = Package + ".lmChatGemini"

const defaultGeminiModel = "gemini-2.5-flash"

// LmChatGemini supplies a Gemini chat model.
type LmChatGemini struct{}

var _ host.Supplier = (*LmChatGemini)(nil)

func (LmChatGemini) Description() host.Description {
	return host.Description{
		DisplayName: "Google Gemini Chat Model",
		Name:        LmChatGeminiType,
		Group:       []string{"transform"},
		Version:     []float64{1},
		Description: "Chat Model Google Gemini",
		Defaults:    host.Defaults{Name: "Google Gemini Chat Model"},
		Inputs:      ports.Ports(),
		Outputs:     ports.Ports(ports.Port{Type: ports.AILanguageModel}),
		OutputNames: []string{"Model"},
		Credentials: []host.CredentialRef{{Name: credentials.GeminiAPI, Required: true}},
		Properties: []host.Parameter{
			{DisplayName: "Model", Name: "modelName", Type: "options", Default: defaultGeminiModel,
				Choices: []host.Option{
					{Name: "Gemini 2.5 Pro", Value: "gemini-2.5-pro"},
					{Name: "Gemini 2.5 Flash", Value: "gemini-2.5-flash"},
					{Name: "Gemini 2.5 Flash Lite", Value: "gemini-2.5-flash-lite"},
					{Name: "Gemini 2.0 Flash", Value: "gemini-2.0-flash"},
				}},
			{DisplayName: "Options", Name: "options", Type: "collection", Default: map[string]any{},
				Options: []host.Parameter{
					{DisplayName: "Maximum Number of Tokens", Name: "maxOutputTokens", Type: "number", Default: 2048},
					{DisplayName: "Sampling Temperature", Name: "temperature", Type: "number", Default: 0.4},
					{DisplayName: "Top P", Name: "topP", Type: "number", Default: 1},
					{DisplayName: "Thinking Budget", Name: "thinkingBudget", Type: "number", Default: 0,
						Description: "Tokens the model may spend thinking. 0 leaves the provider default."},
				}},
		},
	}
}

func (LmChatGemini) SupplyData(ctx context.Context, ec host.ExecContext, itemIndex int) (host.Response, error) {
	node := ec.Node().Name
	cred, err := ec.Credentials(ctx, credentials.GeminiAPI)
	if err != nil {
		return host.Response{}, errx.New(err, http.StatusBadRequest, "gemini credentials are not available").WithNode(node)
	}
	apiKey, ok := cred["apiKey"].(string)
	if !ok || apiKey == "" {
		return host.Response{}, errx.CredentialShape(node, "apiKey", errx.TypeName(cred["apiKey"]))
	}
	baseURL, _ := cred["host"].(string)

	modelName, err := host.GetString(ec, "modelName", itemIndex, defaultGeminiModel)
	if err != nil {
		return host.Response{}, err
	}
	maxTokens, err := host.GetNumber(ec, "options.maxOutputTokens", itemIndex, 2048)
	if err != nil {
		return host.Response{}, err
	}
	temperature, err := host.GetNumber(ec, "options.temperature", itemIndex, 0.4)
	if err != nil {
		return host.Response{}, err
	}
	topP, err := host.GetNumber(ec, "options.topP", itemIndex, 1)
	if err != nil {
		return host.Response{}, err
	}
	thinking, err := host.GetNumber(ec, "options.thinkingBudget", itemIndex, 0)
	if err != nil {
		return host.Response{}, err
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return host.Response{}, fmt.Errorf("error creating Gemini client: %w", err)
	}

	cfg := &gemini.Config{
		Client:      client,
		Model:       modelName,
		Temperature: genai.Ptr(float32(temperature)),
		MaxTokens:   genai.Ptr(int(maxTokens)),
		TopP:        genai.Ptr(float32(topP)),
	}
	if thinking > 0 {
		cfg.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  genai.Ptr(int32(thinking)),
		}
	}
	cm, err := gemini.NewChatModel(ctx, cfg)
	if err != nil {
		return host.Response{}, fmt.Errorf("error creating Gemini model: %w", err)
	}
	return host.Response{Value: &GeminiModel{ChatModel: cm, name: modelName}}, nil
}

// GeminiModel is the eino Gemini chat model that also reports its model name.
type GeminiModel struct {
	*gemini.ChatModel
	name string
}

var _ model.ToolCallingChatModel = (*GeminiModel)(nil)

func (m *GeminiModel) ModelName() string {
	return m.name
}

func (m *GeminiModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	bound, err := m.ChatModel.WithTools(tools)
	if err != nil {
		return nil, err
	}
	if gm, ok := bound.(*gemini.ChatModel); ok {
		return &GeminiModel{ChatModel: gm, name: m.name}, nil
	}
	return bound, nil
}
