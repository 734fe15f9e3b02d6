package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"snowbotium/internal/config"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// ErrGeneration marks a failed or timed out completion call.
var ErrGeneration = errors.New("generation error")

const (
	systemPrompt   = "You are a technical business analyst."
	documentPrompt = "Here is a PDF document. Can you analyze it and provide information based on its content?"
	maxCandidates  = 8
)

// ChatModel is the part of an eino chat model the generator calls.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Generator asks the configured chat model to answer an instruction about a
// document.
type Generator struct {
	chat       ChatModel
	provider   string
	model      string
	candidates int
	timeout    time.Duration
}

// NewGenerator builds the chat model of the active provider.
func NewGenerator(ctx context.Context, cfg *config.Config) (*Generator, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	provider := cfg.LLM.Provider
	provCfg := cfg.Provider()
	chatModel, err := newChatModel(ctx, provider, provCfg)
	if err != nil {
		return nil, err
	}
	g := NewGeneratorWithModel(chatModel, cfg.App.Candidates, cfg.RequestTimeout())
	g.provider = provider
	g.model = provCfg.Model
	return g, nil
}

// NewGeneratorWithModel wraps an existing chat model.
func NewGeneratorWithModel(chat ChatModel, candidates int, timeout time.Duration) *Generator {
	if candidates <= 0 {
		candidates = 1
	}
	if candidates > maxCandidates {
		candidates = maxCandidates
	}
	return &Generator{chat: chat, candidates: candidates, timeout: timeout}
}

func newChatModel(ctx context.Context, provider string, provCfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if cerr != nil {
			return nil, fmt.Errorf("new gemini client: %w", cerr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  provCfg.Model,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return chatModel, nil
}

// Generate returns every non-blank completion for instruction, given the
// document text as context. No completions is not an error.
func (g *Generator) Generate(ctx context.Context, documentText, instruction string) ([]string, error) {
	if g == nil || g.chat == nil {
		return nil, fmt.Errorf("%w: chat model unavailable", ErrGeneration)
	}
	if strings.TrimSpace(instruction) == "" {
		return nil, fmt.Errorf("%w: instruction is required", ErrGeneration)
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	messages := buildMessages(documentText, instruction)
	responses := make([]string, 0, g.candidates)
	for i := 0; i < g.candidates; i++ {
		msg, err := g.chat.Generate(ctx, messages)
		if err != nil {
			return nil, fmt.Errorf("%w: %s completion %d: %v", ErrGeneration, g.describe(), i+1, err)
		}
		if msg == nil {
			return nil, fmt.Errorf("%w: %s returned no message", ErrGeneration, g.describe())
		}
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		responses = append(responses, msg.Content)
	}
	return responses, nil
}

func (g *Generator) describe() string {
	if g.provider == "" {
		return "chat model"
	}
	if g.model == "" {
		return g.provider
	}
	return g.provider + "/" + g.model
}

func buildMessages(documentText, instruction string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(documentPrompt),
		schema.AssistantMessage(documentText, nil),
		schema.UserMessage(instruction),
	}
}
