package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"flightbot/internal/domain"
)

const (
	ollamaDefaultBase  = "http://localhost:11434"
	ollamaDefaultModel = "llama3.1:8b"
)

// Ollama implements domain.Provider for a local or remote Ollama server.
type Ollama struct {
	client       *api.Client
	defaultModel string
	logger       *slog.Logger
}

type OllamaConfig struct {
	APIBase      string
	DefaultModel string
	Logger       *slog.Logger
}

var _ domain.Provider = (*Ollama)(nil)

func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	if cfg.APIBase == "" {
		cfg.APIBase = ollamaDefaultBase
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = ollamaDefaultModel
	}
	base, err := url.Parse(cfg.APIBase)
	if err != nil {
		return nil, fmt.Errorf("parse ollama base URL %q: %w", cfg.APIBase, err)
	}
	return &Ollama{
		client:       api.NewClient(base, StreamingHTTPClient()),
		defaultModel: cfg.DefaultModel,
		logger:       cfg.Logger,
	}, nil
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := o.client.List(ctx); err != nil {
		return fmt.Errorf("ollama not reachable: %w", err)
	}
	return nil
}

// ChatStream streams a completion for the conversation, invoking onDelta
// for every content fragment in arrival order.
func (o *Ollama) ChatStream(ctx context.Context, messages []domain.ChatMessage, onDelta func(string)) error {
	msgs := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, api.Message{Role: m.Role, Content: m.Content})
	}

	stream := true
	req := &api.ChatRequest{
		Model:    o.defaultModel,
		Messages: msgs,
		Stream:   &stream,
	}

	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		if resp.Message.Content != "" {
			onDelta(resp.Message.Content)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ollama chat: %w", err)
	}
	return nil
}
