package provider

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"flightbot/internal/domain"
)

const (
	deepseekDefaultBase  = "https://api.deepseek.com/v1"
	deepseekDefaultModel = "deepseek-chat"
	deepseekDefaultTemp  = 0.7
)

// DeepSeek implements domain.Provider against the DeepSeek chat completion
// API. The endpoint is OpenAI-compatible, so the same type serves any
// provider speaking that protocol; only the reported name changes.
type DeepSeek struct {
	name        string
	client      openai.Client
	model       string
	temperature float64
	logger      *slog.Logger
}

type DeepSeekConfig struct {
	Name        string // reported by Name(); defaults to "deepseek"
	APIKey      string
	APIBase     string
	Model       string
	Temperature float64
	Logger      *slog.Logger
}

var _ domain.Provider = (*DeepSeek)(nil)

func NewDeepSeek(cfg DeepSeekConfig) *DeepSeek {
	if cfg.Name == "" {
		cfg.Name = "deepseek"
	}
	if cfg.APIBase == "" {
		cfg.APIBase = deepseekDefaultBase
	}
	if cfg.Model == "" {
		cfg.Model = deepseekDefaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = deepseekDefaultTemp
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("DEEPSEEK_API_KEY")
	}
	return &DeepSeek{
		name: cfg.Name,
		client: openai.NewClient(
			option.WithBaseURL(cfg.APIBase),
			option.WithAPIKey(cfg.APIKey),
			option.WithHTTPClient(StreamingHTTPClient()),
		),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      cfg.Logger,
	}
}

func (d *DeepSeek) Name() string { return d.name }

func (d *DeepSeek) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := d.client.Models.List(ctx); err != nil {
		return fmt.Errorf("%s not reachable: %w", d.name, err)
	}
	return nil
}

// ChatStream streams a completion for the conversation, invoking onDelta
// for every content fragment in arrival order.
func (d *DeepSeek) ChatStream(ctx context.Context, messages []domain.ChatMessage, onDelta func(string)) error {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(d.model),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(d.temperature),
	}

	stream := d.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			onDelta(delta)
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("%s stream: %w", d.name, err)
	}
	return nil
}

func toOpenAIMessages(messages []domain.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case domain.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
