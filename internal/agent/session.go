package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"flightbot/internal/domain"
	"flightbot/internal/metrics"
)

// ToolCaller executes tool requests against a remote dispatch service. It is
// satisfied by rpc.ToolsClient.
type ToolCaller interface {
	ExecuteTool(ctx context.Context, req domain.ToolRequest) (domain.ToolResult, error)
}

// Session owns one conversation: the ordered message history, the completion
// provider, and an optional tools client. It is driven from a single
// cooperative loop; none of its methods are safe for concurrent use.
type Session struct {
	provider domain.Provider
	tools    ToolCaller
	messages []domain.ChatMessage
	logger   *slog.Logger
}

type SessionConfig struct {
	Provider domain.Provider
	Logger   *slog.Logger
}

func NewSession(cfg SessionConfig) *Session {
	return &Session{
		provider: cfg.Provider,
		logger:   cfg.Logger,
	}
}

// SetToolsClient attaches the dispatch client. Without one, tool blocks in
// model output are inert.
func (s *Session) SetToolsClient(tc ToolCaller) {
	s.tools = tc
}

func (s *Session) HasTools() bool {
	return s.tools != nil
}

func (s *Session) AddUserMessage(content string) {
	s.messages = append(s.messages, domain.ChatMessage{Role: domain.RoleUser, Content: content})
}

func (s *Session) AddAssistantMessage(content string) {
	s.messages = append(s.messages, domain.ChatMessage{Role: domain.RoleAssistant, Content: content})
}

func (s *Session) AddSystemMessage(content string) {
	s.messages = append(s.messages, domain.ChatMessage{Role: domain.RoleSystem, Content: content})
}

// RemoveLastMessage rolls back the most recent message, whatever its role.
// It is the only way history ever shrinks.
func (s *Session) RemoveLastMessage() {
	if len(s.messages) > 0 {
		s.messages = s.messages[:len(s.messages)-1]
	}
}

func (s *Session) MessageCount() int {
	return len(s.messages)
}

// History returns a copy of the message history, oldest first.
func (s *Session) History() []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// GetResponse runs one turn: it streams a completion over the current
// history, pushing every fragment to sink in order, then scans the COMPLETED
// text for tool blocks and executes them strictly sequentially, splicing
// each rendered result into both the sink and the returned text.
//
// Per-call progress lines go to the sink only. A tool failure, data-level or
// transport, becomes inline text and never aborts the turn. If the
// completion itself fails, the just-added user message is rolled back, no
// assistant text is produced, and the error goes to the caller.
//
// The caller records the returned text as the assistant message.
func (s *Session) GetResponse(ctx context.Context, sink func(string)) (string, error) {
	var full strings.Builder
	metrics.LLMRequests.Inc()
	start := time.Now()
	err := s.provider.ChatStream(ctx, s.messages, func(delta string) {
		if delta == "" {
			return
		}
		sink(delta)
		full.WriteString(delta)
	})
	metrics.LLMLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		s.RemoveLastMessage()
		return "", fmt.Errorf("completion failed: %w", err)
	}

	response := full.String()
	calls := ParseToolCalls(response)
	if len(calls) == 0 || s.tools == nil {
		return response, nil
	}

	s.logger.Debug("tool calls detected", "count", len(calls))
	var out strings.Builder
	out.WriteString(response)
	for _, call := range calls {
		sink(fmt.Sprintf("\nRunning tool `%s`...\n", call.Name))

		var rendered string
		result, err := s.tools.ExecuteTool(ctx, call)
		if err != nil {
			s.logger.Warn("tool dispatch failed", "tool", call.Name, "error", err)
			rendered = fmt.Sprintf("Tool `%s` execution failed: %v", call.Name, err)
		} else {
			rendered = FormatToolResult(call.Name, result)
		}

		out.WriteString("\n\n")
		out.WriteString(rendered)
		sink("\n\n")
		sink(rendered)
	}
	return out.String(), nil
}
