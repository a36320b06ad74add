package provider

import (
	"testing"

	"flightbot/internal/domain"
)

func TestToOpenAIMessages_RoleMapping(t *testing.T) {
	msgs := toOpenAIMessages([]domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "be terse"},
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello"},
	})

	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].OfSystem == nil {
		t.Fatal("first message should be a system message")
	}
	if msgs[1].OfUser == nil {
		t.Fatal("second message should be a user message")
	}
	if msgs[2].OfAssistant == nil {
		t.Fatal("third message should be an assistant message")
	}
}

func TestToOpenAIMessages_UnknownRoleBecomesUser(t *testing.T) {
	msgs := toOpenAIMessages([]domain.ChatMessage{{Role: "tool", Content: "output"}})
	if len(msgs) != 1 || msgs[0].OfUser == nil {
		t.Fatal("unknown roles should map to user messages")
	}
}

func TestNewDeepSeek_Defaults(t *testing.T) {
	d := NewDeepSeek(DeepSeekConfig{Logger: testLogger()})
	if d.Name() != "deepseek" {
		t.Fatalf("expected name 'deepseek', got %q", d.Name())
	}
	if d.model != deepseekDefaultModel {
		t.Fatalf("expected default model, got %q", d.model)
	}
	if d.temperature != deepseekDefaultTemp {
		t.Fatalf("expected default temperature, got %g", d.temperature)
	}
}

func TestNewDeepSeek_NameOverride(t *testing.T) {
	d := NewDeepSeek(DeepSeekConfig{Name: "groq", APIBase: "https://api.groq.com/openai/v1", Logger: testLogger()})
	if d.Name() != "groq" {
		t.Fatalf("expected name 'groq', got %q", d.Name())
	}
}
