package gemini

import (
	"testing"

	"google.golang.org/genai"

	"github.com/cadewatson/overhear/pkg/provider/llm"
)

func TestBuildRequest(t *testing.T) {
	req := llm.TurnRequest{
		SystemPrompt: "answer in one paragraph",
		History: []llm.Message{
			{Role: llm.RoleUser, Parts: []llm.Part{{Text: "what is a mutex?"}}},
			{Role: llm.RoleModel, Parts: []llm.Part{{Text: "a lock"}}},
		},
		Turn: []llm.Part{
			{Text: "and this screenshot?"},
			{Blob: &llm.Blob{MIMEType: "image/png", Data: []byte{0x89, 0x50}}},
		},
		Generation: llm.GenerationConfig{
			Temperature:     0.4,
			TopP:            0.95,
			MaxOutputTokens: 2048,
		},
		EnableSearch: true,
	}

	contents, cfg, err := buildRequest(req)
	if err != nil {
		t.Fatalf("buildRequest() error = %v", err)
	}

	if len(contents) != 3 {
		t.Fatalf("built %d contents, want 3 (2 history + turn)", len(contents))
	}
	if contents[0].Role != string(genai.RoleUser) || contents[1].Role != string(genai.RoleModel) {
		t.Errorf("history roles = (%s, %s), want (user, model)", contents[0].Role, contents[1].Role)
	}
	turn := contents[2]
	if turn.Role != string(genai.RoleUser) {
		t.Errorf("turn role = %s, want user", turn.Role)
	}
	if len(turn.Parts) != 2 {
		t.Fatalf("turn has %d parts, want text + inline image", len(turn.Parts))
	}
	if turn.Parts[0].Text != "and this screenshot?" {
		t.Errorf("turn text part = %q", turn.Parts[0].Text)
	}
	if turn.Parts[1].InlineData == nil || turn.Parts[1].InlineData.MIMEType != "image/png" {
		t.Errorf("turn blob part = %+v, want inline image/png", turn.Parts[1])
	}

	if cfg.SystemInstruction == nil {
		t.Fatal("system instruction not set")
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0.4 {
		t.Errorf("temperature = %v, want 0.4", cfg.Temperature)
	}
	if cfg.TopP == nil || *cfg.TopP != 0.95 {
		t.Errorf("top_p = %v, want 0.95", cfg.TopP)
	}
	if cfg.MaxOutputTokens != 2048 {
		t.Errorf("max output tokens = %d, want 2048", cfg.MaxOutputTokens)
	}
	if len(cfg.Tools) != 1 || cfg.Tools[0].GoogleSearch == nil {
		t.Errorf("tools = %+v, want the google-search tool", cfg.Tools)
	}
}

func TestBuildRequestRejectsEmptyTurn(t *testing.T) {
	if _, _, err := buildRequest(llm.TurnRequest{}); err == nil {
		t.Error("empty turn expected error")
	}
}

func TestBuildRequestRejectsBlobWithoutMIME(t *testing.T) {
	_, _, err := buildRequest(llm.TurnRequest{
		Turn: []llm.Part{{Blob: &llm.Blob{Data: []byte{1}}}},
	})
	if err == nil {
		t.Error("blob without mime type expected error")
	}
}

func TestFinishReason(t *testing.T) {
	if got := finishReason(genai.FinishReasonStop); got != "stop" {
		t.Errorf("stop mapped to %q", got)
	}
	if got := finishReason(genai.FinishReasonMaxTokens); got != "length" {
		t.Errorf("max tokens mapped to %q", got)
	}
}
