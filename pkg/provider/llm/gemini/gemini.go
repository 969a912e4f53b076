// Package gemini provides an LLM provider backed by the Google AI API.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/cadewatson/overhear/pkg/provider/llm"
)

// Provider implements llm.Provider using the genai SDK's streaming
// multimodal endpoint.
type Provider struct {
	client *genai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default Google AI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// New constructs a new Gemini LLM Provider.
func New(ctx context.Context, apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("gemini: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.baseURL
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Provider{client: client, model: model}, nil
}

// Kind implements llm.Provider.
func (p *Provider) Kind() llm.Kind {
	return llm.KindGemini
}

// StreamTurn implements llm.Provider.
func (p *Provider) StreamTurn(ctx context.Context, req llm.TurnRequest) (<-chan llm.Chunk, error) {
	contents, gcfg, err := buildRequest(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: build request: %w", err)
	}

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)

		finished := false
		for resp, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, gcfg) {
			if err != nil {
				select {
				case ch <- llm.Chunk{FinishReason: "error", Err: fmt.Errorf("gemini: stream: %w", err)}:
				case <-ctx.Done():
				}
				return
			}
			out := llm.Chunk{Text: resp.Text()}
			if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
				out.FinishReason = finishReason(resp.Candidates[0].FinishReason)
				finished = true
			}
			select {
			case ch <- out:
			case <-ctx.Done():
				return
			}
		}
		if !finished {
			select {
			case ch <- llm.Chunk{FinishReason: "stop"}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.Capabilities {
	caps := llm.Capabilities{
		Images:          true,
		Audio:           true,
		SearchTool:      true,
		MaxOutputTokens: 8_192,
	}
	lower := strings.ToLower(p.model)
	switch {
	case strings.HasPrefix(lower, "gemini-2.5"):
		caps.MaxOutputTokens = 65_536
	case strings.HasPrefix(lower, "gemini-2.0"):
		caps.MaxOutputTokens = 8_192
	}
	return caps
}

// buildRequest converts a TurnRequest into genai contents and config.
func buildRequest(req llm.TurnRequest) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	var contents []*genai.Content
	for _, m := range req.History {
		var role genai.Role = genai.RoleUser
		if m.Role == llm.RoleModel {
			role = genai.RoleModel
		}
		parts, err := convertParts(m.Parts)
		if err != nil {
			return nil, nil, err
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}

	turn, err := convertParts(req.Turn)
	if err != nil {
		return nil, nil, err
	}
	if len(turn) == 0 {
		return nil, nil, fmt.Errorf("turn has no parts")
	}
	contents = append(contents, genai.NewContentFromParts(turn, genai.RoleUser))

	gcfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		gcfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Generation.Temperature != 0 {
		gcfg.Temperature = genai.Ptr(float32(req.Generation.Temperature))
	}
	if req.Generation.TopP != 0 {
		gcfg.TopP = genai.Ptr(float32(req.Generation.TopP))
	}
	if req.Generation.MaxOutputTokens > 0 {
		gcfg.MaxOutputTokens = int32(req.Generation.MaxOutputTokens)
	}
	if req.EnableSearch {
		gcfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	return contents, gcfg, nil
}

// convertParts converts llm parts to genai parts, skipping empty ones.
func convertParts(parts []llm.Part) ([]*genai.Part, error) {
	var out []*genai.Part
	for _, p := range parts {
		if p.Text != "" {
			out = append(out, genai.NewPartFromText(p.Text))
		}
		if p.HasBlob() {
			if p.Blob.MIMEType == "" {
				return nil, fmt.Errorf("blob part missing mime type")
			}
			out = append(out, genai.NewPartFromBytes(p.Blob.Data, p.Blob.MIMEType))
		}
	}
	return out, nil
}

// finishReason maps genai finish reasons onto the provider-neutral names.
func finishReason(r genai.FinishReason) string {
	switch r {
	case genai.FinishReasonStop:
		return "stop"
	case genai.FinishReasonMaxTokens:
		return "length"
	default:
		return strings.ToLower(string(r))
	}
}
