// Package groq provides an LLM provider backed by Groq's OpenAI-compatible
// chat-completions API.
package groq

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/cadewatson/overhear/pkg/provider/llm"
)

// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// Provider implements llm.Provider against the Groq API. The family is
// text-only: inline media parts are dropped from requests, which the session
// layer accounts for by replacing images with text placeholders first.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default Groq API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new Groq LLM Provider.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("groq: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("groq: model must not be empty")
	}

	cfg := &config{baseURL: DefaultBaseURL}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(cfg.baseURL),
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model}, nil
}

// Kind implements llm.Provider.
func (p *Provider) Kind() llm.Kind {
	return llm.KindGroq
}

// StreamTurn implements llm.Provider.
func (p *Provider) StreamTurn(ctx context.Context, req llm.TurnRequest) (<-chan llm.Chunk, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("groq: build params: %w", err)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("groq: start stream: %w", err)
	}

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			out := llm.Chunk{
				Text:         choice.Delta.Content,
				FinishReason: choice.FinishReason,
			}
			select {
			case ch <- out:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil {
			select {
			case ch <- llm.Chunk{FinishReason: "error", Err: fmt.Errorf("groq: stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.Capabilities {
	caps := llm.Capabilities{
		MaxOutputTokens: 8_192,
	}
	lower := strings.ToLower(p.model)
	switch {
	case strings.HasPrefix(lower, "llama-3.3"):
		caps.MaxOutputTokens = 32_768
	case strings.HasPrefix(lower, "openai/gpt-oss"):
		caps.MaxOutputTokens = 65_536
	case strings.HasPrefix(lower, "moonshotai/"):
		caps.MaxOutputTokens = 16_384
	}
	return caps
}

// buildParams converts a TurnRequest into chat-completion params. History
// messages and the new turn are flattened to text; blob parts carry no text
// representation and are skipped.
func (p *Provider) buildParams(req llm.TurnRequest) (oai.ChatCompletionNewParams, error) {
	var messages []oai.ChatCompletionMessageParamUnion

	if req.SystemPrompt != "" {
		messages = append(messages, oai.SystemMessage(req.SystemPrompt))
	}

	for _, m := range req.History {
		text := flatten(m.Parts)
		if text == "" {
			continue
		}
		switch m.Role {
		case llm.RoleModel:
			messages = append(messages, oai.AssistantMessage(text))
		default:
			messages = append(messages, oai.UserMessage(text))
		}
	}

	turn := flatten(req.Turn)
	if turn == "" {
		return oai.ChatCompletionNewParams{}, fmt.Errorf("turn has no text parts")
	}
	messages = append(messages, oai.UserMessage(turn))

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}
	if req.Generation.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Generation.Temperature)
	}
	if req.Generation.TopP != 0 {
		params.TopP = param.NewOpt(req.Generation.TopP)
	}
	if req.Generation.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.Generation.MaxOutputTokens))
	}
	return params, nil
}

// flatten joins the text parts of a message with spaces.
func flatten(parts []llm.Part) string {
	var texts []string
	for _, p := range parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, " ")
}
