// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the session router builds
// correct TurnRequests and to feed controlled streams without a live
// backend. All fields are safe to set before calling any method; mutating
// them during a concurrent call is the caller's responsibility.
package mock

import (
	"context"
	"sync"

	"github.com/cadewatson/overhear/pkg/provider/llm"
)

// StreamCall records a single invocation of StreamTurn.
type StreamCall struct {
	// Ctx is the context passed to StreamTurn.
	Ctx context.Context
	// Req is the TurnRequest passed to StreamTurn.
	Req llm.TurnRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause methods to return zero values and
// nil errors. Set StreamErr to inject a start failure.
type Provider struct {
	mu sync.Mutex

	// ProviderKind is returned by Kind. Defaults to llm.KindUnknown.
	ProviderKind llm.Kind

	// StreamChunks is the sequence of Chunk values emitted on the channel
	// returned by StreamTurn. All chunks are sent before the channel closes.
	StreamChunks []llm.Chunk

	// StreamErr, if non-nil, is returned from StreamTurn instead of opening
	// a channel.
	StreamErr error

	// Caps is returned by Capabilities.
	Caps llm.Capabilities

	// StreamCalls records every invocation of StreamTurn in order.
	StreamCalls []StreamCall
}

// StreamTurn records the call and returns a channel that emits StreamChunks.
func (p *Provider) StreamTurn(ctx context.Context, req llm.TurnRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, StreamCall{Ctx: ctx, Req: req})
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([]llm.Chunk, len(p.StreamChunks))
	copy(chunks, p.StreamChunks)
	p.mu.Unlock()

	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// Kind implements llm.Provider.
func (p *Provider) Kind() llm.Kind {
	return p.ProviderKind
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.Capabilities {
	return p.Caps
}

// Calls returns a copy of the recorded StreamTurn invocations.
func (p *Provider) Calls() []StreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]StreamCall(nil), p.StreamCalls...)
}
