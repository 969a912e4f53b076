package session

import (
	"context"
	"strings"
	"time"

	"github.com/cadewatson/overhear/pkg/provider/llm"
)

// Assembler accumulates a streamed response and forwards throttled snapshots
// to the UI: intermediate snapshots at most once per interval, plus a
// guaranteed final snapshot with the complete text when the stream ends.
type Assembler struct {
	interval time.Duration
	emit     func(text string, final bool)
}

// NewAssembler returns an Assembler emitting through emit. A non-positive
// interval defaults to 50ms; emit may be nil for callers that only want the
// returned text.
func NewAssembler(interval time.Duration, emit func(text string, final bool)) *Assembler {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &Assembler{interval: interval, emit: emit}
}

// Consume drains ch, accumulating text in arrival order. It returns the full
// text and the stream error, if any; on a mid-stream error the text gathered
// so far is still returned. The final snapshot is emitted exactly once, even
// on error or context cancellation.
func (a *Assembler) Consume(ctx context.Context, ch <-chan llm.Chunk) (string, error) {
	var (
		sb       strings.Builder
		streamed error
		lastEmit time.Time
	)

	defer func() {
		if a.emit != nil {
			a.emit(sb.String(), true)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return sb.String(), ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				return sb.String(), streamed
			}
			if chunk.Err != nil {
				streamed = chunk.Err
				continue
			}
			if chunk.Text == "" {
				continue
			}
			sb.WriteString(chunk.Text)
			if a.emit != nil && time.Since(lastEmit) >= a.interval {
				a.emit(sb.String(), false)
				lastEmit = time.Now()
			}
		}
	}
}
