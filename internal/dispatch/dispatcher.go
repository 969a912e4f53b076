// Package dispatch serializes recognized utterances into a single outbound
// request stream: it filters filler speech, coalesces streaming recognizer
// fragments, suppresses near-duplicate repeats, and drains strictly FIFO with
// at most one send in flight.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
)

// Sender receives dispatched utterance texts one at a time; the dispatcher
// waits for each call to return before sending the next.
type Sender interface {
	SendUtterance(ctx context.Context, text string) error
}

// SenderFunc adapts a function to the [Sender] interface.
type SenderFunc func(ctx context.Context, text string) error

// SendUtterance implements [Sender].
func (f SenderFunc) SendUtterance(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Config configures a [Dispatcher].
type Config struct {
	// Sender receives drained utterances. Required.
	Sender Sender

	// FlushDelay is how long after the last recognizer fragment the pending
	// fragments are combined into one utterance. Defaults to 1.4s when zero.
	FlushDelay time.Duration

	// DuplicateThreshold is the Jaro-Winkler similarity at or above which an
	// utterance is dropped as a near-duplicate of the previously accepted one.
	// Defaults to 0.92 when zero; set negative to disable.
	DuplicateThreshold float64

	// Classify decides whether an utterance is worth dispatching. Defaults to
	// [IsQuestion].
	Classify func(string) bool
}

// Dispatcher is the speech queue between the recognizer/VAD layer and the
// session router. Safe for concurrent use.
type Dispatcher struct {
	cfg Config

	mu             sync.Mutex
	queue          []string
	draining       bool
	lastAccepted   string
	fragments      []string
	flushTimer     *time.Timer
	closed         bool
	acceptedCount  uint64
	discardedCount uint64
}

// NewDispatcher validates cfg and returns a ready Dispatcher.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Sender == nil {
		return nil, fmt.Errorf("dispatch: dispatcher requires a sender")
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = 1400 * time.Millisecond
	}
	if cfg.DuplicateThreshold == 0 {
		cfg.DuplicateThreshold = 0.92
	}
	if cfg.Classify == nil {
		cfg.Classify = IsQuestion
	}
	return &Dispatcher{cfg: cfg}, nil
}

// Enqueue normalizes text and appends it to the queue if it passes the
// classifier and is not a near-duplicate of the previously accepted
// utterance. It reports whether the utterance was accepted. Enqueue never
// blocks; call [Dispatcher.Drain] to start delivery.
func (d *Dispatcher) Enqueue(text string) bool {
	norm := Normalize(text)
	if norm == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	if !d.cfg.Classify(norm) {
		d.discardedCount++
		slog.Debug("dispatch: utterance discarded by classifier", "text", norm)
		return false
	}
	if d.isDuplicateLocked(norm) {
		d.discardedCount++
		slog.Debug("dispatch: near-duplicate utterance suppressed", "text", norm)
		return false
	}

	d.lastAccepted = norm
	d.queue = append(d.queue, norm)
	d.acceptedCount++
	return true
}

func (d *Dispatcher) isDuplicateLocked(norm string) bool {
	if d.cfg.DuplicateThreshold < 0 || d.lastAccepted == "" {
		return false
	}
	sim := matchr.JaroWinkler(strings.ToLower(norm), strings.ToLower(d.lastAccepted), false)
	return sim >= d.cfg.DuplicateThreshold
}

// Drain delivers queued utterances to the sender strictly in FIFO order,
// waiting for each send to complete before starting the next. It is
// idempotent: a call while another drain is running returns immediately.
// Drain returns when the queue is empty, the context is done, or the
// dispatcher closes.
func (d *Dispatcher) Drain(ctx context.Context) {
	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		return
	}
	d.draining = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.draining = false
		d.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		d.mu.Lock()
		if d.closed || len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		text := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		if err := d.cfg.Sender.SendUtterance(ctx, text); err != nil {
			slog.Warn("dispatch: send failed", "error", err, "text_len", len(text))
		}
	}
}

// AddFragment buffers one final transcript fragment from a streaming
// recognizer and (re)arms the flush timer. When the timer fires the buffered
// fragments are joined into a single utterance, enqueued, and a drain is
// kicked off in the background. A live recognizer emits several final
// fragments per spoken sentence; the delay stitches them back together.
func (d *Dispatcher) AddFragment(text string) {
	norm := Normalize(text)
	if norm == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.fragments = append(d.fragments, norm)
	if d.flushTimer != nil {
		d.flushTimer.Stop()
	}
	d.flushTimer = time.AfterFunc(d.cfg.FlushDelay, d.flushExpired)
}

func (d *Dispatcher) flushExpired() {
	if d.Flush() {
		go d.Drain(context.Background())
	}
}

// Flush combines any buffered fragments into one utterance and enqueues it
// immediately, reporting whether an utterance was accepted. It is called by
// the flush timer and may be called directly on shutdown or mode switches.
func (d *Dispatcher) Flush() bool {
	d.mu.Lock()
	if d.flushTimer != nil {
		d.flushTimer.Stop()
		d.flushTimer = nil
	}
	if len(d.fragments) == 0 {
		d.mu.Unlock()
		return false
	}
	combined := strings.Join(d.fragments, " ")
	d.fragments = d.fragments[:0]
	d.mu.Unlock()

	return d.Enqueue(combined)
}

// Len returns the number of queued utterances awaiting drain.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Stats returns how many utterances were accepted and discarded so far.
func (d *Dispatcher) Stats() (accepted, discarded uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acceptedCount, d.discardedCount
}

// Close stops the flush timer and discards all pending work. Subsequent
// Enqueue and AddFragment calls are no-ops. Safe to call repeatedly.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.flushTimer != nil {
		d.flushTimer.Stop()
		d.flushTimer = nil
	}
	d.queue = nil
	d.fragments = nil
	d.closed = true
}
