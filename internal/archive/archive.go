// Package archive persists completed question/answer turns.
//
// The [Archiver] interface decouples the session pipeline from storage; the
// PostgreSQL implementation ([NewPostgres]) is used when a DSN is configured
// and [Noop] otherwise, so the assistant works without a database.
package archive

import (
	"context"
	"time"
)

// Turn is one archived exchange: the question that was dispatched and the
// final assembled answer.
type Turn struct {
	// Model is the model identifier the turn was sent to.
	Model string

	// Backend is the provider family ("gemini" or "groq").
	Backend string

	// Profile is the active assistance profile at send time.
	Profile string

	// Question is the normalized user/transcript text.
	Question string

	// Answer is the final answer snapshot. Empty when the turn failed.
	Answer string

	// HadImage records whether the turn carried a screenshot.
	HadImage bool

	// Latency is the time from send to final snapshot.
	Latency time.Duration

	// CreatedAt is when the turn completed. Zero means "now" on insert.
	CreatedAt time.Time
}

// Archiver stores completed turns. Implementations must be safe for
// concurrent use.
type Archiver interface {
	// InsertTurn persists one completed turn.
	InsertTurn(ctx context.Context, turn Turn) error

	// RecentTurns returns up to limit turns, newest first.
	RecentTurns(ctx context.Context, limit int) ([]Turn, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases held resources.
	Close()
}

// Noop is an [Archiver] that discards everything. Used when no DSN is
// configured.
type Noop struct{}

func (Noop) InsertTurn(context.Context, Turn) error          { return nil }
func (Noop) RecentTurns(context.Context, int) ([]Turn, error) { return nil, nil }
func (Noop) Ping(context.Context) error                       { return nil }
func (Noop) Close()                                           {}
