// Package history keeps per-session conversation history.
//
// Every implementation synchronizes per session id: operations on distinct
// sessions never wait on each other, operations on the same session are
// applied one at a time.
package history

import (
	"context"
	"time"

	"chatppt_studio/generator"
)

// Store is the session history contract used by the refinement engine.
type Store interface {
	// Get returns the messages of sessionID in insertion order, creating an
	// empty history on first access.
	Get(ctx context.Context, sessionID string) ([]generator.Message, error)
	// Append adds messages to the end of the history.
	Append(ctx context.Context, sessionID string, msgs ...generator.Message) error
	// ClearKeepingLast drops every message except the most recent one.
	// An empty or unknown history is left as is.
	ClearKeepingLast(ctx context.Context, sessionID string) error
}

// Catalog is implemented by stores that can enumerate and drop sessions.
type Catalog interface {
	List(ctx context.Context) ([]SessionInfo, error)
	Delete(ctx context.Context, sessionID string) error
}

// SessionInfo summarizes one stored session.
type SessionInfo struct {
	ID        string    `json:"id"`
	Messages  int       `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
