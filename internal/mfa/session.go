// Package mfa hands a one-time code from a human operator to a running bot.
// The bot asks the backend for a session, polls it, and the operator attaches
// the code through a separate endpoint. Sessions expire after a fixed TTL.
package mfa

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means no session exists under the id.
	ErrNotFound = errors.New("mfa: session not found")
	// ErrExpired means the session outlived its TTL.
	ErrExpired = errors.New("mfa: session expired")
	// ErrTimeout means the bot gave up waiting for a code.
	ErrTimeout = errors.New("mfa: timed out waiting for code")
)

// DefaultTTL is how long a session stays valid.
const DefaultTTL = 300 * time.Second

// State is a point in the handoff.
type State string

const (
	NoSession        State = "no_session"
	SessionRequested State = "session_requested"
	AwaitingCode     State = "awaiting_code"
	CodeReceived     State = "code_received"
	Consumed         State = "consumed"
	Expired          State = "expired"
)

// Session is one pending handoff. CreatedAt never changes after Create.
type Session struct {
	ID         string    `json:"id"`
	Code       *string   `json:"code"`
	CreatedAt  time.Time `json:"created_at"`
	ScriptType string    `json:"script_type"`
}

// Expired reports whether the session is older than ttl at now.
func (s Session) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.CreatedAt) > ttl
}

// State is the backend-side state of the session at now.
func (s Session) State(now time.Time, ttl time.Duration) State {
	switch {
	case s.Expired(now, ttl):
		return Expired
	case s.Code != nil:
		return CodeReceived
	default:
		return AwaitingCode
	}
}

// Store keeps sessions for the backend. Implementations must be safe for
// concurrent use by request handlers and the sweeper.
type Store interface {
	Create(ctx context.Context, scriptType string) (Session, error)
	// Submit attaches code. Repeat submits overwrite the code, never CreatedAt.
	Submit(ctx context.Context, id, code string) error
	// Check returns ErrExpired for a session past its TTL even before a sweep.
	Check(ctx context.Context, id string) (Session, error)
	// Pending reports whether the session exists and still waits for a code.
	Pending(ctx context.Context, id string) (bool, error)
	// Sweep deletes sessions older than the TTL at now and reports how many.
	Sweep(ctx context.Context, now time.Time) (int, error)
}
