// ABOUTME: Authentication gate that lazily upgrades a connection to authenticated.
// ABOUTME: Idempotent; a client authenticates at most once for its lifetime.

package auth

import (
	"errors"
	"fmt"
	"log/slog"
)

// Gate errors
var (
	ErrTokenMissing = errors.New("authentication token missing")
	ErrTokenInvalid = errors.New("authentication token invalid")
)

// Principal is the mutable authentication state of a connected client. The
// authenticated transition is monotonic: once set, it is never cleared while
// the connection lives.
type Principal interface {
	// Authenticated reports whether the principal has already passed the gate.
	Authenticated() bool
	// SetUser records the verified user and marks the principal authenticated.
	SetUser(userID string)
}

// Gate verifies bearer tokens on demand for privileged subscriptions and
// commands, delegating to an external TokenVerifier.
type Gate struct {
	verifier TokenVerifier
	logger   *slog.Logger
}

// NewGate creates a gate backed by the given verifier.
func NewGate(verifier TokenVerifier, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		verifier: verifier,
		logger:   logger.With("component", "auth-gate"),
	}
}

// Authenticate upgrades p to authenticated using token. Calling it on an
// already-authenticated principal is a no-op, regardless of the token. Fails
// with ErrTokenMissing when no token is supplied and ErrTokenInvalid when the
// verifier rejects it.
func (g *Gate) Authenticate(p Principal, token string) error {
	if p.Authenticated() {
		return nil
	}

	if token == "" {
		return ErrTokenMissing
	}

	if g.verifier == nil {
		return fmt.Errorf("%w: no token verifier configured", ErrTokenInvalid)
	}

	userID, err := g.verifier.Verify(token)
	if err != nil {
		g.logger.Debug("token rejected", "error", err)
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	p.SetUser(userID)
	return nil
}
