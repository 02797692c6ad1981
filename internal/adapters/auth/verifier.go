// Package auth verifies the bearer tokens presented on the terminal endpoint.
// Verification itself is delegated: either to the remote auth service or to a
// shared HS256 secret. The relay only learns who the caller is.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dkeye/termrelay/internal/config"
	"github.com/dkeye/termrelay/internal/domain"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrAuthUnavailable = errors.New("authentication unavailable")
)

// Verifier turns a token into a principal.
type Verifier interface {
	Verify(ctx context.Context, token string) (domain.Principal, error)
}

// Anonymous accepts every caller without looking at the token.
type Anonymous struct{}

func (Anonymous) Verify(context.Context, string) (domain.Principal, error) {
	return domain.Principal{}, nil
}

// NewVerifier builds the verifier selected by auth.mode.
func NewVerifier(cfg config.AuthConfig) (Verifier, error) {
	switch cfg.Mode {
	case "", "none":
		return Anonymous{}, nil
	case "remote":
		return NewRemoteVerifier(cfg.ServiceURL, &http.Client{Timeout: cfg.Timeout}), nil
	case "jwt":
		return NewJWTVerifier(cfg.JWTSecret), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}
