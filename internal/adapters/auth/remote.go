package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/termrelay/internal/domain"
)

const verifyPath = "/api/token/verify"

// RemoteVerifier asks the auth service whether a token is valid.
type RemoteVerifier struct {
	baseURL string
	client  *http.Client
}

func NewRemoteVerifier(baseURL string, client *http.Client) *RemoteVerifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteVerifier{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type verifyResponse struct {
	IsValid *bool `json:"isValid"`
	UserID  any   `json:"user_id"`
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (domain.Principal, error) {
	if token == "" {
		return domain.Principal{}, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+verifyPath, nil)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %w", ErrAuthUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("module", "auth").Msg("auth service unreachable")
		return domain.Principal{}, fmt.Errorf("%w: %w", ErrAuthUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Warn().Str("module", "auth").Int("status", resp.StatusCode).Str("body", string(body)).Msg("auth failed")
		return domain.Principal{}, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Principal{}, fmt.Errorf("%w: bad verify response: %w", ErrUnauthorized, err)
	}
	if out.IsValid != nil && !*out.IsValid {
		return domain.Principal{}, fmt.Errorf("%w: token rejected", ErrUnauthorized)
	}
	id := userIDString(out.UserID)
	if id == "" {
		return domain.Principal{}, fmt.Errorf("%w: invalid token payload", ErrUnauthorized)
	}
	return domain.Principal{UserID: id}, nil
}

// userIDString accepts the numeric or string user_id the auth service returns.
func userIDString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		if id == 0 {
			return ""
		}
		return fmt.Sprintf("%.0f", id)
	default:
		return ""
	}
}
