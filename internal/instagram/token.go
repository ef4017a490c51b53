// Long-lived token refresh. Instagram long-lived tokens expire after 60
// days; a scheduler that runs unattended has to refresh them before
// publishes start failing with auth errors.

package instagram

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/reel-scheduler/internal/jobutil"
)

// refreshThreshold is how close to expiry a token must be before
// RefreshIfNeeded acts.
const refreshThreshold = 7 * 24 * time.Hour

// TokenInfo is the result of a token refresh.
type TokenInfo struct {
	AccessToken string
	ExpiresAt   time.Time
}

// refreshResponse is the JSON response from the refresh endpoint.
type refreshResponse struct {
	AccessToken string  `json:"access_token"`
	TokenType   string  `json:"token_type"`
	ExpiresIn   int64   `json:"expires_in"`
	Error       *apiErr `json:"error,omitempty"`
}

// RefreshToken refreshes the client's long-lived token.
//
// Endpoint: GET /refresh_access_token
//
//	?grant_type=ig_refresh_token
//	&access_token={long_lived_token}
//
// The refreshed token replaces the client's current one, and is returned
// so the caller can persist it (SSM Parameter Store in the Lambda setup).
func (c *Client) RefreshToken(ctx context.Context) (*TokenInfo, error) {
	var resp refreshResponse
	endpoint := fmt.Sprintf("/refresh_access_token?grant_type=ig_refresh_token&access_token=%s",
		url.QueryEscape(c.accessToken))
	if err := c.getJSON(ctx, endpoint, &resp, func() *apiErr { return resp.Error }); err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, jobutil.Ef(jobutil.KindAuth, "refresh token", "no access token in response")
	}

	c.accessToken = resp.AccessToken
	info := &TokenInfo{
		AccessToken: resp.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	log.Info().
		Int64("expiresInDays", resp.ExpiresIn/86400).
		Msg("Long-lived token refreshed")
	return info, nil
}

// RefreshIfNeeded refreshes the token when expiresAt is within the
// refresh threshold. Returns the new token info, or nil when no refresh
// was needed.
func (c *Client) RefreshIfNeeded(ctx context.Context, expiresAt time.Time) (*TokenInfo, error) {
	if time.Until(expiresAt) > refreshThreshold {
		log.Debug().Time("expiresAt", expiresAt).Msg("Token refresh not needed yet")
		return nil, nil
	}
	return c.RefreshToken(ctx)
}
