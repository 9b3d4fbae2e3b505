package api

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is what the client can read from its access token without
// the signing key.
type TokenClaims struct {
	UserID    int64
	ExpiresAt time.Time
}

// Expired reports whether the token's exp is at or before now.
func (t TokenClaims) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// AccessClaims decodes the held access token without verifying it. The
// server stays the authority; this only feeds status displays.
func (c *Client) AccessClaims(ctx context.Context) (*TokenClaims, error) {
	token := c.AccessToken(ctx)
	if token == "" {
		return nil, fmt.Errorf("no access token held")
	}
	return ParseClaims(token)
}

// ParseClaims reads user_id and exp from an unverified JWT.
func ParseClaims(token string) (*TokenClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}

	out := &TokenClaims{}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}

	switch v := claims["user_id"].(type) {
	case float64:
		out.UserID = int64(v)
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			out.UserID = id
		}
	}
	return out, nil
}
