package cissapi

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// TokenCache memoizes the source API bearer token. Capacity is one entry:
// there is a single set of credentials per worker, so the cache only has to
// answer "is the last token still fresh". Tokens are reused for a fixed TTL
// regardless of what the auth server reports; the server-side lifetime is
// longer than the TTL, so a locally expired token is simply re-requested.
type TokenCache struct {
	conf     *oauth2.Config
	username string
	password string
	ttl      time.Duration

	now func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenCache builds a cache around the password-grant endpoint. One cache
// per runner; it is safe for concurrent use within a process.
func NewTokenCache(authURL, clientID, clientSecret, username, password string, ttl time.Duration) *TokenCache {
	return &TokenCache{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL: authURL,
				// The ERP expects client_id and client_secret in the
				// form-encoded body, not in a basic-auth header.
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		username: username,
		password: password,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Token returns a valid bearer token, hitting the auth endpoint only when the
// cached one is missing or past its TTL. A failed request leaves the cache
// untouched and returns an error; callers skip their unit of work and retry
// on the next one.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	tok, err := c.conf.PasswordCredentialsToken(ctx, c.username, c.password)
	if err != nil {
		return "", fmt.Errorf("failed to acquire auth token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("auth response did not contain an access token")
	}

	c.token = tok.AccessToken
	c.expiresAt = c.now().Add(c.ttl)
	log.Printf("New auth token acquired, valid until %s", c.expiresAt.Format("2006-01-02 15:04:05"))

	return c.token, nil
}

// Invalidate drops the cached token so the next Token call re-authenticates.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}
