// Package auth fetches OAuth2 client-credentials tokens for hosted
// providers that sit behind an identity server.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Conf holds the client credentials. An empty TokenURL disables auth.
type Conf struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	TokenURL     string   `json:"token_url"`
	Scopes       []string `json:"scopes"`
}

// Enabled reports whether a token endpoint is configured.
func (c Conf) Enabled() bool { return c.TokenURL != "" }

// Validate requires a client id alongside the token endpoint.
func (c Conf) Validate() error {
	if c.Enabled() && c.ClientID == "" {
		return fmt.Errorf("auth: client_id is required with token_url")
	}
	return nil
}

// ClientCred caches a token and refreshes it once it expires.
type ClientCred struct {
	conf clientcredentials.Config

	mu    sync.Mutex
	token *oauth2.Token
}

// NewClientCred creates a token source for c.
func NewClientCred(c Conf) *ClientCred {
	return &ClientCred{conf: clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
		Scopes:       c.Scopes,
	}}
}

// Token returns a valid access token, fetching a new one when needed.
func (c *ClientCred) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token.Valid() {
		return c.token.AccessToken, nil
	}
	tok, err := c.conf.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}
	c.token = tok
	return tok.AccessToken, nil
}

// Invalidate drops the cached token so the next call fetches a new one.
func (c *ClientCred) Invalidate() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}

// Attach sets the bearer token on every request of rc and drops the cached
// token when the provider answers 401.
func (c *ClientCred) Attach(rc *resty.Client) {
	rc.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		tok, err := c.Token(r.Context())
		if err != nil {
			return err
		}
		r.SetAuthToken(tok)
		return nil
	})
	rc.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		if res.StatusCode() == http.StatusUnauthorized {
			c.Invalidate()
		}
		return nil
	})
}
