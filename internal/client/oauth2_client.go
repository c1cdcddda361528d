package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuth2Client extends BaseClient with bearer tokens obtained through the
// client credentials grant against the downstream service's token endpoint.
// Tokens are cached by the oauth2 token source until shortly before expiry.
type OAuth2Client struct {
	*BaseClient

	credentials *clientcredentials.Config

	mu         sync.Mutex
	authClient *http.Client
}

// NewOAuth2Client creates a new OAuth2-enabled HTTP client.
func NewOAuth2Client(baseClient *BaseClient, clientID, clientSecret, tokenURL string, scopes ...string) *OAuth2Client {
	return &OAuth2Client{
		BaseClient: baseClient,
		credentials: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       scopes,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
	}
}

// client returns the token-injecting HTTP client, building a fresh token
// source when reset is set.
func (c *OAuth2Client) client(reset bool) *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.authClient == nil || reset {
		// The base client's timeout also bounds token requests.
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient)
		authClient := c.credentials.Client(ctx)
		authClient.Timeout = c.httpClient.Timeout
		c.authClient = authClient
	}
	return c.authClient
}

// DoWithAuth executes an HTTP request with a bearer token. On 401 the cached
// token is dropped and the request retried once.
func (c *OAuth2Client) DoWithAuth(
	ctx context.Context,
	method string,
	path string,
	body interface{},
) (*http.Response, error) {
	resp, err := c.do(ctx, c.client(false), method, path, body)
	if err != nil {
		return nil, fmt.Errorf("authenticated request failed: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		c.logger.Debug("Received 401 Unauthorized, refreshing token and retrying")

		resp, err = c.do(ctx, c.client(true), method, path, body)
		if err != nil {
			return nil, fmt.Errorf("authenticated request failed: %w", err)
		}
	}

	return resp, nil
}
