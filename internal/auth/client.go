// Package auth implements the provider-facing core of the linking
// service: the authenticated HTTP primitive, token refresh and
// encryption, the osu! and Discord info fetchers, the role metadata
// publisher, and the native OAuth sign-in flow.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/osucord/linkedroles/internal/provider"
	"github.com/osucord/linkedroles/internal/ratelimit"
)

// Client is the authenticated request primitive shared by the provider
// clients. It classifies responses into the provider error taxonomy:
// 401 becomes UnauthorizedError, any other non-2xx becomes
// ProtocolError carrying status and body.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Limiter
	logger      *zap.Logger
}

// NewClient creates a client
func NewClient(logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// SetRateLimiter attaches an outbound rate limiter
func (c *Client) SetRateLimiter(rl *ratelimit.Limiter) {
	c.rateLimiter = rl
}

// Get performs an authenticated GET and returns the response body
func (c *Client) Get(ctx context.Context, providerID, endpoint, accessToken string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, providerID, endpoint, "Bearer "+accessToken, nil)
}

// PutJSON performs an authenticated PUT with a JSON body and returns the
// response body
func (c *Client) PutJSON(ctx context.Context, providerID, endpoint, accessToken string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return c.do(ctx, http.MethodPut, providerID, endpoint, "Bearer "+accessToken, payload)
}

// PutJSONAsBot performs a bot-authenticated PUT with a JSON body.
// Bot tokens use the "Bot" authorization scheme, not "Bearer".
func (c *Client) PutJSONAsBot(ctx context.Context, providerID, endpoint, botToken string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return c.do(ctx, http.MethodPut, providerID, endpoint, "Bot "+botToken, payload)
}

// PostForm performs an unauthenticated form POST, as used by OAuth token
// endpoints, and returns the raw response without error classification.
// Token-endpoint status handling differs per call site (refresh treats
// 401 as revocation, not as UnauthorizedError), so it stays with the
// caller.
func (c *Client) PostForm(ctx context.Context, endpoint string, form url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to post form: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, body, nil
}

func (c *Client) do(ctx context.Context, method, providerID, endpoint, authHeader string, payload []byte) ([]byte, error) {
	key := ratelimit.Key(providerID, requestPath(endpoint))

	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx, key); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", err)
		}
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", authHeader)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if c.rateLimiter != nil {
		c.rateLimiter.UpdateFromHeaders(key, resp.Header)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if c.rateLimiter != nil {
			_ = c.rateLimiter.HandleRateLimited(key, resp.Header)
		}
		body, _ := io.ReadAll(resp.Body)
		return nil, &provider.ProtocolError{Provider: providerID, Status: resp.StatusCode, Body: string(body)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Debug("provider rejected access token",
			zap.String("provider", providerID),
			zap.String("endpoint", requestPath(endpoint)),
		)
		return nil, &provider.UnauthorizedError{Provider: providerID, Endpoint: requestPath(endpoint)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &provider.ProtocolError{Provider: providerID, Status: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

// requestPath strips scheme and host so logs and rate limit keys stay
// stable across base URL overrides
func requestPath(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	return u.Path
}
