// Package iqair provides a client for the IQAir gateway, the fallback source
// used when no nearby PurpleAir sensor has a usable reading.
package iqair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/aqigateway/internal/airquality"
	"github.com/breatheroute/aqigateway/internal/auth"
	"github.com/breatheroute/aqigateway/internal/provider/resilience"
)

const (
	// ProviderName identifies this provider.
	ProviderName = "iqair"

	// TokenScope is the scope claim of the bearer token sent to the gateway.
	TokenScope = "aqi:lookup"

	maxErrorBody = 512
)

// ErrNoBaseURL is returned by Lookup when the client has no endpoint.
var ErrNoBaseURL = errors.New("iqair: no base url configured")

// ClientConfig holds configuration for the IQAir gateway client.
type ClientConfig struct {
	// BaseURL is the full lookup endpoint; the request query is appended.
	BaseURL string

	// Tokens signs a bearer token per request (optional).
	Tokens *auth.TokenService

	// HTTPClient is the HTTP client to use (must implement HTTPDoer).
	// If nil, a default resilient client will be created.
	HTTPClient HTTPDoer

	// Timeout for individual requests (default: 15s).
	Timeout time.Duration

	// Registry and Metrics are passed to the default resilient client.
	Registry *resilience.Registry
	Metrics  *resilience.Metrics

	// Logger for upstream errors.
	Logger zerolog.Logger
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls the IQAir gateway. It implements airquality.FallbackProvider.
type Client struct {
	baseURL    string
	tokens     *auth.TokenService
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new IQAir gateway client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 15 * time.Second
		}
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:            ProviderName,
			Role:            resilience.RoleFallback,
			Timeout:         timeout,
			MaxRetries:      1,
			InitialInterval: 250 * time.Millisecond,
			MaxInterval:     time.Second,
			Registry:        cfg.Registry,
			Metrics:         cfg.Metrics,
			Logger:          cfg.Logger,
		})
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "?"),
		tokens:     cfg.Tokens,
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("provider", ProviderName).Logger(),
	}
}

// Lookup forwards the original request to the gateway and decodes its answer.
func (c *Client) Lookup(ctx context.Context, req airquality.LookupRequest) (*airquality.Result, error) {
	if c.baseURL == "" {
		return nil, ErrNoBaseURL
	}

	sep := "?"
	if strings.Contains(c.baseURL, "?") {
		sep = "&"
	}
	url := c.baseURL + sep + req.Query().Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	if c.tokens != nil {
		subject := req.SystemID
		if subject == "" {
			subject = "anonymous"
		}
		token, _, err := c.tokens.Issue(subject, TokenScope)
		if err != nil {
			return nil, fmt.Errorf("issue service token: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call iqair gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("iqair gateway returned an error")
		return nil, fmt.Errorf("unexpected status %d from iqair gateway", resp.StatusCode)
	}

	var result airquality.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode iqair response: %w", err)
	}
	result.Source = airquality.SourceIQAir

	return &result, nil
}
