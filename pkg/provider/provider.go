// Package provider fetches daily token usage from vendor usage APIs.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pario-ai/tokenash/pkg/metrics"
	"github.com/pario-ai/tokenash/pkg/models"
)

// Provider is a source of per-day token usage.
type Provider interface {
	// Name is the provider id used as the ledger key.
	Name() string
	// IsConfigured reports whether a credential is available.
	IsConfigured() bool
	// FetchDailyUsage returns usage for each day in [start, end] that had
	// any. It never fails: an unconfigured provider or a remote error yields
	// an empty (or partial) result.
	FetchDailyUsage(ctx context.Context, start, end time.Time) []models.UsageData
}

// Options configures a provider adapter.
type Options struct {
	// APIKey is the explicit credential. When empty the provider's
	// environment variable is consulted.
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Metrics    *metrics.Collector
}

// ResolveAPIKey returns explicit if set, else the value of envVar.
func ResolveAPIKey(explicit, envVar string) string {
	if explicit != "" {
		return explicit
	}
	return os.Getenv(envVar)
}

// StatusError is returned for non-2xx vendor responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// apiClient performs authenticated GET requests against a vendor API.
type apiClient struct {
	name    string
	baseURL string
	headers map[string]string
	http    *http.Client
	metrics *metrics.Collector
}

func newAPIClient(name, defaultURL string, headers map[string]string, opts Options) *apiClient {
	base := opts.BaseURL
	if base == "" {
		base = defaultURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &apiClient{
		name:    name,
		baseURL: strings.TrimRight(base, "/"),
		headers: headers,
		http:    hc,
		metrics: opts.Metrics,
	}
}

// getJSON issues GET baseURL+endpoint?params and decodes the JSON body into out.
func (c *apiClient) getJSON(ctx context.Context, endpoint string, params url.Values, out any) (err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveFetch(c.name, time.Since(start), err) }()

	target := c.baseURL + endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// startOfDay truncates t to midnight in its location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// New returns the adapter for the named provider.
func New(name string, opts Options) (Provider, error) {
	switch name {
	case OpenAIName:
		return NewOpenAI(opts), nil
	case AnthropicName:
		return NewAnthropic(opts), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
