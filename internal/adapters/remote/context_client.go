package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/okian/rivalry/internal/domain/model"
	"github.com/okian/rivalry/pkg/logger"
)

const maxContextBody = 1 << 20

// ContextClient asks the research service about a location. Calls are
// rate limited and pass through a circuit breaker; each Lookup is one
// attempt.
type ContextClient struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
}

// ContextOption configures a ContextClient.
type ContextOption func(*ContextClient)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) ContextOption {
	return func(cc *ContextClient) {
		if c != nil {
			cc.http = c
		}
	}
}

// WithRateLimit sets the token bucket.
func WithRateLimit(rps float64, burst int) ContextOption {
	return func(cc *ContextClient) {
		if rps > 0 && burst > 0 {
			cc.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// NewContextClient creates a client for endpoint.
func NewContextClient(endpoint string, log logger.Logger, opts ...ContextOption) *ContextClient {
	c := &ContextClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(5), 3),
		breaker:  newBreaker("context-lookup", log),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type contextAnswer struct {
	Answer string `json:"answer"`
}

// Lookup implements contextfetch.Lookup.
func (c *ContextClient) Lookup(ctx context.Context, loc model.Location) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, loc)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (c *ContextClient) do(ctx context.Context, loc model.Location) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("context endpoint: %w", err)
	}
	q := u.Query()
	q.Set("region", loc.Region)
	q.Set("sub_region", loc.SubRegion)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("context lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	var a contextAnswer
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxContextBody)).Decode(&a); err != nil {
		return "", fmt.Errorf("decode context answer: %w", err)
	}
	return strings.TrimSpace(a.Answer), nil
}
