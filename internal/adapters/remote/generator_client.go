package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/okian/rivalry/internal/domain/forecast"
	"github.com/okian/rivalry/pkg/logger"
	"github.com/okian/rivalry/pkg/metrics"
)

const maxGeneratorBody = 1 << 20

// GeneratorClient posts forecast inputs to the remote generator.
type GeneratorClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
}

// NewGeneratorClient creates a client. An empty apiKey is a configuration
// error.
func NewGeneratorClient(endpoint, apiKey string, timeout time.Duration, log logger.Logger) (*GeneratorClient, error) {
	if apiKey == "" {
		return nil, ErrMissingCredentials
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeneratorClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
		breaker:  newBreaker("forecast-generator", log),
	}, nil
}

// Generate implements forecast.Generator.
func (c *GeneratorClient) Generate(ctx context.Context, in forecast.Input) (forecast.Raw, error) {
	start := time.Now()
	defer func() {
		metrics.RecordGeneratorLatency(float64(time.Since(start).Milliseconds()))
	}()

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, in)
	})
	if err != nil {
		metrics.RecordGeneratorError()
		return forecast.Raw{}, fmt.Errorf("%w: %w", forecast.ErrGenerate, err)
	}
	return out.(forecast.Raw), nil
}

func (c *GeneratorClient) do(ctx context.Context, in forecast.Input) (forecast.Raw, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return forecast.Raw{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return forecast.Raw{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return forecast.Raw{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxGeneratorBody))
	if err != nil {
		return forecast.Raw{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return forecast.Raw{}, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
	return forecast.Parse(data)
}
