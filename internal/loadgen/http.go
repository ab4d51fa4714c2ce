package loadgen

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/rivalry/internal/adapters/mq/progress"
	"github.com/okian/rivalry/internal/domain/model"
	"github.com/okian/rivalry/internal/domain/types"
)

var (
	errStatus     = errors.New("unexpected status")
	errStreamCut  = errors.New("stream ended without completion")
	errStreamFail = errors.New("stream completed with error")
)

// HTTPClient wraps http.Client for the service routes.
// Streams use a client without an overall timeout; their deadline comes
// from the caller's context.
type HTTPClient struct {
	client  *http.Client
	stream  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		stream:  &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type participantBody struct {
	ID           string    `json:"id"`
	Total        float64   `json:"total"`
	Region       string    `json:"region,omitempty"`
	SubRegion    string    `json:"sub_region,omitempty"`
	LastActivity time.Time `json:"last_activity"`
	Count        int       `json:"activity_count"`
	Average      float64   `json:"activity_avg"`
}

// Health checks GET /healthz.
func (c *HTTPClient) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	return drain(resp)
}

// Record posts one participant.
func (c *HTTPClient) Record(ctx context.Context, p model.Participant) error {
	body, err := json.Marshal(participantBody{
		ID:           p.ID,
		Total:        p.Total,
		Region:       p.Location.Region,
		SubRegion:    p.Location.SubRegion,
		LastActivity: p.Activity.LastActivity,
		Count:        p.Activity.Count,
		Average:      p.Activity.Average,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal participant: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/participants", body)
	if err != nil {
		return err
	}
	return drain(resp)
}

// Forecast opens a forecast stream and reads it to completion. It returns
// the final result and the number of events seen.
func (c *HTTPClient) Forecast(ctx context.Context, id string) (model.ForecastResult, int, error) {
	resp, err := c.send(ctx, c.stream, http.MethodGet, "/forecast/"+id, nil)
	if err != nil {
		return model.ForecastResult{}, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.ForecastResult{}, 0, fmt.Errorf("%w: %d", errStatus, resp.StatusCode)
	}

	n := 0
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanTokenSize)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var e progress.Event
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return model.ForecastResult{}, n, fmt.Errorf("failed to decode event: %w", err)
		}
		n++
		if !e.Complete {
			continue
		}
		if e.Error != "" || e.Result == nil {
			return model.ForecastResult{}, n, fmt.Errorf("%w: %s", errStreamFail, e.Error)
		}
		return *e.Result, n, nil
	}
	if err := scanner.Err(); err != nil {
		return model.ForecastResult{}, n, err
	}
	return model.ForecastResult{}, n, errStreamCut
}

// Leaderboard fetches the top n entries.
func (c *HTTPClient) Leaderboard(ctx context.Context, n int) ([]types.Entry, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/leaderboard?limit=%d", n), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", errStatus, resp.StatusCode)
	}
	var entries []types.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode leaderboard: %w", err)
	}
	return entries, nil
}

// Rank fetches one participant's entry.
func (c *HTTPClient) Rank(ctx context.Context, id string) (types.Entry, error) {
	resp, err := c.do(ctx, http.MethodGet, "/rank/"+id, nil)
	if err != nil {
		return types.Entry{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.Entry{}, fmt.Errorf("%w: %d", errStatus, resp.StatusCode)
	}
	var e types.Entry
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		return types.Entry{}, fmt.Errorf("failed to decode rank: %w", err)
	}
	return e, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	return c.send(ctx, c.client, method, path, body)
}

func (c *HTTPClient) send(ctx context.Context, client *http.Client, method, path string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// drain reads and closes the body, failing on non-2xx statuses.
func drain(resp *http.Response) error {
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", errStatus, resp.StatusCode)
	}
	return nil
}
