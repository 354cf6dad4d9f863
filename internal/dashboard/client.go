// Package dashboard is the fetch boundary of the dashboard: an HTTP client for
// the ThreadLens read API and a View that keeps the newest result per panel.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/threadlens/pkg/models"
)

// Sentinel errors for upstream fetch failures. All of them wrap ErrUpstreamFetch.
var (
	ErrUpstreamFetch       = errors.New("upstream fetch failed")
	ErrUpstreamUnreachable = fmt.Errorf("%w: unreachable", ErrUpstreamFetch)
	ErrUpstreamTimeout     = fmt.Errorf("%w: timeout", ErrUpstreamFetch)
	ErrUpstreamStatus      = fmt.Errorf("%w: unexpected status", ErrUpstreamFetch)
	ErrUpstreamPayload     = fmt.Errorf("%w: malformed payload", ErrUpstreamFetch)
)

const maxResponseBytes = 16 << 20

// Client is the interface for reading dashboard data.
type Client interface {
	Threads(ctx context.Context, limit int) ([]models.Thread, error)
	MonthlyAggregates(ctx context.Context, months int) ([]models.MonthlyAggregate, error)
}

// HTTPClient implements Client against the ThreadLens HTTP API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a client for baseURL (scheme and host, no trailing path).
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Threads fetches up to limit reconciled threads. A zero limit uses the server default.
func (c *HTTPClient) Threads(ctx context.Context, limit int) ([]models.Thread, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var threads []models.Thread
	if err := c.get(ctx, "/api/v1/threads", params, &threads); err != nil {
		return nil, err
	}
	if threads == nil {
		threads = []models.Thread{}
	}
	return threads, nil
}

// MonthlyAggregates fetches the last months of sentiment rollups. Payloads in
// either taxonomy are accepted.
func (c *HTTPClient) MonthlyAggregates(ctx context.Context, months int) ([]models.MonthlyAggregate, error) {
	params := url.Values{"months": {strconv.Itoa(months)}}

	var aggs []models.MonthlyAggregate
	if err := c.get(ctx, "/api/v1/threads/aggregates/monthly", params, &aggs); err != nil {
		return nil, err
	}
	if aggs == nil {
		aggs = []models.MonthlyAggregate{}
	}
	return aggs, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return classifyError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode, body)
	}

	if err := decodeEnvelope(body, out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %w", ErrUpstreamPayload, path, err)
	}
	return nil
}

// decodeEnvelope accepts both {"data": [...]} and a bare JSON array.
func decodeEnvelope(body []byte, out any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, out)
	}

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return err
	}
	if len(env.Data) == 0 {
		return errors.New("response has no data field")
	}
	return json.Unmarshal(env.Data, out)
}

func statusError(status int, body []byte) error {
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && env.Error.Code != "" {
		return fmt.Errorf("%w: status %d: %s: %s", ErrUpstreamStatus, status, env.Error.Code, env.Error.Message)
	}
	return fmt.Errorf("%w: status %d", ErrUpstreamStatus, status)
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
