// Package frost is an HTTP client for the backend proxy in front of the
// MET Norway Frost API.
package frost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/couchcryptid/glacier-melt-service/internal/domain"
	"github.com/couchcryptid/glacier-melt-service/internal/meteo"
	"github.com/couchcryptid/glacier-melt-service/internal/observability"
)

// DefaultBaseURL is the public backend deployment.
const DefaultBaseURL = "https://scandi-backend.onrender.com"

// Endpoint names, used as metric labels and error ops.
const (
	EndpointLatest  = "latest"
	EndpointHistory = "history"
	EndpointNormals = "normals"
)

const (
	dateLayout   = "2006-01-02"
	maxErrorBody = 512
)

// ErrCircuitOpen is returned while the breaker rejects calls to the backend.
var ErrCircuitOpen = domain.ErrCircuitOpen

type backoff struct {
	maxRetries int
	initial    time.Duration
	max        time.Duration
}

// Client implements meteo.Backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	circuit    *gobreaker.CircuitBreaker
	backoff    backoff
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a backend client. Each request is bounded by timeout and
// retried up to maxRetries times on transport errors, 429, and 5xx.
func NewClient(baseURL string, timeout time.Duration, maxRetries int, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		backoff: backoff{
			maxRetries: maxRetries,
			initial:    250 * time.Millisecond,
			max:        2 * time.Second,
		},
		logger:  logger,
		metrics: metrics,
	}
	c.circuit = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		// Client errors say nothing about backend health.
		IsSuccessful: func(err error) bool {
			var be *domain.BackendError
			if errors.As(err, &be) {
				return !be.Retryable()
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// FetchLatest implements meteo.Backend.
func (c *Client) FetchLatest(ctx context.Context, stationID, window string, elements []string) (meteo.LatestResponse, error) {
	q := url.Values{"since": {window}}
	if len(elements) > 0 {
		q.Set("elements", strings.Join(elements, ","))
	}

	var out meteo.LatestResponse
	err := c.get(ctx, EndpointLatest, "/api/observations/"+url.PathEscape(stationID), q, &out)
	return out, err
}

// FetchHistory implements meteo.Backend.
func (c *Client) FetchHistory(ctx context.Context, stationID string, hq meteo.HistoryQuery) (meteo.HistoryResponse, error) {
	if hq.Start.IsZero() || hq.End.IsZero() {
		return meteo.HistoryResponse{}, errors.New("history: missing start or end")
	}
	chunk := hq.ChunkDays
	if chunk <= 0 {
		chunk = meteo.DefaultChunkDays
	}
	elements := hq.Elements
	if len(elements) == 0 {
		elements = meteo.ExtendedElements
	}
	q := url.Values{
		"start":     {hq.Start.UTC().Format(dateLayout)},
		"end":       {hq.End.UTC().Format(dateLayout)},
		"elements":  {strings.Join(elements, ",")},
		"chunkDays": {strconv.Itoa(chunk)},
	}

	var out meteo.HistoryResponse
	err := c.get(ctx, EndpointHistory, "/api/history/"+url.PathEscape(stationID), q, &out)
	return out, err
}

// FetchNormals implements meteo.Backend.
func (c *Client) FetchNormals(ctx context.Context, stationID string, month int, exprs []string) (meteo.NormalsResponse, error) {
	if len(exprs) == 0 {
		exprs = []string{meteo.ExprMeanTemperature, meteo.ExprSumPrecip}
	}
	q := url.Values{
		"elements": {strings.Join(exprs, ",")},
		"months":   {strconv.Itoa(month)},
	}

	var out meteo.NormalsResponse
	err := c.get(ctx, EndpointNormals, "/api/normals/"+url.PathEscape(stationID), q, &out)
	return out, err
}

func (c *Client) get(ctx context.Context, endpoint, path string, q url.Values, out any) error {
	start := time.Now()
	defer func() {
		c.metrics.BackendDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	resp, err := c.doWithResilience(ctx, endpoint, c.baseURL+path+"?"+q.Encode())
	if err != nil {
		c.metrics.BackendErrors.WithLabelValues(endpoint, errorKind(err)).Inc()
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.metrics.BackendErrors.WithLabelValues(endpoint, "decode").Inc()
		return fmt.Errorf("%s: decode response: %w", endpoint, err)
	}
	return nil
}

// doWithResilience runs the request through the circuit breaker, retrying
// transient failures with exponential backoff. The caller closes the body.
func (c *Client) doWithResilience(ctx context.Context, endpoint, fullURL string) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &domain.NetworkError{Op: endpoint, Err: err}
		}

		result, err := c.circuit.Execute(func() (any, error) {
			return c.do(ctx, endpoint, fullURL)
		})
		if err == nil {
			return result.(*http.Response), nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w: %v", endpoint, ErrCircuitOpen, err)
		}
		if !retryable(ctx, err) || attempt >= c.backoff.maxRetries {
			return nil, err
		}

		delay := c.backoff.initial << attempt
		if delay > c.backoff.max {
			delay = c.backoff.max
		}
		c.logger.Debug("retrying backend request", "endpoint", endpoint, "attempt", attempt+1, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &domain.NetworkError{Op: endpoint, Err: ctx.Err()}
		case <-timer.C:
		}
	}
}

func (c *Client) do(ctx context.Context, endpoint, fullURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.NetworkError{Op: endpoint, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &domain.BackendError{
			Op:     endpoint,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(body)),
		}
	}
	return resp, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var ne *domain.NetworkError
	if errors.As(err, &ne) {
		return true
	}
	var be *domain.BackendError
	return errors.As(err, &be) && be.Retryable()
}

func errorKind(err error) string {
	var ne *domain.NetworkError
	var be *domain.BackendError
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return "breaker"
	case errors.As(err, &be):
		return "backend"
	case errors.As(err, &ne):
		return "network"
	default:
		return "other"
	}
}
