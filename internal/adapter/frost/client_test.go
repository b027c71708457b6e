package frost

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/glacier-melt-service/internal/domain"
	"github.com/couchcryptid/glacier-melt-service/internal/meteo"
	"github.com/couchcryptid/glacier-melt-service/internal/observability"
)

const (
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testClient(t *testing.T, baseURL string, maxRetries int) (*Client, *observability.Metrics) {
	t.Helper()
	m := observability.NewMetricsForTesting()
	c := NewClient(baseURL, 5*time.Second, maxRetries, slog.New(slog.NewTextHandler(io.Discard, nil)), m)
	c.backoff.initial = time.Millisecond
	c.backoff.max = 5 * time.Millisecond
	return c, m
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set(headerContentType, contentTypeJSON)
	_, _ = io.WriteString(w, body)
}

func TestClient_FetchLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/observations/SN18700", r.URL.Path)
		assert.Equal(t, "now-24h/now", r.URL.Query().Get("since"))
		assert.Equal(t, "air_temperature,snow_depth", r.URL.Query().Get("elements"))
		writeJSON(w, `{"latest":{"air_temperature":{"value":-3.4,"unit":"degC","time":"2025-03-14T12:00:00Z"}}}`)
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL, 0)
	resp, err := c.FetchLatest(context.Background(), "SN18700", "now-24h/now", []string{"air_temperature", "snow_depth"})
	require.NoError(t, err)

	p, ok := resp.Latest["air_temperature"]
	require.True(t, ok)
	require.NotNil(t, p.Value)
	assert.InDelta(t, -3.4, *p.Value, 1e-9)
	assert.Equal(t, "degC", p.Unit)
	assert.Equal(t, time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC), p.Time)
}

func TestClient_FetchLatest_NullValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `{"latest":{"air_temperature":{"value":null,"unit":"degC","time":"2025-03-14T12:00:00Z"}}}`)
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL, 0)
	resp, err := c.FetchLatest(context.Background(), "SN18700", "now-6h/now", nil)
	require.NoError(t, err)

	p, ok := resp.Latest["air_temperature"]
	require.True(t, ok)
	assert.Nil(t, p.Value)
	_, ok = p.Reading()
	assert.False(t, ok)
}

func TestClient_FetchLatest_DefaultElementsOmitted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, has := r.URL.Query()["elements"]
		assert.False(t, has)
		writeJSON(w, `{"latest":{}}`)
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL, 0)
	resp, err := c.FetchLatest(context.Background(), "SN18700", "now-6h/now", nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Latest)
}

func TestClient_FetchHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/api/history/SN18700", r.URL.Path)
		assert.Equal(t, "2024-03-01", q.Get("start"))
		assert.Equal(t, "2024-04-01", q.Get("end"))
		assert.Equal(t, "air_temperature,precipitation_amount", q.Get("elements"))
		assert.Equal(t, "7", q.Get("chunkDays"))
		writeJSON(w, `{"series":{"air_temperature":[
			{"value":-1,"time":"2024-03-01T00:00:00Z"},
			{"value":-2,"time":"2024-03-01T01:00:00Z"}]}}`)
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL, 0)
	resp, err := c.FetchHistory(context.Background(), "SN18700", meteo.HistoryQuery{
		Start:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Elements: meteo.ClimateElements,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Series["air_temperature"], 2)
}

func TestClient_FetchHistory_MissingRange(t *testing.T) {
	c, _ := testClient(t, "http://unused.invalid", 0)
	_, err := c.FetchHistory(context.Background(), "SN18700", meteo.HistoryQuery{})
	require.Error(t, err)
}

func TestClient_FetchNormals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/normals/SN18700", r.URL.Path)
		assert.Equal(t, "mean(air_temperature P1M),sum(precipitation_amount P1M)", r.URL.Query().Get("elements"))
		assert.Equal(t, "3", r.URL.Query().Get("months"))
		writeJSON(w, `{"rows":{"mean(air_temperature P1M)":[{"normal":-4.2}],"sum(precipitation_amount P1M)":[{"normal":null}]},"period":"1991-2020"}`)
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL, 0)
	resp, err := c.FetchNormals(context.Background(), "SN18700", 3, nil)
	require.NoError(t, err)

	require.NotNil(t, resp.First(meteo.ExprMeanTemperature))
	assert.InDelta(t, -4.2, *resp.First(meteo.ExprMeanTemperature), 1e-9)
	assert.Nil(t, resp.First(meteo.ExprSumPrecip))
	assert.Equal(t, "1991-2020", resp.Period)
}

func TestClient_EscapesStationID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/observations/SN1%2F2", r.URL.EscapedPath())
		writeJSON(w, `{"latest":{}}`)
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL, 0)
	_, err := c.FetchLatest(context.Background(), "SN1/2", "now-6h/now", nil)
	require.NoError(t, err)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, `{"latest":{}}`)
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL, 2)
	_, err := c.FetchLatest(context.Background(), "SN18700", "now-6h/now", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_BackendErrorAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, m := testClient(t, srv.URL, 1)
	_, err := c.FetchLatest(context.Background(), "SN18700", "now-6h/now", nil)

	var be *domain.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusTooManyRequests, be.Status)
	assert.Equal(t, "too many requests", be.Body)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendErrors.WithLabelValues(EndpointLatest, "backend")))
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "unknown station", http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := testClient(t, srv.URL, 3)
	_, err := c.FetchNormals(context.Background(), "SN0", 1, nil)

	var be *domain.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusNotFound, be.Status)
	assert.False(t, be.Retryable())
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, m := testClient(t, url, 0)
	_, err := c.FetchLatest(context.Background(), "SN18700", "now-6h/now", nil)

	var ne *domain.NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, EndpointLatest, ne.Op)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendErrors.WithLabelValues(EndpointLatest, "network")))
}

func TestClient_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `{not json`)
	}))
	defer srv.Close()

	c, m := testClient(t, srv.URL, 0)
	_, err := c.FetchLatest(context.Background(), "SN18700", "now-6h/now", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendErrors.WithLabelValues(EndpointLatest, "decode")))
}

func TestClient_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, m := testClient(t, srv.URL, 0)
	// gobreaker trips after more than five consecutive failures.
	for range 6 {
		_, err := c.FetchLatest(context.Background(), "SN18700", "now-6h/now", nil)
		require.Error(t, err)
	}
	_, err := c.FetchLatest(context.Background(), "SN18700", "now-6h/now", nil)

	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(6), calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendErrors.WithLabelValues(EndpointLatest, "breaker")))
}

func TestClient_CancelledContext(t *testing.T) {
	c, _ := testClient(t, "http://unused.invalid", 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchLatest(ctx, "SN18700", "now-6h/now", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
