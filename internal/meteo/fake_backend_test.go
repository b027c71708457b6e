package meteo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/glacier-melt-service/internal/domain"
)

var errNetwork = &domain.NetworkError{Op: "fetch", Err: errors.New("connection refused")}

type latestCall struct {
	window   string
	elements []string
}

// fakeBackend records calls and answers from per-endpoint funcs. A nil func
// fails the call with errNetwork.
type fakeBackend struct {
	mu           sync.Mutex
	latestCalls  []latestCall
	historyCalls []HistoryQuery
	normalsCalls int

	latest  func(window string) (LatestResponse, error)
	history func(q HistoryQuery) (HistoryResponse, error)
	normals func(month int) (NormalsResponse, error)
}

func (f *fakeBackend) FetchLatest(_ context.Context, _, window string, elements []string) (LatestResponse, error) {
	f.mu.Lock()
	f.latestCalls = append(f.latestCalls, latestCall{window: window, elements: elements})
	f.mu.Unlock()
	if f.latest == nil {
		return LatestResponse{}, errNetwork
	}
	return f.latest(window)
}

func (f *fakeBackend) FetchHistory(_ context.Context, _ string, q HistoryQuery) (HistoryResponse, error) {
	f.mu.Lock()
	f.historyCalls = append(f.historyCalls, q)
	f.mu.Unlock()
	if f.history == nil {
		return HistoryResponse{}, errNetwork
	}
	return f.history(q)
}

func (f *fakeBackend) FetchNormals(_ context.Context, _ string, month int, _ []string) (NormalsResponse, error) {
	f.mu.Lock()
	f.normalsCalls++
	f.mu.Unlock()
	if f.normals == nil {
		return NormalsResponse{}, errNetwork
	}
	return f.normals(month)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func point(v float64, at time.Time) domain.ObservationPoint {
	return domain.ObservationPoint{Value: &v, Unit: "degC", Time: at}
}

// nullPoint is an element reported without a measurement.
func nullPoint(at time.Time) domain.ObservationPoint {
	return domain.ObservationPoint{Unit: "degC", Time: at}
}

func ptr(v float64) *float64 { return &v }
