package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/glacier-melt-service/internal/domain"
	"github.com/couchcryptid/glacier-melt-service/internal/meteo"
	"github.com/couchcryptid/glacier-melt-service/internal/observability"
)

var now = time.Date(2025, 3, 13, 23, 30, 0, 0, time.UTC)

type stubHistory struct {
	resp  meteo.HistoryResponse
	err   error
	calls []meteo.HistoryQuery
}

func (s *stubHistory) FetchHistory(_ context.Context, _ string, q meteo.HistoryQuery) (meteo.HistoryResponse, error) {
	s.calls = append(s.calls, q)
	return s.resp, s.err
}

func loadHistoryFixture(t *testing.T) meteo.HistoryResponse {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "history_sn55700.json"))
	require.NoError(t, err)
	var resp meteo.HistoryResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

func newTestTransformer(h HistoryFetcher) (*SimulationTransformer, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	tr := NewTransformer(h, domain.NewProcessor(domain.ProcessorOptions{}), clockwork.NewFakeClockAt(now),
		slog.New(slog.NewTextHandler(io.Discard, nil)), m)
	return tr, m
}

func jobMessage(t *testing.T, job map[string]any) domain.RawJob {
	t.Helper()
	b, err := json.Marshal(job)
	require.NoError(t, err)
	return domain.RawJob{Value: b}
}

var nigardsbreen = map[string]any{
	"job_id":  "job-1",
	"glacier": map[string]any{"id": "G1", "name": "Nigardsbreen", "elevation": 1200},
	"station": map[string]any{"id": "SN55700", "elevation": 1000},
	"days":    2,
}

func TestSimulationTransformer_Transform(t *testing.T) {
	history := &stubHistory{resp: loadHistoryFixture(t)}
	tr, m := newTestTransformer(history)

	env, err := tr.Transform(context.Background(), jobMessage(t, nigardsbreen))
	require.NoError(t, err)

	require.Len(t, history.calls, 1)
	q := history.calls[0]
	assert.Equal(t, time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC), q.Start)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), q.End)
	assert.Equal(t, meteo.ClimateElements, q.Elements)

	assert.Equal(t, "job-1", env.JobID)
	_, err = uuid.Parse(env.RunID)
	require.NoError(t, err)
	assert.Equal(t, now, env.ProcessedAt)
	assert.Equal(t, "G1", env.Result.Glacier.ID)
	assert.Len(t, env.Result.History, 48)
	assert.Equal(t, domain.DataQualityFull, env.Result.DataQuality)
	require.NotNil(t, env.Result.Today)
	assert.Equal(t, time.Date(2025, 3, 13, 23, 0, 0, 0, time.UTC), env.Result.Today.Time)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SimulationsRun.WithLabelValues("full")))
}

func TestSimulationTransformer_MatchesDirectProcessing(t *testing.T) {
	resp := loadHistoryFixture(t)
	tr, _ := newTestTransformer(&stubHistory{resp: resp})

	env, err := tr.Transform(context.Background(), jobMessage(t, nigardsbreen))
	require.NoError(t, err)

	glacier := domain.GlacierMeta{ID: "G1", Name: "Nigardsbreen", Elevation: 1200}
	station := domain.StationMeta{ID: "SN55700", Elevation: 1000}
	want := domain.NewProcessor(domain.ProcessorOptions{}).Process(glacier, station, meteo.SamplesFromHistory(resp))
	if diff := cmp.Diff(want, env.Result); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestSimulationTransformer_InvalidJob(t *testing.T) {
	tests := []struct {
		name string
		raw  domain.RawJob
	}{
		{"malformed", domain.RawJob{Value: []byte(`{`)}},
		{"missing station id", jobMessage(t, map[string]any{"job_id": "j", "glacier": map[string]any{"id": "G1"}, "station": map[string]any{}})},
		{"too many days", jobMessage(t, map[string]any{"job_id": "j", "glacier": map[string]any{"id": "G1"}, "station": map[string]any{"id": "S"}, "days": 365})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := &stubHistory{}
			tr, _ := newTestTransformer(history)

			_, err := tr.Transform(context.Background(), tt.raw)
			require.Error(t, err)
			assert.Empty(t, history.calls)
		})
	}
}

func TestSimulationTransformer_HistoryError(t *testing.T) {
	tr, _ := newTestTransformer(&stubHistory{err: &domain.BackendError{Op: "history", Status: 503}})

	_, err := tr.Transform(context.Background(), jobMessage(t, nigardsbreen))

	var be *domain.BackendError
	require.True(t, errors.As(err, &be))
	assert.Contains(t, err.Error(), "job-1")
}
