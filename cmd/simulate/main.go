// Command simulate runs a glacier melt simulation from the command line,
// either over a local series or over a station's recent history fetched from
// the backend. It can also print a station summary.
//
// Usage:
//
//	go run ./cmd/simulate -in request.json
//	go run ./cmd/simulate -station SN55700 -station-elevation 1000 \
//	  -glacier G1 -glacier-elevation 1200 -days 7
//	go run ./cmd/simulate -summary SN18700
//
// The -in file has the same shape as the POST /api/v1/glaciers/simulate body.
// Use -in - to read it from stdin.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/glacier-melt-service/internal/adapter/frost"
	"github.com/couchcryptid/glacier-melt-service/internal/cache"
	"github.com/couchcryptid/glacier-melt-service/internal/config"
	"github.com/couchcryptid/glacier-melt-service/internal/domain"
	"github.com/couchcryptid/glacier-melt-service/internal/meteo"
	"github.com/couchcryptid/glacier-melt-service/internal/observability"
	"github.com/couchcryptid/glacier-melt-service/internal/summary"
)

type request struct {
	Glacier    domain.GlacierMeta `json:"glacier"`
	Station    domain.StationMeta `json:"station"`
	Series     []domain.Sample    `json:"series" validate:"required,min=1,dive"`
	Resolution string             `json:"resolution,omitempty"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "simulate:", err)
		os.Exit(1)
	}
}

func run() error {
	in := flag.String("in", "", "simulation request JSON file, or - for stdin")
	stationID := flag.String("station", "", "station ID to fetch history for")
	stationElev := flag.Float64("station-elevation", 0, "station elevation in meters")
	glacierID := flag.String("glacier", "glacier", "glacier ID")
	glacierElev := flag.Float64("glacier-elevation", 0, "glacier median elevation in meters")
	days := flag.Int("days", domain.DefaultJobDays, "days of history to simulate")
	summaryID := flag.String("summary", "", "print the summary for this station instead of simulating")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	metrics := observability.NewUnregisteredMetrics()
	clock := clockwork.NewRealClock()
	processor := domain.NewProcessor(domain.ProcessorOptions{HistoryWindow: cfg.HistoryWindow})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch {
	case *in != "":
		req, err := readRequest(*in)
		if err != nil {
			return err
		}
		var res time.Duration
		if req.Resolution != "" {
			if res, err = time.ParseDuration(req.Resolution); err != nil {
				return fmt.Errorf("parse resolution: %w", err)
			}
		}
		return printJSON(processor.WithResolution(res).Process(req.Glacier, req.Station, req.Series))

	case *summaryID != "":
		backend := frost.NewClient(cfg.BackendBaseURL, cfg.BackendTimeout, cfg.BackendMaxRetries, logger, metrics)
		svc := summary.NewService(
			meteo.NewObservationClient(backend, clock, logger, metrics),
			meteo.NewNormalsResolver(backend, clock, logger, metrics),
			cache.New[domain.Summary](cfg.SummaryCacheTTL, 1, clock),
			clock, cfg.SummaryTimeout, logger, metrics,
		)
		return printJSON(svc.GetStationSummary(ctx, *summaryID, summary.Options{}))

	case *stationID != "":
		if *days < 1 {
			return errors.New("-days must be positive")
		}
		backend := frost.NewClient(cfg.BackendBaseURL, cfg.BackendTimeout, cfg.BackendMaxRetries, logger, metrics)
		end := clock.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, 1)
		resp, err := backend.FetchHistory(ctx, *stationID, meteo.HistoryQuery{
			Start:     end.AddDate(0, 0, -*days),
			End:       end,
			Elements:  meteo.ClimateElements,
			ChunkDays: meteo.DefaultChunkDays,
		})
		if err != nil {
			return err
		}
		glacier := domain.GlacierMeta{ID: *glacierID, Elevation: *glacierElev}
		station := domain.StationMeta{ID: *stationID, Elevation: *stationElev}
		return printJSON(processor.Process(glacier, station, meteo.SamplesFromHistory(resp)))

	default:
		flag.Usage()
		return errors.New("one of -in, -station, or -summary is required")
	}
}

func readRequest(path string) (request, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return request{}, err
		}
		defer f.Close()
		r = f
	}

	var req request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return request{}, fmt.Errorf("decode request: %w", err)
	}
	if err := validator.New().Struct(req); err != nil {
		return request{}, fmt.Errorf("invalid request: %w", err)
	}
	return req, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
