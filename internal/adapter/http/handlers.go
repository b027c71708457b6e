package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/couchcryptid/glacier-melt-service/internal/domain"
	"github.com/couchcryptid/glacier-melt-service/internal/summary"
)

const maxSimulateBody = 8 << 20

// SimulateRequest is the body of POST /api/v1/glaciers/simulate.
type SimulateRequest struct {
	Glacier domain.GlacierMeta `json:"glacier"`
	Station domain.StationMeta `json:"station"`
	Series  []domain.Sample    `json:"series" validate:"required,min=1,max=100000,dive"`

	// Resolution is the sample spacing as a Go duration ("1h", "24h").
	// Empty means infer it from the timestamps.
	Resolution string `json:"resolution,omitempty"`
}

func (s *Server) handleStationSummary(w http.ResponseWriter, r *http.Request) {
	stationID := strings.TrimSpace(r.PathValue("id"))
	if stationID == "" {
		writeError(w, http.StatusBadRequest, "station id is required")
		return
	}

	var opts summary.Options
	if v := r.URL.Query().Get("forceRefresh"); v != "" {
		force, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "forceRefresh must be a boolean")
			return
		}
		opts.ForceRefresh = force
	}

	result := s.summaries.GetStationSummary(r.Context(), stationID, opts)
	if err := writeResponse(w, r, http.StatusOK, result); err != nil {
		s.logger.Error("write summary response", "station_id", stationID, "error", err)
	}
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSimulateBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	var resolution time.Duration
	if req.Resolution != "" {
		d, err := time.ParseDuration(req.Resolution)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "resolution must be a positive duration")
			return
		}
		resolution = d
	}

	result := s.processor.WithResolution(resolution).Process(req.Glacier, req.Station, req.Series)
	s.metrics.SimulationsRun.WithLabelValues(string(result.DataQuality)).Inc()
	s.metrics.SimulationSteps.Observe(float64(len(req.Series)))
	s.logger.Debug("simulation complete",
		"glacier_id", req.Glacier.ID,
		"station_id", req.Station.ID,
		"samples", len(req.Series),
		"data_quality", result.DataQuality,
	)

	if err := writeResponse(w, r, http.StatusOK, result); err != nil {
		s.logger.Error("write simulation response", "glacier_id", req.Glacier.ID, "error", err)
	}
}

// validationMessage lists the failing fields as "field: tag" pairs.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}
