package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultJobDays is the history length simulated when a job does not set one.
const DefaultJobDays = 14

// RawJob is a simulation job message as read from the source topic.
type RawJob struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Headers   map[string]string

	// Commit acknowledges the message. Nil when the source has no offsets.
	Commit func(ctx context.Context) error
}

// SimulationJob asks for a glacier simulation over the station's recent history.
type SimulationJob struct {
	JobID   string      `json:"job_id" validate:"required"`
	Glacier GlacierMeta `json:"glacier"`
	Station StationMeta `json:"station"`
	Days    int         `json:"days" validate:"min=1,max=90"`
}

// SimulationEnvelope wraps a result for the sink topic.
type SimulationEnvelope struct {
	RunID       string           `json:"run_id"`
	JobID       string           `json:"job_id"`
	ProcessedAt time.Time        `json:"processed_at"`
	Result      SimulationResult `json:"result"`
}

// ParseSimulationJob decodes a job message, applying DefaultJobDays when
// days is unset.
func ParseSimulationJob(raw RawJob) (SimulationJob, error) {
	var job SimulationJob
	if err := json.Unmarshal(raw.Value, &job); err != nil {
		return SimulationJob{}, fmt.Errorf("decode simulation job: %w", err)
	}
	if job.JobID == "" {
		job.JobID = string(raw.Key)
	}
	if job.Days == 0 {
		job.Days = DefaultJobDays
	}
	return job, nil
}
