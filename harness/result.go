// Package harness dispatches batches of simulation calls under different
// concurrency strategies and times them.
package harness

import (
	"slices"
	"time"
)

// Result holds the measurement of one strategy run.
type Result struct {
	Strategy      string  `json:"strategy"`
	Sims          int     `json:"sims"`
	Workers       int     `json:"workers,omitempty"`
	ElapsedMicros int64   `json:"elapsed_us"`
	Latency       Latency `json:"latency"`
}

// Latency summarizes per-call round trips in microseconds.
type Latency struct {
	MinMicros  int64 `json:"min_us"`
	MeanMicros int64 `json:"mean_us"`
	P50Micros  int64 `json:"p50_us"`
	MaxMicros  int64 `json:"max_us"`
}

func summarize(samples []time.Duration) Latency {
	if len(samples) == 0 {
		return Latency{}
	}

	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	var total time.Duration
	for _, d := range sorted {
		total += d
	}

	return Latency{
		MinMicros:  sorted[0].Microseconds(),
		MeanMicros: (total / time.Duration(len(sorted))).Microseconds(),
		P50Micros:  sorted[(len(sorted)-1)/2].Microseconds(),
		MaxMicros:  sorted[len(sorted)-1].Microseconds(),
	}
}
