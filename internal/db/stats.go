package db

import (
	"context"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// StandingThresholdMeters splits sitting from standing time. Typical standing
// heights start around 95cm on a 3-stage frame.
const StandingThresholdMeters = 0.95

// HeightStats summarises the readings inside a window. Durations are time
// weighted: each reading holds until the next one or the end of the window.
type HeightStats struct {
	From     time.Time     `json:"from"`
	To       time.Time     `json:"to"`
	Count    int           `json:"count"`
	Mean     float64       `json:"mean"`
	StdDev   float64       `json:"stddev"`
	Min      float64       `json:"min"`
	Max      float64       `json:"max"`
	Median   float64       `json:"median"`
	P95      float64       `json:"p95"`
	Sitting  time.Duration `json:"sitting_ns"`
	Standing time.Duration `json:"standing_ns"`
	// Transitions counts crossings of the standing threshold.
	Transitions int `json:"transitions"`
}

// Stats computes HeightStats over the last window.
func (db *DB) Stats(ctx context.Context, window time.Duration) (HeightStats, error) {
	to := db.clock.Now()
	from := to.Add(-window)
	readings, err := db.ReadingsSince(ctx, from)
	if err != nil {
		return HeightStats{}, err
	}
	return ComputeStats(readings, from, to), nil
}

// ComputeStats summarises readings, which must be sorted oldest first.
func ComputeStats(readings []Reading, from, to time.Time) HeightStats {
	s := HeightStats{From: from, To: to, Count: len(readings)}
	if len(readings) == 0 {
		return s
	}

	heights := make([]float64, len(readings))
	for i, r := range readings {
		heights[i] = r.Meters
	}
	s.Mean, s.StdDev = stat.MeanStdDev(heights, nil)
	if len(heights) < 2 {
		s.StdDev = 0
	}
	s.Min = floats.Min(heights)
	s.Max = floats.Max(heights)

	sorted := append([]float64(nil), heights...)
	sort.Float64s(sorted)
	s.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	s.P95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)

	for i, r := range readings {
		end := to
		if i+1 < len(readings) {
			end = readings[i+1].Time
		}
		d := end.Sub(r.Time)
		if d < 0 {
			d = 0
		}
		if r.Meters >= StandingThresholdMeters {
			s.Standing += d
		} else {
			s.Sitting += d
		}
		if i > 0 && standing(readings[i-1].Meters) != standing(r.Meters) {
			s.Transitions++
		}
	}
	return s
}

func standing(m float64) bool { return m >= StandingThresholdMeters }
