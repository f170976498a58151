package measurement

import (
	"time"
)

// Trend directions.
const (
	TrendIncreasing       = "increasing"
	TrendDecreasing       = "decreasing"
	TrendStable           = "stable"
	TrendInsufficientData = "insufficient_data"
)

// A determinate trend needs at least this many points spanning at least
// this much time. Anything less reports insufficient_data, never a guess.
const (
	TrendMinPoints = 4
	TrendMinSpan   = 24 * time.Hour
)

// trendThresholds holds the clinically fixed mean-shift threshold per type,
// in canonical units. Absolute, not percentage: percentage deltas are not
// comparable across patients with different baselines.
var trendThresholds = map[string]float64{
	TypeWeight:            1.0,
	TypeBPSystolic:        10.0,
	TypeBPDiastolic:       5.0,
	TypeSpO2:              2.0,
	TypeHeartRate:         10.0,
	TypeBodyFatPct:        2.0,
	TypeMuscleMass:        1.0,
	TypeBodyWaterPct:      2.0,
	TypePulseWaveVelocity: 0.8,
}

// TrendThreshold returns the classification threshold for a type.
func TrendThreshold(mtype string) (float64, bool) {
	th, ok := trendThresholds[mtype]
	return th, ok
}

// Trend is the windowed classification result for one patient and type.
type Trend struct {
	Type      string    `json:"type"`
	Direction string    `json:"direction"`
	Points    int       `json:"points"`
	From      time.Time `json:"from,omitempty"`
	To        time.Time `json:"to,omitempty"`
	OlderMean float64   `json:"olderMean,omitempty"`
	NewerMean float64   `json:"newerMean,omitempty"`
	Delta     float64   `json:"delta,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
}

// AnalyzeTrend classifies a series of readings of one type for one patient.
// The series must be ordered by MeasuredAt ascending. The series is split at
// the median timestamp (earliest + span/2, older half inclusive of the
// midpoint) and the half means are compared: a shift beyond +threshold is
// increasing, beyond -threshold decreasing, otherwise stable.
func AnalyzeTrend(mtype string, series []*Measurement) Trend {
	tr := Trend{Type: mtype, Direction: TrendInsufficientData, Points: len(series)}

	threshold, ok := trendThresholds[mtype]
	if !ok || len(series) < TrendMinPoints {
		return tr
	}

	first := series[0].MeasuredAt
	last := series[len(series)-1].MeasuredAt
	span := last.Sub(first)
	tr.From, tr.To = first, last
	if span < TrendMinSpan {
		return tr
	}

	midpoint := first.Add(span / 2)
	var olderSum, newerSum float64
	var olderN, newerN int
	for _, m := range series {
		if !m.MeasuredAt.After(midpoint) {
			olderSum += m.Value
			olderN++
		} else {
			newerSum += m.Value
			newerN++
		}
	}
	// olderN >= 1 always (first <= midpoint) and newerN >= 1 (last > midpoint
	// whenever span > 0), so both means are defined.
	tr.OlderMean = olderSum / float64(olderN)
	tr.NewerMean = newerSum / float64(newerN)
	tr.Delta = tr.NewerMean - tr.OlderMean
	tr.Threshold = threshold

	switch {
	case tr.Delta > threshold:
		tr.Direction = TrendIncreasing
	case tr.Delta < -threshold:
		tr.Direction = TrendDecreasing
	default:
		tr.Direction = TrendStable
	}
	return tr
}
