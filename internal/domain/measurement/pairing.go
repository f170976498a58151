package measurement

import (
	"time"

	"github.com/google/uuid"
)

// BPPairWindow is the maximum timestamp distance between a systolic and a
// diastolic reading for them to count as one blood-pressure reading.
const BPPairWindow = 60 * time.Second

// BPPair is one chart-ready blood-pressure point assembled from a systolic
// and a diastolic row.
type BPPair struct {
	Systolic    float64   `json:"systolic"`
	Diastolic   float64   `json:"diastolic"`
	MeasuredAt  time.Time `json:"measuredAt"`
	Source      string    `json:"source"`
	SystolicID  uuid.UUID `json:"systolicId"`
	DiastolicID uuid.UUID `json:"diastolicId"`
}

// BPSeries is the pairing result: ordered pairs plus counts of readings
// that found no partner. Unmatched rows are reported, never dropped
// silently.
type BPSeries struct {
	Pairs                  []BPPair `json:"pairs"`
	UnpairedSystolicCount  int      `json:"unpairedSystolicCount"`
	UnpairedDiastolicCount int      `json:"unpairedDiastolicCount"`
}

// PairBloodPressure matches systolic against diastolic readings of one
// patient. A pair needs the same source and timestamps within BPPairWindow;
// each reading is used at most once, nearest match first. Both inputs must
// be ordered by MeasuredAt ascending; pairs come out in systolic order.
func PairBloodPressure(systolic, diastolic []*Measurement) BPSeries {
	out := BPSeries{Pairs: []BPPair{}}
	used := make([]bool, len(diastolic))

	for _, s := range systolic {
		best := -1
		var bestDiff time.Duration
		for j, d := range diastolic {
			if used[j] || d.Source != s.Source {
				continue
			}
			diff := d.MeasuredAt.Sub(s.MeasuredAt)
			if diff < 0 {
				diff = -diff
			}
			if diff > BPPairWindow {
				continue
			}
			if best == -1 || diff < bestDiff {
				best = j
				bestDiff = diff
			}
		}
		if best == -1 {
			out.UnpairedSystolicCount++
			continue
		}
		used[best] = true
		out.Pairs = append(out.Pairs, BPPair{
			Systolic:    s.Value,
			Diastolic:   diastolic[best].Value,
			MeasuredAt:  s.MeasuredAt,
			Source:      s.Source,
			SystolicID:  s.ID,
			DiastolicID: diastolic[best].ID,
		})
	}

	out.UnpairedDiastolicCount = len(diastolic) - len(out.Pairs)
	return out
}
