package measurement

import (
	"math"
	"testing"
	"time"
)

func series(mtype string, start time.Time, points ...struct {
	offset time.Duration
	value  float64
}) []*Measurement {
	var out []*Measurement
	for _, p := range points {
		out = append(out, &Measurement{
			Type:       mtype,
			Value:      p.value,
			MeasuredAt: start.Add(p.offset),
		})
	}
	return out
}

type pt = struct {
	offset time.Duration
	value  float64
}

func TestAnalyzeTrend_TooFewPoints(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := series(TypeWeight, start,
		pt{0, 80}, pt{24 * time.Hour, 81}, pt{48 * time.Hour, 82})

	tr := AnalyzeTrend(TypeWeight, s)
	if tr.Direction != TrendInsufficientData {
		t.Errorf("direction = %s, want insufficient_data for 3 points over 48h", tr.Direction)
	}
	if tr.Points != 3 {
		t.Errorf("points = %d, want 3", tr.Points)
	}
}

func TestAnalyzeTrend_SpanTooShort(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := series(TypeWeight, start,
		pt{0, 80}, pt{2 * time.Hour, 81}, pt{5 * time.Hour, 82},
		pt{8 * time.Hour, 83}, pt{10 * time.Hour, 84})

	tr := AnalyzeTrend(TypeWeight, s)
	if tr.Direction != TrendInsufficientData {
		t.Errorf("direction = %s, want insufficient_data for 5 points over 10h", tr.Direction)
	}
}

func TestAnalyzeTrend_WeightIncreasing(t *testing.T) {
	// 5 points over 30 hours with a +1.5 kg mean shift between halves.
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := series(TypeWeight, start,
		pt{0, 80.0}, pt{10 * time.Hour, 80.0},
		pt{20 * time.Hour, 81.5}, pt{25 * time.Hour, 81.5}, pt{30 * time.Hour, 81.5})

	tr := AnalyzeTrend(TypeWeight, s)
	if tr.Direction != TrendIncreasing {
		t.Fatalf("direction = %s, want increasing", tr.Direction)
	}
	if math.Abs(tr.Delta-1.5) > 1e-9 {
		t.Errorf("delta = %v, want 1.5", tr.Delta)
	}
	if tr.Threshold != 1.0 {
		t.Errorf("threshold = %v, want 1.0", tr.Threshold)
	}
}

func TestAnalyzeTrend_Decreasing(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := series(TypeBPSystolic, start,
		pt{0, 160}, pt{6 * time.Hour, 158},
		pt{30 * time.Hour, 140}, pt{36 * time.Hour, 138})

	tr := AnalyzeTrend(TypeBPSystolic, s)
	if tr.Direction != TrendDecreasing {
		t.Fatalf("direction = %s, want decreasing", tr.Direction)
	}
	if tr.Delta >= 0 {
		t.Errorf("delta = %v, want negative", tr.Delta)
	}
}

func TestAnalyzeTrend_StableWithinThreshold(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := series(TypeWeight, start,
		pt{0, 80.0}, pt{8 * time.Hour, 80.2},
		pt{28 * time.Hour, 80.5}, pt{36 * time.Hour, 80.6})

	tr := AnalyzeTrend(TypeWeight, s)
	if tr.Direction != TrendStable {
		t.Errorf("direction = %s, want stable (|delta| below 1 kg)", tr.Direction)
	}
}

func TestAnalyzeTrend_DeltaEqualToThresholdIsStable(t *testing.T) {
	// Exceeding means strictly greater: a shift of exactly the threshold
	// stays stable.
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := series(TypeHeartRate, start,
		pt{0, 70}, pt{4 * time.Hour, 70},
		pt{26 * time.Hour, 80}, pt{30 * time.Hour, 80})

	tr := AnalyzeTrend(TypeHeartRate, s)
	if tr.Delta != 10.0 {
		t.Fatalf("delta = %v, want exactly 10", tr.Delta)
	}
	if tr.Direction != TrendStable {
		t.Errorf("direction = %s, want stable at exact threshold", tr.Direction)
	}
}

func TestAnalyzeTrend_MedianTimestampSplit(t *testing.T) {
	// Points cluster early in time: a count split would put 3 points in each
	// half, the median-timestamp split puts 5 in the older half and 1 in the
	// newer.
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := series(TypeWeight, start,
		pt{0, 80}, pt{1 * time.Hour, 80}, pt{2 * time.Hour, 80},
		pt{3 * time.Hour, 80}, pt{4 * time.Hour, 80},
		pt{40 * time.Hour, 83})

	tr := AnalyzeTrend(TypeWeight, s)
	if tr.Direction != TrendIncreasing {
		t.Fatalf("direction = %s, want increasing", tr.Direction)
	}
	if math.Abs(tr.OlderMean-80.0) > 1e-9 {
		t.Errorf("olderMean = %v, want 80.0 (five early points)", tr.OlderMean)
	}
	if math.Abs(tr.NewerMean-83.0) > 1e-9 {
		t.Errorf("newerMean = %v, want 83.0 (single late point)", tr.NewerMean)
	}
}

func TestAnalyzeTrend_MidpointBelongsToOlderHalf(t *testing.T) {
	// Span 24h, midpoint at +12h: the point exactly on the midpoint counts
	// as older.
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := series(TypeWeight, start,
		pt{0, 80}, pt{12 * time.Hour, 80},
		pt{18 * time.Hour, 84}, pt{24 * time.Hour, 84})

	tr := AnalyzeTrend(TypeWeight, s)
	if math.Abs(tr.OlderMean-80.0) > 1e-9 {
		t.Errorf("olderMean = %v, want 80.0 (midpoint point in older half)", tr.OlderMean)
	}
	if math.Abs(tr.NewerMean-84.0) > 1e-9 {
		t.Errorf("newerMean = %v, want 84.0", tr.NewerMean)
	}
}

func TestAnalyzeTrend_UnknownType(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := series("temperature", start,
		pt{0, 37}, pt{10 * time.Hour, 37}, pt{20 * time.Hour, 38}, pt{30 * time.Hour, 38})

	tr := AnalyzeTrend("temperature", s)
	if tr.Direction != TrendInsufficientData {
		t.Errorf("direction = %s, want insufficient_data for unknown type", tr.Direction)
	}
}

func TestAnalyzeTrend_EmptySeries(t *testing.T) {
	tr := AnalyzeTrend(TypeWeight, nil)
	if tr.Direction != TrendInsufficientData {
		t.Errorf("direction = %s, want insufficient_data", tr.Direction)
	}
	if tr.Points != 0 {
		t.Errorf("points = %d, want 0", tr.Points)
	}
}

func TestTrendThreshold_AllTypes(t *testing.T) {
	tests := []struct {
		mtype string
		want  float64
	}{
		{TypeWeight, 1.0},
		{TypeBPSystolic, 10.0},
		{TypeBPDiastolic, 5.0},
		{TypeSpO2, 2.0},
		{TypeHeartRate, 10.0},
		{TypeBodyFatPct, 2.0},
		{TypeMuscleMass, 1.0},
		{TypeBodyWaterPct, 2.0},
		{TypePulseWaveVelocity, 0.8},
	}
	for _, tt := range tests {
		got, ok := TrendThreshold(tt.mtype)
		if !ok || got != tt.want {
			t.Errorf("TrendThreshold(%s) = (%v, %v), want (%v, true)", tt.mtype, got, ok, tt.want)
		}
	}
}
