package devicesync

import (
	"math"
	"testing"

	"github.com/renalink/renalink/internal/domain/measurement"
)

func TestResolve(t *testing.T) {
	cases := []struct {
		name     string
		vendor   string
		code     string
		wantType string
		wantUnit string
		ok       bool
	}{
		{"withings weight", "withings", "1", measurement.TypeWeight, "kg", true},
		{"withings systolic", "withings", "10", measurement.TypeBPSystolic, "mmHg", true},
		{"withings spo2", "withings", "54", measurement.TypeSpO2, "%", true},
		{"withings pwv", "withings", "91", measurement.TypePulseWaveVelocity, "m/s", true},
		{"bodytrace weight", "body_trace", "wt", measurement.TypeWeight, "kg", true},
		{"smartmeter pulse", "smart_meter", "pul", measurement.TypeHeartRate, "bpm", true},
		{"unknown code", "withings", "9999", "", "", false},
		{"unknown vendor", "acme", "1", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, ok := Resolve(tc.vendor, tc.code)
			if ok != tc.ok {
				t.Fatalf("Resolve(%s, %s) ok = %v, want %v", tc.vendor, tc.code, ok, tc.ok)
			}
			if !ok {
				return
			}
			if m.Type != tc.wantType || m.Unit != tc.wantUnit {
				t.Errorf("mapping = %s/%s, want %s/%s", m.Type, m.Unit, tc.wantType, tc.wantUnit)
			}
		})
	}
}

func TestApplyScalesGrams(t *testing.T) {
	m, ok := Resolve("body_trace", "wt")
	if !ok {
		t.Fatal("body_trace wt mapping missing")
	}
	got := m.Apply(85100)
	if math.Abs(got-85.1) > 1e-9 {
		t.Errorf("Apply(85100) = %v, want 85.1 kg", got)
	}
}

func TestKnownVendor(t *testing.T) {
	for vendor, want := range map[string]bool{
		"withings":    true,
		"body_trace":  true,
		"smart_meter": true,
		"acme":        false,
		"manual":      false,
	} {
		if got := KnownVendor(vendor); got != want {
			t.Errorf("KnownVendor(%q) = %v, want %v", vendor, got, want)
		}
	}
}
