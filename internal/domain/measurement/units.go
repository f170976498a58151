package measurement

import (
	"errors"
	"fmt"
)

// ErrUnsupportedUnit is returned when a submitted unit is unknown or does
// not convert to the canonical unit of the measurement type.
var ErrUnsupportedUnit = errors.New("unsupported unit")

// canonicalUnits maps each measurement type to the unit every stored value
// is expressed in. Everything downstream of ingestion (dedup tolerance,
// trend thresholds, alert rule thresholds) assumes these units.
var canonicalUnits = map[string]string{
	TypeWeight:            "kg",
	TypeBPSystolic:        "mmHg",
	TypeBPDiastolic:       "mmHg",
	TypeSpO2:              "%",
	TypeHeartRate:         "bpm",
	TypeBodyFatPct:        "%",
	TypeMuscleMass:        "kg",
	TypeBodyWaterPct:      "%",
	TypePulseWaveVelocity: "m/s",
}

// conversions is the fixed table of supported input units: factor applied to
// reach the target canonical unit.
var conversions = map[string]struct {
	to     string
	factor float64
}{
	"lb":   {"kg", 0.45359237},
	"st":   {"kg", 6.35029318},
	"g":    {"kg", 0.001},
	"kPa":  {"mmHg", 7.50061683},
	"cm/s": {"m/s", 0.01},
}

// CanonicalUnit returns the canonical unit for a measurement type.
func CanonicalUnit(mtype string) (string, bool) {
	u, ok := canonicalUnits[mtype]
	return u, ok
}

// Convert maps (value, unit) to the canonical unit for mtype. An empty unit
// is taken as already canonical (device-sync records arrive pre-labeled).
// A unit that is unknown, or known but targeting a different canonical unit
// than mtype uses, fails with ErrUnsupportedUnit.
func Convert(mtype string, value float64, unit string) (float64, string, error) {
	canonical, ok := canonicalUnits[mtype]
	if !ok {
		return 0, "", fmt.Errorf("unknown measurement type %q", mtype)
	}
	if unit == "" || unit == canonical {
		return value, canonical, nil
	}
	conv, ok := conversions[unit]
	if !ok || conv.to != canonical {
		return 0, "", fmt.Errorf("%w: %q for type %s", ErrUnsupportedUnit, unit, mtype)
	}
	return value * conv.factor, canonical, nil
}
