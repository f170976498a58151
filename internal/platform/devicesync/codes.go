package devicesync

import (
	"github.com/renalink/renalink/internal/domain/measurement"
)

// CodeMapping converts one vendor measure code into a typed reading:
// value*Scale+Offset expressed in Unit. The unit still goes through the
// regular converter, so a vendor reporting pounds just declares "lb" here.
type CodeMapping struct {
	Type   string
	Unit   string
	Scale  float64
	Offset float64
}

// vendorCodes is configuration data mirroring each vendor's wire contract,
// keyed by the vendor slug stored on the device connection. Withings codes
// are the public meastype numbers; BodyTrace scales report grams.
var vendorCodes = map[string]map[string]CodeMapping{
	"withings": {
		"1":  {Type: measurement.TypeWeight, Unit: "kg", Scale: 1},
		"6":  {Type: measurement.TypeBodyFatPct, Unit: "%", Scale: 1},
		"9":  {Type: measurement.TypeBPDiastolic, Unit: "mmHg", Scale: 1},
		"10": {Type: measurement.TypeBPSystolic, Unit: "mmHg", Scale: 1},
		"11": {Type: measurement.TypeHeartRate, Unit: "bpm", Scale: 1},
		"54": {Type: measurement.TypeSpO2, Unit: "%", Scale: 1},
		"76": {Type: measurement.TypeMuscleMass, Unit: "kg", Scale: 1},
		"77": {Type: measurement.TypeBodyWaterPct, Unit: "%", Scale: 1},
		"91": {Type: measurement.TypePulseWaveVelocity, Unit: "m/s", Scale: 1},
	},
	"body_trace": {
		"wt":    {Type: measurement.TypeWeight, Unit: "kg", Scale: 0.001},
		"sys":   {Type: measurement.TypeBPSystolic, Unit: "mmHg", Scale: 1},
		"dia":   {Type: measurement.TypeBPDiastolic, Unit: "mmHg", Scale: 1},
		"pulse": {Type: measurement.TypeHeartRate, Unit: "bpm", Scale: 1},
	},
	"smart_meter": {
		"bps":  {Type: measurement.TypeBPSystolic, Unit: "mmHg", Scale: 1},
		"bpd":  {Type: measurement.TypeBPDiastolic, Unit: "mmHg", Scale: 1},
		"pul":  {Type: measurement.TypeHeartRate, Unit: "bpm", Scale: 1},
		"spo2": {Type: measurement.TypeSpO2, Unit: "%", Scale: 1},
	},
}

// KnownVendor reports whether a code table exists for the vendor.
func KnownVendor(vendor string) bool {
	_, ok := vendorCodes[vendor]
	return ok
}

// Resolve looks up the mapping for one vendor measure code.
func Resolve(vendor, code string) (CodeMapping, bool) {
	m, ok := vendorCodes[vendor][code]
	return m, ok
}

// Apply converts a raw vendor value into the mapping's unit.
func (m CodeMapping) Apply(value float64) float64 {
	return value*m.Scale + m.Offset
}
