package alert

import (
	"encoding/json"
	"fmt"
)

// Inputs carries the specific values that made a rule fire, for
// explainability. It is a closed tagged union keyed by the alert's ruleId:
// exactly one variant is populated, and it serializes flat, so the payload
// for a weight alert reads {"oldest":85.2,...,"delta":2.3} rather than
// nesting under a variant name.
type Inputs struct {
	WeightGain *WeightGainInputs `json:"-"`
	Threshold  *ThresholdInputs  `json:"-"`
	Lab        *LabInputs        `json:"-"`
	Symptom    *SymptomInputs    `json:"-"`
}

// WeightGainInputs explains a weight_gain_48h firing.
type WeightGainInputs struct {
	Oldest      float64 `json:"oldest"`
	Newest      float64 `json:"newest"`
	Delta       float64 `json:"delta"`
	ThresholdKg float64 `json:"thresholdKg"`
	WindowHours int     `json:"windowHours"`
}

// ThresholdInputs explains a fixed-comparison measurement rule firing.
type ThresholdInputs struct {
	Value      float64 `json:"value"`
	Threshold  float64 `json:"threshold"`
	Comparison string  `json:"comparison"`
}

// LabInputs explains a lab_critical firing.
type LabInputs struct {
	TestCode string  `json:"testCode"`
	TestName string  `json:"testName"`
	Value    float64 `json:"value"`
	Unit     string  `json:"unit"`
	Flag     string  `json:"flag"`
}

// SymptomInputs explains a symptom_worsening firing.
type SymptomInputs struct {
	Symptom          string `json:"symptom"`
	PreviousSeverity int    `json:"previousSeverity"`
	CurrentSeverity  int    `json:"currentSeverity"`
}

func (i Inputs) variant() (string, any) {
	switch {
	case i.WeightGain != nil:
		return "weight gain", i.WeightGain
	case i.Threshold != nil:
		return "threshold", i.Threshold
	case i.Lab != nil:
		return "lab", i.Lab
	case i.Symptom != nil:
		return "symptom", i.Symptom
	}
	return "", nil
}

func (i Inputs) count() int {
	n := 0
	for _, p := range []bool{i.WeightGain != nil, i.Threshold != nil, i.Lab != nil, i.Symptom != nil} {
		if p {
			n++
		}
	}
	return n
}

// MarshalJSON writes the populated variant's fields at the top level.
func (i Inputs) MarshalJSON() ([]byte, error) {
	if i.count() > 1 {
		return nil, fmt.Errorf("alert inputs: more than one variant populated")
	}
	_, v := i.variant()
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

// UnmarshalJSON picks the variant by its discriminator field. The variants'
// field sets are disjoint: windowHours, comparison, testCode, and
// previousSeverity each appear in exactly one.
func (i *Inputs) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("alert inputs: %w", err)
	}
	*i = Inputs{}
	switch {
	case hasKey(probe, "windowHours"):
		i.WeightGain = &WeightGainInputs{}
		return json.Unmarshal(data, i.WeightGain)
	case hasKey(probe, "comparison"):
		i.Threshold = &ThresholdInputs{}
		return json.Unmarshal(data, i.Threshold)
	case hasKey(probe, "testCode"):
		i.Lab = &LabInputs{}
		return json.Unmarshal(data, i.Lab)
	case hasKey(probe, "previousSeverity"):
		i.Symptom = &SymptomInputs{}
		return json.Unmarshal(data, i.Symptom)
	case len(probe) == 0:
		return nil
	}
	return fmt.Errorf("alert inputs: no recognized variant in payload")
}

func hasKey(m map[string]json.RawMessage, k string) bool {
	_, ok := m[k]
	return ok
}

// inputVariants names the variant each rule must carry.
var inputVariants = map[string]string{
	RuleWeightGain48h:    "weight gain",
	RuleBPSystolicHigh:   "threshold",
	RuleBPSystolicLow:    "threshold",
	RuleSpO2Low:          "threshold",
	RuleLabCritical:      "lab",
	RuleSymptomWorsening: "symptom",
}

// ValidateFor checks that exactly one variant is populated and that it is
// the variant the rule requires.
func (i Inputs) ValidateFor(ruleID string) error {
	want, ok := inputVariants[ruleID]
	if !ok {
		return fmt.Errorf("alert inputs: unknown rule %q", ruleID)
	}
	if n := i.count(); n != 1 {
		return fmt.Errorf("alert inputs: %d variants populated for rule %q, want 1", n, ruleID)
	}
	got, _ := i.variant()
	if got != want {
		return fmt.Errorf("alert inputs: rule %q requires %s inputs, got %s", ruleID, want, got)
	}
	return nil
}

// DecodeInputs parses a stored inputs payload and validates it against the
// rule it was stored with.
func DecodeInputs(ruleID string, raw []byte) (Inputs, error) {
	var i Inputs
	if len(raw) == 0 {
		return i, fmt.Errorf("alert inputs: empty payload for rule %q", ruleID)
	}
	if err := json.Unmarshal(raw, &i); err != nil {
		return i, err
	}
	if err := i.ValidateFor(ruleID); err != nil {
		return Inputs{}, err
	}
	return i, nil
}
