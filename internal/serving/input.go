package serving

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/couchcryptid/sensor-model-pipeline/internal/domain"
)

// Input is a validated scoring request, one value per model feature.
type Input struct {
	Hour       float64 `json:"hour"`
	DayOfWeek  float64 `json:"day_of_week"`
	Month      float64 `json:"month"`
	ValueLag1  float64 `json:"value_lag1"`
	ValueLag24 float64 `json:"value_lag24"`
}

// Vector returns the features in model column order.
func (in Input) Vector() []float64 {
	return []float64{in.Hour, in.DayOfWeek, in.Month, in.ValueLag1, in.ValueLag24}
}

type fieldRule struct {
	name     string
	set      func(*Input, float64)
	integral bool
	min, max float64
}

var fieldRules = []fieldRule{
	{name: "hour", set: func(in *Input, v float64) { in.Hour = v }, integral: true, min: 0, max: 23},
	{name: "day_of_week", set: func(in *Input, v float64) { in.DayOfWeek = v }, integral: true, min: 0, max: 6},
	{name: "month", set: func(in *Input, v float64) { in.Month = v }, integral: true, min: 1, max: 12},
	{name: "value_lag1", set: func(in *Input, v float64) { in.ValueLag1 = v }, min: math.Inf(-1), max: math.Inf(1)},
	{name: "value_lag24", set: func(in *Input, v float64) { in.ValueLag24 = v }, min: math.Inf(-1), max: math.Inf(1)},
}

// RequiredFields lists the scoring request keys in model column order.
func RequiredFields() []string {
	return append([]string(nil), domain.FeatureNames...)
}

// ParseInput decodes and validates a scoring request body. Any problem is
// reported as a *domain.ValidationError naming the offending keys.
func ParseInput(body []byte) (Input, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return Input{}, &domain.ValidationError{Message: "request body must be a JSON object"}
	}

	var missing []string
	for _, rule := range fieldRules {
		if _, ok := raw[rule.name]; !ok {
			missing = append(missing, rule.name)
		}
	}
	if len(missing) > 0 {
		return Input{}, &domain.ValidationError{
			Message: "Missing required fields: " + strings.Join(missing, ", "),
			Missing: missing,
		}
	}

	var (
		in       Input
		invalid  []string
		problems []string
	)
	for _, rule := range fieldRules {
		v, problem := rule.parse(raw[rule.name])
		if problem != "" {
			invalid = append(invalid, rule.name)
			problems = append(problems, problem)
			continue
		}
		rule.set(&in, v)
	}
	if len(invalid) > 0 {
		return Input{}, &domain.ValidationError{Message: strings.Join(problems, "; "), Invalid: invalid}
	}
	return in, nil
}

func (r fieldRule) parse(msg json.RawMessage) (float64, string) {
	if bytes.Equal(bytes.TrimSpace(msg), []byte("null")) {
		return 0, r.name + " must be a number"
	}
	var v float64
	if err := json.Unmarshal(msg, &v); err != nil {
		return 0, r.name + " must be a number"
	}
	if r.integral && v != math.Trunc(v) {
		return 0, r.name + " must be a whole number"
	}
	if v < r.min || v > r.max {
		return 0, fmt.Sprintf("%s must be between %g and %g", r.name, r.min, r.max)
	}
	return v, ""
}
