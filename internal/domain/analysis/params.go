package analysis

import (
	"github.com/go-playground/validator/v10"

	"github.com/campus-insight/campus-insight-hub/internal/domain/shared"
)

// Kind selects which analysis strategy a run executes. The strategy is
// chosen once at submission time; there is no per-row dispatch.
type Kind string

const (
	KindComprehensive Kind = "comprehensive"
	KindIdeology      Kind = "ideology"
	KindPoverty       Kind = "poverty"
)

// IsValid reports whether the kind is known.
func (k Kind) IsValid() bool {
	switch k {
	case KindComprehensive, KindIdeology, KindPoverty:
		return true
	}
	return false
}

// IdeologyThresholds holds the operator-supplied high/low bands for the
// three ideology indicators. All values are on the oracle's [0,1] scale.
type IdeologyThresholds struct {
	PositivityHigh float64 `validate:"gte=0,lte=1"`
	PositivityLow  float64 `validate:"gte=0,lte=1"`
	IntensityHigh  float64 `validate:"gte=0,lte=1"`
	IntensityLow   float64 `validate:"gte=0,lte=1"`
	RadicalismHigh float64 `validate:"gte=0,lte=1"`
	RadicalismLow  float64 `validate:"gte=0,lte=1"`
	VPNRateHigh    float64 `validate:"gte=0,lte=1"`
}

// PovertyThresholds holds the operator-supplied economic bands.
type PovertyThresholds struct {
	// ExpenseThreshold is the monthly spend below which a month counts as
	// low-spend. Difficulty levels derive from fixed multipliers of it.
	ExpenseThreshold float64 `validate:"gt=0"`

	// TrendThreshold is the signed percentage below which the expense
	// trend counts as declining (e.g. -20 means "dropped more than 20%").
	TrendThreshold float64 `validate:"lt=0"`
}

// Params is the full configuration surface consumed by one pipeline run.
// Everything here is validated at the pipeline boundary, never inside
// deep helpers; a validation failure is a configuration error surfaced
// synchronously to the submitter.
type Params struct {
	Kind   Kind
	Window Window

	// Contamination is the expected outlier fraction for the
	// comprehensive analysis.
	Contamination float64 `validate:"gt=0,lt=0.5"`

	// NightStart is the hour (local campus time) at which the night band
	// begins; the late-night band is [0, LateNightEnd).
	NightStart   int `validate:"gte=18,lte=23"`
	LateNightEnd int `validate:"gte=1,lte=8"`

	// BatchSize bounds how many students are aggregated per batch.
	BatchSize int `validate:"gte=1"`

	// PassingScore is the academic score under which a month counts as
	// failing.
	PassingScore float64 `validate:"gt=0"`

	Ideology IdeologyThresholds
	Poverty  PovertyThresholds
}

// DefaultParams returns operator-tunable defaults for the given kind.
func DefaultParams(kind Kind, window Window) Params {
	return Params{
		Kind:          kind,
		Window:        window,
		Contamination: 0.15,
		NightStart:    22,
		LateNightEnd:  6,
		BatchSize:     200,
		PassingScore:  60,
		Ideology: IdeologyThresholds{
			PositivityHigh: 0.70,
			PositivityLow:  0.30,
			IntensityHigh:  0.60,
			IntensityLow:   0.40,
			RadicalismHigh: 0.60,
			RadicalismLow:  0.30,
			VPNRateHigh:    0.50,
		},
		Poverty: PovertyThresholds{
			ExpenseThreshold: 300,
			TrendThreshold:   -20,
		},
	}
}

var paramsValidator = validator.New()

// Validate checks the full parameter set. All failures are configuration
// errors and must be reported before any row is processed.
func (p *Params) Validate() error {
	if !p.Kind.IsValid() {
		return shared.ErrUnknownAnalysisKind
	}
	if p.Window.Start.After(p.Window.End) {
		return shared.ErrInvalidWindow
	}
	if err := paramsValidator.Struct(p); err != nil {
		if p.Contamination <= 0 || p.Contamination >= 0.5 {
			return shared.ErrInvalidContamination
		}
		return shared.WrapError("analysis", "Validate", shared.ErrConfiguration, "invalid analysis parameters", err)
	}
	// Band ordering cannot be expressed as field tags.
	bands := [][2]float64{
		{p.Ideology.PositivityHigh, p.Ideology.PositivityLow},
		{p.Ideology.IntensityHigh, p.Ideology.IntensityLow},
		{p.Ideology.RadicalismHigh, p.Ideology.RadicalismLow},
	}
	for _, b := range bands {
		if b[0] <= b[1] {
			return shared.ErrInvalidThresholdBand
		}
	}
	return nil
}

// IsNightHour reports whether an hour falls into the night band
// [NightStart, 24) or the late-night band [0, LateNightEnd).
func (p *Params) IsNightHour(hour int) bool {
	return hour >= p.NightStart || hour < p.LateNightEnd
}

// IsLateNightHour reports whether an hour falls into the late-night band.
func (p *Params) IsLateNightHour(hour int) bool {
	return hour >= 0 && hour < p.LateNightEnd
}
