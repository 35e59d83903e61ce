package scorer

import (
	"context"
	"fmt"

	"github.com/campus-insight/campus-insight-hub/internal/domain/analysis"
	"github.com/campus-insight/campus-insight-hub/internal/domain/student"
	"github.com/campus-insight/campus-insight-hub/pkg/logger"
)

// IdeologyStrategy bands the oracle's text indicators together with
// network behavior into a named engagement profile. The oracle is allowed
// to fail; affected students carry no signal instead of failing the run.
type IdeologyStrategy struct {
	oracle IndicatorSource
	log    *logger.Logger
}

func (s *IdeologyStrategy) Kind() analysis.Kind { return analysis.KindIdeology }

// Score implements Strategy.
func (s *IdeologyStrategy) Score(ctx context.Context, rows []analysis.FeatureRow, params analysis.Params) ([]analysis.RiskAssessment, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []analysis.RiskAssessment{}, nil
	}

	indicators := map[student.ID]Indicators{}
	if s.oracle != nil {
		ids := make([]student.ID, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r.StudentID)
		}
		got, err := s.oracle.ScoreStudents(ctx, ids)
		if err != nil {
			s.log.Warn("oracle unavailable, scoring without text indicators", logger.Err(err))
		}
		for id, ind := range got {
			indicators[id] = ind
		}
	}

	t := params.Ideology
	assessments := make([]analysis.RiskAssessment, len(rows))
	for i := range rows {
		row := &rows[i]
		a := &assessments[i]
		a.StudentID = row.StudentID

		ind, ok := indicators[row.StudentID]
		if !ok {
			a.AddTag(analysis.TagNoSignal, "no text indicators available")
			a.Profile = analysis.ProfileRoutine
			applyVPNRule(a, row, t.VPNRateHigh)
			a.Level = ideologyLevel(a)
			continue
		}

		positivity := analysis.BandOf(ind.Positivity, t.PositivityHigh, t.PositivityLow)
		intensity := analysis.BandOf(ind.Intensity, t.IntensityHigh, t.IntensityLow)
		radicalism := analysis.BandOf(ind.Radicalism, t.RadicalismHigh, t.RadicalismLow)

		if radicalism == analysis.BandHigh {
			a.AddTag(analysis.TagHighRadicalism,
				fmt.Sprintf("radicalism indicator %.2f above %.2f", ind.Radicalism, t.RadicalismHigh))
		}
		if positivity == analysis.BandLow {
			a.AddTag(analysis.TagLowPositivity,
				fmt.Sprintf("positivity indicator %.2f below %.2f", ind.Positivity, t.PositivityLow))
		}
		if intensity == analysis.BandHigh {
			a.AddTag(analysis.TagHighIntensity,
				fmt.Sprintf("engagement intensity %.2f above %.2f", ind.Intensity, t.IntensityHigh))
		}
		applyVPNRule(a, row, t.VPNRateHigh)

		a.Profile = analysis.DetermineProfile(positivity, intensity, radicalism)
		a.Level = ideologyLevel(a)
	}
	return assessments, nil
}

func applyVPNRule(a *analysis.RiskAssessment, row *analysis.FeatureRow, high float64) {
	if row.VPNRate.Defined && row.VPNRate.Value >= high {
		a.AddTag(analysis.TagHighVPNUsage,
			fmt.Sprintf("%.0f%% of network sessions used a VPN", row.VPNRate.Value*100))
	}
}

func ideologyLevel(a *analysis.RiskAssessment) analysis.RiskLevel {
	switch a.Profile {
	case analysis.ProfileActiveRadical, analysis.ProfileOverseasAffinity, analysis.ProfileRadicalLeaning:
		return analysis.RiskHigh
	case analysis.ProfilePotentialRisk:
		return analysis.RiskMedium
	}
	for _, tag := range a.Tags {
		if tag != analysis.TagNoSignal {
			return analysis.RiskLow
		}
	}
	return analysis.RiskNone
}

// PovertyLevel is the assistance band derived from the operator's expense
// threshold.
type PovertyLevel string

const (
	PovertySpecial  PovertyLevel = "special_difficulty"
	PovertyStandard PovertyLevel = "standard_difficulty"
	PovertyGeneral  PovertyLevel = "general_difficulty"
	PovertyNone     PovertyLevel = "none"
)

// Multipliers of the operator threshold framing the three difficulty
// bands.
const (
	specialMultiplier  = 0.83
	standardMultiplier = 1.16
	generalMultiplier  = 1.5
)

// povertyLevelOf bands the in-window average spend.
func povertyLevelOf(avg, threshold float64) PovertyLevel {
	switch {
	case avg < threshold*specialMultiplier:
		return PovertySpecial
	case avg < threshold*standardMultiplier:
		return PovertyStandard
	case avg < threshold*generalMultiplier:
		return PovertyGeneral
	}
	return PovertyNone
}

// suggestion returns the assistance suggestion attached to the report row.
func (l PovertyLevel) suggestion() string {
	switch l {
	case PovertySpecial:
		return "recommend full assistance package and counselor outreach"
	case PovertyStandard:
		return "recommend standard subsidy review"
	case PovertyGeneral:
		return "keep under periodic review"
	}
	return ""
}

// PovertyStrategy applies the economic rule bands. All rules are always
// evaluated; there is no early exit once one rule fires.
type PovertyStrategy struct {
	log *logger.Logger
}

func (s *PovertyStrategy) Kind() analysis.Kind { return analysis.KindPoverty }

// Score implements Strategy.
func (s *PovertyStrategy) Score(ctx context.Context, rows []analysis.FeatureRow, params analysis.Params) ([]analysis.RiskAssessment, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []analysis.RiskAssessment{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	threshold := params.Poverty.ExpenseThreshold
	assessments := make([]analysis.RiskAssessment, len(rows))
	for i := range rows {
		row := &rows[i]
		a := &assessments[i]
		a.StudentID = row.StudentID

		if !row.AvgExpense.Defined {
			a.AddTag(analysis.TagNoSignal, "no canteen data in the window")
			a.Level = analysis.RiskNone
			continue
		}

		level := povertyLevelOf(row.AvgExpense.Value, threshold)
		if level != PovertyNone {
			a.AddTag(analysis.TagPovertyRisk,
				fmt.Sprintf("average monthly spend %.0f in band %s", row.AvgExpense.Value, level))
			if sg := level.suggestion(); sg != "" {
				a.Reasons = append(a.Reasons, sg)
			}
		}
		if row.ExpenseTrend.Defined && row.ExpenseTrend.Value < params.Poverty.TrendThreshold {
			a.AddTag(analysis.TagExpenseDeclining,
				fmt.Sprintf("spend dropped %.1f%% against the previous period", -row.ExpenseTrend.Value))
		}
		if row.MinExpense.Defined && row.MinExpense.Value < threshold*specialMultiplier {
			a.AddTag(analysis.TagLowMinExpense,
				fmt.Sprintf("lowest monthly spend %.0f under the special-difficulty line", row.MinExpense.Value))
		}

		a.Level = povertyRiskLevel(level, a)
	}
	return assessments, nil
}

func povertyRiskLevel(level PovertyLevel, a *analysis.RiskAssessment) analysis.RiskLevel {
	switch level {
	case PovertySpecial:
		return analysis.RiskHigh
	case PovertyStandard:
		return analysis.RiskMedium
	case PovertyGeneral:
		return analysis.RiskLow
	}
	if len(a.Tags) > 0 {
		return analysis.RiskLow
	}
	return analysis.RiskNone
}
