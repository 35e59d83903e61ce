// Package scorer grades feature rows into risk assessments. One Strategy
// exists per analysis kind and is selected once when the run is submitted;
// nothing dispatches on the kind per row.
package scorer

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/campus-insight/campus-insight-hub/internal/domain/analysis"
	"github.com/campus-insight/campus-insight-hub/internal/domain/shared"
	"github.com/campus-insight/campus-insight-hub/internal/domain/student"
	"github.com/campus-insight/campus-insight-hub/pkg/logger"
)

// Strategy scores one batch of feature rows. Implementations must be
// deterministic given identical rows and params, and must return an empty
// slice with a nil error for empty input.
type Strategy interface {
	Kind() analysis.Kind
	Score(ctx context.Context, rows []analysis.FeatureRow, params analysis.Params) ([]analysis.RiskAssessment, error)
}

// Indicators are the oracle's per-student text scores, each in [0,1].
type Indicators struct {
	Positivity float64
	Intensity  float64
	Radicalism float64
}

// IndicatorSource supplies oracle indicators for a student set. A student
// missing from the result map simply carries no signal.
type IndicatorSource interface {
	ScoreStudents(ctx context.Context, ids []student.ID) (map[student.ID]Indicators, error)
}

// ForKind returns the strategy for the given analysis kind. The ideology
// strategy needs an indicator source; the others ignore it.
func ForKind(kind analysis.Kind, oracle IndicatorSource, log *logger.Logger) (Strategy, error) {
	if log == nil {
		log = logger.Default()
	}
	switch kind {
	case analysis.KindComprehensive:
		return &ComprehensiveStrategy{log: log.With(logger.Component("scorer.comprehensive"))}, nil
	case analysis.KindIdeology:
		return &IdeologyStrategy{oracle: oracle, log: log.With(logger.Component("scorer.ideology"))}, nil
	case analysis.KindPoverty:
		return &PovertyStrategy{log: log.With(logger.Component("scorer.poverty"))}, nil
	}
	return nil, shared.ErrUnknownAnalysisKind
}

// ComprehensiveStrategy runs multivariate outlier detection over the full
// feature set and grades the flagged students by a weighted reason score.
type ComprehensiveStrategy struct {
	log *logger.Logger
}

func (s *ComprehensiveStrategy) Kind() analysis.Kind { return analysis.KindComprehensive }

// forestSeed is fixed so repeated runs over the same matrix agree.
const forestSeed = 42

// Score implements Strategy.
func (s *ComprehensiveStrategy) Score(ctx context.Context, rows []analysis.FeatureRow, params analysis.Params) ([]analysis.RiskAssessment, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []analysis.RiskAssessment{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matrix := featureMatrix(rows)
	forest := newIsolationForest(matrix, defaultTrees, defaultSampleSize, forestSeed)

	assessments := make([]analysis.RiskAssessment, len(rows))
	scores := make([]float64, len(rows))
	for i := range rows {
		scores[i] = forest.score(matrix[i])
		assessments[i] = analysis.RiskAssessment{
			StudentID:    rows[i].StudentID,
			AnomalyScore: scores[i],
		}
	}

	markOutliers(assessments, scores, params.Contamination)

	for i := range assessments {
		gradeComprehensive(&assessments[i], &rows[i], &params)
	}
	return assessments, nil
}

// markOutliers flags the ceil(contamination * n) highest-scoring rows.
func markOutliers(assessments []analysis.RiskAssessment, scores []float64, contamination float64) {
	n := len(scores)
	k := int(math.Ceil(contamination * float64(n)))
	if k > n {
		k = n
	}
	if k == 0 {
		return
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	for _, idx := range order[:k] {
		assessments[idx].IsOutlier = true
	}
}

// gradeComprehensive assigns tags, reasons and the risk level. Every rule
// is evaluated; undefined trends are skipped rather than treated as zero.
func gradeComprehensive(a *analysis.RiskAssessment, row *analysis.FeatureRow, params *analysis.Params) {
	weight := 0
	if a.IsOutlier {
		weight += 3
		a.Reasons = append(a.Reasons, "behavior pattern deviates strongly from peers")
	}
	if row.ExpenseTrend.Defined && row.ExpenseTrend.Value < params.Poverty.TrendThreshold {
		a.AddTag(analysis.TagExpenseDeclining,
			fmt.Sprintf("canteen spend dropped %.1f%% against the previous period", -row.ExpenseTrend.Value))
		weight += 2
	}
	if row.LowSpendRun >= 2 {
		a.AddTag(analysis.TagPovertyRisk,
			fmt.Sprintf("%d consecutive months below the low-spend threshold", row.LowSpendRun))
		weight += 2
	}
	if row.FailingCount >= 2 {
		weight += 2
		a.Reasons = append(a.Reasons, fmt.Sprintf("%d failing monthly scores in the window", row.FailingCount))
	}
	if row.ScoreTrend.Defined && row.ScoreTrend.Value < params.Poverty.TrendThreshold {
		weight += 2
		a.Reasons = append(a.Reasons, fmt.Sprintf("academic average dropped %.1f%%", -row.ScoreTrend.Value))
	}
	if row.LateNightUsageRate.Defined && row.LateNightUsageRate.Value >= 0.3 {
		weight++
		a.Reasons = append(a.Reasons, "frequent late-night network activity")
	}
	if row.LateNightEntries >= 5 {
		weight++
		a.Reasons = append(a.Reasons, "frequent late-night building entries")
	}
	if !row.HasTrendSignal() && row.CanteenMonths == 0 {
		a.AddTag(analysis.TagNoSignal, "")
	}
	a.Level = levelForWeight(weight)
}

func levelForWeight(weight int) analysis.RiskLevel {
	switch {
	case weight >= 5:
		return analysis.RiskHigh
	case weight >= 3:
		return analysis.RiskMedium
	case weight >= 1:
		return analysis.RiskLow
	}
	return analysis.RiskNone
}

// featureMatrix projects rows onto the fixed comprehensive feature subset
// and imputes undefined cells with the per-column median.
func featureMatrix(rows []analysis.FeatureRow) [][]float64 {
	type col struct {
		value   func(*analysis.FeatureRow) float64
		defined func(*analysis.FeatureRow) bool
	}
	always := func(*analysis.FeatureRow) bool { return true }
	columns := []col{
		{func(r *analysis.FeatureRow) float64 { return r.AvgExpense.Value }, func(r *analysis.FeatureRow) bool { return r.AvgExpense.Defined }},
		{func(r *analysis.FeatureRow) float64 { return r.ExpenseTrend.Value }, func(r *analysis.FeatureRow) bool { return r.ExpenseTrend.Defined }},
		{func(r *analysis.FeatureRow) float64 { return float64(r.LowSpendRun) }, always},
		{func(r *analysis.FeatureRow) float64 { return float64(r.TotalEntries) }, always},
		{func(r *analysis.FeatureRow) float64 { return float64(r.NightEntries) }, always},
		{func(r *analysis.FeatureRow) float64 { return float64(r.LateNightEntries) }, always},
		{func(r *analysis.FeatureRow) float64 { return r.VPNRate.Value }, func(r *analysis.FeatureRow) bool { return r.VPNRate.Defined }},
		{func(r *analysis.FeatureRow) float64 { return r.LateNightUsageRate.Value }, func(r *analysis.FeatureRow) bool { return r.LateNightUsageRate.Defined }},
		{func(r *analysis.FeatureRow) float64 { return r.AvgDailyOnline.Value }, func(r *analysis.FeatureRow) bool { return r.AvgDailyOnline.Defined }},
		{func(r *analysis.FeatureRow) float64 { return r.AvgScore.Value }, func(r *analysis.FeatureRow) bool { return r.AvgScore.Defined }},
		{func(r *analysis.FeatureRow) float64 { return r.ScoreTrend.Value }, func(r *analysis.FeatureRow) bool { return r.ScoreTrend.Defined }},
		{func(r *analysis.FeatureRow) float64 { return float64(r.FailingCount) }, always},
	}

	matrix := make([][]float64, len(rows))
	for i := range matrix {
		matrix[i] = make([]float64, len(columns))
	}
	column := make([]float64, len(rows))
	defined := make([]bool, len(rows))
	for c, spec := range columns {
		for i := range rows {
			column[i] = spec.value(&rows[i])
			defined[i] = spec.defined(&rows[i])
			if !defined[i] {
				column[i] = 0
			}
		}
		medianImpute(column, defined)
		for i := range rows {
			matrix[i][c] = column[i]
		}
	}
	return matrix
}
