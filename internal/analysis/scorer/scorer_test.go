package scorer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-insight/campus-insight-hub/internal/domain/analysis"
	"github.com/campus-insight/campus-insight-hub/internal/domain/shared"
	"github.com/campus-insight/campus-insight-hub/internal/domain/student"
	"github.com/campus-insight/campus-insight-hub/pkg/logger"
)

func testLog() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
}

func testParams(t *testing.T, kind analysis.Kind) analysis.Params {
	t.Helper()
	w, err := analysis.NewWindow(
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	return analysis.DefaultParams(kind, w)
}

// normalRow builds an unremarkable feature row with slight deterministic
// variation so the matrix has spread.
func normalRow(i int) analysis.FeatureRow {
	return analysis.FeatureRow{
		StudentID:          student.ID(fmt.Sprintf("s%03d", i)),
		AvgExpense:         analysis.MetricOf(500 + float64(i%7)*10),
		MinExpense:         analysis.MetricOf(400 + float64(i%5)*10),
		ExpenseTrend:       analysis.MetricOf(float64(i%9) - 4),
		CanteenMonths:      2,
		TotalEntries:       40 + i%11,
		NightEntries:       2 + i%3,
		LateNightEntries:   i % 2,
		VPNRate:            analysis.MetricOf(0.05 + float64(i%4)*0.01),
		NightUsageRate:     analysis.MetricOf(0.1),
		LateNightUsageRate: analysis.MetricOf(0.02),
		AvgDailyOnline:     analysis.MetricOf(3 + float64(i%5)*0.2),
		MaxDailyOnline:     analysis.MetricOf(6),
		AvgScore:           analysis.MetricOf(75 + float64(i%10)),
		ScoreTrend:         analysis.MetricOf(float64(i%5) - 2),
	}
}

func TestForKindSelectsStrategyOnce(t *testing.T) {
	for _, kind := range []analysis.Kind{analysis.KindComprehensive, analysis.KindIdeology, analysis.KindPoverty} {
		s, err := ForKind(kind, nil, testLog())
		require.NoError(t, err)
		assert.Equal(t, kind, s.Kind())
	}

	_, err := ForKind("sentiment", nil, testLog())
	assert.ErrorIs(t, err, shared.ErrUnknownAnalysisKind)
}

func TestComprehensiveEmptyInput(t *testing.T) {
	s, err := ForKind(analysis.KindComprehensive, nil, testLog())
	require.NoError(t, err)

	out, err := s.Score(context.Background(), nil, testParams(t, analysis.KindComprehensive))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestComprehensiveOutlierFractionMatchesContamination(t *testing.T) {
	rows := make([]analysis.FeatureRow, 0, 100)
	for i := 0; i < 100; i++ {
		rows = append(rows, normalRow(i))
	}
	// Plant clear anomalies.
	for i := 95; i < 100; i++ {
		rows[i].AvgExpense = analysis.MetricOf(50)
		rows[i].LateNightEntries = 40
		rows[i].VPNRate = analysis.MetricOf(0.95)
		rows[i].AvgScore = analysis.MetricOf(30)
	}

	params := testParams(t, analysis.KindComprehensive)
	params.Contamination = 0.1

	s, err := ForKind(analysis.KindComprehensive, nil, testLog())
	require.NoError(t, err)
	out, err := s.Score(context.Background(), rows, params)
	require.NoError(t, err)
	require.Len(t, out, 100)

	outliers := 0
	for _, a := range out {
		if a.IsOutlier {
			outliers++
		}
	}
	expected := int(math.Ceil(0.1 * 100))
	assert.InDelta(t, expected, outliers, 1)
}

func TestComprehensiveSingleRow(t *testing.T) {
	s, err := ForKind(analysis.KindComprehensive, nil, testLog())
	require.NoError(t, err)

	out, err := s.Score(context.Background(), []analysis.FeatureRow{normalRow(0)}, testParams(t, analysis.KindComprehensive))
	require.NoError(t, err)
	require.Len(t, out, 1)

	// A one-sample forest has normalization constant c(1) = 0; the score
	// must still be finite or the report cannot be JSON-encoded later.
	assert.False(t, math.IsNaN(out[0].AnomalyScore))
	assert.InDelta(t, 0.5, out[0].AnomalyScore, 0.001)
}

func TestComprehensiveIsDeterministic(t *testing.T) {
	rows := make([]analysis.FeatureRow, 0, 40)
	for i := 0; i < 40; i++ {
		rows = append(rows, normalRow(i))
	}
	params := testParams(t, analysis.KindComprehensive)

	s, err := ForKind(analysis.KindComprehensive, nil, testLog())
	require.NoError(t, err)
	first, err := s.Score(context.Background(), rows, params)
	require.NoError(t, err)
	second, err := s.Score(context.Background(), rows, params)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestComprehensiveUndefinedTrendSkipsTrendRules(t *testing.T) {
	rows := make([]analysis.FeatureRow, 0, 20)
	for i := 0; i < 20; i++ {
		rows = append(rows, normalRow(i))
	}
	// No baseline window: both trends carry no signal.
	rows[0].ExpenseTrend = analysis.NoSignal()
	rows[0].ScoreTrend = analysis.NoSignal()

	s, err := ForKind(analysis.KindComprehensive, nil, testLog())
	require.NoError(t, err)
	out, err := s.Score(context.Background(), rows, testParams(t, analysis.KindComprehensive))
	require.NoError(t, err)

	assert.False(t, out[0].HasTag(analysis.TagExpenseDeclining))
}

func TestComprehensiveRejectsBadContamination(t *testing.T) {
	params := testParams(t, analysis.KindComprehensive)
	params.Contamination = 0.6

	s, err := ForKind(analysis.KindComprehensive, nil, testLog())
	require.NoError(t, err)
	_, err = s.Score(context.Background(), []analysis.FeatureRow{normalRow(0)}, params)
	assert.ErrorIs(t, err, shared.ErrInvalidContamination)
}

func TestMedianImputeNeverZero(t *testing.T) {
	column := []float64{100, 0, 300}
	defined := []bool{true, false, true}
	medianImpute(column, defined)
	assert.InDelta(t, 200, column[1], 0.001)
}

type fakeOracle struct {
	scores map[student.ID]Indicators
	err    error
}

func (f *fakeOracle) ScoreStudents(_ context.Context, ids []student.ID) (map[student.ID]Indicators, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[student.ID]Indicators)
	for _, id := range ids {
		if ind, ok := f.scores[id]; ok {
			out[id] = ind
		}
	}
	return out, nil
}

func TestIdeologyBandsAndProfile(t *testing.T) {
	oracle := &fakeOracle{scores: map[student.ID]Indicators{
		"s001": {Positivity: 0.10, Intensity: 0.90, Radicalism: 0.85},
		"s002": {Positivity: 0.50, Intensity: 0.50, Radicalism: 0.45},
	}}
	s, err := ForKind(analysis.KindIdeology, oracle, testLog())
	require.NoError(t, err)

	rows := []analysis.FeatureRow{
		{StudentID: "s001", VPNRate: analysis.MetricOf(0.8)},
		{StudentID: "s002", VPNRate: analysis.MetricOf(0.1)},
	}
	out, err := s.Score(context.Background(), rows, testParams(t, analysis.KindIdeology))
	require.NoError(t, err)
	require.Len(t, out, 2)

	radical := out[0]
	assert.True(t, radical.HasTag(analysis.TagHighRadicalism))
	assert.True(t, radical.HasTag(analysis.TagLowPositivity))
	assert.True(t, radical.HasTag(analysis.TagHighIntensity))
	assert.True(t, radical.HasTag(analysis.TagHighVPNUsage))
	assert.Equal(t, analysis.ProfileActiveRadical, radical.Profile)
	assert.Equal(t, analysis.RiskHigh, radical.Level)

	neutral := out[1]
	assert.Empty(t, neutral.Tags)
	assert.Equal(t, analysis.ProfileRoutine, neutral.Profile)
	assert.Equal(t, analysis.RiskNone, neutral.Level)
}

func TestIdeologyOracleFailureIsNotFatal(t *testing.T) {
	oracle := &fakeOracle{err: errors.New("connection refused")}
	s, err := ForKind(analysis.KindIdeology, oracle, testLog())
	require.NoError(t, err)

	rows := []analysis.FeatureRow{{StudentID: "s001", VPNRate: analysis.MetricOf(0.9)}}
	out, err := s.Score(context.Background(), rows, testParams(t, analysis.KindIdeology))
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.True(t, out[0].HasTag(analysis.TagNoSignal))
	// Feature-based rules still apply without the oracle.
	assert.True(t, out[0].HasTag(analysis.TagHighVPNUsage))
	assert.Equal(t, analysis.RiskLow, out[0].Level)
}

func TestPovertyLevels(t *testing.T) {
	tests := []struct {
		avg   float64
		level PovertyLevel
		risk  analysis.RiskLevel
	}{
		{200, PovertySpecial, analysis.RiskHigh},    // < 300*0.83 = 249
		{300, PovertyStandard, analysis.RiskMedium}, // < 300*1.16 = 348
		{400, PovertyGeneral, analysis.RiskLow},     // < 300*1.5 = 450
		{500, PovertyNone, analysis.RiskNone},
	}

	s, err := ForKind(analysis.KindPoverty, nil, testLog())
	require.NoError(t, err)

	for _, tc := range tests {
		rows := []analysis.FeatureRow{{
			StudentID:  "s001",
			AvgExpense: analysis.MetricOf(tc.avg),
			MinExpense: analysis.MetricOf(tc.avg),
		}}
		out, err := s.Score(context.Background(), rows, testParams(t, analysis.KindPoverty))
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, tc.risk, out[0].Level, "avg=%v", tc.avg)
		assert.Equal(t, tc.level != PovertyNone, out[0].HasTag(analysis.TagPovertyRisk), "avg=%v", tc.avg)
	}
}

func TestPovertyExpenseDecliningThreshold(t *testing.T) {
	s, err := ForKind(analysis.KindPoverty, nil, testLog())
	require.NoError(t, err)
	params := testParams(t, analysis.KindPoverty) // trend threshold -20

	declining := []analysis.FeatureRow{{
		StudentID:    "s001",
		AvgExpense:   analysis.MetricOf(500),
		MinExpense:   analysis.MetricOf(450),
		ExpenseTrend: analysis.MetricOf(-25),
	}}
	out, err := s.Score(context.Background(), declining, params)
	require.NoError(t, err)
	assert.True(t, out[0].HasTag(analysis.TagExpenseDeclining))

	mild := []analysis.FeatureRow{{
		StudentID:    "s001",
		AvgExpense:   analysis.MetricOf(500),
		MinExpense:   analysis.MetricOf(450),
		ExpenseTrend: analysis.MetricOf(-10),
	}}
	out, err = s.Score(context.Background(), mild, params)
	require.NoError(t, err)
	assert.False(t, out[0].HasTag(analysis.TagExpenseDeclining))
}

func TestPovertyNoSignalWithoutCanteenData(t *testing.T) {
	s, err := ForKind(analysis.KindPoverty, nil, testLog())
	require.NoError(t, err)

	rows := []analysis.FeatureRow{{StudentID: "s001"}}
	out, err := s.Score(context.Background(), rows, testParams(t, analysis.KindPoverty))
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.True(t, out[0].HasTag(analysis.TagNoSignal))
	assert.False(t, out[0].HasTag(analysis.TagPovertyRisk))
	assert.Equal(t, analysis.RiskNone, out[0].Level)
}

func TestPovertyRejectsInvertedBands(t *testing.T) {
	params := testParams(t, analysis.KindPoverty)
	params.Ideology.PositivityHigh = 0.2
	params.Ideology.PositivityLow = 0.8

	s, err := ForKind(analysis.KindPoverty, nil, testLog())
	require.NoError(t, err)
	_, err = s.Score(context.Background(), []analysis.FeatureRow{{StudentID: "s001"}}, params)
	assert.ErrorIs(t, err, shared.ErrInvalidThresholdBand)
}
