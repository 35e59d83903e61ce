// Package analysis defines the value types flowing through the behavior
// analysis pipeline: feature rows derived from raw records, risk
// assessments produced by the scorer, and the operator-tunable parameters
// validated at the pipeline boundary.
package analysis

import (
	"fmt"
	"time"

	"github.com/campus-insight/campus-insight-hub/internal/domain/shared"
	"github.com/campus-insight/campus-insight-hub/internal/domain/student"
)

// Metric is a derived value that may carry no signal. A student with zero
// in-window events has undefined rates and trends, which is different from
// a computed zero: undefined values are imputed or skipped by the scorer
// and rendered as an explicit marker in reports, never as 0.
type Metric struct {
	Value   float64
	Defined bool
}

// MetricOf returns a defined metric.
func MetricOf(v float64) Metric {
	return Metric{Value: v, Defined: true}
}

// NoSignal returns an undefined metric.
func NoSignal() Metric {
	return Metric{}
}

// Or returns the metric value if defined, otherwise the fallback.
func (m Metric) Or(fallback float64) float64 {
	if m.Defined {
		return m.Value
	}
	return fallback
}

// String renders the metric for reports; undefined values show as a dash.
func (m Metric) String() string {
	if !m.Defined {
		return "-"
	}
	return fmt.Sprintf("%.2f", m.Value)
}

// Window is a contiguous date range over which raw events are aggregated
// into one FeatureRow per student. Both bounds are inclusive dates.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow validates and normalizes a window to midnight bounds.
func NewWindow(start, end time.Time) (Window, error) {
	start = truncateDay(start)
	end = truncateDay(end)
	if start.After(end) {
		return Window{}, shared.ErrInvalidWindow
	}
	return Window{Start: start, End: end}, nil
}

// Days returns the number of days covered, at least 1.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// Previous returns the immediately preceding window of equal length,
// used as the baseline for trend computation.
func (w Window) Previous() Window {
	days := w.Days()
	return Window{
		Start: w.Start.AddDate(0, 0, -days),
		End:   w.Start.AddDate(0, 0, -1),
	}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	d := truncateDay(t)
	return !d.Before(w.Start) && !d.After(w.End)
}

func (w Window) String() string {
	return w.Start.Format("2006-01-02") + ".." + w.End.Format("2006-01-02")
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// FeatureRow is the per-student behavioral profile for one analysis
// window. Rows are created fresh per run and owned by that run; they are
// never persisted.
//
// Invariants: every rate is in [0,1]; counts are non-negative; trends are
// signed percentages relative to the preceding window of equal length and
// undefined when the baseline carries no signal.
type FeatureRow struct {
	StudentID student.ID
	College   string
	Major     string
	Grade     int

	// Canteen
	AvgExpense    Metric // mean monthly spend in-window
	MinExpense    Metric // lowest monthly spend in-window
	ExpenseTrend  Metric // percent change vs previous window
	LowSpendRun   int    // longest run of consecutive low-spend months
	CanteenMonths int    // months with canteen data in-window

	// Gate + dormitory access
	TotalEntries     int // all swipes, both directions, both sources
	NightEntries     int // swipes in the night band
	LateNightEntries int // swipes in the late-night band

	// Network
	VPNRate            Metric // fraction of sessions using a VPN
	NightUsageRate     Metric // fraction of in-window days with night sessions
	LateNightUsageRate Metric // fraction of in-window days with late-night sessions
	AvgDailyOnline     Metric // mean session-hours per active day
	MaxDailyOnline     Metric // highest session-hours on a single day

	// Academic
	AvgScore     Metric
	ScoreTrend   Metric // percent change vs previous window
	FailingCount int    // month-subjects scored below passing
}

// HasTrendSignal reports whether at least one trend metric is defined.
// Rows with no trend signal join outlier detection on their remaining
// columns but are excluded from trend-based rules.
func (f *FeatureRow) HasTrendSignal() bool {
	return f.ExpenseTrend.Defined || f.ScoreTrend.Defined
}
