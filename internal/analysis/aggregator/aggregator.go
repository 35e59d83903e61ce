// Package aggregator turns raw activity records into one FeatureRow per
// student for a given analysis window. It reads through the repository
// interfaces only and works in bounded batches so a full-campus run keeps
// a flat memory profile.
package aggregator

import (
	"context"
	"sort"
	"time"

	"github.com/campus-insight/campus-insight-hub/internal/domain/analysis"
	"github.com/campus-insight/campus-insight-hub/internal/domain/record"
	"github.com/campus-insight/campus-insight-hub/internal/domain/shared"
	"github.com/campus-insight/campus-insight-hub/internal/domain/student"
	"github.com/campus-insight/campus-insight-hub/pkg/logger"
)

// BatchFunc is invoked after each completed batch with the number of
// students processed so far and the total.
type BatchFunc func(done, total int)

// Aggregator builds feature rows from canonical storage.
type Aggregator struct {
	events   record.EventRepository
	students student.Repository
	log      *logger.Logger
}

// New creates an aggregator over the given repositories.
func New(events record.EventRepository, students student.Repository, log *logger.Logger) *Aggregator {
	if log == nil {
		log = logger.Default()
	}
	return &Aggregator{
		events:   events,
		students: students,
		log:      log.With(logger.Component("aggregator")),
	}
}

// Aggregate produces one FeatureRow per known student in ids, sorted by
// student ID. Students absent from the roster are skipped with a warning.
// Aggregation is read-only and idempotent: running it twice over the same
// window yields identical rows.
//
// The context is checked between batches; cancellation stops cleanly at a
// batch boundary and returns ctx.Err().
func (a *Aggregator) Aggregate(ctx context.Context, ids []student.ID, params analysis.Params, onBatch BatchFunc) ([]analysis.FeatureRow, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	total := len(ids)
	rows := make([]analysis.FeatureRow, 0, total)

	for start := 0; start < total; start += params.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + params.BatchSize
		if end > total {
			end = total
		}
		batch, err := a.aggregateBatch(ctx, ids[start:end], params)
		if err != nil {
			return nil, err
		}
		rows = append(rows, batch...)
		if onBatch != nil {
			onBatch(end, total)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].StudentID < rows[j].StudentID
	})
	return rows, nil
}

// aggregateBatch fetches all five sources for one student batch and folds
// them into rows.
func (a *Aggregator) aggregateBatch(ctx context.Context, ids []student.ID, params analysis.Params) ([]analysis.FeatureRow, error) {
	window := params.Window
	prev := window.Previous()

	profiles, err := a.students.GetByIDs(ctx, ids)
	if err != nil {
		return nil, shared.WrapError("analysis", "Aggregate", shared.ErrExternalService, "failed to load student roster", err)
	}
	byID := make(map[student.ID]*student.Student, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}

	canteen, err := a.events.FetchCanteen(ctx, ids, window.Start, window.End)
	if err != nil {
		return nil, shared.WrapError("analysis", "Aggregate", shared.ErrExternalService, "failed to fetch canteen records", err)
	}
	prevCanteen, err := a.events.FetchCanteen(ctx, ids, prev.Start, prev.End)
	if err != nil {
		return nil, shared.WrapError("analysis", "Aggregate", shared.ErrExternalService, "failed to fetch baseline canteen records", err)
	}
	gate, err := a.events.FetchGate(ctx, ids, window.Start, window.End)
	if err != nil {
		return nil, shared.WrapError("analysis", "Aggregate", shared.ErrExternalService, "failed to fetch gate records", err)
	}
	dorm, err := a.events.FetchDorm(ctx, ids, window.Start, window.End)
	if err != nil {
		return nil, shared.WrapError("analysis", "Aggregate", shared.ErrExternalService, "failed to fetch dormitory records", err)
	}
	network, err := a.events.FetchNetwork(ctx, ids, window.Start, window.End)
	if err != nil {
		return nil, shared.WrapError("analysis", "Aggregate", shared.ErrExternalService, "failed to fetch network records", err)
	}
	academic, err := a.events.FetchAcademic(ctx, ids, window.Start, window.End)
	if err != nil {
		return nil, shared.WrapError("analysis", "Aggregate", shared.ErrExternalService, "failed to fetch academic records", err)
	}
	prevAcademic, err := a.events.FetchAcademic(ctx, ids, prev.Start, prev.End)
	if err != nil {
		return nil, shared.WrapError("analysis", "Aggregate", shared.ErrExternalService, "failed to fetch baseline academic records", err)
	}

	canteenBy := groupBy(canteen, func(r record.CanteenRecord) student.ID { return r.StudentID })
	prevCanteenBy := groupBy(prevCanteen, func(r record.CanteenRecord) student.ID { return r.StudentID })
	gateBy := groupBy(gate, func(r record.GateRecord) student.ID { return r.StudentID })
	dormBy := groupBy(dorm, func(r record.DormRecord) student.ID { return r.StudentID })
	networkBy := groupBy(network, func(r record.NetworkRecord) student.ID { return r.StudentID })
	academicBy := groupBy(academic, func(r record.AcademicRecord) student.ID { return r.StudentID })
	prevAcademicBy := groupBy(prevAcademic, func(r record.AcademicRecord) student.ID { return r.StudentID })

	rows := make([]analysis.FeatureRow, 0, len(ids))
	for _, id := range ids {
		profile, ok := byID[id]
		if !ok {
			a.log.Warn("student missing from roster, skipping", logger.StudentID(string(id)))
			continue
		}
		row := analysis.FeatureRow{
			StudentID: id,
			College:   profile.College,
			Major:     profile.Major,
			Grade:     profile.Grade,
		}
		applyCanteen(&row, canteenBy[id], prevCanteenBy[id], params.Poverty.ExpenseThreshold)
		applyAccess(&row, gateBy[id], dormBy[id], &params)
		applyNetwork(&row, networkBy[id], &params)
		applyAcademic(&row, academicBy[id], prevAcademicBy[id], params.PassingScore)
		rows = append(rows, row)
	}
	return rows, nil
}

func groupBy[T any](items []T, key func(T) student.ID) map[student.ID][]T {
	out := make(map[student.ID][]T)
	for _, it := range items {
		out[key(it)] = append(out[key(it)], it)
	}
	return out
}

// applyCanteen computes spend statistics. The expense trend compares the
// in-window monthly average against the preceding window of equal length;
// with no baseline signal the trend stays undefined rather than zero.
func applyCanteen(row *analysis.FeatureRow, cur, prev []record.CanteenRecord, lowSpend float64) {
	row.CanteenMonths = len(cur)
	if len(cur) == 0 {
		return
	}

	sum := 0.0
	min := cur[0].Amount
	run, bestRun := 0, 0
	for _, r := range cur {
		sum += r.Amount
		if r.Amount < min {
			min = r.Amount
		}
		if r.Amount < lowSpend {
			run++
			if run > bestRun {
				bestRun = run
			}
		} else {
			run = 0
		}
	}
	avg := sum / float64(len(cur))
	row.AvgExpense = analysis.MetricOf(avg)
	row.MinExpense = analysis.MetricOf(min)
	row.LowSpendRun = bestRun
	row.ExpenseTrend = trendOf(avg, monthlyAverage(prev))
}

func monthlyAverage(rows []record.CanteenRecord) analysis.Metric {
	if len(rows) == 0 {
		return analysis.NoSignal()
	}
	sum := 0.0
	for _, r := range rows {
		sum += r.Amount
	}
	return analysis.MetricOf(sum / float64(len(rows)))
}

// trendOf returns the percent change of current against a baseline.
// A missing or non-positive baseline yields an undefined trend.
func trendOf(current float64, baseline analysis.Metric) analysis.Metric {
	if !baseline.Defined || baseline.Value <= 0 {
		return analysis.NoSignal()
	}
	return analysis.MetricOf((current - baseline.Value) / baseline.Value * 100)
}

// applyAccess counts gate and dormitory swipes, bucketing by the night
// and late-night hour bands.
func applyAccess(row *analysis.FeatureRow, gate []record.GateRecord, dorm []record.DormRecord, params *analysis.Params) {
	count := func(hour int) {
		row.TotalEntries++
		if params.IsNightHour(hour) {
			row.NightEntries++
		}
		if params.IsLateNightHour(hour) {
			row.LateNightEntries++
		}
	}
	for _, r := range gate {
		count(r.Timestamp.Hour())
	}
	for _, r := range dorm {
		count(r.Timestamp.Hour())
	}
}

// applyNetwork derives session statistics. Daily online hours attribute a
// session to the day it started on.
func applyNetwork(row *analysis.FeatureRow, sessions []record.NetworkRecord, params *analysis.Params) {
	if len(sessions) == 0 {
		return
	}

	vpn := 0
	hoursByDay := make(map[string]float64)
	nightDays := make(map[string]struct{})
	lateNightDays := make(map[string]struct{})
	for _, s := range sessions {
		if s.UsedVPN {
			vpn++
		}
		day := s.StartTime.Format(time.DateOnly)
		hoursByDay[day] += s.Duration()
		hour := s.StartTime.Hour()
		if params.IsNightHour(hour) {
			nightDays[day] = struct{}{}
		}
		if params.IsLateNightHour(hour) {
			lateNightDays[day] = struct{}{}
		}
	}

	row.VPNRate = analysis.MetricOf(float64(vpn) / float64(len(sessions)))

	windowDays := float64(params.Window.Days())
	row.NightUsageRate = analysis.MetricOf(float64(len(nightDays)) / windowDays)
	row.LateNightUsageRate = analysis.MetricOf(float64(len(lateNightDays)) / windowDays)

	totalHours, maxHours := 0.0, 0.0
	for _, h := range hoursByDay {
		totalHours += h
		if h > maxHours {
			maxHours = h
		}
	}
	row.AvgDailyOnline = analysis.MetricOf(totalHours / float64(len(hoursByDay)))
	row.MaxDailyOnline = analysis.MetricOf(maxHours)
}

// applyAcademic computes score statistics mirroring the canteen logic.
func applyAcademic(row *analysis.FeatureRow, cur, prev []record.AcademicRecord, passing float64) {
	if len(cur) == 0 {
		return
	}
	sum := 0.0
	for _, r := range cur {
		sum += r.Score
		if r.Score < passing {
			row.FailingCount++
		}
	}
	avg := sum / float64(len(cur))
	row.AvgScore = analysis.MetricOf(avg)

	if len(prev) > 0 {
		psum := 0.0
		for _, r := range prev {
			psum += r.Score
		}
		row.ScoreTrend = trendOf(avg, analysis.MetricOf(psum/float64(len(prev))))
	}
}
