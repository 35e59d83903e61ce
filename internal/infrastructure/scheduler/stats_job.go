package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/campus-insight/campus-insight-hub/internal/domain/record"
	"github.com/campus-insight/campus-insight-hub/internal/domain/student"
	"github.com/campus-insight/campus-insight-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY STATISTICS JOB
// ══════════════════════════════════════════════════════════════════════════════

// DailyStatsJob recomputes per-student daily summaries for the swipe and
// session sources. It runs after the overnight export import and replaces
// the previous day's rows wholesale, so a re-run after a partial import is
// always safe.
type DailyStatsJob struct {
	events   record.EventRepository
	students student.Repository
	stats    record.DailyStatisticRepository
}

// NewDailyStatsJob creates the refresh job.
func NewDailyStatsJob(events record.EventRepository, students student.Repository, stats record.DailyStatisticRepository) *DailyStatsJob {
	return &DailyStatsJob{events: events, students: students, stats: stats}
}

// Name implements Job.
func (j *DailyStatsJob) Name() string { return "refresh_daily_stats" }

// Description implements Job.
func (j *DailyStatsJob) Description() string {
	return "recompute yesterday's per-student daily statistics"
}

// Run implements Job, refreshing statistics for the previous campus day.
func (j *DailyStatsJob) Run(ctx context.Context) error {
	yesterday := timeutil.StartOfDay(timeutil.Now().AddDate(0, 0, -1))
	return j.RefreshDay(ctx, yesterday)
}

// RefreshDay recomputes statistics for one campus day.
func (j *DailyStatsJob) RefreshDay(ctx context.Context, day time.Time) error {
	from := timeutil.StartOfDay(day)
	to := timeutil.EndOfDay(day)

	ids, err := j.students.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("list students: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	if err := j.refreshGate(ctx, ids, from, to); err != nil {
		return err
	}
	if err := j.refreshDorm(ctx, ids, from, to); err != nil {
		return err
	}
	return j.refreshNetwork(ctx, ids, from, to)
}

func (j *DailyStatsJob) refreshGate(ctx context.Context, ids []student.ID, from, to time.Time) error {
	recs, err := j.events.FetchGate(ctx, ids, from, to)
	if err != nil {
		return fmt.Errorf("fetch gate records: %w", err)
	}

	byStudent := make(map[student.ID]map[string]float64)
	for _, r := range recs {
		v := ensure(byStudent, r.StudentID)
		v["entries"]++
		if r.Direction == record.DirectionIn {
			v["in"]++
		} else {
			v["out"]++
		}
	}
	return j.replace(ctx, record.SourceGate, from, to, byStudent)
}

func (j *DailyStatsJob) refreshDorm(ctx context.Context, ids []student.ID, from, to time.Time) error {
	recs, err := j.events.FetchDorm(ctx, ids, from, to)
	if err != nil {
		return fmt.Errorf("fetch dorm records: %w", err)
	}

	byStudent := make(map[student.ID]map[string]float64)
	for _, r := range recs {
		v := ensure(byStudent, r.StudentID)
		v["entries"]++
		if r.Direction == record.DirectionIn {
			v["in"]++
		} else {
			v["out"]++
		}
	}
	return j.replace(ctx, record.SourceDormitory, from, to, byStudent)
}

func (j *DailyStatsJob) refreshNetwork(ctx context.Context, ids []student.ID, from, to time.Time) error {
	recs, err := j.events.FetchNetwork(ctx, ids, from, to)
	if err != nil {
		return fmt.Errorf("fetch network records: %w", err)
	}

	byStudent := make(map[student.ID]map[string]float64)
	for _, r := range recs {
		v := ensure(byStudent, r.StudentID)
		v["sessions"]++
		v["online_hours"] += r.Duration()
		if r.UsedVPN {
			v["vpn_sessions"]++
		}
	}
	return j.replace(ctx, record.SourceNetwork, from, to, byStudent)
}

func (j *DailyStatsJob) replace(ctx context.Context, source record.SourceType, from, to time.Time, byStudent map[student.ID]map[string]float64) error {
	rows := make([]record.DailyStatistic, 0, len(byStudent))
	for id, values := range byStudent {
		rows = append(rows, record.DailyStatistic{
			StudentID: id,
			Source:    source,
			Date:      from,
			Values:    values,
		})
	}
	if err := j.stats.ReplaceRange(ctx, source, from, to, rows); err != nil {
		return fmt.Errorf("replace %s statistics: %w", source, err)
	}
	return nil
}

func ensure(m map[student.ID]map[string]float64, id student.ID) map[string]float64 {
	v, ok := m[id]
	if !ok {
		v = make(map[string]float64)
		m[id] = v
	}
	return v
}
