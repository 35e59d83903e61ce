package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-insight/campus-insight-hub/internal/domain/record"
	"github.com/campus-insight/campus-insight-hub/internal/domain/student"
	"github.com/campus-insight/campus-insight-hub/pkg/timeutil"
)

func testScheduler() *Scheduler {
	return New(Config{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Timezone: timeutil.CampusTZ,
	})
}

type countingJob struct {
	name string
	runs int
	err  error
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job" }
func (j *countingJob) Run(context.Context) error {
	j.runs++
	return j.err
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	s := testScheduler()
	job := &countingJob{name: "dup"}

	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))
	err := s.Register(job, NewIntervalSchedule(time.Hour))
	assert.ErrorIs(t, err, ErrJobAlreadyExists)
}

func TestRunNow(t *testing.T) {
	s := testScheduler()
	job := &countingJob{name: "manual"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "manual")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, job.runs)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRunNowRecordsFailure(t *testing.T) {
	s := testScheduler()
	job := &countingJob{name: "broken", err: errors.New("boom")}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "broken")
	require.Error(t, err)
	assert.False(t, result.Success)

	infos := s.ListJobs()
	require.Len(t, infos, 1)
	assert.False(t, infos[0].LastResult.Success)
}

func TestStartStop(t *testing.T) {
	s := testScheduler()
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}

func TestDailyScheduleNext(t *testing.T) {
	sched := NewDailySchedule(4, 30, timeutil.CampusTZ)

	before := timeutil.DateTime(2024, 3, 10, 2, 0, 0)
	next := sched.Next(before)
	assert.Equal(t, timeutil.DateTime(2024, 3, 10, 4, 30, 0), next)

	after := timeutil.DateTime(2024, 3, 10, 6, 0, 0)
	next = sched.Next(after)
	assert.Equal(t, timeutil.DateTime(2024, 3, 11, 4, 30, 0), next)

	// Firing exactly at the boundary rolls to the next day.
	at := timeutil.DateTime(2024, 3, 10, 4, 30, 0)
	next = sched.Next(at)
	assert.Equal(t, timeutil.DateTime(2024, 3, 11, 4, 30, 0), next)
}

// ──────────────────────────────────────────────────────────────────────────────
// Daily statistics job
// ──────────────────────────────────────────────────────────────────────────────

type fakeEvents struct {
	gate    []record.GateRecord
	dorm    []record.DormRecord
	network []record.NetworkRecord
}

func (f *fakeEvents) FetchCanteen(context.Context, []student.ID, time.Time, time.Time) ([]record.CanteenRecord, error) {
	return nil, nil
}

func (f *fakeEvents) FetchGate(_ context.Context, _ []student.ID, from, to time.Time) ([]record.GateRecord, error) {
	var out []record.GateRecord
	for _, r := range f.gate {
		if !r.Timestamp.Before(from) && !r.Timestamp.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeEvents) FetchDorm(_ context.Context, _ []student.ID, from, to time.Time) ([]record.DormRecord, error) {
	var out []record.DormRecord
	for _, r := range f.dorm {
		if !r.Timestamp.Before(from) && !r.Timestamp.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeEvents) FetchNetwork(_ context.Context, _ []student.ID, from, to time.Time) ([]record.NetworkRecord, error) {
	var out []record.NetworkRecord
	for _, r := range f.network {
		if !r.StartTime.Before(from) && !r.StartTime.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeEvents) FetchAcademic(context.Context, []student.ID, time.Time, time.Time) ([]record.AcademicRecord, error) {
	return nil, nil
}

func (f *fakeEvents) CountEvents(context.Context, record.SourceType, time.Time, time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeEvents) BulkInsertCanteen(context.Context, []record.CanteenRecord) (int, error) {
	return 0, nil
}
func (f *fakeEvents) BulkInsertGate(context.Context, []record.GateRecord) (int, error) {
	return 0, nil
}
func (f *fakeEvents) BulkInsertDorm(context.Context, []record.DormRecord) (int, error) {
	return 0, nil
}
func (f *fakeEvents) BulkInsertNetwork(context.Context, []record.NetworkRecord) (int, error) {
	return 0, nil
}
func (f *fakeEvents) BulkInsertAcademic(context.Context, []record.AcademicRecord) (int, error) {
	return 0, nil
}

type fakeStudents struct {
	ids []student.ID
}

func (f *fakeStudents) GetByID(context.Context, student.ID) (*student.Student, error) {
	return nil, nil
}
func (f *fakeStudents) GetByIDs(context.Context, []student.ID) ([]*student.Student, error) {
	return nil, nil
}
func (f *fakeStudents) ListIDs(context.Context) ([]student.ID, error) {
	return f.ids, nil
}
func (f *fakeStudents) Upsert(context.Context, *student.Student) (bool, error) {
	return false, nil
}

type fakeStats struct {
	replaced map[record.SourceType][]record.DailyStatistic
}

func (f *fakeStats) ReplaceRange(_ context.Context, source record.SourceType, _, _ time.Time, rows []record.DailyStatistic) error {
	if f.replaced == nil {
		f.replaced = make(map[record.SourceType][]record.DailyStatistic)
	}
	f.replaced[source] = rows
	return nil
}

func (f *fakeStats) FetchRange(context.Context, student.ID, record.SourceType, time.Time, time.Time) ([]record.DailyStatistic, error) {
	return nil, nil
}

func TestDailyStatsJobRefreshDay(t *testing.T) {
	day := timeutil.Date(2024, 3, 10)

	events := &fakeEvents{
		gate: []record.GateRecord{
			{StudentID: "s001", Timestamp: timeutil.DateTime(2024, 3, 10, 8, 0, 0), Direction: record.DirectionOut},
			{StudentID: "s001", Timestamp: timeutil.DateTime(2024, 3, 10, 18, 0, 0), Direction: record.DirectionIn},
			{StudentID: "s002", Timestamp: timeutil.DateTime(2024, 3, 11, 8, 0, 0), Direction: record.DirectionOut}, // next day, excluded
		},
		network: []record.NetworkRecord{
			{
				StudentID: "s001",
				StartTime: timeutil.DateTime(2024, 3, 10, 20, 0, 0),
				EndTime:   timeutil.DateTime(2024, 3, 10, 22, 30, 0),
				UsedVPN:   true,
			},
		},
	}
	stats := &fakeStats{}
	job := NewDailyStatsJob(events, &fakeStudents{ids: []student.ID{"s001", "s002"}}, stats)

	require.NoError(t, job.RefreshDay(context.Background(), day))

	gate := stats.replaced[record.SourceGate]
	require.Len(t, gate, 1)
	assert.Equal(t, student.ID("s001"), gate[0].StudentID)
	assert.Equal(t, float64(2), gate[0].Values["entries"])
	assert.Equal(t, float64(1), gate[0].Values["in"])

	network := stats.replaced[record.SourceNetwork]
	require.Len(t, network, 1)
	assert.Equal(t, float64(1), network[0].Values["vpn_sessions"])
	assert.InDelta(t, 2.5, network[0].Values["online_hours"], 0.001)

	// Dorm had no records: the range is still cleared with zero rows.
	dorm, ok := stats.replaced[record.SourceDormitory]
	require.True(t, ok)
	assert.Empty(t, dorm)
}
