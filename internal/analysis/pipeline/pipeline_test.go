package pipeline

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-insight/campus-insight-hub/internal/analysis/aggregator"
	"github.com/campus-insight/campus-insight-hub/internal/analysis/report"
	"github.com/campus-insight/campus-insight-hub/internal/domain/analysis"
	"github.com/campus-insight/campus-insight-hub/internal/domain/record"
	"github.com/campus-insight/campus-insight-hub/internal/domain/shared"
	"github.com/campus-insight/campus-insight-hub/internal/domain/student"
	"github.com/campus-insight/campus-insight-hub/internal/jobrunner"
	"github.com/campus-insight/campus-insight-hub/pkg/logger"
)

type memArtifacts struct {
	mu      sync.Mutex
	reports map[string]*report.Report
}

func (m *memArtifacts) Put(_ context.Context, r *report.Report) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reports == nil {
		m.reports = make(map[string]*report.Report)
	}
	key := uuid.NewString()
	m.reports[key] = r
	return key, nil
}

func (m *memArtifacts) Get(_ context.Context, key string) (*report.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[key]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return r, nil
}

type memEvents struct {
	canteen []record.CanteenRecord
}

func (m *memEvents) FetchCanteen(_ context.Context, ids []student.ID, from, to time.Time) ([]record.CanteenRecord, error) {
	var out []record.CanteenRecord
	for _, r := range m.canteen {
		mo, err := time.Parse(record.MonthLayout, r.Month)
		if err != nil {
			continue
		}
		if mo.Before(time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)) || mo.After(to) {
			continue
		}
		for _, id := range ids {
			if id == r.StudentID {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (m *memEvents) FetchGate(context.Context, []student.ID, time.Time, time.Time) ([]record.GateRecord, error) {
	return nil, nil
}

func (m *memEvents) FetchDorm(context.Context, []student.ID, time.Time, time.Time) ([]record.DormRecord, error) {
	return nil, nil
}

func (m *memEvents) FetchNetwork(context.Context, []student.ID, time.Time, time.Time) ([]record.NetworkRecord, error) {
	return nil, nil
}

func (m *memEvents) FetchAcademic(context.Context, []student.ID, time.Time, time.Time) ([]record.AcademicRecord, error) {
	return nil, nil
}

func (m *memEvents) CountEvents(context.Context, record.SourceType, time.Time, time.Time) (int64, error) {
	return int64(len(m.canteen)), nil
}

func (m *memEvents) BulkInsertCanteen(_ context.Context, rows []record.CanteenRecord) (int, error) {
	m.canteen = append(m.canteen, rows...)
	return len(rows), nil
}

func (m *memEvents) BulkInsertGate(_ context.Context, rows []record.GateRecord) (int, error) {
	return len(rows), nil
}

func (m *memEvents) BulkInsertDorm(_ context.Context, rows []record.DormRecord) (int, error) {
	return len(rows), nil
}

func (m *memEvents) BulkInsertNetwork(_ context.Context, rows []record.NetworkRecord) (int, error) {
	return len(rows), nil
}

func (m *memEvents) BulkInsertAcademic(_ context.Context, rows []record.AcademicRecord) (int, error) {
	return len(rows), nil
}

type memStudents struct {
	list []*student.Student
}

func (m *memStudents) GetByID(_ context.Context, id student.ID) (*student.Student, error) {
	for _, s := range m.list {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, shared.ErrStudentNotFound
}

func (m *memStudents) GetByIDs(_ context.Context, ids []student.ID) ([]*student.Student, error) {
	var out []*student.Student
	for _, id := range ids {
		for _, s := range m.list {
			if s.ID == id {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func (m *memStudents) ListIDs(context.Context) ([]student.ID, error) {
	var out []student.ID
	for _, s := range m.list {
		out = append(out, s.ID)
	}
	return out, nil
}

func (m *memStudents) Upsert(_ context.Context, s *student.Student) (bool, error) {
	for i, cur := range m.list {
		if cur.ID == s.ID {
			m.list[i] = s
			return false, nil
		}
	}
	m.list = append(m.list, s)
	return true, nil
}

func testHarness(t *testing.T, students *memStudents, events *memEvents) (*Pipeline, *jobrunner.Runner, *memArtifacts) {
	t.Helper()
	log := logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})

	agg := aggregator.New(events, students, log)
	artifacts := &memArtifacts{}
	p := New(agg, students, nil, artifacts, log)

	runner := jobrunner.NewRunner(jobrunner.NewMemoryStore(), jobrunner.Config{Workers: 1, QueueSize: 8}, log)
	runner.Start(context.Background())
	t.Cleanup(runner.Stop)
	return p, runner, artifacts
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

func awaitSuccess(t *testing.T, runner *jobrunner.Runner, taskID string) *jobrunner.Job {
	t.Helper()
	var job *jobrunner.Job
	require.Eventually(t, func() bool {
		j, err := runner.Query(context.Background(), taskID)
		if err != nil {
			return false
		}
		job = j
		return j.IsTerminal()
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, jobrunner.StatusSuccess, job.Status, "job error: %s", job.Error)
	return job
}

func TestPipelineEndToEnd(t *testing.T) {
	students := &memStudents{list: []*student.Student{
		{ID: "s001", Name: "Wang", College: "Engineering", Major: "CS", Grade: 2022},
		{ID: "s002", Name: "Li", College: "Arts", Major: "History", Grade: 2023},
	}}
	events := &memEvents{canteen: []record.CanteenRecord{
		{StudentID: "s001", Month: "2024-03", Amount: 150},
		{StudentID: "s002", Month: "2024-03", Amount: 600},
	}}
	p, runner, artifacts := testHarness(t, students, events)

	taskID, err := p.Submit(context.Background(), runner, testParams(t, analysis.KindPoverty), nil)
	require.NoError(t, err)

	job := awaitSuccess(t, runner, taskID)
	require.NotNil(t, job.Result)
	assert.Equal(t, 2, job.Result.Records)
	require.NotEmpty(t, job.Result.ArtifactKey)

	rep, err := artifacts.Get(context.Background(), job.Result.ArtifactKey)
	require.NoError(t, err)
	require.Len(t, rep.Rows, 2)
	assert.Equal(t, analysis.KindPoverty, rep.Kind)

	// s001 spends 150/month, deep in the special-difficulty band.
	var flagged *report.Row
	for i := range rep.Rows {
		if rep.Rows[i].StudentID == "s001" {
			flagged = &rep.Rows[i]
		}
	}
	require.NotNil(t, flagged)
	assert.Equal(t, analysis.RiskHigh, flagged.Level)
	assert.Contains(t, flagged.Tags, "poverty_risk")
}

func TestPipelineEmptyRosterSucceedsWithEmptyReport(t *testing.T) {
	p, runner, artifacts := testHarness(t, &memStudents{}, &memEvents{})

	taskID, err := p.Submit(context.Background(), runner, testParams(t, analysis.KindComprehensive), nil)
	require.NoError(t, err)

	job := awaitSuccess(t, runner, taskID)
	require.NotNil(t, job.Result)
	assert.Zero(t, job.Result.Records)

	rep, err := artifacts.Get(context.Background(), job.Result.ArtifactKey)
	require.NoError(t, err)
	assert.Empty(t, rep.Rows)
}

func TestPipelineConfigurationErrorIsSynchronous(t *testing.T) {
	p, runner, _ := testHarness(t, &memStudents{}, &memEvents{})

	params := testParams(t, analysis.KindComprehensive)
	params.Contamination = 0.75

	_, err := p.Submit(context.Background(), runner, params, nil)
	assert.ErrorIs(t, err, shared.ErrInvalidContamination)
	assert.True(t, shared.IsConfiguration(err))

	params = testParams(t, "unknown")
	_, err = p.Submit(context.Background(), runner, params, nil)
	assert.ErrorIs(t, err, shared.ErrUnknownAnalysisKind)
}

// recordingStore captures the Current value of every persisted update.
type recordingStore struct {
	jobrunner.Store
	mu       sync.Mutex
	currents []int
}

func (r *recordingStore) Save(ctx context.Context, job *jobrunner.Job) error {
	r.mu.Lock()
	r.currents = append(r.currents, job.Current)
	r.mu.Unlock()
	return r.Store.Save(ctx, job)
}

func TestPipelineProgressMonotonicWithUnknownStudent(t *testing.T) {
	students := &memStudents{list: []*student.Student{
		{ID: "s001", Name: "Wang", Grade: 2022},
		{ID: "s002", Name: "Li", Grade: 2023},
	}}
	log := logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
	agg := aggregator.New(&memEvents{}, students, log)
	artifacts := &memArtifacts{}
	p := New(agg, students, nil, artifacts, log)

	store := &recordingStore{Store: jobrunner.NewMemoryStore()}
	runner := jobrunner.NewRunner(store, jobrunner.Config{Workers: 1, QueueSize: 8}, log)
	runner.Start(context.Background())
	t.Cleanup(runner.Stop)

	// s003 is not on the roster: the composed report shrinks to two rows,
	// but the published progress counts must never step backwards.
	ids := []student.ID{"s001", "s002", "s003"}
	taskID, err := p.Submit(context.Background(), runner, testParams(t, analysis.KindPoverty), ids)
	require.NoError(t, err)

	job := awaitSuccess(t, runner, taskID)
	require.NotNil(t, job.Result)
	assert.Equal(t, 2, job.Result.Records)

	store.mu.Lock()
	defer store.mu.Unlock()
	last := -1
	for _, cur := range store.currents {
		assert.GreaterOrEqual(t, cur, last)
		last = cur
	}
}

func TestPipelineExplicitStudentSet(t *testing.T) {
	students := &memStudents{list: []*student.Student{
		{ID: "s001", Name: "Wang", Grade: 2022},
		{ID: "s002", Name: "Li", Grade: 2023},
	}}
	p, runner, artifacts := testHarness(t, students, &memEvents{})

	taskID, err := p.Submit(context.Background(), runner, testParams(t, analysis.KindPoverty), []student.ID{"s002"})
	require.NoError(t, err)

	job := awaitSuccess(t, runner, taskID)
	rep, err := artifacts.Get(context.Background(), job.Result.ArtifactKey)
	require.NoError(t, err)
	require.Len(t, rep.Rows, 1)
	assert.Equal(t, "s002", rep.Rows[0].StudentID)
}
