package importer

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-insight/campus-insight-hub/internal/domain/record"
	"github.com/campus-insight/campus-insight-hub/internal/domain/shared"
	"github.com/campus-insight/campus-insight-hub/internal/domain/student"
	"github.com/campus-insight/campus-insight-hub/pkg/logger"
)

type fakeEvents struct {
	canteen  []record.CanteenRecord
	gate     []record.GateRecord
	dorm     []record.DormRecord
	network  []record.NetworkRecord
	academic []record.AcademicRecord
	inserts  int
}

func (f *fakeEvents) FetchCanteen(context.Context, []student.ID, time.Time, time.Time) ([]record.CanteenRecord, error) {
	return f.canteen, nil
}

func (f *fakeEvents) FetchGate(context.Context, []student.ID, time.Time, time.Time) ([]record.GateRecord, error) {
	return f.gate, nil
}

func (f *fakeEvents) FetchDorm(context.Context, []student.ID, time.Time, time.Time) ([]record.DormRecord, error) {
	return f.dorm, nil
}

func (f *fakeEvents) FetchNetwork(context.Context, []student.ID, time.Time, time.Time) ([]record.NetworkRecord, error) {
	return f.network, nil
}

func (f *fakeEvents) FetchAcademic(context.Context, []student.ID, time.Time, time.Time) ([]record.AcademicRecord, error) {
	return f.academic, nil
}

func (f *fakeEvents) CountEvents(context.Context, record.SourceType, time.Time, time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeEvents) BulkInsertCanteen(_ context.Context, rows []record.CanteenRecord) (int, error) {
	f.inserts++
	// Replace (student, month) duplicates the way the real storage does.
	for _, row := range rows {
		replaced := false
		for i, cur := range f.canteen {
			if cur.StudentID == row.StudentID && cur.Month == row.Month {
				f.canteen[i] = row
				replaced = true
				break
			}
		}
		if !replaced {
			f.canteen = append(f.canteen, row)
		}
	}
	return len(rows), nil
}

func (f *fakeEvents) BulkInsertGate(_ context.Context, rows []record.GateRecord) (int, error) {
	f.inserts++
	f.gate = append(f.gate, rows...)
	return len(rows), nil
}

func (f *fakeEvents) BulkInsertDorm(_ context.Context, rows []record.DormRecord) (int, error) {
	f.inserts++
	f.dorm = append(f.dorm, rows...)
	return len(rows), nil
}

func (f *fakeEvents) BulkInsertNetwork(_ context.Context, rows []record.NetworkRecord) (int, error) {
	f.inserts++
	f.network = append(f.network, rows...)
	return len(rows), nil
}

func (f *fakeEvents) BulkInsertAcademic(_ context.Context, rows []record.AcademicRecord) (int, error) {
	f.inserts++
	f.academic = append(f.academic, rows...)
	return len(rows), nil
}

type fakeStudents struct {
	byID map[student.ID]*student.Student
}

func newFakeStudents(ids ...student.ID) *fakeStudents {
	m := make(map[student.ID]*student.Student)
	for _, id := range ids {
		m[id] = &student.Student{ID: id, Name: "x", Grade: 2023}
	}
	return &fakeStudents{byID: m}
}

func (f *fakeStudents) GetByID(_ context.Context, id student.ID) (*student.Student, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return s, nil
}

func (f *fakeStudents) GetByIDs(_ context.Context, ids []student.ID) ([]*student.Student, error) {
	var out []*student.Student
	for _, id := range ids {
		if s, ok := f.byID[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStudents) ListIDs(context.Context) ([]student.ID, error) {
	var out []student.ID
	for id := range f.byID {
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeStudents) Upsert(_ context.Context, s *student.Student) (bool, error) {
	_, existed := f.byID[s.ID]
	f.byID[s.ID] = s
	return !existed, nil
}

func testImporter(events *fakeEvents, students *fakeStudents, config Config) *Importer {
	log := logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
	return New(events, students, config, log)
}

func TestImportCanteenRows(t *testing.T) {
	events := &fakeEvents{}
	imp := testImporter(events, newFakeStudents("s001", "s002"), Config{})

	rows := []RawRow{
		{Line: 1, StudentID: "s001", Month: "2024-03", Amount: 420},
		{Line: 2, StudentID: "s002", Month: "2024-03", Amount: 310},
	}
	summary, err := imp.Run(context.Background(), record.SourceCanteen, rows, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Inserted)
	assert.Zero(t, summary.Rejected)
	assert.Len(t, events.canteen, 2)
}

func TestImportCollectsRowErrors(t *testing.T) {
	events := &fakeEvents{}
	imp := testImporter(events, newFakeStudents("s001"), Config{})

	rows := []RawRow{
		{Line: 1, StudentID: "s001", Month: "2024-03", Amount: 400},
		{Line: 2, StudentID: "ghost999", Month: "2024-03", Amount: 400}, // unknown student
		{Line: 3, StudentID: "s001", Month: "March 2024", Amount: 400},  // bad month
		{Line: 4, StudentID: "s001", Month: "2024-03", Amount: -5},      // negative amount
	}
	summary, err := imp.Run(context.Background(), record.SourceCanteen, rows, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 3, summary.Rejected)
	require.Len(t, summary.Errors, 3)
	assert.Equal(t, 2, summary.Errors[0].Line)
	assert.Equal(t, 3, summary.Errors[1].Line)
	assert.Equal(t, 4, summary.Errors[2].Line)
}

func TestImportErrorListIsCapped(t *testing.T) {
	events := &fakeEvents{}
	imp := testImporter(events, newFakeStudents("s001"), Config{MaxReportedErrors: 2})

	rows := make([]RawRow, 0, 5)
	for i := 1; i <= 5; i++ {
		rows = append(rows, RawRow{Line: i, StudentID: "s001", Month: "bogus", Amount: 1})
	}
	summary, err := imp.Run(context.Background(), record.SourceCanteen, rows, nil)
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Rejected)
	assert.Len(t, summary.Errors, 2)
	assert.True(t, summary.Truncated)
}

func TestImportGateRowsNormalizeDirection(t *testing.T) {
	events := &fakeEvents{}
	imp := testImporter(events, newFakeStudents("s001"), Config{})

	ts := time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)
	rows := []RawRow{
		{Line: 1, StudentID: "s001", Timestamp: ts, Location: "north gate", Direction: "进"},
		{Line: 2, StudentID: "s001", Timestamp: ts, Location: "north gate", Direction: "sideways"},
	}
	summary, err := imp.Run(context.Background(), record.SourceGate, rows, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 1, summary.Rejected)
	require.Len(t, events.gate, 1)
	assert.Equal(t, record.DirectionIn, events.gate[0].Direction)
}

func TestImportNetworkRejectsInvertedSessions(t *testing.T) {
	events := &fakeEvents{}
	imp := testImporter(events, newFakeStudents("s001"), Config{})

	start := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	rows := []RawRow{
		{Line: 1, StudentID: "s001", StartTime: start, EndTime: start.Add(time.Hour)},
		{Line: 2, StudentID: "s001", StartTime: start, EndTime: start.Add(-time.Hour)},
	}
	summary, err := imp.Run(context.Background(), record.SourceNetwork, rows, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 1, summary.Rejected)
}

func TestImportBatchesAndProgress(t *testing.T) {
	events := &fakeEvents{}
	imp := testImporter(events, newFakeStudents("s001"), Config{BatchSize: 2})

	rows := make([]RawRow, 0, 5)
	for i := 1; i <= 5; i++ {
		rows = append(rows, RawRow{Line: i, StudentID: "s001", Month: "2024-03", Amount: float64(i)})
	}
	var progress [][2]int
	summary, err := imp.Run(context.Background(), record.SourceCanteen, rows, func(current, total int, _ string) {
		progress = append(progress, [2]int{current, total})
	})
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Inserted)
	assert.Equal(t, 3, events.inserts)
	assert.Equal(t, [][2]int{{2, 5}, {4, 5}, {5, 5}}, progress)
}

func TestImportReplacesMonthlyDuplicates(t *testing.T) {
	events := &fakeEvents{}
	imp := testImporter(events, newFakeStudents("s001"), Config{})

	first := []RawRow{{Line: 1, StudentID: "s001", Month: "2024-03", Amount: 100}}
	_, err := imp.Run(context.Background(), record.SourceCanteen, first, nil)
	require.NoError(t, err)

	second := []RawRow{{Line: 1, StudentID: "s001", Month: "2024-03", Amount: 250}}
	_, err = imp.Run(context.Background(), record.SourceCanteen, second, nil)
	require.NoError(t, err)

	require.Len(t, events.canteen, 1)
	assert.InDelta(t, 250, events.canteen[0].Amount, 0.001)
}

func TestImportUnknownSource(t *testing.T) {
	imp := testImporter(&fakeEvents{}, newFakeStudents(), Config{})

	_, err := imp.Run(context.Background(), "telepathy", nil, nil)
	assert.ErrorIs(t, err, shared.ErrUnknownSourceType)
}

func TestImportRoster(t *testing.T) {
	students := newFakeStudents("s001")
	imp := testImporter(&fakeEvents{}, students, Config{})

	roster := []*student.Student{
		{ID: "s001", Name: "Wang", College: "Engineering", Major: "CS", Grade: 2022},
		{ID: "s900", Name: "Li", College: "Arts", Major: "History", Grade: 2023},
		{ID: "x", Name: "too short"},
	}
	summary, err := imp.ImportRoster(context.Background(), roster)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.Updated)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, 3, summary.Errors[0].Line)
	assert.Equal(t, "Wang", students.byID["s001"].Name)
}
