package record

import (
	"context"
	"time"

	"github.com/campus-insight/campus-insight-hub/internal/domain/student"
)

// EventRepository is the read/write interface over canonical storage.
//
// The analysis pipeline depends only on this interface, never on a concrete
// schema or query builder. Reads are filtered by student set and time range
// so the aggregator can work in bounded batches; CountEvents lets the job
// runner compute progress totals up front.
type EventRepository interface {
	// FetchCanteen returns canteen records for the students whose months
	// fall inside [from, to], ordered by (student_id, month).
	FetchCanteen(ctx context.Context, ids []student.ID, from, to time.Time) ([]CanteenRecord, error)

	// FetchGate returns gate swipes for the students in [from, to],
	// ordered by (student_id, timestamp).
	FetchGate(ctx context.Context, ids []student.ID, from, to time.Time) ([]GateRecord, error)

	// FetchDorm returns dormitory swipes for the students in [from, to],
	// ordered by (student_id, timestamp).
	FetchDorm(ctx context.Context, ids []student.ID, from, to time.Time) ([]DormRecord, error)

	// FetchNetwork returns network sessions starting in [from, to],
	// ordered by (student_id, start_time).
	FetchNetwork(ctx context.Context, ids []student.ID, from, to time.Time) ([]NetworkRecord, error)

	// FetchAcademic returns academic records for the students whose months
	// fall inside [from, to], ordered by (student_id, month).
	FetchAcademic(ctx context.Context, ids []student.ID, from, to time.Time) ([]AcademicRecord, error)

	// CountEvents estimates how many records of one source fall in the
	// range, across all students.
	CountEvents(ctx context.Context, source SourceType, from, to time.Time) (int64, error)

	// BulkInsertCanteen inserts canteen rows, replacing any existing row
	// for the same (student, month).
	BulkInsertCanteen(ctx context.Context, rows []CanteenRecord) (int, error)

	// BulkInsertGate appends gate swipes.
	BulkInsertGate(ctx context.Context, rows []GateRecord) (int, error)

	// BulkInsertDorm appends dormitory swipes.
	BulkInsertDorm(ctx context.Context, rows []DormRecord) (int, error)

	// BulkInsertNetwork appends network sessions.
	BulkInsertNetwork(ctx context.Context, rows []NetworkRecord) (int, error)

	// BulkInsertAcademic inserts academic rows, replacing any existing row
	// for the same (student, month).
	BulkInsertAcademic(ctx context.Context, rows []AcademicRecord) (int, error)
}

// DailyStatistic is one precomputed per-day per-student summary for one
// source, refreshed by the background scheduler for dashboard queries.
type DailyStatistic struct {
	StudentID student.ID
	Source    SourceType
	Date      time.Time // midnight, local campus time
	Values    map[string]float64
}

// DailyStatisticRepository stores precomputed daily summaries.
type DailyStatisticRepository interface {
	// ReplaceRange atomically replaces all daily statistics of one source
	// inside [from, to] with the given rows.
	ReplaceRange(ctx context.Context, source SourceType, from, to time.Time, rows []DailyStatistic) error

	// FetchRange returns daily statistics for one student and source,
	// ordered by date.
	FetchRange(ctx context.Context, id student.ID, source SourceType, from, to time.Time) ([]DailyStatistic, error)
}
