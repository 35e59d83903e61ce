// Package importer validates decoded record rows and bulk-loads them into
// canonical storage. Decoding (spreadsheet parsing, HTTP upload handling)
// happens upstream; the importer sees typed rows and owns validation,
// batching and progress.
package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/campus-insight/campus-insight-hub/internal/domain/record"
	"github.com/campus-insight/campus-insight-hub/internal/domain/shared"
	"github.com/campus-insight/campus-insight-hub/internal/domain/student"
	"github.com/campus-insight/campus-insight-hub/internal/jobrunner"
	"github.com/campus-insight/campus-insight-hub/pkg/logger"
)

// RawRow is one decoded line of an import file. Only the fields relevant
// to the declared source are read; Line is kept for error reporting.
type RawRow struct {
	Line      int
	StudentID string

	// Monthly sources (canteen, academic)
	Month  string
	Amount float64
	Score  float64

	// Swipe sources (gate, dormitory)
	Timestamp time.Time
	Location  string
	Direction string

	// Network sessions
	StartTime time.Time
	EndTime   time.Time
	Domain    string
	UsedVPN   bool
}

// RowError ties a validation failure to its source line.
type RowError struct {
	Line int    `json:"line"`
	Err  string `json:"error"`
}

// Summary is the outcome of one import run.
type Summary struct {
	Source    record.SourceType `json:"source"`
	Inserted  int               `json:"inserted"`
	Rejected  int               `json:"rejected"`
	Errors    []RowError        `json:"errors,omitempty"`
	Truncated bool              `json:"errors_truncated,omitempty"`
}

// Config bounds one import run.
type Config struct {
	// BatchSize is how many validated rows go into one bulk insert.
	BatchSize int

	// MaxReportedErrors caps the row errors carried in the summary; the
	// rejected count always covers all of them.
	MaxReportedErrors int
}

// DefaultConfig returns the standard import bounds.
func DefaultConfig() Config {
	return Config{BatchSize: 500, MaxReportedErrors: 50}
}

// Importer loads rows for one source at a time.
type Importer struct {
	events   record.EventRepository
	students student.Repository
	config   Config
	log      *logger.Logger
}

// New creates an importer over canonical storage.
func New(events record.EventRepository, students student.Repository, config Config, log *logger.Logger) *Importer {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.MaxReportedErrors <= 0 {
		config.MaxReportedErrors = DefaultConfig().MaxReportedErrors
	}
	if log == nil {
		log = logger.Default()
	}
	return &Importer{
		events:   events,
		students: students,
		config:   config,
		log:      log.With(logger.Component("importer")),
	}
}

// Run validates and loads all rows synchronously, reporting progress per
// batch. Invalid rows never abort the run; they are collected as row
// errors while the valid remainder is inserted.
func (imp *Importer) Run(ctx context.Context, source record.SourceType, rows []RawRow, progress jobrunner.ProgressFunc) (*Summary, error) {
	if !source.IsValid() {
		return nil, shared.ErrUnknownSourceType
	}

	known, err := imp.knownStudents(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Source: source}
	valid := make([]RawRow, 0, len(rows))
	for _, row := range rows {
		if err := imp.validateRow(source, &row, known); err != nil {
			summary.Rejected++
			if len(summary.Errors) < imp.config.MaxReportedErrors {
				summary.Errors = append(summary.Errors, RowError{Line: row.Line, Err: err.Error()})
			} else {
				summary.Truncated = true
			}
			continue
		}
		valid = append(valid, row)
	}

	total := len(valid)
	for start := 0; start < total; start += imp.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + imp.config.BatchSize
		if end > total {
			end = total
		}
		n, err := imp.insertBatch(ctx, source, valid[start:end])
		if err != nil {
			return nil, shared.WrapError("importer", "Run", shared.ErrExternalService, "bulk insert failed", err)
		}
		summary.Inserted += n
		if progress != nil {
			progress(end, total, fmt.Sprintf("imported %d of %d rows", end, total))
		}
	}

	imp.log.Info("import finished",
		logger.Source(string(source)),
		logger.Rows(summary.Inserted),
		logger.Int("rejected", summary.Rejected),
	)
	return summary, nil
}

// UnitOfWork adapts an import run to the job runner contract.
func (imp *Importer) UnitOfWork(source record.SourceType, rows []RawRow) jobrunner.UnitOfWork {
	return func(ctx context.Context, progress jobrunner.ProgressFunc) (*jobrunner.Result, error) {
		summary, err := imp.Run(ctx, source, rows, progress)
		if err != nil {
			return nil, err
		}
		return &jobrunner.Result{
			Records: summary.Inserted,
			Summary: fmt.Sprintf("%s: %d inserted, %d rejected", source, summary.Inserted, summary.Rejected),
		}, nil
	}
}

// RosterSummary is the outcome of a student roster import.
type RosterSummary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Errors  []RowError
}

// ImportRoster upserts student metadata keyed by student number. Rows
// failing entity validation are collected, not fatal.
func (imp *Importer) ImportRoster(ctx context.Context, roster []*student.Student) (*RosterSummary, error) {
	summary := &RosterSummary{}
	for i, s := range roster {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.Validate(); err != nil {
			summary.Errors = append(summary.Errors, RowError{Line: i + 1, Err: err.Error()})
			continue
		}
		created, err := imp.students.Upsert(ctx, s)
		if err != nil {
			return nil, shared.WrapError("importer", "ImportRoster", shared.ErrExternalService, "roster upsert failed", err)
		}
		if created {
			summary.Created++
		} else {
			summary.Updated++
		}
	}
	return summary, nil
}

func (imp *Importer) knownStudents(ctx context.Context) (map[student.ID]struct{}, error) {
	ids, err := imp.students.ListIDs(ctx)
	if err != nil {
		return nil, shared.WrapError("importer", "Run", shared.ErrExternalService, "failed to load student roster", err)
	}
	set := make(map[student.ID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func (imp *Importer) validateRow(source record.SourceType, row *RawRow, known map[student.ID]struct{}) error {
	id, err := student.NewID(row.StudentID)
	if err != nil {
		return err
	}
	if _, ok := known[id]; !ok {
		return shared.ErrStudentNotFound
	}

	switch source {
	case record.SourceCanteen:
		if !record.ValidMonth(row.Month) {
			return shared.ErrInvalidMonth
		}
		if row.Amount < 0 {
			return shared.ErrNegativeValue
		}
	case record.SourceAcademic:
		if !record.ValidMonth(row.Month) {
			return shared.ErrInvalidMonth
		}
		if row.Score < 0 {
			return shared.ErrNegativeValue
		}
	case record.SourceGate, record.SourceDormitory:
		if row.Timestamp.IsZero() {
			return shared.ErrEmptyValue
		}
		if _, err := record.ParseDirection(row.Direction); err != nil {
			return err
		}
	case record.SourceNetwork:
		if row.StartTime.IsZero() || row.EndTime.IsZero() {
			return shared.ErrEmptyValue
		}
		if row.EndTime.Before(row.StartTime) {
			return shared.ErrValueOutOfRange
		}
	}
	return nil
}

// insertBatch converts raw rows to records and writes them through the
// repository. Monthly sources replace (student, month) duplicates at the
// storage layer, making re-imports idempotent.
func (imp *Importer) insertBatch(ctx context.Context, source record.SourceType, rows []RawRow) (int, error) {
	switch source {
	case record.SourceCanteen:
		out := make([]record.CanteenRecord, len(rows))
		for i, r := range rows {
			out[i] = record.CanteenRecord{StudentID: student.ID(r.StudentID), Month: r.Month, Amount: r.Amount}
		}
		return imp.events.BulkInsertCanteen(ctx, out)
	case record.SourceAcademic:
		out := make([]record.AcademicRecord, len(rows))
		for i, r := range rows {
			out[i] = record.AcademicRecord{StudentID: student.ID(r.StudentID), Month: r.Month, Score: r.Score}
		}
		return imp.events.BulkInsertAcademic(ctx, out)
	case record.SourceGate:
		out := make([]record.GateRecord, len(rows))
		for i, r := range rows {
			dir, _ := record.ParseDirection(r.Direction)
			out[i] = record.GateRecord{StudentID: student.ID(r.StudentID), Timestamp: r.Timestamp, Location: r.Location, Direction: dir}
		}
		return imp.events.BulkInsertGate(ctx, out)
	case record.SourceDormitory:
		out := make([]record.DormRecord, len(rows))
		for i, r := range rows {
			dir, _ := record.ParseDirection(r.Direction)
			out[i] = record.DormRecord{StudentID: student.ID(r.StudentID), Timestamp: r.Timestamp, Building: r.Location, Direction: dir}
		}
		return imp.events.BulkInsertDorm(ctx, out)
	case record.SourceNetwork:
		out := make([]record.NetworkRecord, len(rows))
		for i, r := range rows {
			out[i] = record.NetworkRecord{StudentID: student.ID(r.StudentID), StartTime: r.StartTime, EndTime: r.EndTime, Domain: r.Domain, UsedVPN: r.UsedVPN}
		}
		return imp.events.BulkInsertNetwork(ctx, out)
	}
	return 0, shared.ErrUnknownSourceType
}
