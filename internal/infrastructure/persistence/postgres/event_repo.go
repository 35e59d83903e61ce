package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/campus-insight/campus-insight-hub/internal/domain/record"
	"github.com/campus-insight/campus-insight-hub/internal/domain/shared"
	"github.com/campus-insight/campus-insight-hub/internal/domain/student"
	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// EventRepository implements record.EventRepository using PostgreSQL.
//
// Monthly sources (canteen, academic) store the month as a YYYY-MM text
// column; lexical comparison on that column matches chronological order,
// so range filters pass month strings directly.
type EventRepository struct {
	conn *Connection
}

// NewEventRepository creates a new PostgreSQL event repository.
func NewEventRepository(conn *Connection) *EventRepository {
	return &EventRepository{conn: conn}
}

// sourceTables maps each source to its table and time column, used by
// CountEvents.
var sourceTables = map[record.SourceType]struct {
	table   string
	column  string
	monthly bool
}{
	record.SourceCanteen:   {"canteen_records", "month", true},
	record.SourceGate:      {"gate_records", "ts", false},
	record.SourceDormitory: {"dorm_records", "ts", false},
	record.SourceNetwork:   {"network_records", "start_time", false},
	record.SourceAcademic:  {"academic_records", "month", true},
}

// ──────────────────────────────────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────────────────────────────────

// FetchCanteen returns canteen records for the students whose months fall
// inside [from, to], ordered by (student_id, month).
func (r *EventRepository) FetchCanteen(ctx context.Context, ids []student.ID, from, to time.Time) ([]record.CanteenRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := idArgs(ids)
	args = append(args, from.Format(record.MonthLayout), to.Format(record.MonthLayout))

	query := `SELECT student_id, month, amount FROM canteen_records
		WHERE student_id IN (` + placeholders + `)
		  AND month >= $` + fmt.Sprint(len(ids)+1) + ` AND month <= $` + fmt.Sprint(len(ids)+2) + `
		ORDER BY student_id, month`

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch canteen records: %w", err)
	}
	defer rows.Close()

	var out []record.CanteenRecord
	for rows.Next() {
		var (
			rec record.CanteenRecord
			id  string
		)
		if err := rows.Scan(&id, &rec.Month, &rec.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan canteen record: %w", err)
		}
		rec.StudentID = student.ID(id)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FetchGate returns gate swipes for the students in [from, to], ordered by
// (student_id, timestamp).
func (r *EventRepository) FetchGate(ctx context.Context, ids []student.ID, from, to time.Time) ([]record.GateRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := idArgs(ids)
	args = append(args, from, to)

	query := `SELECT student_id, ts, location, direction FROM gate_records
		WHERE student_id IN (` + placeholders + `)
		  AND ts >= $` + fmt.Sprint(len(ids)+1) + ` AND ts <= $` + fmt.Sprint(len(ids)+2) + `
		ORDER BY student_id, ts`

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gate records: %w", err)
	}
	defer rows.Close()

	var out []record.GateRecord
	for rows.Next() {
		var (
			rec record.GateRecord
			id  string
			dir string
		)
		if err := rows.Scan(&id, &rec.Timestamp, &rec.Location, &dir); err != nil {
			return nil, fmt.Errorf("failed to scan gate record: %w", err)
		}
		rec.StudentID = student.ID(id)
		rec.Direction = record.Direction(dir)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FetchDorm returns dormitory swipes for the students in [from, to],
// ordered by (student_id, timestamp).
func (r *EventRepository) FetchDorm(ctx context.Context, ids []student.ID, from, to time.Time) ([]record.DormRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := idArgs(ids)
	args = append(args, from, to)

	query := `SELECT student_id, ts, building, direction FROM dorm_records
		WHERE student_id IN (` + placeholders + `)
		  AND ts >= $` + fmt.Sprint(len(ids)+1) + ` AND ts <= $` + fmt.Sprint(len(ids)+2) + `
		ORDER BY student_id, ts`

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dorm records: %w", err)
	}
	defer rows.Close()

	var out []record.DormRecord
	for rows.Next() {
		var (
			rec record.DormRecord
			id  string
			dir string
		)
		if err := rows.Scan(&id, &rec.Timestamp, &rec.Building, &dir); err != nil {
			return nil, fmt.Errorf("failed to scan dorm record: %w", err)
		}
		rec.StudentID = student.ID(id)
		rec.Direction = record.Direction(dir)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FetchNetwork returns network sessions starting in [from, to], ordered by
// (student_id, start_time).
func (r *EventRepository) FetchNetwork(ctx context.Context, ids []student.ID, from, to time.Time) ([]record.NetworkRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := idArgs(ids)
	args = append(args, from, to)

	query := `SELECT student_id, start_time, end_time, domain, used_vpn FROM network_records
		WHERE student_id IN (` + placeholders + `)
		  AND start_time >= $` + fmt.Sprint(len(ids)+1) + ` AND start_time <= $` + fmt.Sprint(len(ids)+2) + `
		ORDER BY student_id, start_time`

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch network records: %w", err)
	}
	defer rows.Close()

	var out []record.NetworkRecord
	for rows.Next() {
		var (
			rec record.NetworkRecord
			id  string
		)
		if err := rows.Scan(&id, &rec.StartTime, &rec.EndTime, &rec.Domain, &rec.UsedVPN); err != nil {
			return nil, fmt.Errorf("failed to scan network record: %w", err)
		}
		rec.StudentID = student.ID(id)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FetchAcademic returns academic records for the students whose months fall
// inside [from, to], ordered by (student_id, month).
func (r *EventRepository) FetchAcademic(ctx context.Context, ids []student.ID, from, to time.Time) ([]record.AcademicRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := idArgs(ids)
	args = append(args, from.Format(record.MonthLayout), to.Format(record.MonthLayout))

	query := `SELECT student_id, month, score FROM academic_records
		WHERE student_id IN (` + placeholders + `)
		  AND month >= $` + fmt.Sprint(len(ids)+1) + ` AND month <= $` + fmt.Sprint(len(ids)+2) + `
		ORDER BY student_id, month`

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch academic records: %w", err)
	}
	defer rows.Close()

	var out []record.AcademicRecord
	for rows.Next() {
		var (
			rec record.AcademicRecord
			id  string
		)
		if err := rows.Scan(&id, &rec.Month, &rec.Score); err != nil {
			return nil, fmt.Errorf("failed to scan academic record: %w", err)
		}
		rec.StudentID = student.ID(id)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountEvents estimates how many records of one source fall in the range,
// across all students.
func (r *EventRepository) CountEvents(ctx context.Context, source record.SourceType, from, to time.Time) (int64, error) {
	meta, ok := sourceTables[source]
	if !ok {
		return 0, shared.ErrUnknownSourceType
	}

	query := fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE %s >= $1 AND %s <= $2`,
		meta.table, meta.column, meta.column,
	)

	var args []interface{}
	if meta.monthly {
		args = []interface{}{from.Format(record.MonthLayout), to.Format(record.MonthLayout)}
	} else {
		args = []interface{}{from, to}
	}

	var count int64
	if err := r.conn.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s events: %w", source, err)
	}
	return count, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Bulk inserts
// ──────────────────────────────────────────────────────────────────────────────

// BulkInsertCanteen inserts canteen rows, replacing any existing row for
// the same (student, month).
func (r *EventRepository) BulkInsertCanteen(ctx context.Context, rows []record.CanteenRecord) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, rec := range rows {
		batch.Queue(`
			INSERT INTO canteen_records (student_id, month, amount)
			VALUES ($1, $2, $3)
			ON CONFLICT (student_id, month) DO UPDATE SET amount = EXCLUDED.amount`,
			string(rec.StudentID), rec.Month, rec.Amount,
		)
	}
	return r.sendBatch(ctx, batch, len(rows), "canteen")
}

// BulkInsertGate appends gate swipes.
func (r *EventRepository) BulkInsertGate(ctx context.Context, rows []record.GateRecord) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, rec := range rows {
		batch.Queue(`
			INSERT INTO gate_records (student_id, ts, location, direction)
			VALUES ($1, $2, $3, $4)`,
			string(rec.StudentID), rec.Timestamp, rec.Location, string(rec.Direction),
		)
	}
	return r.sendBatch(ctx, batch, len(rows), "gate")
}

// BulkInsertDorm appends dormitory swipes.
func (r *EventRepository) BulkInsertDorm(ctx context.Context, rows []record.DormRecord) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, rec := range rows {
		batch.Queue(`
			INSERT INTO dorm_records (student_id, ts, building, direction)
			VALUES ($1, $2, $3, $4)`,
			string(rec.StudentID), rec.Timestamp, rec.Building, string(rec.Direction),
		)
	}
	return r.sendBatch(ctx, batch, len(rows), "dorm")
}

// BulkInsertNetwork appends network sessions.
func (r *EventRepository) BulkInsertNetwork(ctx context.Context, rows []record.NetworkRecord) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, rec := range rows {
		batch.Queue(`
			INSERT INTO network_records (student_id, start_time, end_time, domain, used_vpn)
			VALUES ($1, $2, $3, $4, $5)`,
			string(rec.StudentID), rec.StartTime, rec.EndTime, rec.Domain, rec.UsedVPN,
		)
	}
	return r.sendBatch(ctx, batch, len(rows), "network")
}

// BulkInsertAcademic inserts academic rows, replacing any existing row for
// the same (student, month).
func (r *EventRepository) BulkInsertAcademic(ctx context.Context, rows []record.AcademicRecord) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, rec := range rows {
		batch.Queue(`
			INSERT INTO academic_records (student_id, month, score)
			VALUES ($1, $2, $3)
			ON CONFLICT (student_id, month) DO UPDATE SET score = EXCLUDED.score`,
			string(rec.StudentID), rec.Month, rec.Score,
		)
	}
	return r.sendBatch(ctx, batch, len(rows), "academic")
}

// sendBatch flushes a queued batch and returns how many statements ran.
func (r *EventRepository) sendBatch(ctx context.Context, batch *pgx.Batch, n int, source string) (int, error) {
	results := r.conn.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < n; i++ {
		if _, err := results.Exec(); err != nil {
			return i, fmt.Errorf("failed to insert %s record %d: %w", source, i, err)
		}
	}
	return n, nil
}

// idArgs builds an IN-clause placeholder list for a student ID set.
func idArgs(ids []student.ID) (string, []interface{}) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids)+2)
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, string(id))
	}
	return strings.Join(placeholders, ", "), args
}
