package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/campus-insight/campus-insight-hub/internal/domain/shared"
	"github.com/campus-insight/campus-insight-hub/internal/domain/student"
	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository using PostgreSQL.
type StudentRepository struct {
	conn *Connection
}

// NewStudentRepository creates a new PostgreSQL student repository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

const studentColumns = `student_id, name, college, major, grade`

// GetByID retrieves a student by campus student number.
func (r *StudentRepository) GetByID(ctx context.Context, id student.ID) (*student.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE student_id = $1`

	s, err := scanStudent(r.conn.QueryRow(ctx, query, string(id)))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to get student by ID: %w", err)
	}
	return s, nil
}

// GetByIDs retrieves students matching the given IDs. Unknown IDs are
// silently omitted.
func (r *StudentRepository) GetByIDs(ctx context.Context, ids []student.ID) ([]*student.Student, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = string(id)
	}

	query := `SELECT ` + studentColumns + ` FROM students
		WHERE student_id IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY student_id`

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get students by IDs: %w", err)
	}
	defer rows.Close()

	return scanStudents(rows)
}

// ListIDs returns all known student IDs in ascending order.
func (r *StudentRepository) ListIDs(ctx context.Context) ([]student.ID, error) {
	query := `SELECT student_id FROM students ORDER BY student_id`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list student IDs: %w", err)
	}
	defer rows.Close()

	var ids []student.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan student ID: %w", err)
		}
		ids = append(ids, student.ID(id))
	}
	return ids, rows.Err()
}

// Upsert creates or updates a student keyed by student number. The
// (xmax = 0) trick distinguishes a fresh insert from a conflict update.
func (r *StudentRepository) Upsert(ctx context.Context, s *student.Student) (bool, error) {
	query := `
		INSERT INTO students (student_id, name, college, major, grade)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_id) DO UPDATE SET
			name = EXCLUDED.name,
			college = EXCLUDED.college,
			major = EXCLUDED.major,
			grade = EXCLUDED.grade,
			updated_at = NOW()
		RETURNING (xmax = 0)`

	var created bool
	err := r.conn.QueryRow(ctx, query,
		string(s.ID),
		s.Name,
		s.College,
		s.Major,
		s.Grade,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("failed to upsert student: %w", err)
	}
	return created, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ──────────────────────────────────────────────────────────────────────────────

func scanStudent(row pgx.Row) (*student.Student, error) {
	var (
		s  student.Student
		id string
	)
	if err := row.Scan(&id, &s.Name, &s.College, &s.Major, &s.Grade); err != nil {
		return nil, err
	}
	s.ID = student.ID(id)
	return &s, nil
}

func scanStudents(rows pgx.Rows) ([]*student.Student, error) {
	var students []*student.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		students = append(students, s)
	}
	return students, rows.Err()
}
