// Package student defines student identity and organizational metadata.
// Students here are data subjects imported from campus systems, not
// authenticated users of the platform.
package student

import (
	"strings"

	"github.com/campus-insight/campus-insight-hub/internal/domain/shared"
)

// ID is the campus-issued student number, unique per student.
type ID string

// IsValid reports whether the student number is plausible. Campus numbers
// are 4-20 characters with no surrounding whitespace.
func (id ID) IsValid() bool {
	s := string(id)
	return len(s) >= 4 && len(s) <= 20 && s == strings.TrimSpace(s)
}

// String returns the underlying string value.
func (id ID) String() string {
	return string(id)
}

// NewID creates a validated student ID from raw input.
func NewID(raw string) (ID, error) {
	id := ID(strings.TrimSpace(raw))
	if !id.IsValid() {
		return "", shared.ErrInvalidStudentID
	}
	return id, nil
}

// Student holds identity and organizational metadata for one student.
// The analysis pipeline reads this metadata to join assessments into
// report rows; it never mutates it.
type Student struct {
	ID      ID
	Name    string
	College string // college code, e.g. "CS"
	Major   string // major code within the college
	Grade   int    // enrollment year, e.g. 2023
}

// Validate checks the student record for import.
func (s *Student) Validate() error {
	if !s.ID.IsValid() {
		return shared.ErrInvalidStudentID
	}
	if s.Name == "" {
		return shared.WrapError("student", "Validate", shared.ErrEmptyValue, "name is required", nil)
	}
	if s.College == "" || s.Major == "" {
		return shared.WrapError("student", "Validate", shared.ErrEmptyValue, "college and major codes are required", nil)
	}
	if s.Grade < 1990 || s.Grade > 2100 {
		return shared.WrapError("student", "Validate", shared.ErrValueOutOfRange, "grade must be an enrollment year", nil)
	}
	return nil
}
