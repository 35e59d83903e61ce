package student

import "context"

// Repository provides access to student metadata in canonical storage.
type Repository interface {
	// GetByID returns a single student or shared.ErrStudentNotFound.
	GetByID(ctx context.Context, id ID) (*Student, error)

	// GetByIDs returns the students matching the given IDs.
	// Missing IDs are silently omitted from the result.
	GetByIDs(ctx context.Context, ids []ID) ([]*Student, error)

	// ListIDs returns all known student IDs in ascending order.
	ListIDs(ctx context.Context) ([]ID, error)

	// Upsert creates or updates a student keyed by student number.
	// Returns true when a new row was created.
	Upsert(ctx context.Context, s *Student) (created bool, err error)
}
