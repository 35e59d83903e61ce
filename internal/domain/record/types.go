// Package record defines the immutable raw activity records owned by
// canonical storage. Records are written once by the import coordinator
// and only ever read by the analysis pipeline.
package record

import (
	"time"

	"github.com/campus-insight/campus-insight-hub/internal/domain/shared"
	"github.com/campus-insight/campus-insight-hub/internal/domain/student"
)

// SourceType identifies which campus system produced a record.
type SourceType string

const (
	SourceCanteen   SourceType = "canteen"
	SourceGate      SourceType = "school_gate"
	SourceDormitory SourceType = "dormitory"
	SourceNetwork   SourceType = "network"
	SourceAcademic  SourceType = "academic"
)

// AllSourceTypes lists every known source in a stable order.
var AllSourceTypes = []SourceType{
	SourceCanteen,
	SourceGate,
	SourceDormitory,
	SourceNetwork,
	SourceAcademic,
}

// IsValid reports whether the source type is known.
func (s SourceType) IsValid() bool {
	switch s {
	case SourceCanteen, SourceGate, SourceDormitory, SourceNetwork, SourceAcademic:
		return true
	}
	return false
}

// Direction of a gate or dormitory swipe.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// ParseDirection normalizes the direction values seen in campus exports.
func ParseDirection(raw string) (Direction, error) {
	switch raw {
	case "in", "enter", "进", "进入":
		return DirectionIn, nil
	case "out", "exit", "leave", "出", "离开", "出去":
		return DirectionOut, nil
	}
	return "", shared.ErrInvalidDirection
}

// MonthLayout is the storage format for monthly-granularity records.
const MonthLayout = "2006-01"

// CanteenRecord is one month of canteen spend for one student.
type CanteenRecord struct {
	StudentID student.ID
	Month     string // MonthLayout
	Amount    float64
}

// GateRecord is one campus-gate swipe.
type GateRecord struct {
	StudentID student.ID
	Timestamp time.Time
	Location  string
	Direction Direction
}

// DormRecord is one dormitory door swipe.
type DormRecord struct {
	StudentID student.ID
	Timestamp time.Time
	Building  string
	Direction Direction
}

// NetworkRecord is one campus-network session.
type NetworkRecord struct {
	StudentID student.ID
	StartTime time.Time
	EndTime   time.Time
	Domain    string
	UsedVPN   bool
}

// AcademicRecord is one month's average score for one student.
type AcademicRecord struct {
	StudentID student.ID
	Month     string // MonthLayout
	Score     float64
}

// Duration returns the session length in hours, never negative.
func (r NetworkRecord) Duration() float64 {
	h := r.EndTime.Sub(r.StartTime).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// ValidMonth reports whether s parses under MonthLayout.
func ValidMonth(s string) bool {
	_, err := time.Parse(MonthLayout, s)
	return err == nil
}
