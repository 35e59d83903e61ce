// Package report turns risk assessments into the final report structure.
// Composition is pure: no storage, no formatting, no clock. The caller
// serializes the result however it needs.
package report

import (
	"sort"
	"strconv"

	"github.com/campus-insight/campus-insight-hub/internal/domain/analysis"
	"github.com/campus-insight/campus-insight-hub/internal/domain/student"
)

// Row is one student line in the composed report.
type Row struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	College   string `json:"college"`
	Major     string `json:"major"`
	Grade     int    `json:"grade"`

	AnomalyScore float64              `json:"anomaly_score"`
	IsOutlier    bool                 `json:"is_outlier"`
	Level        analysis.RiskLevel   `json:"level"`
	Profile      analysis.ProfileType `json:"profile,omitempty"`
	Strategy     string               `json:"strategy,omitempty"`
	Tags         []string             `json:"tags,omitempty"`
	Reasons      []string             `json:"reasons,omitempty"`
}

// GroupTotal is a per-group rollup; Flagged counts rows with a risk level
// other than none.
type GroupTotal struct {
	Key      string `json:"key"`
	Students int    `json:"students"`
	Flagged  int    `json:"flagged"`
}

// Report is the composed output of one analysis run.
type Report struct {
	Kind   analysis.Kind   `json:"kind"`
	Window analysis.Window `json:"window"`

	Rows      []Row        `json:"rows"`
	ByGrade   []GroupTotal `json:"by_grade"`
	ByCollege []GroupTotal `json:"by_college"`

	TotalStudents int `json:"total_students"`
	TotalFlagged  int `json:"total_flagged"`
}

// Compose left-joins assessments onto student metadata. Students without
// an assessment are omitted; assessments for unknown students are joined
// with blank metadata so no verdict silently disappears. Rows are sorted
// by (grade, college, major, student ID); identical inputs always yield
// an identical report.
func Compose(kind analysis.Kind, window analysis.Window, assessments []analysis.RiskAssessment, students []*student.Student) *Report {
	byID := make(map[student.ID]*student.Student, len(students))
	for _, s := range students {
		byID[s.ID] = s
	}

	rows := make([]Row, 0, len(assessments))
	for i := range assessments {
		a := &assessments[i]
		row := Row{
			StudentID:    string(a.StudentID),
			AnomalyScore: a.AnomalyScore,
			IsOutlier:    a.IsOutlier,
			Level:        a.Level,
			Profile:      a.Profile,
			Tags:         tagStrings(a.Tags),
			Reasons:      append([]string(nil), a.Reasons...),
		}
		if a.Profile != "" {
			row.Strategy = a.Profile.Strategy()
		}
		if s, ok := byID[a.StudentID]; ok {
			row.Name = s.Name
			row.College = s.College
			row.Major = s.Major
			row.Grade = s.Grade
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Grade != b.Grade {
			return a.Grade < b.Grade
		}
		if a.College != b.College {
			return a.College < b.College
		}
		if a.Major != b.Major {
			return a.Major < b.Major
		}
		return a.StudentID < b.StudentID
	})

	r := &Report{
		Kind:          kind,
		Window:        window,
		Rows:          rows,
		TotalStudents: len(rows),
	}
	for _, row := range rows {
		if row.Level != analysis.RiskNone {
			r.TotalFlagged++
		}
	}
	r.ByGrade = groupTotals(rows, func(row Row) string { return gradeKey(row.Grade) })
	r.ByCollege = groupTotals(rows, func(row Row) string { return row.College })
	return r
}

func tagStrings(tags []analysis.RuleTag) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return out
}

func gradeKey(grade int) string {
	if grade == 0 {
		return "unknown"
	}
	return strconv.Itoa(grade)
}

// groupTotals rolls rows up by key, sorted by key for stable output.
func groupTotals(rows []Row, key func(Row) string) []GroupTotal {
	idx := make(map[string]int)
	var out []GroupTotal
	for _, row := range rows {
		k := key(row)
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, GroupTotal{Key: k})
		}
		out[i].Students++
		if row.Level != analysis.RiskNone {
			out[i].Flagged++
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
