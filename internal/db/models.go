package db

import "time"

// AttendanceStatus is the stored status domain. The roster view's
// "not_marked" sentinel is a read-time default and never appears here.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusLate    AttendanceStatus = "late"
	AttendanceStatusExcused AttendanceStatus = "excused"
)

func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

type AttendanceRecord struct {
	ID             int64
	StudentID      int64
	ClassID        int64
	SubjectID      *int64
	AttendanceDate time.Time
	Status         AttendanceStatus
	Remarks        *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RosterEntry is one row of the effective attendance view for a class/date.
// Status is nil when no attendance row matched the enrollment.
type RosterEntry struct {
	StudentID   int64
	FirstName   string
	LastName    string
	StudentCode string
	Status      *AttendanceStatus
	Remarks     *string
}

type AttendanceStatistics struct {
	Total   int64
	Present int64
	Absent  int64
	Late    int64
	Excused int64
}

type Grade struct {
	ID        int64     `json:"id"`
	StudentID int64     `json:"studentId"`
	SubjectID int64     `json:"subjectId"`
	Score     float64   `json:"score"`
	MaxScore  float64   `json:"maxScore"`
	Term      string    `json:"term"`
	GradedAt  time.Time `json:"gradedAt"`
	CreatedAt time.Time `json:"createdAt"`
}
