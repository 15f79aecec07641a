package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

type UpsertAttendanceParams struct {
	StudentID      int64
	ClassID        int64
	SubjectID      *int64
	AttendanceDate time.Time
	Status         AttendanceStatus
	Remarks        *string
}

// UpsertAttendance writes one attendance row keyed by
// (student, class, subject, date); an existing row keeps its identity and
// gets its status and remarks overwritten.
func (q *Queries) UpsertAttendance(ctx context.Context, arg UpsertAttendanceParams) (AttendanceRecord, error) {
	var record AttendanceRecord
	row := q.db.QueryRow(ctx, `
		INSERT INTO attendance (student_id, class_id, subject_id, attendance_date, status, remarks)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (student_id, class_id, subject_id, attendance_date)
		DO UPDATE SET status = EXCLUDED.status, remarks = EXCLUDED.remarks, updated_at = now()
		RETURNING id, student_id, class_id, subject_id, attendance_date, status, remarks, created_at, updated_at
	`, arg.StudentID, arg.ClassID, arg.SubjectID, arg.AttendanceDate, arg.Status, arg.Remarks)
	err := row.Scan(
		&record.ID,
		&record.StudentID,
		&record.ClassID,
		&record.SubjectID,
		&record.AttendanceDate,
		&record.Status,
		&record.Remarks,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	return record, err
}

type GetClassAttendanceParams struct {
	ClassID   int64
	Date      time.Time
	SubjectID *int64
}

// GetClassAttendance returns every actively enrolled student of the class,
// left-joined to the attendance row for the date. Without a subject filter
// several subject rows can match one student; the lateral join picks the
// latest by updated_at, then id.
func (q *Queries) GetClassAttendance(ctx context.Context, arg GetClassAttendanceParams) ([]RosterEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT s.id, s.first_name, s.last_name, s.student_code, a.status, a.remarks
		FROM student_classes sc
		JOIN students s ON s.id = sc.student_id
		LEFT JOIN LATERAL (
			SELECT att.status, att.remarks
			FROM attendance att
			WHERE att.student_id = s.id
			  AND att.class_id = sc.class_id
			  AND att.attendance_date = $2
			  AND ($3::bigint IS NULL OR att.subject_id = $3)
			ORDER BY att.updated_at DESC, att.id DESC
			LIMIT 1
		) a ON true
		WHERE sc.class_id = $1 AND sc.status = 'active'
		ORDER BY s.last_name, s.first_name
	`, arg.ClassID, arg.Date, arg.SubjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []RosterEntry
	for rows.Next() {
		var entry RosterEntry
		var status *string
		if err := rows.Scan(&entry.StudentID, &entry.FirstName, &entry.LastName, &entry.StudentCode, &status, &entry.Remarks); err != nil {
			return nil, err
		}
		if status != nil {
			marked := AttendanceStatus(*status)
			entry.Status = &marked
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type ListStudentAttendanceParams struct {
	StudentID int64
	StartDate *time.Time
	EndDate   *time.Time
}

func (q *Queries) ListStudentAttendance(ctx context.Context, arg ListStudentAttendanceParams) ([]AttendanceRecord, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, student_id, class_id, subject_id, attendance_date, status, remarks, created_at, updated_at
		FROM attendance
		WHERE student_id = $1
		  AND ($2::date IS NULL OR attendance_date >= $2)
		  AND ($3::date IS NULL OR attendance_date <= $3)
		ORDER BY attendance_date DESC, id DESC
	`, arg.StudentID, arg.StartDate, arg.EndDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []AttendanceRecord
	for rows.Next() {
		var record AttendanceRecord
		if err := rows.Scan(
			&record.ID,
			&record.StudentID,
			&record.ClassID,
			&record.SubjectID,
			&record.AttendanceDate,
			&record.Status,
			&record.Remarks,
			&record.CreatedAt,
			&record.UpdatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (q *Queries) GetAttendanceStatistics(ctx context.Context, studentID int64) (AttendanceStatistics, error) {
	var stats AttendanceStatistics
	row := q.db.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE status = 'present'),
		       count(*) FILTER (WHERE status = 'absent'),
		       count(*) FILTER (WHERE status = 'late'),
		       count(*) FILTER (WHERE status = 'excused')
		FROM attendance
		WHERE student_id = $1
	`, studentID)
	err := row.Scan(&stats.Total, &stats.Present, &stats.Absent, &stats.Late, &stats.Excused)
	return stats, err
}

func (q *Queries) ListGradesByStudent(ctx context.Context, studentID int64) ([]Grade, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, student_id, subject_id, score, max_score, term, graded_at, created_at
		FROM grades
		WHERE student_id = $1
		ORDER BY graded_at DESC, id DESC
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grades []Grade
	for rows.Next() {
		var grade Grade
		if err := rows.Scan(
			&grade.ID,
			&grade.StudentID,
			&grade.SubjectID,
			&grade.Score,
			&grade.MaxScore,
			&grade.Term,
			&grade.GradedAt,
			&grade.CreatedAt,
		); err != nil {
			return nil, err
		}
		grades = append(grades, grade)
	}
	return grades, rows.Err()
}

type CreateGradeParams struct {
	StudentID int64
	SubjectID int64
	Score     float64
	MaxScore  float64
	Term      string
	GradedAt  time.Time
}

func (q *Queries) CreateGrade(ctx context.Context, arg CreateGradeParams) (Grade, error) {
	var grade Grade
	row := q.db.QueryRow(ctx, `
		INSERT INTO grades (student_id, subject_id, score, max_score, term, graded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, student_id, subject_id, score, max_score, term, graded_at, created_at
	`, arg.StudentID, arg.SubjectID, arg.Score, arg.MaxScore, arg.Term, arg.GradedAt)
	err := row.Scan(
		&grade.ID,
		&grade.StudentID,
		&grade.SubjectID,
		&grade.Score,
		&grade.MaxScore,
		&grade.Term,
		&grade.GradedAt,
		&grade.CreatedAt,
	)
	return grade, err
}
