package http

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schoolhub/attendance/internal/auth"
	"schoolhub/attendance/internal/cache"
	"schoolhub/attendance/internal/config"
	"schoolhub/attendance/internal/db"
)

// statusNotMarked is the roster view default for students without an
// attendance row. It never reaches the store; normalizeStatus rejects it.
const statusNotMarked = "not_marked"

const dateLayout = "2006-01-02"

var validate = validator.New()

var recordedRows = promauto.NewCounter(prometheus.CounterOpts{
	Name: "attendance_rows_recorded_total",
	Help: "Attendance rows written through the record and bulk record endpoints.",
})

type Server struct {
	cfg    config.Config
	store  *db.Store
	grades *cache.GradeCache
}

func NewServer(cfg config.Config, store *db.Store, grades *cache.GradeCache) *Server {
	return &Server{cfg: cfg, store: store, grades: grades}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.With(s.authMiddleware, s.staffOnly).Post("/attendance", s.handleRecordAttendance)
	r.With(s.authMiddleware, s.staffOnly).Post("/attendance/bulk", s.handleRecordAttendanceBulk)
	r.With(s.authMiddleware, s.staffOnly).Get("/attendance/class/{classID}", s.handleGetClassAttendance)
	r.With(s.authMiddleware).Get("/attendance/student/{studentID}", s.handleListStudentAttendance)
	r.With(s.authMiddleware).Get("/attendance/statistics/{studentID}", s.handleGetStudentStatistics)
	r.With(s.authMiddleware).Get("/grades/student/{studentID}", s.handleGetStudentGrades)
	r.With(s.authMiddleware, s.staffOnly).Post("/grades", s.handleCreateGrade)

	return r
}

// Middleware

type claimsKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func (s *Server) staffOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		if claims.UserType != "teacher" && claims.UserType != "admin" {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}

// canAccessStudent gates student-scoped reads: students see only their own
// rows, teachers and admins see any.
func canAccessStudent(claims *auth.Claims, studentID int64) bool {
	switch claims.UserType {
	case "teacher", "admin":
		return true
	case "student":
		return claims.UserID == strconv.FormatInt(studentID, 10)
	default:
		return false
	}
}

// Models

type recordAttendanceRequest struct {
	StudentID      int64   `json:"studentId" validate:"required"`
	ClassID        int64   `json:"classId" validate:"required"`
	SubjectID      *int64  `json:"subjectId"`
	AttendanceDate string  `json:"attendanceDate" validate:"required"`
	Status         string  `json:"status" validate:"required"`
	Remarks        *string `json:"remarks"`
}

type bulkAttendanceEntry struct {
	StudentID int64   `json:"studentId" validate:"required"`
	SubjectID *int64  `json:"subjectId"`
	Status    string  `json:"status" validate:"required"`
	Remarks   *string `json:"remarks"`
}

type bulkAttendanceRequest struct {
	ClassID int64                 `json:"classId" validate:"required"`
	Date    string                `json:"date" validate:"required"`
	Records []bulkAttendanceEntry `json:"records" validate:"required,min=1,dive"`
}

type createGradeRequest struct {
	StudentID int64   `json:"studentId" validate:"required"`
	SubjectID int64   `json:"subjectId" validate:"required"`
	Score     float64 `json:"score" validate:"gte=0"`
	MaxScore  float64 `json:"maxScore" validate:"gt=0"`
	Term      string  `json:"term" validate:"required"`
	GradedAt  string  `json:"gradedAt"`
}

type attendanceResponse struct {
	ID             int64   `json:"id"`
	StudentID      int64   `json:"studentId"`
	ClassID        int64   `json:"classId"`
	SubjectID      *int64  `json:"subjectId,omitempty"`
	AttendanceDate string  `json:"attendanceDate"`
	Status         string  `json:"status"`
	Remarks        *string `json:"remarks,omitempty"`
}

type rosterEntryResponse struct {
	StudentID  int64   `json:"studentId"`
	FirstName  string  `json:"firstName"`
	LastName   string  `json:"lastName"`
	RollNumber string  `json:"rollNumber"`
	Status     string  `json:"status"`
	Remarks    *string `json:"remarks,omitempty"`
}

type statisticsResponse struct {
	Total      int64   `json:"total"`
	Present    int64   `json:"present"`
	Absent     int64   `json:"absent"`
	Late       int64   `json:"late"`
	Excused    int64   `json:"excused"`
	Percentage float64 `json:"percentage"`
}

// Handlers

func (s *Server) handleRecordAttendance(w http.ResponseWriter, r *http.Request) {
	var req recordAttendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	date, err := parseDate(req.AttendanceDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}
	statusValue, err := normalizeStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}

	record, err := s.store.Queries.UpsertAttendance(r.Context(), db.UpsertAttendanceParams{
		StudentID:      req.StudentID,
		ClassID:        req.ClassID,
		SubjectID:      req.SubjectID,
		AttendanceDate: date,
		Status:         statusValue,
		Remarks:        req.Remarks,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	recordedRows.Inc()
	writeJSON(w, http.StatusOK, mapAttendance(record))
}

func (s *Server) handleRecordAttendanceBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkAttendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}
	// Statuses are checked up front so a bad value never opens a transaction.
	statuses := make([]db.AttendanceStatus, len(req.Records))
	for i, entry := range req.Records {
		statusValue, err := normalizeStatus(entry.Status)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_status")
			return
		}
		statuses[i] = statusValue
	}

	// One transaction for the whole batch: records apply in input order and
	// any failure rolls every row back. Partial application is never visible.
	records := make([]attendanceResponse, 0, len(req.Records))
	err = s.store.WithTx(r.Context(), func(q *db.Queries) error {
		for i, entry := range req.Records {
			record, err := q.UpsertAttendance(r.Context(), db.UpsertAttendanceParams{
				StudentID:      entry.StudentID,
				ClassID:        req.ClassID,
				SubjectID:      entry.SubjectID,
				AttendanceDate: date,
				Status:         statuses[i],
				Remarks:        entry.Remarks,
			})
			if err != nil {
				return err
			}
			records = append(records, mapAttendance(record))
		}
		return nil
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	recordedRows.Add(float64(len(records)))
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetClassAttendance(w http.ResponseWriter, r *http.Request) {
	classID, err := parseID(chi.URLParam(r, "classID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_class_id")
		return
	}
	dateRaw := r.URL.Query().Get("date")
	if dateRaw == "" {
		writeError(w, http.StatusBadRequest, "missing_date")
		return
	}
	date, err := parseDate(dateRaw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}
	var subjectID *int64
	if raw := r.URL.Query().Get("subjectId"); raw != "" {
		parsed, err := parseID(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_subject_id")
			return
		}
		subjectID = &parsed
	}

	entries, err := s.store.Queries.GetClassAttendance(r.Context(), db.GetClassAttendanceParams{
		ClassID:   classID,
		Date:      date,
		SubjectID: subjectID,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	resp := make([]rosterEntryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, mapRosterEntry(entry))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListStudentAttendance(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	studentID, err := parseID(chi.URLParam(r, "studentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_student_id")
		return
	}
	if !canAccessStudent(claims, studentID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var startDate, endDate *time.Time
	if raw := r.URL.Query().Get("startDate"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date")
			return
		}
		startDate = &parsed
	}
	if raw := r.URL.Query().Get("endDate"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date")
			return
		}
		endDate = &parsed
	}

	records, err := s.store.Queries.ListStudentAttendance(r.Context(), db.ListStudentAttendanceParams{
		StudentID: studentID,
		StartDate: startDate,
		EndDate:   endDate,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	resp := make([]attendanceResponse, 0, len(records))
	for _, record := range records {
		resp = append(resp, mapAttendance(record))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetStudentStatistics(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	studentID, err := parseID(chi.URLParam(r, "studentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_student_id")
		return
	}
	if !canAccessStudent(claims, studentID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	stats, err := s.store.Queries.GetAttendanceStatistics(r.Context(), studentID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statisticsResponse{
		Total:      stats.Total,
		Present:    stats.Present,
		Absent:     stats.Absent,
		Late:       stats.Late,
		Excused:    stats.Excused,
		Percentage: presentPercentage(stats.Present, stats.Total),
	})
}

func (s *Server) handleGetStudentGrades(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	studentID, err := parseID(chi.URLParam(r, "studentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_student_id")
		return
	}
	if !canAccessStudent(claims, studentID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	cached, hit, err := s.grades.Get(r.Context(), studentID)
	if err == nil && hit {
		writeJSON(w, http.StatusOK, cached)
		return
	}
	grades, err := s.store.Queries.ListGradesByStudent(r.Context(), studentID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if grades == nil {
		grades = []db.Grade{}
	}
	_ = s.grades.Set(r.Context(), studentID, grades)
	writeJSON(w, http.StatusOK, grades)
}

func (s *Server) handleCreateGrade(w http.ResponseWriter, r *http.Request) {
	var req createGradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	gradedAt := time.Now().UTC()
	if req.GradedAt != "" {
		parsed, err := parseDate(req.GradedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date")
			return
		}
		gradedAt = parsed
	}

	grade, err := s.store.Queries.CreateGrade(r.Context(), db.CreateGradeParams{
		StudentID: req.StudentID,
		SubjectID: req.SubjectID,
		Score:     req.Score,
		MaxScore:  req.MaxScore,
		Term:      req.Term,
		GradedAt:  gradedAt,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	_ = s.grades.Invalidate(r.Context(), req.StudentID)
	writeJSON(w, http.StatusOK, grade)
}

// Mapping helpers

func mapAttendance(record db.AttendanceRecord) attendanceResponse {
	return attendanceResponse{
		ID:             record.ID,
		StudentID:      record.StudentID,
		ClassID:        record.ClassID,
		SubjectID:      record.SubjectID,
		AttendanceDate: record.AttendanceDate.Format(dateLayout),
		Status:         string(record.Status),
		Remarks:        record.Remarks,
	}
}

func mapRosterEntry(entry db.RosterEntry) rosterEntryResponse {
	resp := rosterEntryResponse{
		StudentID:  entry.StudentID,
		FirstName:  entry.FirstName,
		LastName:   entry.LastName,
		RollNumber: entry.StudentCode,
		Status:     statusNotMarked,
		Remarks:    entry.Remarks,
	}
	if entry.Status != nil {
		resp.Status = string(*entry.Status)
	}
	return resp
}

func normalizeStatus(value string) (db.AttendanceStatus, error) {
	status := db.AttendanceStatus(value)
	if !status.Valid() {
		return "", errInvalid
	}
	return status, nil
}

func presentPercentage(present, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(present)/float64(total)*10000) / 100
}

func parseDate(value string) (time.Time, error) {
	return time.Parse(dateLayout, value)
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalid
	}
	return id, nil
}

func writeStoreError(w http.ResponseWriter, err error) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503":
			writeError(w, http.StatusBadRequest, "invalid_reference")
			return
		case "23505":
			writeError(w, http.StatusConflict, "conflict")
			return
		case "23514":
			writeError(w, http.StatusBadRequest, "invalid_status")
			return
		}
	}
	writeError(w, http.StatusInternalServerError, "server_error")
}

// Utilities

var errInvalid = errors.New("invalid value")

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
