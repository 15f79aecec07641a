package http

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

func newJSONRequest(body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodPost, "/attendance", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func TestNormalizeStatus(t *testing.T) {
	valid := []string{"present", "absent", "late", "excused"}
	for _, status := range valid {
		if _, err := normalizeStatus(status); err != nil {
			t.Fatalf("expected status %s to be valid", status)
		}
	}
	for _, status := range []string{"", "unknown", "not_marked", "Present"} {
		if _, err := normalizeStatus(status); err == nil {
			t.Fatalf("expected status %q to be rejected", status)
		}
	}
}

func TestPresentPercentage(t *testing.T) {
	cases := []struct {
		present int64
		total   int64
		expect  float64
	}{
		{7, 10, 70.00},
		{0, 0, 0},
		{0, 5, 0},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{10, 10, 100.00},
	}
	for _, c := range cases {
		if got := presentPercentage(c.present, c.total); got != c.expect {
			t.Fatalf("percentage of %d/%d: expected %.2f, got %.2f", c.present, c.total, c.expect, got)
		}
	}
}

func TestParseDate(t *testing.T) {
	date, err := parseDate("2024-03-01")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if date.Year() != 2024 || date.Month() != 3 || date.Day() != 1 {
		t.Fatalf("unexpected date %v", date)
	}
	for _, raw := range []string{"", "01-03-2024", "2024-03-01T10:00:00Z", "2024-13-40"} {
		if _, err := parseDate(raw); err == nil {
			t.Fatalf("expected date %q to be rejected", raw)
		}
	}
}

func TestParseID(t *testing.T) {
	if id, err := parseID("101"); err != nil || id != 101 {
		t.Fatalf("expected 101, got %d (%v)", id, err)
	}
	for _, raw := range []string{"", "0", "-3", "abc"} {
		if _, err := parseID(raw); err == nil {
			t.Fatalf("expected id %q to be rejected", raw)
		}
	}
}

func TestBulkRequestValidation(t *testing.T) {
	req := bulkAttendanceRequest{
		ClassID: 7,
		Date:    "2024-03-01",
		Records: []bulkAttendanceEntry{{StudentID: 101, Status: "present"}},
	}
	if err := validate.Struct(req); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	req.Records = nil
	if err := validate.Struct(req); err == nil {
		t.Fatalf("expected empty records to be rejected")
	}

	req.Records = []bulkAttendanceEntry{{Status: "present"}}
	if err := validate.Struct(req); err == nil {
		t.Fatalf("expected missing studentId to be rejected")
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	body := `{"studentId":101,"classId":7,"attendanceDate":"2024-03-01","status":"present","extra":true}`
	var req recordAttendanceRequest
	httpReq, err := newJSONRequest(strings.NewReader(body))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if err := decodeJSON(httpReq, &req); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
}

func TestBearerToken(t *testing.T) {
	if got := bearerToken("Bearer abc"); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
	if got := bearerToken("bearer abc"); got != "abc" {
		t.Fatalf("expected case-insensitive scheme, got %q", got)
	}
	for _, header := range []string{"", "abc", "Basic abc"} {
		if got := bearerToken(header); got != "" {
			t.Fatalf("expected empty token for %q, got %q", header, got)
		}
	}
}
