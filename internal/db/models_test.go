package db

import "testing"

func TestAttendanceStatusValid(t *testing.T) {
	valid := []AttendanceStatus{AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate, AttendanceStatusExcused}
	for _, status := range valid {
		if !status.Valid() {
			t.Fatalf("expected status %s to be valid", status)
		}
	}
	for _, status := range []AttendanceStatus{"", "not_marked", "sick", "PRESENT"} {
		if status.Valid() {
			t.Fatalf("expected status %q to be invalid", status)
		}
	}
}
