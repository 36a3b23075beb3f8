package model

import (
	"errors"
	"testing"
	"time"

	"campusattend/internal/store"
)

func TestSessionFromDocNativeValues(t *testing.T) {
	start := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	doc := store.Document{
		ID: "s1",
		Data: map[string]any{
			"courseId":    "c1",
			"courseName":  "Algorithms",
			"status":      "active",
			"department":  "Engineering",
			"field":       "CS",
			"targetYears": []any{"1", "2"},
			"enrolled":    []any{"a@x", "b@x"},
			"present":     []any{"a@x"},
			"start":       start,
			"end":         start.Add(time.Hour),
		},
	}
	s, err := SessionFromDoc(doc)
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != SessionActive || len(s.Enrolled) != 2 || len(s.Present) != 1 {
		t.Errorf("session = %+v", s)
	}
	if !s.Start.Equal(start) {
		t.Errorf("start = %v", s.Start)
	}
}

func TestSessionFromDocJSONValues(t *testing.T) {
	// The Postgres backend yields JSON-decoded values: RFC3339 strings
	// for times, []any of strings for arrays.
	doc := store.Document{
		ID: "s1",
		Data: map[string]any{
			"courseId":    "c1",
			"status":      "scheduled",
			"targetYears": []any{"2"},
			"start":       "2024-03-14T09:00:00Z",
			"end":         "2024-03-14T11:00:00Z",
		},
	}
	s, err := SessionFromDoc(doc)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	if !s.Start.Equal(want) {
		t.Errorf("start = %v, want %v", s.Start, want)
	}
}

func TestSessionFromDocRejectsBadStatus(t *testing.T) {
	doc := store.Document{
		ID:   "s1",
		Data: map[string]any{"courseId": "c1", "status": "paused"},
	}
	if _, err := SessionFromDoc(doc); !errors.Is(err, ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

func TestAttendanceRecordRoundTrip(t *testing.T) {
	rec := AttendanceRecord{
		ID:           "r1",
		StudentEmail: "s@uni.edu",
		CourseID:     "c1",
		CourseName:   "Algorithms",
		Timestamp:    time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC),
		Status:       StatusPresent,
		Confidence:   0.87,
		ManualEntry:  true,
	}
	got, err := AttendanceRecordFromDoc(store.Document{ID: "r1", Data: rec.Doc()})
	if err != nil {
		t.Fatal(err)
	}
	if got != rec {
		t.Errorf("round trip = %+v, want %+v", got, rec)
	}
}

func TestAttendanceRecordRequiresIdentity(t *testing.T) {
	_, err := AttendanceRecordFromDoc(store.Document{
		ID:   "r1",
		Data: map[string]any{"status": StatusPresent},
	})
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

func TestPersonFromDocFallsBackToDocID(t *testing.T) {
	p, err := PersonFromDoc(store.Document{
		ID:   "s@uni.edu",
		Data: map[string]any{"department": "Engineering"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.Email != "s@uni.edu" {
		t.Errorf("email = %s", p.Email)
	}
}

func TestCourseFromDocRequiresName(t *testing.T) {
	_, err := CourseFromDoc(store.Document{
		ID:   "c1",
		Data: map[string]any{"department": "Engineering"},
	})
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}
