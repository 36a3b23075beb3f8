package session

import (
	"sort"
	"testing"

	"campusattend/internal/model"
)

func newSession(status model.SessionStatus) model.Session {
	return model.Session{
		ID:       "sess-1",
		CourseID: "course-1",
		Status:   status,
	}
}

func checkInvariants(t *testing.T, s *model.Session) {
	t.Helper()
	enrolled := make(map[string]bool)
	for _, e := range s.Enrolled {
		enrolled[e] = true
	}
	present := make(map[string]bool)
	for _, e := range s.Present {
		present[e] = true
		if !enrolled[e] {
			t.Errorf("present %s is not enrolled", e)
		}
	}
	for _, e := range s.Absent {
		if present[e] {
			t.Errorf("%s is both present and absent", e)
		}
		if !enrolled[e] {
			t.Errorf("absent %s is not enrolled", e)
		}
	}
}

func TestEnrollIdempotent(t *testing.T) {
	s := newSession(model.SessionScheduled)
	Enroll(&s, "a@uni.edu")
	Enroll(&s, "a@uni.edu")
	if len(s.Enrolled) != 1 {
		t.Errorf("enrolled = %v", s.Enrolled)
	}
	checkInvariants(t, &s)
}

func TestMarkPresentAndAbsentExclusion(t *testing.T) {
	s := newSession(model.SessionActive)
	Enroll(&s, "a@uni.edu")

	if !MarkAbsent(&s, "a@uni.edu") {
		t.Fatal("mark absent of enrolled student failed")
	}
	if !MarkPresent(&s, "a@uni.edu") {
		t.Fatal("mark present of enrolled student failed")
	}
	checkInvariants(t, &s)
	if len(s.Absent) != 0 || len(s.Present) != 1 {
		t.Errorf("present=%v absent=%v", s.Present, s.Absent)
	}

	// And back again.
	MarkAbsent(&s, "a@uni.edu")
	checkInvariants(t, &s)
	if len(s.Absent) != 1 || len(s.Present) != 0 {
		t.Errorf("present=%v absent=%v", s.Present, s.Absent)
	}
}

func TestMarkUnknownEmailNoops(t *testing.T) {
	s := newSession(model.SessionActive)
	Enroll(&s, "a@uni.edu")

	if MarkPresent(&s, "ghost@uni.edu") {
		t.Error("unenrolled mark present must no-op")
	}
	if MarkAbsent(&s, "ghost@uni.edu") {
		t.Error("unenrolled mark absent must no-op")
	}
	checkInvariants(t, &s)
	if len(s.Present) != 0 || len(s.Absent) != 0 {
		t.Errorf("sets mutated: present=%v absent=%v", s.Present, s.Absent)
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    model.SessionStatus
		op      func(*model.Session) error
		wantErr bool
		want    model.SessionStatus
	}{
		{"start from scheduled", model.SessionScheduled, Start, false, model.SessionActive},
		{"start from active", model.SessionActive, Start, true, model.SessionActive},
		{"start from completed", model.SessionCompleted, Start, true, model.SessionCompleted},
		{"end from scheduled", model.SessionScheduled, End, false, model.SessionCompleted},
		{"end from active", model.SessionActive, End, false, model.SessionCompleted},
		{"end from completed", model.SessionCompleted, End, true, model.SessionCompleted},
		{"end from cancelled", model.SessionCancelled, End, true, model.SessionCancelled},
		{"cancel from scheduled", model.SessionScheduled, Cancel, false, model.SessionCancelled},
		{"cancel from active", model.SessionActive, Cancel, false, model.SessionCancelled},
		{"cancel from completed", model.SessionCompleted, Cancel, true, model.SessionCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(tt.from)
			err := tt.op(&s)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if s.Status != tt.want {
				t.Errorf("status = %s, want %s", s.Status, tt.want)
			}
		})
	}
}

func TestEndInfersAbsences(t *testing.T) {
	s := newSession(model.SessionActive)
	for _, e := range []string{"a@uni.edu", "b@uni.edu", "c@uni.edu", "d@uni.edu"} {
		Enroll(&s, e)
	}
	MarkPresent(&s, "a@uni.edu")
	MarkAbsent(&s, "b@uni.edu")

	if err := End(&s); err != nil {
		t.Fatal(err)
	}
	checkInvariants(t, &s)

	got := append([]string(nil), s.Absent...)
	sort.Strings(got)
	want := []string{"b@uni.edu", "c@uni.edu", "d@uni.edu"}
	if len(got) != len(want) {
		t.Fatalf("absent = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("absent = %v, want %v", got, want)
		}
	}
	if len(s.Present) != 1 || s.Present[0] != "a@uni.edu" {
		t.Errorf("present = %v", s.Present)
	}
}

func TestCancelLeavesSetsAlone(t *testing.T) {
	s := newSession(model.SessionActive)
	Enroll(&s, "a@uni.edu")
	Enroll(&s, "b@uni.edu")
	MarkPresent(&s, "a@uni.edu")

	if err := Cancel(&s); err != nil {
		t.Fatal(err)
	}
	if len(s.Enrolled) != 2 || len(s.Present) != 1 || len(s.Absent) != 0 {
		t.Errorf("sets changed on cancel: %+v", s)
	}
}

func TestComputeStats(t *testing.T) {
	s := newSession(model.SessionActive)

	if st := ComputeStats(&s); st.AttendanceRate != 0 {
		t.Errorf("empty session rate = %v, want 0", st.AttendanceRate)
	}

	for _, e := range []string{"a@x", "b@x", "c@x", "d@x"} {
		Enroll(&s, e)
	}
	MarkPresent(&s, "a@x")
	MarkPresent(&s, "b@x")
	MarkPresent(&s, "c@x")
	MarkAbsent(&s, "d@x")

	st := ComputeStats(&s)
	if st.TotalEnrolled != 4 || st.TotalPresent != 3 || st.TotalAbsent != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.AttendanceRate != 75 {
		t.Errorf("rate = %v, want 75", st.AttendanceRate)
	}
	if st.AttendanceRate < 0 || st.AttendanceRate > 100 {
		t.Errorf("rate out of bounds: %v", st.AttendanceRate)
	}
}
