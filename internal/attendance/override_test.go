package attendance_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"qrattend/internal/attendance"
)

func TestOverride_ExcuseRequiresReason(t *testing.T) {
	e, _ := fixture(t, "A", "B")
	started(t, e, "s")

	for _, reason := range []string{"", "   \t"} {
		if _, err := e.Override("s", "A", attendance.StatusExcused, admin, reason); !errors.Is(err, attendance.ErrReasonRequired) {
			t.Errorf("reason %q: expected ErrReasonRequired, got %v", reason, err)
		}
	}
	if len(e.AuditLog(attendance.AuditFilter{})) != 0 {
		t.Fatal("expected no audit entries after rejected overrides")
	}

	entry, err := e.Override("s", "A", attendance.StatusExcused, admin, " Medical ")
	if err != nil {
		t.Fatal(err)
	}
	if entry.PreviousStatus != attendance.StatusPending || entry.NewStatus != attendance.StatusExcused {
		t.Errorf("unexpected transition %+v", entry)
	}
	if entry.Reason == nil || *entry.Reason != "Medical" || entry.Action != attendance.ActionExcuse {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.CourseID != "CS101" || entry.SectionID != "sec" || entry.ActorRole != attendance.RoleAdmin {
		t.Errorf("unexpected context %+v", entry)
	}
	if log := e.AuditLog(attendance.AuditFilter{}); len(log) != 1 || log[0].ID != entry.ID {
		t.Errorf("expected exactly the new entry in the log, got %+v", log)
	}

	recs, _ := e.Records("s")
	if !recs[0].IsManualOverride || recs[0].OverrideReason != "Medical" {
		t.Errorf("expected record flagged as manual, got %+v", recs[0])
	}
}

func TestOverride_PreviousStatusTracksRecord(t *testing.T) {
	e, _ := fixture(t, "A")
	tok := started(t, e, "s")
	if _, err := e.Submit(tok, "A"); err != nil {
		t.Fatal(err)
	}
	entry, err := e.Override("s", "A", attendance.StatusAbsent, admin, "")
	if err != nil {
		t.Fatal(err)
	}
	if entry.PreviousStatus != attendance.StatusPresent || entry.Reason != nil || entry.Action != attendance.ActionOverride {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestOverride_Rejections(t *testing.T) {
	ctx := context.Background()
	e, _ := fixture(t, "A")
	if _, err := e.CreateSession(ctx, attendance.SessionParams{ID: "s", SectionID: "sec"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Override("s", "A", attendance.StatusPresent, admin, ""); !errors.Is(err, attendance.ErrInvalidState) {
		t.Errorf("not started: expected ErrInvalidState, got %v", err)
	}
	if _, err := e.StartSession(ctx, "s"); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		student string
		status  attendance.Status
		actor   attendance.Actor
		want    error
	}{
		{"pending", "A", attendance.StatusPending, admin, attendance.ErrInvalidStatus},
		{"bogus status", "A", attendance.Status("late"), admin, attendance.ErrInvalidStatus},
		{"student role", "A", attendance.StatusPresent, attendance.Actor{ID: "x", Role: "student"}, attendance.ErrInvalidActor},
		{"anonymous", "A", attendance.StatusPresent, attendance.Actor{Role: attendance.RoleFaculty}, attendance.ErrInvalidActor},
		{"not rostered", "Z", attendance.StatusPresent, admin, attendance.ErrUnknownStudent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.Override("s", tc.student, tc.status, tc.actor, "r"); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if _, err := e.Override("missing", "A", attendance.StatusPresent, admin, ""); !errors.Is(err, attendance.ErrSessionNotFound) {
		t.Errorf("unknown session: expected ErrSessionNotFound, got %v", err)
	}
	if got := statusOf(t, e, "s", "A"); got != attendance.StatusPending {
		t.Errorf("expected A untouched, got %s", got)
	}
}

func TestBulkOverride_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	roster := attendance.NewMemoryRoster()
	for _, id := range []string{"A", "B", "C"} {
		_ = roster.PutStudent(ctx, attendance.Student{ID: id})
	}
	_ = roster.PutSection(ctx, attendance.CourseSection{ID: "sec", CourseID: "CS101", StudentIDs: []string{"A", "B"}})
	e := attendance.NewEngine(roster, attendance.Options{Clock: newClock().Now})
	started(t, e, "s")

	// C exists as a student but is not on this session's roster snapshot.
	_, err := e.BulkOverride("s", []string{"B", "C"}, attendance.StatusAbsent, admin, "")
	if !errors.Is(err, attendance.ErrUnknownStudent) {
		t.Fatalf("expected ErrUnknownStudent, got %v", err)
	}
	if got := statusOf(t, e, "s", "B"); got != attendance.StatusPending {
		t.Errorf("expected B unchanged, got %s", got)
	}
	if n := len(e.AuditLog(attendance.AuditFilter{})); n != 0 {
		t.Errorf("expected no audit entries, got %d", n)
	}
}

func TestBulkOverride_OneEntryPerStudent(t *testing.T) {
	e, _ := fixture(t, "A", "B", "C")
	started(t, e, "s")

	entries, err := e.BulkOverride("s", []string{"A", "C", "A", " "}, attendance.StatusExcused, admin, "field trip")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].StudentID != "A" || entries[1].StudentID != "C" {
		t.Fatalf("expected entries for A and C, got %+v", entries)
	}
	for _, en := range entries {
		if en.Action != attendance.ActionBulkUpdate || en.Reason == nil || *en.Reason != "field trip" {
			t.Errorf("unexpected entry %+v", en)
		}
	}
	*entries[0].Reason = "mutated"
	if *entries[1].Reason != "field trip" {
		t.Error("expected entries not to share a reason")
	}

	if _, err := e.BulkOverride("s", nil, attendance.StatusPresent, admin, ""); !errors.Is(err, attendance.ErrEmptyBatch) {
		t.Errorf("empty: expected ErrEmptyBatch, got %v", err)
	}
	if _, err := e.BulkOverride("s", []string{"B"}, attendance.StatusExcused, admin, ""); !errors.Is(err, attendance.ErrReasonRequired) {
		t.Errorf("excuse without reason: expected ErrReasonRequired, got %v", err)
	}
}

func TestAuditLog_FiltersNewestFirst(t *testing.T) {
	e, clock := fixture(t, "A", "B")
	started(t, e, "s")
	faculty := attendance.Actor{ID: "fac-1", Role: attendance.RoleFaculty}

	if _, err := e.Override("s", "A", attendance.StatusPresent, faculty, ""); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute)
	cutoff := clock.Now()
	if _, err := e.Override("s", "B", attendance.StatusAbsent, admin, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Override("s", "A", attendance.StatusAbsent, admin, ""); err != nil {
		t.Fatal(err)
	}

	all := e.AuditLog(attendance.AuditFilter{})
	if len(all) != 3 || all[0].StudentID != "A" || all[0].NewStatus != attendance.StatusAbsent || all[2].ActorID != "fac-1" {
		t.Fatalf("expected newest first, got %+v", all)
	}
	if got := e.AuditLog(attendance.AuditFilter{ActorID: "fac-1"}); len(got) != 1 {
		t.Errorf("actor filter: got %d", len(got))
	}
	if got := e.AuditLog(attendance.AuditFilter{StudentID: "A"}); len(got) != 2 {
		t.Errorf("student filter: got %d", len(got))
	}
	if got := e.AuditLog(attendance.AuditFilter{Since: cutoff}); len(got) != 2 {
		t.Errorf("since filter: got %d", len(got))
	}
	if got := e.AuditLog(attendance.AuditFilter{Limit: 1}); len(got) != 1 || got[0].ID != all[0].ID {
		t.Errorf("limit: got %+v", got)
	}
	if got := e.AuditLog(attendance.AuditFilter{CourseID: "OTHER"}); len(got) != 0 {
		t.Errorf("course filter: got %d", len(got))
	}
}
