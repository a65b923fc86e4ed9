package journal_test

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"qrattend/internal/attendance"
	"qrattend/internal/journal"
	"qrattend/internal/outbox"
	"qrattend/internal/queue"
)

type recorder struct {
	mu   sync.Mutex
	seqs []uint64
}

func (r *recorder) ApplyEvent(_ context.Context, ev attendance.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seqs = append(r.seqs, ev.Seq)
	return nil
}

func TestLocal_ShutdownAppliesTheRelaysFinalFlush(t *testing.T) {
	ctx := context.Background()
	roster := attendance.NewMemoryRoster()
	for _, id := range []string{"A", "B"} {
		if err := roster.PutStudent(ctx, attendance.Student{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	if err := roster.PutSection(ctx, attendance.CourseSection{ID: "sec", CourseID: "CS101", StudentIDs: []string{"A", "B"}}); err != nil {
		t.Fatal(err)
	}
	engine := attendance.NewEngine(roster, attendance.Options{})
	logger := log.New(io.Discard, "", 0)

	mem := queue.NewInMemory(16)
	rec := &recorder{}
	local := journal.NewLocal(mem, rec, logger)
	local.Start()

	runCtx, cancel := context.WithCancel(ctx)
	relay := outbox.NewRelay(engine, mem, time.Hour, logger)
	relay.Start(runCtx)

	if _, err := engine.CreateSession(ctx, attendance.SessionParams{ID: "s", SectionID: "sec"}); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.StartSession(ctx, "s"); err != nil {
		t.Fatal(err)
	}
	actor := attendance.Actor{ID: "f-1", Role: attendance.RoleFaculty}
	if _, err := engine.Override("s", "A", attendance.StatusExcused, actor, "medical"); err != nil {
		t.Fatal(err)
	}
	pending := engine.EventsSince(0, 0)
	if len(pending) == 0 {
		t.Fatal("expected pending events")
	}

	// Same order as the api shutdown: signal, relay, then the journal.
	cancel()
	relay.Stop()
	stopCtx, stopCancel := context.WithTimeout(ctx, 2*time.Second)
	defer stopCancel()
	n := local.Stop(stopCtx)

	if n != len(pending) {
		t.Fatalf("expected %d events journaled, got %d", len(pending), n)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i, ev := range pending {
		if rec.seqs[i] != ev.Seq {
			t.Fatalf("event %d: expected seq %d, got %d", i, ev.Seq, rec.seqs[i])
		}
	}
	if left := engine.EventsSince(0, 0); len(left) != 0 {
		t.Errorf("expected the engine to release journaled events, %d left", len(left))
	}
}
