package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/geo"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/ledger"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/session"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "attendance.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func pendingSession(id, classID string) session.Session {
	return session.Session{
		ID:        id,
		ClassID:   classID,
		Token:     "tok-" + id,
		Anchor:    &geo.Point{Lat: 12.9716, Lng: 77.5946},
		Duration:  300 * time.Second,
		State:     session.StatePending,
		CreatedAt: baseTime,
	}
}

func putPending(t *testing.T, store *Store, id, classID string) session.Session {
	t.Helper()
	sess := pendingSession(id, classID)
	if err := store.PutSession(context.Background(), sess); err != nil {
		t.Fatalf("put session %s: %v", id, err)
	}
	return sess
}

func putActive(t *testing.T, store *Store, id, classID string) session.Session {
	t.Helper()
	putPending(t, store, id, classID)
	sess, err := store.ActivateSession(context.Background(), id, baseTime)
	if err != nil {
		t.Fatalf("activate session %s: %v", id, err)
	}
	return sess
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(" "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenIsIdempotentAcrossRestarts(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "attendance.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("open first: %v", err)
	}
	if err := first.PutSession(context.Background(), pendingSession("sess-1", "cs101")); err != nil {
		t.Fatalf("put session: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close first: %v", err)
	}

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	if _, err := second.GetSession(context.Background(), "sess-1"); err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
}

func TestPutAndGetSessionRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	want := putPending(t, store, "sess-1", "cs101")

	got, err := store.GetSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.ID != want.ID || got.ClassID != want.ClassID || got.Token != want.Token || got.Duration != want.Duration {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if got.Anchor == nil || *got.Anchor != *want.Anchor {
		t.Fatalf("anchor = %+v", got.Anchor)
	}
	if got.State != session.StatePending || !got.StartedAt.IsZero() || got.ClosedAt != nil {
		t.Fatalf("unexpected lifecycle fields: %+v", got)
	}

	byToken, err := store.GetSessionByToken(context.Background(), want.Token)
	if err != nil || byToken.ID != want.ID {
		t.Fatalf("get by token = %+v, %v", byToken, err)
	}
	if _, err := store.GetSession(context.Background(), "missing"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.GetSessionByToken(context.Background(), "missing"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected not found by token, got %v", err)
	}
}

func TestPutSessionWithoutAnchor(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	sess := pendingSession("sess-1", "cs101")
	sess.Anchor = nil
	if err := store.PutSession(context.Background(), sess); err != nil {
		t.Fatalf("put session: %v", err)
	}
	got, err := store.GetSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Anchor != nil {
		t.Fatalf("anchor = %+v, want nil", got.Anchor)
	}
}

func TestActivateEnforcesSingleActiveSession(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	putPending(t, store, "sess-1", "cs101")
	putPending(t, store, "sess-2", "ma201")

	active, err := store.ActivateSession(ctx, "sess-1", baseTime)
	if err != nil {
		t.Fatalf("activate first: %v", err)
	}
	if active.State != session.StateActive || !active.StartedAt.Equal(baseTime) {
		t.Fatalf("unexpected active session: %+v", active)
	}

	if _, err := store.ActivateSession(ctx, "sess-2", baseTime.Add(time.Minute)); !errors.Is(err, session.ErrActiveSessionExists) {
		t.Fatalf("expected active session conflict, got %v", err)
	}
	if _, err := store.ActivateSession(ctx, "sess-1", baseTime); !errors.Is(err, session.ErrNotPending) {
		t.Fatalf("expected not pending, got %v", err)
	}
	if _, err := store.ActivateSession(ctx, "missing", baseTime); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	// Once the first window passes it no longer blocks admission.
	if _, err := store.ActivateSession(ctx, "sess-2", baseTime.Add(300*time.Second)); err != nil {
		t.Fatalf("activate after expiry: %v", err)
	}
	first, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get first: %v", err)
	}
	if first.State != session.StateExpired {
		t.Fatalf("first state = %q, want expired", first.State)
	}
}

func TestActivateAfterClose(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	putPending(t, store, "sess-1", "cs101")
	putPending(t, store, "sess-2", "cs101")

	if _, err := store.ActivateSession(ctx, "sess-1", baseTime); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, _, err := store.CloseSession(ctx, "sess-1", baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := store.ActivateSession(ctx, "sess-2", baseTime.Add(2*time.Minute)); err != nil {
		t.Fatalf("activate after close: %v", err)
	}
}

func TestPartialIndexRejectsSecondActiveRow(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	first := pendingSession("sess-1", "cs101")
	first.State = session.StateActive
	first.StartedAt = baseTime
	if err := store.PutSession(context.Background(), first); err != nil {
		t.Fatalf("put active: %v", err)
	}
	second := pendingSession("sess-2", "cs101")
	second.State = session.StateActive
	second.StartedAt = baseTime
	if err := store.PutSession(context.Background(), second); !errors.Is(err, session.ErrActiveSessionExists) {
		t.Fatalf("expected active session conflict, got %v", err)
	}
}

func TestCloseSessionTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		activate    bool
		closeAfter  time.Duration
		wantState   session.State
		wantChanged bool
	}{
		{name: "pending", activate: false, closeAfter: time.Minute, wantState: session.StateClosed, wantChanged: true},
		{name: "active inside window", activate: true, closeAfter: time.Minute, wantState: session.StateClosed, wantChanged: true},
		{name: "active at deadline", activate: true, closeAfter: 300 * time.Second, wantState: session.StateClosed, wantChanged: true},
		{name: "active past deadline", activate: true, closeAfter: 301 * time.Second, wantState: session.StateExpired, wantChanged: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := openTempStore(t)
			ctx := context.Background()
			putPending(t, store, "sess-1", "cs101")
			if tt.activate {
				if _, err := store.ActivateSession(ctx, "sess-1", baseTime); err != nil {
					t.Fatalf("activate: %v", err)
				}
			}

			got, changed, err := store.CloseSession(ctx, "sess-1", baseTime.Add(tt.closeAfter))
			if err != nil {
				t.Fatalf("close: %v", err)
			}
			if got.State != tt.wantState || changed != tt.wantChanged {
				t.Fatalf("close = %q changed=%v, want %q changed=%v", got.State, changed, tt.wantState, tt.wantChanged)
			}

			stored, err := store.GetSession(ctx, "sess-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if stored.State != tt.wantState {
				t.Fatalf("stored state = %q, want %q", stored.State, tt.wantState)
			}
			if tt.wantState == session.StateClosed && (stored.ClosedAt == nil || !stored.ClosedAt.Equal(baseTime.Add(tt.closeAfter))) {
				t.Fatalf("closed at = %v", stored.ClosedAt)
			}

			again, changed, err := store.CloseSession(ctx, "sess-1", baseTime.Add(time.Hour))
			if err != nil {
				t.Fatalf("second close: %v", err)
			}
			if changed || again.State != tt.wantState {
				t.Fatalf("second close = %q changed=%v", again.State, changed)
			}
		})
	}
}

func TestCloseMissingSession(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if _, _, err := store.CloseSession(context.Background(), "missing", baseTime); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetActiveSession(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	putPending(t, store, "sess-1", "cs101")

	if _, err := store.GetActiveSession(ctx, baseTime); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected no active session, got %v", err)
	}
	if _, err := store.ActivateSession(ctx, "sess-1", baseTime); err != nil {
		t.Fatalf("activate: %v", err)
	}
	got, err := store.GetActiveSession(ctx, baseTime.Add(299*time.Second))
	if err != nil || got.ID != "sess-1" {
		t.Fatalf("active = %+v, %v", got, err)
	}
	if _, err := store.GetActiveSession(ctx, baseTime.Add(300*time.Second)); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected no active session at deadline, got %v", err)
	}
}

func TestListSessionsByClass(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	for i, classID := range []string{"cs101", "cs101", "ma201", "cs101"} {
		sess := pendingSession(fmt.Sprintf("sess-%d", i+1), classID)
		sess.CreatedAt = baseTime.Add(time.Duration(i) * time.Minute)
		if err := store.PutSession(ctx, sess); err != nil {
			t.Fatalf("put session: %v", err)
		}
	}

	got, err := store.ListSessionsByClass(ctx, "cs101", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var ids []string
	for _, sess := range got {
		ids = append(ids, sess.ID)
	}
	if fmt.Sprint(ids) != "[sess-4 sess-2 sess-1]" {
		t.Fatalf("ids = %v", ids)
	}

	limited, err := store.ListSessionsByClass(ctx, "cs101", 1)
	if err != nil || len(limited) != 1 || limited[0].ID != "sess-4" {
		t.Fatalf("limited = %+v, %v", limited, err)
	}
	if _, err := store.ListSessionsByClass(ctx, "cs101", 0); err == nil {
		t.Fatal("expected invalid limit error")
	}
}

func TestRecordsPutHasListCount(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	putActive(t, store, "sess-1", "cs101")

	distance := 42.5
	records := []ledger.Record{
		{ID: "rec-1", SessionID: "sess-1", StudentID: "stu-2", RecordedAt: baseTime.Add(10 * time.Second), DistanceMeters: &distance},
		{ID: "rec-2", SessionID: "sess-1", StudentID: "stu-1", RecordedAt: baseTime.Add(5 * time.Second)},
	}
	for _, record := range records {
		if err := store.PutRecord(ctx, record); err != nil {
			t.Fatalf("put record %s: %v", record.ID, err)
		}
	}

	has, err := store.HasRecord(ctx, "sess-1", "stu-1")
	if err != nil || !has {
		t.Fatalf("has = %v, %v", has, err)
	}
	has, err = store.HasRecord(ctx, "sess-1", "stu-9")
	if err != nil || has {
		t.Fatalf("has missing = %v, %v", has, err)
	}

	listed, err := store.ListRecords(ctx, "sess-1")
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != "rec-1" || listed[1].ID != "rec-2" {
		t.Fatalf("listed = %+v", listed)
	}
	if listed[0].DistanceMeters == nil || *listed[0].DistanceMeters != distance || listed[1].DistanceMeters != nil {
		t.Fatalf("unexpected distances: %+v", listed)
	}
	if !listed[0].RecordedAt.Equal(records[0].RecordedAt) {
		t.Fatalf("recorded at = %s", listed[0].RecordedAt)
	}

	count, err := store.CountRecords(ctx, "sess-1")
	if err != nil || count != 2 {
		t.Fatalf("count = %d, %v", count, err)
	}
}

func TestPutRecordDuplicateAndUnknownSession(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	putActive(t, store, "sess-1", "cs101")

	if err := store.PutRecord(ctx, ledger.Record{ID: "rec-1", SessionID: "sess-1", StudentID: "stu-1", RecordedAt: baseTime}); err != nil {
		t.Fatalf("put record: %v", err)
	}
	if err := store.PutRecord(ctx, ledger.Record{ID: "rec-2", SessionID: "sess-1", StudentID: "stu-1", RecordedAt: baseTime}); !errors.Is(err, ledger.ErrDuplicateScan) {
		t.Fatalf("expected duplicate scan, got %v", err)
	}
	if err := store.PutRecord(ctx, ledger.Record{ID: "rec-3", SessionID: "missing", StudentID: "stu-1", RecordedAt: baseTime}); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected missing session, got %v", err)
	}
}

func TestConcurrentPutRecordExactlyOneSucceeds(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	putActive(t, store, "sess-1", "cs101")

	const writers = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		duplicates int
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.PutRecord(context.Background(), ledger.Record{
				ID:         fmt.Sprintf("rec-%d", i),
				SessionID:  "sess-1",
				StudentID:  "stu-1",
				RecordedAt: baseTime,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ledger.ErrDuplicateScan):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || duplicates != writers-1 {
		t.Fatalf("successes=%d duplicates=%d", successes, duplicates)
	}
}

func TestPutRecordRequiresActiveSession(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	putPending(t, store, "sess-pending", "cs101")
	putActive(t, store, "sess-1", "cs101")

	if err := store.PutRecord(ctx, ledger.Record{ID: "rec-0", SessionID: "sess-pending", StudentID: "stu-1", RecordedAt: baseTime}); !errors.Is(err, ledger.ErrSessionNotActive) {
		t.Fatalf("pending session: expected not active, got %v", err)
	}
	if err := store.PutRecord(ctx, ledger.Record{ID: "rec-1", SessionID: "sess-1", StudentID: "stu-1", RecordedAt: baseTime.Add(time.Minute)}); err != nil {
		t.Fatalf("put record: %v", err)
	}
	if _, _, err := store.CloseSession(ctx, "sess-1", baseTime.Add(2*time.Minute)); err != nil {
		t.Fatalf("close session: %v", err)
	}

	err := store.PutRecord(ctx, ledger.Record{ID: "rec-2", SessionID: "sess-1", StudentID: "stu-2", RecordedAt: baseTime.Add(90 * time.Second)})
	if !errors.Is(err, ledger.ErrSessionNotActive) {
		t.Fatalf("closed session: expected not active, got %v", err)
	}
	if has, err := store.HasRecord(ctx, "sess-1", "stu-2"); err != nil || has {
		t.Fatalf("has after close = %v, %v", has, err)
	}
	if count, err := store.CountRecords(ctx, "sess-1"); err != nil || count != 1 {
		t.Fatalf("count = %d, %v", count, err)
	}
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.GetSession(ctx, "sess-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}
