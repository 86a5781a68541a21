package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aura-webinar/virtual-live/internal/models"
	"github.com/aura-webinar/virtual-live/internal/timeline"
)

type fakeStore struct {
	rows       map[uuid.UUID]models.ChatEntry
	order      []uuid.UUID
	batchCalls int
	singleCall int
	fail       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[uuid.UUID]models.ChatEntry)}
}

func (s *fakeStore) AddComment(_ context.Context, _ uuid.UUID, e models.ChatEntry) error {
	s.singleCall++
	if s.fail != nil {
		return s.fail
	}
	s.put(e)
	return nil
}

func (s *fakeStore) AddComments(_ context.Context, _ uuid.UUID, entries []models.ChatEntry) error {
	s.batchCalls++
	if s.fail != nil {
		return s.fail
	}
	for _, e := range entries {
		s.put(e)
	}
	return nil
}

func (s *fakeStore) put(e models.ChatEntry) {
	if _, ok := s.rows[e.ID]; ok {
		return
	}
	s.rows[e.ID] = e
	s.order = append(s.order, e.ID)
}

func (s *fakeStore) snapshot() []models.ChatEntry {
	out := make([]models.ChatEntry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.rows[id])
	}
	return out
}

var now = time.Date(2026, 10, 17, 18, 0, 0, 0, time.UTC)

// newLoaded returns a Reconciler whose first snapshot was empty.
func newLoaded(store *fakeStore) *Reconciler {
	r := New(uuid.New(), store, nil)
	r.ApplySnapshot(nil)
	return r
}

func TestFlush_EmptyBufferIssuesNoWrite(t *testing.T) {
	store := newFakeStore()
	r := newLoaded(store)
	r.SetLive(true)

	if err := r.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if store.batchCalls != 0 || store.singleCall != 0 {
		t.Errorf("expected no store writes, got batch=%d single=%d", store.batchCalls, store.singleCall)
	}
}

func TestSubmit_LiveBuffersAndShowsImmediately(t *testing.T) {
	store := newFakeStore()
	r := newLoaded(store)
	r.SetLive(true)

	e, _, err := r.Submit("ana", "hi", 42*time.Second, now)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if store.singleCall != 0 || store.batchCalls != 0 {
		t.Fatal("live submission must not touch the store")
	}
	visible := timeline.VisibleEntries(r.Entries(), 42*time.Second)
	if len(visible) != 1 || visible[0].ID != e.ID {
		t.Fatalf("expected the entry to be visible at 42s, got %+v", visible)
	}
	if r.PendingLen() != 1 {
		t.Errorf("expected 1 pending, got %d", r.PendingLen())
	}
}

func TestFlush_AfterEndWritesOnceAndClearsBuffer(t *testing.T) {
	store := newFakeStore()
	r := newLoaded(store)
	r.SetLive(true)

	if _, _, err := r.Submit("ana", "hi", 42*time.Second, now); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	r.SetLive(false)
	if err := r.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if r.PendingLen() != 0 {
		t.Errorf("expected empty buffer, got %d", r.PendingLen())
	}
	if len(store.rows) != 1 {
		t.Fatalf("expected exactly one stored entry, got %d", len(store.rows))
	}
	for _, row := range store.rows {
		if row.Body != "hi" || row.VideoOffset != 42*time.Second {
			t.Errorf("unexpected stored row %+v", row)
		}
	}

	// The listener delivers the new snapshot; the merged view must not duplicate.
	r.ApplySnapshot(store.snapshot())
	if got := r.Entries(); len(got) != 1 {
		t.Errorf("expected 1 merged entry, got %d", len(got))
	}

	// A second flush has nothing left to write.
	if err := r.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if store.batchCalls != 1 {
		t.Errorf("expected one batch write, got %d", store.batchCalls)
	}
}

func TestFlush_FailureRetainsBuffer(t *testing.T) {
	store := newFakeStore()
	store.fail = errors.New("connection reset")
	r := newLoaded(store)
	r.SetLive(true)

	for _, body := range []string{"one", "two"} {
		if _, _, err := r.Submit("ana", body, time.Second, now); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	err := r.Flush(context.Background())
	if !errors.Is(err, ErrStoreWrite) {
		t.Fatalf("expected ErrStoreWrite, got %v", err)
	}
	if r.PendingLen() != 2 {
		t.Fatalf("expected buffer retained, got %d", r.PendingLen())
	}

	store.fail = nil
	if err := r.Flush(context.Background()); err != nil {
		t.Fatalf("retry Flush: %v", err)
	}
	if r.PendingLen() != 0 || len(store.rows) != 2 {
		t.Errorf("expected retry to write both, pending=%d rows=%d", r.PendingLen(), len(store.rows))
	}
}

func TestSubmit_SequenceIndexFollowsMergedView(t *testing.T) {
	r := newLoaded(newFakeStore())
	r.ApplySnapshot([]models.ChatEntry{
		{ID: uuid.New(), AuthorName: "bo", Body: "earlier", VideoOffset: 5 * time.Second, SequenceIndex: 0},
		{ID: uuid.New(), AuthorName: "bo", Body: "later", VideoOffset: 9 * time.Second, SequenceIndex: 1},
	})
	r.SetLive(true)

	a, _, _ := r.Submit("ana", "x", 10*time.Second, now)
	b, _, _ := r.Submit("ana", "y", 11*time.Second, now)
	if a.SequenceIndex != 2 || b.SequenceIndex != 3 {
		t.Errorf("expected indexes 2,3 got %d,%d", a.SequenceIndex, b.SequenceIndex)
	}
}

func TestSubmit_NotLiveHandsBackDirectWrite(t *testing.T) {
	store := newFakeStore()
	r := newLoaded(store)

	e, direct, err := r.Submit("ana", "after", time.Minute, now)
	if err != nil || !direct {
		t.Fatalf("Submit: direct=%v err=%v", direct, err)
	}
	if r.PendingLen() != 0 || r.Writing() != 1 || len(r.Entries()) != 1 {
		t.Fatalf("expected one in-flight write shown, pending=%d writing=%d entries=%d", r.PendingLen(), r.Writing(), len(r.Entries()))
	}
	if err := r.CompleteWrite(e, store.AddComment(context.Background(), uuid.Nil, e)); err != nil {
		t.Fatalf("CompleteWrite: %v", err)
	}
	if r.Writing() != 0 || len(r.Entries()) != 1 {
		t.Errorf("expected the entry durable, writing=%d entries=%d", r.Writing(), len(r.Entries()))
	}

	f, _, _ := r.Submit("ana", "again", time.Minute, now)
	if f.SequenceIndex != 1 {
		t.Errorf("expected sequence index 1, got %d", f.SequenceIndex)
	}
	if err := r.CompleteWrite(f, errors.New("down")); !errors.Is(err, ErrStoreWrite) {
		t.Errorf("expected ErrStoreWrite, got %v", err)
	}
	if len(r.Entries()) != 1 {
		t.Errorf("failed direct write must leave the view, got %d entries", len(r.Entries()))
	}
}

func TestSubmit_RefusedUntilFirstSnapshot(t *testing.T) {
	r := New(uuid.New(), newFakeStore(), nil)
	r.SetLive(true)
	if _, _, err := r.Submit("ana", "early", time.Second, now); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
	if r.PendingLen() != 0 {
		t.Fatal("refused submission must not be buffered")
	}

	r.ApplySnapshot([]models.ChatEntry{
		{ID: uuid.New(), AuthorName: "bo", Body: "a", SequenceIndex: 0},
		{ID: uuid.New(), AuthorName: "bo", Body: "b", SequenceIndex: 1},
		{ID: uuid.New(), AuthorName: "bo", Body: "c", SequenceIndex: 2},
	})
	e, _, err := r.Submit("ana", "now", time.Second, now)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if e.SequenceIndex != 3 {
		t.Errorf("expected sequence index 3 after the stored entries, got %d", e.SequenceIndex)
	}
}

func TestApplySnapshot_KeepsOwnWritesNotYetListed(t *testing.T) {
	store := newFakeStore()
	r := newLoaded(store)
	other := models.ChatEntry{ID: uuid.New(), AuthorName: "bo", Body: "hello", SequenceIndex: 0}
	r.ApplySnapshot([]models.ChatEntry{other})

	e, _, _ := r.Submit("ana", "mine", time.Second, now)
	_ = r.CompleteWrite(e, nil)

	// A snapshot read before the write committed.
	r.ApplySnapshot([]models.ChatEntry{other})
	if got := r.Entries(); len(got) != 2 {
		t.Fatalf("own write must survive a stale snapshot, got %d entries", len(got))
	}

	// Once listed, the Store copy is the only one.
	r.ApplySnapshot([]models.ChatEntry{other, e})
	if got := r.Entries(); len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	r.ApplySnapshot([]models.ChatEntry{other})
	if got := r.Entries(); len(got) != 1 {
		t.Errorf("confirmed entry is no longer held locally, got %d entries", len(got))
	}
}

func TestSubmit_ValidationLeavesStateUntouched(t *testing.T) {
	r := newLoaded(newFakeStore())
	r.SetLive(true)
	if _, _, err := r.Submit("ana", "   ", time.Second, now); !errors.Is(err, timeline.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if r.PendingLen() != 0 || len(r.Entries()) != 0 {
		t.Error("rejected submission must not change state")
	}
}

func TestEntries_HidesPendingMatchedByContent(t *testing.T) {
	r := newLoaded(newFakeStore())
	r.SetLive(true)
	e, _, _ := r.Submit("ana", "hi", 42*time.Second, now)

	// Same content stored under a different identifier.
	stored := e
	stored.ID = uuid.New()
	r.ApplySnapshot([]models.ChatEntry{stored})

	if got := r.Entries(); len(got) != 1 {
		t.Errorf("expected one merged entry, got %d", len(got))
	}
}

func TestBeginFlush_SubmissionsDuringFlightStayQueued(t *testing.T) {
	store := newFakeStore()
	r := newLoaded(store)
	r.SetLive(true)
	_, _, _ = r.Submit("ana", "first", time.Second, now)

	batch, ok := r.BeginFlush()
	if !ok || len(batch.Entries) != 1 {
		t.Fatalf("expected a one-entry batch, got %v %+v", ok, batch)
	}
	if _, again := r.BeginFlush(); again {
		t.Fatal("second BeginFlush must wait for completion")
	}

	_, _, _ = r.Submit("ana", "second", 2*time.Second, now)
	if err := store.AddComments(context.Background(), batch.WebinarID, batch.Entries); err != nil {
		t.Fatalf("AddComments: %v", err)
	}
	if err := r.CompleteFlush(nil); err != nil {
		t.Fatalf("CompleteFlush: %v", err)
	}

	if r.PendingLen() != 1 {
		t.Errorf("expected the later submission to remain, got %d", r.PendingLen())
	}
	if len(r.Entries()) != 2 {
		t.Errorf("expected 2 merged entries, got %d", len(r.Entries()))
	}
}

func TestTakePending(t *testing.T) {
	r := newLoaded(newFakeStore())
	r.SetLive(true)
	_, _, _ = r.Submit("ana", "a", time.Second, now)
	_, _, _ = r.Submit("ana", "b", time.Second, now)

	got := r.TakePending()
	if len(got) != 2 || r.PendingLen() != 0 {
		t.Errorf("expected 2 taken and empty buffer, got %d / %d", len(got), r.PendingLen())
	}
}

func TestBuffer_KeyedPutReplacesQueuedOnly(t *testing.T) {
	type answer struct{ q, v string }
	b := NewBuffer(func(a answer) string { return a.q })

	b.Put(answer{"q1", "a"})
	b.Put(answer{"q1", "b"})
	if b.Len() != 1 || b.Items()[0].v != "b" {
		t.Fatalf("expected latest answer to win, got %+v", b.Items())
	}

	if _, ok := b.Begin(); !ok {
		t.Fatal("Begin should return the batch")
	}
	b.Put(answer{"q1", "c"})
	if b.Len() != 2 {
		t.Fatalf("in-flight item must not be replaced, got %+v", b.Items())
	}
	done := b.Complete(true)
	if len(done) != 1 || done[0].v != "b" {
		t.Errorf("expected the in-flight item to complete, got %+v", done)
	}
	if b.Len() != 1 || b.Items()[0].v != "c" {
		t.Errorf("expected the newer answer queued, got %+v", b.Items())
	}
}
