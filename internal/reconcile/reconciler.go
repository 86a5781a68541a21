// Package reconcile buffers chat written during a live window and writes it
// to the Store once the window closes.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/virtual-live/internal/models"
	"github.com/aura-webinar/virtual-live/internal/timeline"
)

var (
	// ErrStoreWrite is returned when the Store rejects a write. Buffered
	// entries are kept for the next attempt.
	ErrStoreWrite = errors.New("store write failed")
	// ErrNotLoaded is returned by Submit until the first Store snapshot has
	// been applied. Sequence indexes cannot be assigned before then.
	ErrNotLoaded = errors.New("chat history not loaded")
)

// CommentStore is the batch write side of the chat collection.
type CommentStore interface {
	AddComments(ctx context.Context, webinarID uuid.UUID, entries []models.ChatEntry) error
}

// Batch is an in-flight flush handed to a helper goroutine.
type Batch struct {
	WebinarID uuid.UUID
	Entries   []models.ChatEntry
}

// Reconciler merges the durable chat view with locally pending entries.
// It is owned by one event loop and holds no locks.
type Reconciler struct {
	webinarID uuid.UUID
	store     CommentStore
	logger    *zap.Logger

	live    bool
	loaded  bool
	durable []models.ChatEntry
	writing []models.ChatEntry // direct writes awaiting the Store
	local   map[uuid.UUID]struct{}
	pending *Buffer[models.PendingChatEntry]
	nextID  int
}

// New returns a Reconciler for one webinar.
func New(webinarID uuid.UUID, store CommentStore, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		webinarID: webinarID,
		store:     store,
		logger:    logger,
		local:     make(map[uuid.UUID]struct{}),
		pending:   NewBuffer[models.PendingChatEntry](nil),
	}
}

// SetLive switches the admission policy. While live, submissions are buffered.
func (r *Reconciler) SetLive(live bool) { r.live = live }

// Live reports the current admission policy.
func (r *Reconciler) Live() bool { return r.live }

// Loaded reports whether a Store snapshot has been applied.
func (r *Reconciler) Loaded() bool { return r.loaded }

// Submit validates and admits a chat message at offset at. The sequence index
// is the size of the merged view at call time. While live the entry is
// buffered. Otherwise direct is true: the entry is shown at once and the
// caller writes it to the Store, then reports back through CompleteWrite.
func (r *Reconciler) Submit(author, body string, at time.Duration, now time.Time) (e models.ChatEntry, direct bool, err error) {
	if !r.loaded {
		return models.ChatEntry{}, false, ErrNotLoaded
	}
	e, err = timeline.NewEntry(author, body, at, len(r.Entries()), now)
	if err != nil {
		return models.ChatEntry{}, false, err
	}
	if r.live {
		r.nextID++
		r.pending.Put(models.PendingChatEntry{ChatEntry: e, LocalID: "local-" + strconv.Itoa(r.nextID)})
		return e, false, nil
	}
	r.writing = append(r.writing, e)
	return e, true, nil
}

// Writing returns the number of direct writes still in flight.
func (r *Reconciler) Writing() int { return len(r.writing) }

// CompleteWrite records the outcome of a direct write started by Submit. A
// rejected entry leaves the view.
func (r *Reconciler) CompleteWrite(e models.ChatEntry, writeErr error) error {
	for i := range r.writing {
		if r.writing[i].ID == e.ID {
			r.writing = append(r.writing[:i], r.writing[i+1:]...)
			break
		}
	}
	if writeErr != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, writeErr)
	}
	r.markDurable(e)
	return nil
}

func (r *Reconciler) markDurable(e models.ChatEntry) {
	if r.hasDurable(e) {
		return
	}
	r.durable = append(r.durable, e)
	r.local[e.ID] = struct{}{}
}

// PendingLen returns the number of buffered entries.
func (r *Reconciler) PendingLen() int { return r.pending.Len() }

// Flushing reports whether a flush is in flight.
func (r *Reconciler) Flushing() bool { return r.pending.Busy() }

// Flush writes every buffered entry in one batch. An empty buffer is a no-op.
func (r *Reconciler) Flush(ctx context.Context) error {
	b, ok := r.BeginFlush()
	if !ok {
		return nil
	}
	err := r.store.AddComments(ctx, b.WebinarID, b.Entries)
	return r.CompleteFlush(err)
}

// BeginFlush marks the buffer in flight and returns the batch to write, in
// sequence order. It returns false when there is nothing to write or a flush
// is already running.
func (r *Reconciler) BeginFlush() (Batch, bool) {
	items, ok := r.pending.Begin()
	if !ok {
		return Batch{}, false
	}
	entries := make([]models.ChatEntry, len(items))
	for i, p := range items {
		entries[i] = p.ChatEntry
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].SequenceIndex < entries[j].SequenceIndex
	})
	return Batch{WebinarID: r.webinarID, Entries: entries}, true
}

// CompleteFlush records the outcome of the batch returned by BeginFlush.
func (r *Reconciler) CompleteFlush(writeErr error) error {
	done := r.pending.Complete(writeErr == nil)
	if writeErr != nil {
		r.logger.Warn("chat flush failed, entries retained",
			zap.String("webinar_id", r.webinarID.String()),
			zap.Int("pending", r.pending.Len()),
			zap.Error(writeErr))
		return fmt.Errorf("%w: %w", ErrStoreWrite, writeErr)
	}
	for _, p := range done {
		r.markDurable(p.ChatEntry)
	}
	if len(done) > 0 {
		r.logger.Info("chat flushed",
			zap.String("webinar_id", r.webinarID.String()),
			zap.Int("entries", len(done)))
	}
	return nil
}

// TakePending empties the buffer and returns its entries, for handing off to
// a retry queue.
func (r *Reconciler) TakePending() []models.ChatEntry {
	items := r.pending.Take()
	out := make([]models.ChatEntry, len(items))
	for i, p := range items {
		out[i] = p.ChatEntry
	}
	return out
}

// ApplySnapshot replaces the durable view with a Store snapshot. Entries this
// Reconciler wrote that the snapshot does not show yet are kept until a later
// snapshot contains them.
func (r *Reconciler) ApplySnapshot(entries []models.ChatEntry) {
	r.loaded = true
	ids := make(map[uuid.UUID]struct{}, len(entries))
	keys := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		ids[e.ID] = struct{}{}
		keys[timeline.ContentKey(e)] = struct{}{}
	}
	durable := append([]models.ChatEntry(nil), entries...)
	for _, e := range r.durable {
		if _, ok := r.local[e.ID]; !ok {
			continue
		}
		_, byID := ids[e.ID]
		_, byKey := keys[timeline.ContentKey(e)]
		if byID || byKey {
			delete(r.local, e.ID)
			continue
		}
		durable = append(durable, e)
	}
	r.durable = durable
}

// Entries returns the merged view ordered by sequence index. A pending entry
// already present in the durable view, by ID or by content, is shown once.
func (r *Reconciler) Entries() []models.ChatEntry {
	out := make([]models.ChatEntry, 0, len(r.durable)+len(r.writing)+r.pending.Len())
	ids := make(map[uuid.UUID]struct{}, len(r.durable)+len(r.writing))
	keys := make(map[string]struct{}, len(r.durable)+len(r.writing))
	for _, list := range [][]models.ChatEntry{r.durable, r.writing} {
		for _, e := range list {
			if _, dup := ids[e.ID]; dup {
				continue
			}
			ids[e.ID] = struct{}{}
			keys[timeline.ContentKey(e)] = struct{}{}
			out = append(out, e)
		}
	}
	for _, p := range r.pending.Items() {
		if _, dup := ids[p.ID]; dup {
			continue
		}
		if _, dup := keys[timeline.ContentKey(p.ChatEntry)]; dup {
			continue
		}
		out = append(out, p.ChatEntry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SequenceIndex < out[j].SequenceIndex
	})
	return out
}

func (r *Reconciler) hasDurable(e models.ChatEntry) bool {
	key := timeline.ContentKey(e)
	for _, d := range r.durable {
		if d.ID == e.ID || timeline.ContentKey(d) == key {
			return true
		}
	}
	return false
}
