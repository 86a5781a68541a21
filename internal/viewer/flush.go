package viewer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/virtual-live/internal/models"
	"github.com/aura-webinar/virtual-live/internal/reconcile"
)

// startFlush writes buffered chat and responses from helper goroutines. The
// outcome comes back to the loop through results.
func (v *View) startFlush() {
	if b, ok := v.chat.BeginFlush(); ok {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), v.deps.FlushTimeout)
			defer cancel()
			err := v.deps.Comments.AddComments(ctx, b.WebinarID, b.Entries)
			v.post(func() { v.completeChatFlush(len(b.Entries), err) })
		}()
	}
	if v.deps.Responses == nil {
		return
	}
	if items, ok := v.responses.Begin(); ok {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), v.deps.FlushTimeout)
			defer cancel()
			err := v.deps.Responses.UpsertResponses(ctx, items)
			v.post(func() { v.completeResponseFlush(len(items), err) })
		}()
	}
}

func (v *View) completeChatFlush(n int, writeErr error) {
	err := v.chat.CompleteFlush(writeErr)
	if v.deps.Metrics != nil {
		v.deps.Metrics.Flushed(n, err)
	}
	if err != nil {
		v.nextFlush = v.deps.Clock().Add(v.deps.FlushRetry)
		return
	}
	v.writeSeq++
	if v.deps.Changes != nil {
		v.deps.Changes.PublishCommentsChanged(v.webinar.ID)
	}
	v.refreshChat()
}

func (v *View) completeResponseFlush(n int, err error) {
	v.responses.Complete(err == nil)
	if err != nil {
		v.log.Warn("response flush failed, responses retained", zap.Int("pending", v.responses.Len()), zap.Error(err))
		v.nextFlush = v.deps.Clock().Add(v.deps.FlushRetry)
		return
	}
	v.log.Info("responses flushed", zap.Int("responses", n))
}

// retryFlush retries a failed flush once the session is no longer live.
func (v *View) retryFlush(now time.Time) {
	if v.chat.Live() || now.Before(v.nextFlush) {
		return
	}
	if v.chat.PendingLen() > 0 || v.responses.Len() > 0 {
		v.startFlush()
	}
}

// reload fetches a fresh Store snapshot. A snapshot requested before the
// latest local write completed is discarded and fetched again.
func (v *View) reload() {
	if v.closing {
		return
	}
	if v.loading {
		v.reloadAgain = true
		return
	}
	v.loading = true
	seq := v.writeSeq
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), v.deps.FlushTimeout)
		defer cancel()
		list, err := v.deps.Comments.List(ctx, v.webinar.ID)
		v.post(func() { v.applySnapshot(seq, list, err) })
	}()
}

func (v *View) applySnapshot(seq int, list []models.ChatEntry, err error) {
	v.loading = false
	switch {
	case err != nil:
		// Until a snapshot loads, the next tick asks again.
		v.log.Warn("chat snapshot failed", zap.Bool("loaded", v.chat.Loaded()), zap.Error(err))
	case seq < v.writeSeq:
		v.reloadAgain = true
	default:
		v.chat.ApplySnapshot(list)
		v.admitDeferred()
		v.refreshChat()
	}
	if v.reloadAgain {
		v.reloadAgain = false
		v.reload()
	}
}

// teardown runs in a fixed order: flush (spilling what still fails),
// unsubscribe, stop the ticker, record watch time.
func (v *View) teardown(ticker *time.Ticker, unsubscribe func()) {
	v.drainInbox()
	v.closing = true
	now := v.deps.Clock()
	v.awaitInflight()
	v.rejectDeferred()

	v.flushOnClose()
	if unsubscribe != nil {
		unsubscribe()
	}
	ticker.Stop()
	v.stopWatch(now)
	v.recordWatchTime(now)
	if v.deps.Metrics != nil {
		v.deps.Metrics.ViewStopped()
	}
	v.log.Info("session view stopped", zap.Duration("watched", v.watched))
}

// drainInbox runs work that was accepted before cancellation.
func (v *View) drainInbox() {
	for {
		select {
		case fn := <-v.inbox:
			fn()
		default:
			return
		}
	}
}

// awaitInflight applies outstanding write results, bounded by FlushTimeout.
func (v *View) awaitInflight() {
	if !v.inflight() {
		return
	}
	deadline := time.NewTimer(v.deps.FlushTimeout)
	defer deadline.Stop()
	for v.inflight() {
		select {
		case fn := <-v.results:
			fn()
		case <-deadline.C:
			return
		}
	}
}

func (v *View) inflight() bool {
	return v.chat.Flushing() || v.responses.Busy() || v.chat.Writing() > 0 || v.writes > 0
}

// rejectDeferred answers submissions that never saw a snapshot.
func (v *View) rejectDeferred() {
	for _, d := range v.deferred {
		v.countSubmission("chat", "rejected")
		d.reply(models.ChatEntry{}, reconcile.ErrNotLoaded)
	}
	v.deferred = nil
}

func (v *View) flushOnClose() {
	ctx, cancel := context.WithTimeout(context.Background(), v.deps.FlushTimeout)
	defer cancel()

	if n := v.chat.PendingLen(); n > 0 {
		err := errFlushStuck
		if !v.chat.Flushing() {
			err = v.chat.Flush(ctx)
			if v.deps.Metrics != nil {
				v.deps.Metrics.Flushed(n, err)
			}
		}
		if err != nil {
			v.spillChat(err)
		} else if v.deps.Changes != nil {
			v.deps.Changes.PublishCommentsChanged(v.webinar.ID)
		}
	}

	if v.responses.Len() == 0 {
		return
	}
	err := errFlushStuck
	if items, ok := v.responses.Begin(); ok && v.deps.Responses != nil {
		err = v.deps.Responses.UpsertResponses(ctx, items)
		v.responses.Complete(err == nil)
	}
	if err != nil {
		v.spillResponses(err)
	}
}

func (v *View) spillChat(cause error) {
	entries := v.chat.TakePending()
	if v.deps.Spill == nil {
		v.log.Error("chat lost at teardown", zap.Int("entries", len(entries)), zap.Error(cause))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), v.deps.FlushTimeout)
	defer cancel()
	if err := v.deps.Spill.SpillChat(ctx, v.webinar.ID, entries); err != nil {
		v.log.Error("chat lost at teardown", zap.Int("entries", len(entries)), zap.NamedError("flush_error", cause), zap.Error(err))
		return
	}
	if v.deps.Metrics != nil {
		v.deps.Metrics.IncSpilled()
	}
	v.log.Warn("chat handed to worker", zap.Int("entries", len(entries)), zap.Error(cause))
}

func (v *View) spillResponses(cause error) {
	list := v.responses.Take()
	if v.deps.Spill == nil {
		v.log.Error("responses lost at teardown", zap.Int("responses", len(list)), zap.Error(cause))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), v.deps.FlushTimeout)
	defer cancel()
	if err := v.deps.Spill.SpillResponses(ctx, v.webinar, list); err != nil {
		v.log.Error("responses lost at teardown", zap.Int("responses", len(list)), zap.NamedError("flush_error", cause), zap.Error(err))
		return
	}
	if v.deps.Metrics != nil {
		v.deps.Metrics.IncSpilled()
	}
	v.log.Warn("responses handed to worker", zap.Int("responses", len(list)), zap.Error(cause))
}

func (v *View) recordWatchTime(now time.Time) {
	if v.deps.Sessions == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), v.deps.FlushTimeout)
	defer cancel()
	left := now
	entry := models.ViewerSessionLog{
		WebinarID:    v.webinar.ID,
		SubjectID:    v.subjectID,
		JoinedAt:     v.joinedAt,
		LeftAt:       &left,
		WatchSeconds: int64(v.watched / time.Second),
	}
	if err := v.deps.Sessions.Record(ctx, entry); err != nil {
		v.log.Warn("record watch time failed", zap.Error(err))
	}
}
