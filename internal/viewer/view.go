// Package viewer runs one viewer's session: it classifies the schedule every
// tick, follows the Player, replays chat at the playback position and
// reconciles chat written while live with the Store.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/virtual-live/internal/access"
	"github.com/aura-webinar/virtual-live/internal/models"
	"github.com/aura-webinar/virtual-live/internal/questions"
	"github.com/aura-webinar/virtual-live/internal/reconcile"
	"github.com/aura-webinar/virtual-live/internal/session"
	"github.com/aura-webinar/virtual-live/internal/timeline"
)

var (
	// ErrClosed is returned by submissions after the view stopped.
	ErrClosed = errors.New("view closed")
	// ErrPlayerInit is reported when the Player fails before it loaded.
	ErrPlayerInit = errors.New("player failed to initialize")

	errFlushStuck = errors.New("flush still in flight at teardown")
)

// View is one viewer's session. All state below the channels is owned by the
// goroutine running Run.
type View struct {
	deps      Deps
	webinar   *models.Webinar
	subjectID string
	log       *zap.Logger

	machine   *session.Machine
	chat      *reconcile.Reconciler
	responses *reconcile.Buffer[models.Response]
	policy    questions.Policy

	inbox   chan func() // player events and submissions, in arrival order
	notify  chan struct{}
	results chan func()
	done    chan struct{}

	sink         Sink
	closing      bool
	position     time.Duration
	hasPosition  bool
	playerReady  bool
	playerFailed bool
	playing      bool
	playFrom     time.Time
	watched      time.Duration
	joinedAt     time.Time
	endedAt      time.Time
	chatSent     bool
	lastFP       uint64
	lastCue      string
	loading      bool
	reloadAgain  bool
	writeSeq     int
	writes       int // direct response writes in flight
	deferred     []deferredChat
	nextFlush    time.Time
}

// deferredChat is a chat submission waiting for the first Store snapshot.
type deferredChat struct {
	author string
	body   string
	at     time.Duration
	now    time.Time
	reply  func(models.ChatEntry, error)
}

// Open admits token to webinar and resolves its start. Nothing is computed for
// a denied token.
func Open(deps Deps, w *models.Webinar, token string, now time.Time) (*View, error) {
	deps = deps.withDefaults()
	subjectID, err := access.Authorize(token, w.AuthorizedLinks)
	if err != nil {
		if deps.Metrics != nil {
			deps.Metrics.IncAccessDenied()
		}
		return nil, err
	}
	start, err := deps.Resolver.Resolve(w.Schedule, now)
	if err != nil {
		if deps.Metrics != nil {
			deps.Metrics.IncUnresolvable()
		}
		return nil, fmt.Errorf("webinar %s: %w", w.ID, err)
	}

	log := deps.Logger.With(zap.String("webinar_id", w.ID.String()), zap.String("subject_id", subjectID))
	v := &View{
		deps:      deps,
		webinar:   w,
		subjectID: subjectID,
		log:       log,
		machine:   session.NewMachine(deps.Classifier, start, w.VideoDuration, now),
		chat:      reconcile.New(w.ID, deps.Comments, log),
		responses: reconcile.NewBuffer(questions.ResponseKey),
		policy:    questions.Policy{Grace: deps.ResponseGrace},
		inbox:     make(chan func(), 64),
		notify:    make(chan struct{}, 1),
		results:   make(chan func(), 4),
		done:      make(chan struct{}),
	}
	st := v.machine.State()
	v.chat.SetLive(st.Phase == session.PhaseLive)
	if st.Phase == session.PhaseEnded {
		v.endedAt = v.endInstant(now)
	}
	return v, nil
}

// SubjectID returns the subject admitted by the access gate.
func (v *View) SubjectID() string { return v.subjectID }

// Webinar returns the webinar this view shows.
func (v *View) Webinar() *models.Webinar { return v.webinar }

// Start returns the resolved start instant.
func (v *View) Start() time.Time { return v.machine.Start() }

// Done is closed once Run has returned.
func (v *View) Done() <-chan struct{} { return v.done }

// HandlePlayer queues a Player event behind earlier events and submissions.
// It blocks while the queue is full and drops the event once the view stopped.
func (v *View) HandlePlayer(ev PlayerEvent) {
	select {
	case v.inbox <- func() { v.onPlayer(ev) }:
	case <-v.done:
	}
}

// Notify signals that the Store changed. Signals coalesce.
func (v *View) Notify() {
	select {
	case v.notify <- struct{}{}:
	default:
	}
}

// SubmitChat admits a chat message at the current playback position.
func (v *View) SubmitChat(ctx context.Context, author, body string) (models.ChatEntry, error) {
	type result struct {
		entry models.ChatEntry
		err   error
	}
	reply := make(chan result, 1)
	err := v.do(ctx, func() {
		v.submitChat(author, body, func(e models.ChatEntry, err error) {
			reply <- result{e, err}
		})
	})
	if err != nil {
		return models.ChatEntry{}, err
	}
	select {
	case r := <-reply:
		return r.entry, r.err
	case <-ctx.Done():
		return models.ChatEntry{}, ctx.Err()
	case <-v.done:
		select {
		case r := <-reply:
			return r.entry, r.err
		default:
			return models.ChatEntry{}, ErrClosed
		}
	}
}

// SubmitResponse records an answer to a question cue.
func (v *View) SubmitResponse(ctx context.Context, s questions.Submission) (models.Response, error) {
	type result struct {
		resp models.Response
		err  error
	}
	reply := make(chan result, 1)
	err := v.do(ctx, func() {
		v.submitResponse(s, func(r models.Response, err error) {
			reply <- result{r, err}
		})
	})
	if err != nil {
		return models.Response{}, err
	}
	select {
	case r := <-reply:
		return r.resp, r.err
	case <-ctx.Done():
		return models.Response{}, ctx.Err()
	case <-v.done:
		select {
		case r := <-reply:
			return r.resp, r.err
		default:
			return models.Response{}, ErrClosed
		}
	}
}

// do queues fn on the inbox. Queued work still runs if the view is stopping;
// work queued after the final drain never runs.
func (v *View) do(ctx context.Context, fn func()) error {
	select {
	case v.inbox <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-v.done:
		return ErrClosed
	}
}

// post returns a helper goroutine's result to the loop.
func (v *View) post(fn func()) {
	select {
	case v.results <- fn:
	case <-v.done:
	}
}

// Run processes events until ctx is cancelled, then flushes and tears down.
func (v *View) Run(ctx context.Context, sink Sink) error {
	if sink == nil {
		sink = nopSink{}
	}
	v.sink = sink
	defer close(v.done)

	v.joinedAt = v.deps.Clock()
	if v.deps.Metrics != nil {
		v.deps.Metrics.ViewStarted()
	}
	var unsubscribe func()
	if v.deps.Changes != nil {
		unsubscribe = v.deps.Changes.Subscribe(v.webinar.ID, v.Notify)
	}
	ticker := time.NewTicker(v.deps.Tick)

	v.log.Info("session view started", zap.Stringer("phase", v.machine.State().Phase), zap.Time("starts_at", v.machine.Start()))
	v.pushState()
	v.reload()

	for {
		select {
		case <-ctx.Done():
			v.teardown(ticker, unsubscribe)
			return nil
		case <-ticker.C:
			v.onTick()
		case fn := <-v.inbox:
			fn()
		case <-v.notify:
			if v.deps.Metrics != nil {
				v.deps.Metrics.IncNotifications()
			}
			v.reload()
		case fn := <-v.results:
			fn()
		}
	}
}

func (v *View) onTick() {
	now := v.deps.Clock()
	tr := v.machine.Tick(now)
	v.afterTransition(tr, now)
	if !tr.Changed() && v.machine.State().Phase == session.PhaseUpcoming {
		v.pushState()
	}
	v.refreshChat()
	v.refreshCue()
	v.retryFlush(now)
	if !v.chat.Loaded() && !v.loading {
		v.reload()
	}
}

func (v *View) onPlayer(ev PlayerEvent) {
	now := v.deps.Clock()
	switch ev.Kind {
	case PlayerLoaded:
		v.playerReady = true
		v.playerFailed = false
		tr := v.machine.SetDuration(timeline.Seconds(ev.Duration), now)
		v.afterTransition(tr, now)
		if st := v.machine.State(); st.Phase == session.PhaseLive {
			v.sink.Push(EventSeek, SeekPayload{Seconds: int64(st.Elapsed / time.Second)})
		}
		if !tr.Changed() {
			v.pushState()
		}
	case PlayerError:
		v.playerFailed = true
		code, msg := "playback", ev.Message
		if !v.playerReady {
			code = "player_init"
			if msg == "" {
				msg = ErrPlayerInit.Error()
			}
		}
		v.log.Warn("player error", zap.String("code", code), zap.String("message", ev.Message))
		v.sink.Push(EventError, ErrorPayload{Code: code, Message: msg})
		v.refreshChat()
		v.refreshCue()
	case PlayerTimeUpdate:
		v.position = timeline.Seconds(ev.Seconds)
		v.hasPosition = true
		v.playerFailed = false
		v.refreshChat()
		v.refreshCue()
	case PlayerPlay:
		if !v.playing {
			v.playing = true
			v.playFrom = now
		}
	case PlayerPause:
		v.stopWatch(now)
	case PlayerEnded:
		v.stopWatch(now)
		pos := v.position
		if ev.Seconds > 0 {
			pos = timeline.Seconds(ev.Seconds)
		}
		v.afterTransition(v.machine.PlayerEnded(pos), now)
	}
}

func (v *View) afterTransition(tr session.Transition, now time.Time) {
	if !tr.Changed() {
		return
	}
	if v.deps.Metrics != nil {
		v.deps.Metrics.Transition(tr.From.String(), tr.To.String())
	}
	v.log.Info("session transition", zap.Stringer("from", tr.From), zap.Stringer("to", tr.To))
	v.chat.SetLive(tr.To == session.PhaseLive)
	if tr.To == session.PhaseEnded {
		v.endedAt = v.endInstant(now)
	}
	if tr.LeftLive() {
		v.startFlush()
	}
	v.pushState()
	if tr.To == session.PhaseLive && v.playerReady {
		v.sink.Push(EventSeek, SeekPayload{Seconds: int64(v.machine.State().Elapsed / time.Second)})
	}
	v.refreshChat()
	v.refreshCue()
}

// endInstant is when the session ended: start+duration when known.
func (v *View) endInstant(now time.Time) time.Time {
	if d := v.machine.Duration(); d > 0 {
		return v.machine.Start().Add(d)
	}
	return now
}

// currentPosition is the video offset chat visibility follows: the Player's
// position while it works, the wall-clock elapsed time otherwise.
func (v *View) currentPosition() time.Duration {
	st := v.machine.State()
	switch st.Phase {
	case session.PhaseUpcoming:
		return 0
	case session.PhaseEnded:
		return st.Elapsed
	}
	if v.hasPosition && !v.playerFailed {
		return v.position
	}
	return st.Elapsed
}

func (v *View) pushState() {
	v.sink.Push(EventState, NewStatePayload(v.machine.State(), v.machine.Start(), v.machine.Duration()))
}

func (v *View) refreshChat() {
	visible := []models.ChatEntry{}
	if v.machine.State().Phase != session.PhaseUpcoming {
		visible = timeline.VisibleEntries(v.chat.Entries(), v.currentPosition())
	}
	fp := timeline.Fingerprint(visible)
	if v.chatSent && fp == v.lastFP {
		return
	}
	v.chatSent = true
	v.lastFP = fp
	v.sink.Push(EventChat, NewChatPayload(visible))
}

func (v *View) refreshCue() {
	var cue *models.QuestionCue
	if v.machine.State().Phase == session.PhaseLive {
		cue = questions.Active(v.webinar.Questions, v.currentPosition())
	}
	id := ""
	if cue != nil {
		id = cue.ID
	}
	if id == v.lastCue {
		return
	}
	v.lastCue = id
	v.sink.Push(EventQuestion, QuestionPayload{Question: cue})
}

// submitChat admits a chat message and answers through reply once the
// outcome is known. Before the first snapshot the message waits in deferred.
func (v *View) submitChat(author, body string, reply func(models.ChatEntry, error)) {
	now := v.deps.Clock()
	v.afterTransition(v.machine.Tick(now), now)
	at := v.currentPosition()
	if !v.chat.Loaded() {
		v.deferred = append(v.deferred, deferredChat{author: author, body: body, at: at, now: now, reply: reply})
		return
	}
	v.admitChat(author, body, at, now, reply)
}

func (v *View) admitChat(author, body string, at time.Duration, now time.Time, reply func(models.ChatEntry, error)) {
	e, direct, err := v.chat.Submit(author, body, at, now)
	if err != nil {
		v.countSubmission("chat", "rejected")
		reply(models.ChatEntry{}, err)
		return
	}
	v.refreshChat()
	if !direct {
		v.countSubmission("chat", "buffered")
		reply(e, nil)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), v.deps.FlushTimeout)
		defer cancel()
		err := v.deps.Comments.AddComment(ctx, v.webinar.ID, e)
		v.post(func() { v.completeChatWrite(e, err, reply) })
	}()
}

func (v *View) completeChatWrite(e models.ChatEntry, writeErr error, reply func(models.ChatEntry, error)) {
	if err := v.chat.CompleteWrite(e, writeErr); err != nil {
		v.countSubmission("chat", "rejected")
		v.log.Warn("chat write failed", zap.Error(writeErr))
		v.refreshChat()
		reply(models.ChatEntry{}, err)
		return
	}
	v.countSubmission("chat", "written")
	v.writeSeq++
	if v.deps.Changes != nil {
		v.deps.Changes.PublishCommentsChanged(v.webinar.ID)
	}
	v.refreshChat()
	reply(e, nil)
}

// admitDeferred runs the submissions that waited for the first snapshot.
func (v *View) admitDeferred() {
	queued := v.deferred
	v.deferred = nil
	for _, d := range queued {
		v.admitChat(d.author, d.body, d.at, d.now, d.reply)
	}
}

func (v *View) submitResponse(s questions.Submission, reply func(models.Response, error)) {
	now := v.deps.Clock()
	v.afterTransition(v.machine.Tick(now), now)

	st := v.machine.State()
	if !v.policy.Open(st, v.endedAt, now) {
		v.countSubmission("response", "rejected")
		reply(models.Response{}, questions.ErrClosed)
		return
	}
	if s.SubjectName == "" {
		s.SubjectName = v.subjectID
	}
	r, err := questions.NewResponse(v.webinar, v.subjectID, s, v.currentPosition(), now)
	if err != nil {
		v.countSubmission("response", "rejected")
		reply(models.Response{}, err)
		return
	}
	if st.Phase == session.PhaseLive {
		v.responses.Put(r)
		v.countSubmission("response", "buffered")
		reply(r, nil)
		return
	}
	if v.deps.Responses == nil {
		reply(models.Response{}, fmt.Errorf("%w: no response store", reconcile.ErrStoreWrite))
		return
	}
	v.writes++
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), v.deps.FlushTimeout)
		defer cancel()
		err := v.deps.Responses.UpsertResponses(ctx, []models.Response{r})
		v.post(func() { v.completeResponseWrite(r, err, reply) })
	}()
}

func (v *View) completeResponseWrite(r models.Response, err error, reply func(models.Response, error)) {
	v.writes--
	if err != nil {
		v.countSubmission("response", "rejected")
		v.log.Warn("response write failed", zap.String("question_id", r.QuestionID), zap.Error(err))
		reply(models.Response{}, fmt.Errorf("%w: %w", reconcile.ErrStoreWrite, err))
		return
	}
	v.countSubmission("response", "written")
	reply(r, nil)
}

func (v *View) countSubmission(kind, outcome string) {
	if v.deps.Metrics != nil {
		v.deps.Metrics.Submission(kind, outcome)
	}
}

func (v *View) stopWatch(now time.Time) {
	if !v.playing {
		return
	}
	v.playing = false
	if d := now.Sub(v.playFrom); d > 0 {
		v.watched += d
	}
}

type nopSink struct{}

func (nopSink) Push(string, any) {}
