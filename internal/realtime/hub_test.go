package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
)

// fakeBus delivers published events to subscribers synchronously, like a
// single Redis server shared by every instance.
type fakeBus struct {
	mu         sync.Mutex
	handlers   map[uuid.UUID][]func(string, []byte)
	subscribes int
	cancels    int
	publishErr error
	subErr     error
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[uuid.UUID][]func(string, []byte))}
}

func (b *fakeBus) PublishWebinarEvent(_ context.Context, id uuid.UUID, event string, payload []byte) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.mu.Lock()
	hs := append([]func(string, []byte){}, b.handlers[id]...)
	b.mu.Unlock()
	for _, h := range hs {
		h(event, payload)
	}
	return nil
}

func (b *fakeBus) SubscribeWebinar(_ context.Context, id uuid.UUID, handler func(string, []byte)) (func(), error) {
	if b.subErr != nil {
		return nil, b.subErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribes++
	b.handlers[id] = append(b.handlers[id], handler)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.cancels++
		delete(b.handlers, id)
	}, nil
}

func TestHub_PublishReachesViewsOnEveryInstance(t *testing.T) {
	bus := newFakeBus()
	a := NewHub(nil, bus, bus)
	b := NewHub(nil, bus, bus)
	id := uuid.New()

	var onA, onB int32
	cancelA := a.Subscribe(id, func() { atomic.AddInt32(&onA, 1) })
	defer cancelA()
	cancelB := b.Subscribe(id, func() { atomic.AddInt32(&onB, 1) })
	defer cancelB()

	a.PublishCommentsChanged(id)

	if got := atomic.LoadInt32(&onA); got != 1 {
		t.Errorf("local view notified %d times, want 1", got)
	}
	if got := atomic.LoadInt32(&onB); got != 1 {
		t.Errorf("remote view notified %d times, want 1", got)
	}
}

func TestHub_OneRedisSubscriptionPerWebinar(t *testing.T) {
	bus := newFakeBus()
	h := NewHub(nil, bus, bus)
	id := uuid.New()

	c1 := h.Subscribe(id, func() {})
	c2 := h.Subscribe(id, func() {})
	if bus.subscribes != 1 {
		t.Fatalf("subscribes = %d, want 1", bus.subscribes)
	}
	c1()
	c1()
	if bus.cancels != 0 {
		t.Fatalf("subscription closed while a listener remains")
	}
	c2()
	if bus.cancels != 1 {
		t.Fatalf("cancels = %d, want 1", bus.cancels)
	}
}

func TestHub_IgnoresOtherEvents(t *testing.T) {
	bus := newFakeBus()
	h := NewHub(nil, bus, bus)
	id := uuid.New()
	var n int32
	defer h.Subscribe(id, func() { atomic.AddInt32(&n, 1) })()

	_ = bus.PublishWebinarEvent(context.Background(), id, "audience_count", nil)
	if atomic.LoadInt32(&n) != 0 {
		t.Fatal("listener notified for an unrelated event")
	}
}

func TestHub_FallsBackToLocalDelivery(t *testing.T) {
	tests := []struct {
		name string
		bus  *fakeBus
	}{
		{"publish fails", &fakeBus{handlers: map[uuid.UUID][]func(string, []byte){}, publishErr: errors.New("redis down")}},
		{"subscribe fails", &fakeBus{handlers: map[uuid.UUID][]func(string, []byte){}, subErr: errors.New("redis down")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHub(nil, tt.bus, tt.bus)
			id := uuid.New()
			var n int32
			defer h.Subscribe(id, func() { atomic.AddInt32(&n, 1) })()
			h.PublishCommentsChanged(id)
			if atomic.LoadInt32(&n) < 1 {
				t.Fatal("local listener not notified")
			}
		})
	}
}

func TestHub_WithoutRedis(t *testing.T) {
	h := NewHub(nil, nil, nil)
	id := uuid.New()
	var n int32
	cancel := h.Subscribe(id, func() { atomic.AddInt32(&n, 1) })
	h.PublishCommentsChanged(id)
	h.PublishCommentsChanged(uuid.New())
	cancel()
	h.PublishCommentsChanged(id)
	if got := atomic.LoadInt32(&n); got != 1 {
		t.Fatalf("notified %d times, want 1", got)
	}
}

func TestHub_AudienceCount(t *testing.T) {
	h := NewHub(nil, nil, nil)
	id := uuid.New()
	var counts []int
	h.SetAudienceChangeHandler(func(_ uuid.UUID, n int) { counts = append(counts, n) })

	c1 := &Client{ID: "a", WebinarID: id}
	c2 := &Client{ID: "b", WebinarID: id}
	h.Register(c1)
	h.Register(c2)
	if got := h.AudienceCount(id); got != 2 {
		t.Fatalf("AudienceCount = %d, want 2", got)
	}
	h.Unregister(c1)
	h.Unregister(c2)
	if got := h.AudienceCount(id); got != 0 {
		t.Fatalf("AudienceCount = %d, want 0", got)
	}
	want := []int{1, 2, 1, 0}
	if len(counts) != len(want) {
		t.Fatalf("counts = %v, want %v", counts, want)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Fatalf("counts = %v, want %v", counts, want)
		}
	}
}

func TestEventCodec(t *testing.T) {
	body, err := encodeEvent(EventCommentsChanged, nil, t0)
	if err != nil {
		t.Fatal(err)
	}
	p, err := decodeEvent(body)
	if err != nil {
		t.Fatal(err)
	}
	if p.Event != EventCommentsChanged || p.At != t0.Unix() || string(p.Data) != "null" {
		t.Fatalf("decoded %+v", p)
	}
	if _, err := decodeEvent([]byte(`{"data":{}}`)); !errors.Is(err, errMissingEvent) {
		t.Fatalf("err = %v, want errMissingEvent", err)
	}
	if _, err := decodeEvent([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
