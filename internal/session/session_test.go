package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/domain"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/events"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/reconcile"
)

type fakeSubscriber struct {
	mu           sync.Mutex
	onConnect    func()
	onEvent      func([]byte)
	disconnected bool
	connectErr   error
}

func (f *fakeSubscriber) OnConnect(fn func())         { f.onConnect = fn }
func (f *fakeSubscriber) OnEvent(fn func(msg []byte)) { f.onEvent = fn }

func (f *fakeSubscriber) Connect(context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	go f.onConnect()
	return nil
}

func (f *fakeSubscriber) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
	return nil
}

type fetchReply struct {
	snap *Snapshot
	err  error
}

// fakeResyncer hands each Fetch call to the test, which answers it.
type fakeResyncer struct {
	calls chan chan fetchReply
}

func newFakeResyncer() *fakeResyncer {
	return &fakeResyncer{calls: make(chan chan fetchReply)}
}

func (f *fakeResyncer) Fetch(ctx context.Context) (*Snapshot, error) {
	reply := make(chan fetchReply, 1)
	select {
	case f.calls <- reply:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.snap, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeResyncer) next(t *testing.T) chan fetchReply {
	t.Helper()
	select {
	case reply := <-f.calls:
		return reply
	case <-time.After(2 * time.Second):
		t.Fatal("no resync started")
		return nil
	}
}

func message(t *testing.T, event string, payload any) []byte {
	t.Helper()
	env, err := events.NewEnvelope(events.ChannelFor("u1"), event, payload, time.Now())
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return raw
}

func intPtr(v int) *int { return &v }

func reading(id string) domain.VitalReading {
	return domain.VitalReading{ID: id, UserID: "u1", RecordedAt: time.Now().UTC(), HeartRate: intPtr(80)}
}

func vitalIDs(t *testing.T, s *Session) []string {
	t.Helper()
	var ids []string
	require.NoError(t, s.View(context.Background(), func(c *reconcile.Caches) {
		for _, v := range c.Vitals.List() {
			ids = append(ids, v.ID)
		}
	}))
	return ids
}

func startSession(t *testing.T, sub *fakeSubscriber, rs *fakeResyncer, snap *Snapshot) *Session {
	t.Helper()
	s := New(sub, rs, Config{ResyncRetry: 10 * time.Millisecond}, zap.NewNop())
	t.Cleanup(func() { s.Close() })

	errc := make(chan error, 1)
	go func() { errc <- s.Start(context.Background()) }()
	rs.next(t) <- fetchReply{snap: snap}
	require.NoError(t, <-errc)
	return s
}

func TestEventsDuringResyncAreReplayedAfterSnapshot(t *testing.T) {
	sub := &fakeSubscriber{}
	rs := newFakeResyncer()
	s := New(sub, rs, Config{}, zap.NewNop())
	t.Cleanup(func() { s.Close() })

	errc := make(chan error, 1)
	go func() { errc <- s.Start(context.Background()) }()

	reply := rs.next(t)
	sub.onEvent(message(t, events.VitalAdded, reading("r2")))
	sub.onEvent(message(t, events.VitalUpdated, map[string]any{"id": "r1", "notes": "after lunch"}))
	reply <- fetchReply{snap: &Snapshot{Vitals: []domain.VitalReading{reading("r1")}}}
	require.NoError(t, <-errc)

	require.NoError(t, s.View(context.Background(), func(c *reconcile.Caches) {
		assert.Equal(t, 2, c.Vitals.Len())
		r1, ok := c.Vitals.Get("r1")
		require.True(t, ok)
		assert.Equal(t, "after lunch", r1.Notes)
		assert.Equal(t, 80, *r1.HeartRate)
	}))
}

func TestEventsAfterResyncApplyDirectly(t *testing.T) {
	sub := &fakeSubscriber{}
	rs := newFakeResyncer()
	s := startSession(t, sub, rs, &Snapshot{Vitals: []domain.VitalReading{}})

	sub.onEvent(message(t, events.VitalAdded, reading("r1")))
	sub.onEvent(message(t, events.VitalAdded, reading("r1")))
	sub.onEvent(message(t, events.VitalUpdated, map[string]any{"id": "ghost", "notes": "x"}))

	assert.Equal(t, []string{"r1"}, vitalIDs(t, s))
}

func TestReconnectReplacesState(t *testing.T) {
	sub := &fakeSubscriber{}
	rs := newFakeResyncer()
	s := startSession(t, sub, rs, &Snapshot{Vitals: []domain.VitalReading{reading("r1"), reading("r2")}})
	assert.Len(t, vitalIDs(t, s), 2)

	go sub.onConnect()
	reply := rs.next(t)
	reply <- fetchReply{snap: &Snapshot{Vitals: []domain.VitalReading{reading("r3")}}}

	assert.Eventually(t, func() bool {
		ids := vitalIDs(t, s)
		return len(ids) == 1 && ids[0] == "r3"
	}, time.Second, 10*time.Millisecond)
}

func TestSupersededResyncIsIgnored(t *testing.T) {
	sub := &fakeSubscriber{}
	rs := newFakeResyncer()
	s := startSession(t, sub, rs, &Snapshot{Vitals: []domain.VitalReading{}})

	go sub.onConnect()
	stale := rs.next(t)
	go sub.onConnect()
	fresh := rs.next(t)

	fresh <- fetchReply{snap: &Snapshot{Vitals: []domain.VitalReading{reading("new")}}}
	assert.Eventually(t, func() bool { return len(vitalIDs(t, s)) == 1 }, time.Second, 10*time.Millisecond)

	stale <- fetchReply{snap: &Snapshot{Vitals: []domain.VitalReading{reading("old1"), reading("old2")}}}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"new"}, vitalIDs(t, s))
}

func TestFailedResyncIsRetried(t *testing.T) {
	sub := &fakeSubscriber{}
	rs := newFakeResyncer()
	s := New(sub, rs, Config{ResyncRetry: 10 * time.Millisecond}, zap.NewNop())
	t.Cleanup(func() { s.Close() })

	errc := make(chan error, 1)
	go func() { errc <- s.Start(context.Background()) }()

	rs.next(t) <- fetchReply{err: errors.New("read api down")}
	rs.next(t) <- fetchReply{snap: &Snapshot{Vitals: []domain.VitalReading{reading("r1")}}}
	require.NoError(t, <-errc)
	assert.Equal(t, []string{"r1"}, vitalIDs(t, s))
}

func TestNilSnapshotSliceLeavesCacheUntouched(t *testing.T) {
	sub := &fakeSubscriber{}
	rs := newFakeResyncer()
	s := startSession(t, sub, rs, &Snapshot{
		Vitals:       []domain.VitalReading{},
		Appointments: []reconcile.Appointment{{ID: "ap1", Title: "scan"}},
	})

	go sub.onConnect()
	rs.next(t) <- fetchReply{snap: &Snapshot{Vitals: []domain.VitalReading{reading("r1")}}}

	assert.Eventually(t, func() bool { return len(vitalIDs(t, s)) == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, s.View(context.Background(), func(c *reconcile.Caches) {
		assert.Equal(t, 1, c.Appointments.Len())
	}))
}

func TestCloseClearsAndStops(t *testing.T) {
	sub := &fakeSubscriber{}
	rs := newFakeResyncer()
	s := startSession(t, sub, rs, &Snapshot{Vitals: []domain.VitalReading{reading("r1")}})

	var caches *reconcile.Caches
	require.NoError(t, s.View(context.Background(), func(c *reconcile.Caches) { caches = c }))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, sub.disconnected)
	assert.Equal(t, 0, caches.Vitals.Len())
	assert.ErrorIs(t, s.View(context.Background(), func(*reconcile.Caches) {}), ErrClosed)

	// Late events from the transport must not block.
	sub.onEvent(message(t, events.VitalAdded, reading("r2")))
}

func TestStartFailsWhenConnectFails(t *testing.T) {
	sub := &fakeSubscriber{connectErr: errors.New("refused")}
	s := New(sub, newFakeResyncer(), Config{}, zap.NewNop())

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
	assert.True(t, sub.disconnected)
}
