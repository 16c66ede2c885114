package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/db"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/domain"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/events"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/repository"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/threshold"
)

type published struct {
	userID  string
	event   string
	payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
	hook   func(published)
}

func (p *fakePublisher) Publish(userID, event string, payload any) {
	e := published{userID: userID, event: event, payload: payload}
	if p.hook != nil {
		p.hook(e)
	}
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *fakePublisher) named(event string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func newStore(t *testing.T) *repository.SQLite {
	t.Helper()
	gdb, err := db.OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	s := repository.NewSQLite(gdb)
	require.NoError(t, s.AutoMigrate())
	return s
}

func newManager(t *testing.T, store Store) (*Manager, *fakePublisher) {
	t.Helper()
	pub := &fakePublisher{}
	return NewManager(store, threshold.NewEvaluator(threshold.DefaultBands()), pub, zap.NewNop()), pub
}

func intp(v int) *int { return &v }

func reading(user string, hr, spo2 *int) domain.VitalReading {
	return domain.VitalReading{
		UserID:     user,
		RecordedAt: time.Now().Add(-time.Minute),
		HeartRate:  hr,
		SpO2:       spo2,
	}
}

func TestRecordReadingPersistsAndPublishes(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	m, pub := newManager(t, store)

	got, err := m.RecordReading(ctx, reading("u1", intp(150), intp(85)))
	require.NoError(t, err)
	require.NotEmpty(t, got.Reading.ID)
	assert.False(t, got.Reading.CreatedAt.IsZero())
	require.Len(t, got.Alerts, 2)
	assert.Equal(t, domain.AlertHighHR, got.Alerts[0].Type)
	assert.Equal(t, domain.AlertLowSpO2, got.Alerts[1].Type)
	for _, a := range got.Alerts {
		assert.Equal(t, got.Reading.ID, a.ReadingID)
		assert.Equal(t, domain.SeverityCritical, a.Severity)
		assert.Equal(t, got.Reading.ID, a.Reading.ID)
	}

	listed, err := m.List(ctx, "u1", domain.DefaultAlertFilter())
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	added := pub.named(events.VitalAdded)
	require.Len(t, added, 1)
	assert.Equal(t, "u1", added[0].userID)
	created := pub.named(events.AlertCreated)
	require.Len(t, created, 2)
	assert.Equal(t, got.Alerts[0].ID, created[0].payload.(domain.AlertView).ID)
}

func TestRecordReadingWithoutBreachCreatesNoAlerts(t *testing.T) {
	m, pub := newManager(t, newStore(t))

	got, err := m.RecordReading(context.Background(), reading("u1", intp(80), intp(98)))
	require.NoError(t, err)
	assert.Empty(t, got.Alerts)
	assert.Len(t, pub.named(events.VitalAdded), 1)
	assert.Empty(t, pub.named(events.AlertCreated))
}

func TestRecordReadingPublishesAfterCommit(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	m, pub := newManager(t, store)

	var visible []int
	pub.hook = func(e published) {
		views, err := store.ListAlerts(ctx, "u1", domain.AlertFilter{})
		if err == nil {
			visible = append(visible, len(views))
		}
	}

	_, err := m.RecordReading(ctx, reading("u1", intp(150), intp(85)))
	require.NoError(t, err)
	require.Len(t, visible, 3)
	for _, n := range visible {
		assert.Equal(t, 2, n, "every event must see the committed alert set")
	}
}

// failingStore breaks the unit of work on the nth alert insert.
type failingStore struct {
	*repository.SQLite
	failOn int
}

type failingTx struct {
	repository.Tx
	failOn int
	seen   int
}

var errInjected = errors.New("injected failure")

func (t *failingTx) InsertAlert(ctx context.Context, a *domain.VitalAlert) error {
	t.seen++
	if t.seen == t.failOn {
		return errInjected
	}
	return t.Tx.InsertAlert(ctx, a)
}

func (s *failingStore) InTx(ctx context.Context, fn func(repository.Tx) error) error {
	return s.SQLite.InTx(ctx, func(tx repository.Tx) error {
		return fn(&failingTx{Tx: tx, failOn: s.failOn})
	})
}

func TestRecordReadingIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	m, pub := newManager(t, &failingStore{SQLite: store, failOn: 2})

	_, err := m.RecordReading(ctx, reading("u1", intp(150), intp(85)))
	require.ErrorIs(t, err, errInjected)

	readings, err := store.ListReadings(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, readings)
	views, err := store.ListAlerts(ctx, "u1", domain.AlertFilter{})
	require.NoError(t, err)
	assert.Empty(t, views)
	assert.Zero(t, pub.count())
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, pub := newManager(t, newStore(t))
	got, err := m.RecordReading(ctx, reading("u1", intp(150), nil))
	require.NoError(t, err)
	id := got.Alerts[0].ID

	first, err := m.Acknowledge(ctx, id, "u1")
	require.NoError(t, err)
	assert.True(t, first.Acknowledged)
	require.NotNil(t, first.AcknowledgedAt)

	m.now = func() time.Time { return time.Now().Add(time.Hour) }
	second, err := m.Acknowledge(ctx, id, "u1")
	require.NoError(t, err)
	assert.True(t, second.Acknowledged)
	require.NotNil(t, second.AcknowledgedAt)
	assert.True(t, first.AcknowledgedAt.Equal(*second.AcknowledgedAt))

	acked := pub.named(events.AlertAcknowledged)
	require.Len(t, acked, 1)
	assert.Equal(t, id, acked[0].payload.(*domain.AlertView).ID)
}

func TestAcknowledgeConcurrentCallsCollapse(t *testing.T) {
	ctx := context.Background()
	m, pub := newManager(t, newStore(t))
	got, err := m.RecordReading(ctx, reading("u1", intp(150), nil))
	require.NoError(t, err)
	id := got.Alerts[0].ID

	const n = 8
	results := make([]*domain.AlertView, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.Acknowledge(ctx, id, "u1")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.True(t, results[i].Acknowledged)
		assert.True(t, results[0].AcknowledgedAt.Equal(*results[i].AcknowledgedAt))
	}
	assert.Len(t, pub.named(events.AlertAcknowledged), 1)
}

func TestAcknowledgeOtherUsersAlertIsNotFound(t *testing.T) {
	ctx := context.Background()
	m, pub := newManager(t, newStore(t))
	got, err := m.RecordReading(ctx, reading("u1", intp(150), nil))
	require.NoError(t, err)

	_, err = m.Acknowledge(ctx, got.Alerts[0].ID, "u2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = m.Acknowledge(ctx, uuid.NewString(), "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, pub.named(events.AlertAcknowledged))

	views, err := m.List(ctx, "u1", domain.DefaultAlertFilter())
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.False(t, views[0].Acknowledged)
}

func TestListNeverReturnsAcknowledgedByDefault(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, newStore(t))
	for i := 0; i < 4; i++ {
		got, err := m.RecordReading(ctx, reading("u1", intp(150), intp(85)))
		require.NoError(t, err)
		if i%2 == 0 {
			_, err := m.Acknowledge(ctx, got.Alerts[0].ID, "u1")
			require.NoError(t, err)
		}
	}

	views, err := m.List(ctx, "u1", domain.DefaultAlertFilter())
	require.NoError(t, err)
	assert.Len(t, views, 6)
	for _, v := range views {
		assert.False(t, v.Acknowledged)
	}

	all, err := m.List(ctx, "u1", domain.AlertFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 8)
}

func TestListTriageOrder(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, newStore(t))
	t1 := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	t2, t3 := t1.Add(time.Minute), t1.Add(2*time.Minute)

	record := func(at time.Time, hr int) string {
		m.now = func() time.Time { return at }
		got, err := m.RecordReading(ctx, reading("u1", intp(hr), nil))
		require.NoError(t, err)
		require.Len(t, got.Alerts, 1)
		return got.Alerts[0].ID
	}
	c1 := record(t1, 150)
	w3 := record(t3, 125)
	c2 := record(t2, 150)

	views, err := m.List(ctx, "u1", domain.DefaultAlertFilter())
	require.NoError(t, err)
	got := make([]string, 0, len(views))
	for _, v := range views {
		got = append(got, v.ID)
	}
	assert.Equal(t, []string{c2, c1, w3}, got)

	critical := domain.SeverityCritical
	views, err = m.List(ctx, "u1", domain.AlertFilter{Severity: &critical, UnacknowledgedOnly: true})
	require.NoError(t, err)
	assert.Len(t, views, 2)
}

func TestSummaryAndReadings(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, newStore(t))
	_, err := m.RecordReading(ctx, reading("u1", intp(150), intp(92)))
	require.NoError(t, err)
	_, err = m.RecordReading(ctx, reading("u1", intp(125), nil))
	require.NoError(t, err)

	counts, err := m.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.AlertCounts{Critical: 1, Warning: 2, Total: 3}, counts)

	readings, err := m.ListReadings(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, readings, 2)

	readings, err = m.ListReadings(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Len(t, readings, 1)
}

func TestDeleteReadingPublishesRemovals(t *testing.T) {
	ctx := context.Background()
	m, pub := newManager(t, newStore(t))
	got, err := m.RecordReading(ctx, reading("u1", intp(150), intp(85)))
	require.NoError(t, err)

	err = m.DeleteReading(ctx, got.Reading.ID, "u2")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, pub.named(events.VitalDeleted))

	require.NoError(t, m.DeleteReading(ctx, got.Reading.ID, "u1"))

	deleted := pub.named(events.VitalDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, events.Deleted{ID: got.Reading.ID}, deleted[0].payload)

	removed := pub.named(events.AlertDeleted)
	require.Len(t, removed, 2)
	var ids []string
	for _, e := range removed {
		ids = append(ids, e.payload.(events.Deleted).ID)
	}
	assert.ElementsMatch(t, []string{got.Alerts[0].ID, got.Alerts[1].ID}, ids)

	views, err := m.List(ctx, "u1", domain.AlertFilter{})
	require.NoError(t, err)
	assert.Empty(t, views)
}
