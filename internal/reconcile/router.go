package reconcile

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/domain"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/events"
)

// Entity kinds, matching the entity part of event names.
const (
	KindVital        = "vital"
	KindAlert        = "vital.alert"
	KindNotification = "notification"
	KindAppointment  = "appointment"
)

// Applier is the type-erased face of a Cache.
type Applier interface {
	Kind() string
	Apply(action events.Action, data json.RawMessage) bool
	Clear()
}

// Caches is the full client-side state for one signed-in user.
type Caches struct {
	Vitals        *Cache[domain.VitalReading]
	Alerts        *Cache[domain.AlertView]
	Notifications *Cache[Notification]
	Appointments  *Cache[Appointment]
}

// NewCaches creates empty caches. Vitals list newest recorded first and
// alerts list in triage order.
func NewCaches(logger *zap.Logger) *Caches {
	return &Caches{
		Vitals: NewCache(KindVital, func(r domain.VitalReading) string { return r.ID }, logger,
			WithOrder(func(a, b domain.VitalReading) bool { return a.RecordedAt.After(b.RecordedAt) })),
		Alerts: NewCache(KindAlert, func(a domain.AlertView) string { return a.ID }, logger,
			WithOrder(func(a, b domain.AlertView) bool { return domain.TriageLess(&a.VitalAlert, &b.VitalAlert) })),
		Notifications: NewCache(KindNotification, func(n Notification) string { return n.ID }, logger,
			WithOrder(func(a, b Notification) bool { return a.CreatedAt.After(b.CreatedAt) })),
		Appointments: NewCache(KindAppointment, func(a Appointment) string { return a.ID }, logger,
			WithOrder(func(a, b Appointment) bool { return a.ScheduledAt.Before(b.ScheduledAt) })),
	}
}

func (c *Caches) appliers() []Applier {
	return []Applier{c.Vitals, c.Alerts, c.Notifications, c.Appointments}
}

// Clear empties every cache.
func (c *Caches) Clear() {
	for _, a := range c.appliers() {
		a.Clear()
	}
}

// acknowledgment carries the full alert, so it is applied as an update.
var renamed = map[string]struct {
	kind   string
	action events.Action
}{
	events.AlertAcknowledged: {KindAlert, events.ActionUpdated},
}

// Router dispatches transport messages to the cache owning their entity.
type Router struct {
	caches map[string]Applier
	logger *zap.Logger
}

// NewRouter routes to every cache in c.
func NewRouter(c *Caches, logger *zap.Logger) *Router {
	r := &Router{caches: make(map[string]Applier), logger: logger}
	for _, a := range c.appliers() {
		r.caches[a.Kind()] = a
	}
	return r
}

// Handle decodes one message and applies it. It reports whether any cache
// changed; malformed and unknown events are logged and dropped.
func (r *Router) Handle(msg []byte) bool {
	env, err := events.Decode(msg)
	if err != nil {
		r.logger.Warn("malformed event discarded", zap.Error(err))
		return false
	}
	return r.HandleEnvelope(env)
}

// HandleEnvelope applies an already decoded envelope.
func (r *Router) HandleEnvelope(env *events.Envelope) bool {
	kind, action, ok := events.SplitName(env.Event)
	if alias, found := renamed[env.Event]; found {
		kind, action, ok = alias.kind, alias.action, true
	}
	if !ok {
		r.logger.Warn("unrecognised event discarded", zap.String("event", env.Event))
		return false
	}
	cache, ok := r.caches[kind]
	if !ok {
		r.logger.Debug("event for uncached entity ignored", zap.String("event", env.Event))
		return false
	}
	return cache.Apply(action, env.Data)
}
