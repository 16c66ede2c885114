// Package events fans domain events out to per-user channels.
//
// Publish is asynchronous and best-effort: it never blocks or fails the
// caller, events for a channel nobody subscribes to are dropped, and events
// on the same channel reach that channel's subscribers in publish order.
// Clients recover anything they missed by refetching on reconnect.
//
// Message format on every transport:
//
//	{
//	  "id":           "<uuid>",
//	  "event":        "vital.alert.created",
//	  "channel":      "private-user-<userId>",
//	  "data":         { ... },
//	  "published_at": "<RFC3339>"
//	}
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event names are namespaced entity.action.
const (
	VitalAdded   = "vital.added"
	VitalUpdated = "vital.updated"
	VitalDeleted = "vital.deleted"

	AlertCreated      = "vital.alert.created"
	AlertAcknowledged = "vital.alert.acknowledged"
	AlertDeleted      = "vital.alert.deleted"

	NotificationCreated = "notification.created"
	NotificationUpdated = "notification.updated"
	NotificationDeleted = "notification.deleted"

	AppointmentCreated = "appointment.created"
	AppointmentUpdated = "appointment.updated"
	AppointmentDeleted = "appointment.deleted"
)

// Action is the last segment of an event name.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// Envelope is the unit carried by every transport.
type Envelope struct {
	ID          string          `json:"id"`
	Event       string          `json:"event"`
	Channel     string          `json:"channel"`
	Data        json.RawMessage `json:"data"`
	PublishedAt time.Time       `json:"published_at"`
}

// Deleted is the payload of every *.deleted event.
type Deleted struct {
	ID string `json:"id"`
}

// NewEnvelope marshals payload into an envelope addressed to channel.
func NewEnvelope(channel, event string, payload any, at time.Time) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return &Envelope{
		ID:          uuid.NewString(),
		Event:       event,
		Channel:     channel,
		Data:        data,
		PublishedAt: at.UTC(),
	}, nil
}

// Decode parses one transport message.
func Decode(msg []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("decode envelope: missing event name")
	}
	return &env, nil
}

// SplitName separates an event name into its entity part and action, e.g.
// "vital.alert.created" into "vital.alert" and ActionCreated. "vital.added"
// is the one create event that is not spelled "created".
func SplitName(name string) (string, Action, bool) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return "", "", false
	}
	entity, verb := name[:i], Action(name[i+1:])
	if verb == "added" {
		verb = ActionCreated
	}
	switch verb {
	case ActionCreated, ActionUpdated, ActionDeleted:
		return entity, verb, true
	}
	return "", "", false
}
