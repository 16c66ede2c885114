package reconcile

import "time"

// Notification is the client view of an in-app notification. Notifications
// are produced by another service; this package only mirrors them.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Appointment is the client view of a scheduled prenatal appointment.
type Appointment struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Location    string    `json:"location,omitempty"`
	Status      string    `json:"status,omitempty"`
}
