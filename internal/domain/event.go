package domain

import (
	"encoding/json"
	"time"
)

// Severity ranks an event.
type Severity int

const (
	SeverityInfo Severity = iota + 1
	SeveritySuccess
	SeverityWarning
	SeverityError
	SeverityFatal
)

// Initiator identifies who caused an event.
type Initiator string

const (
	InitiatorSystem Initiator = "system"
	InitiatorManual Initiator = "manual"
)

// Event is a persisted occurrence exposed to webhooks.
type Event struct {
	ID         string          `json:"id"`
	Slug       string          `json:"slug"`
	Severity   Severity        `json:"severity"`
	ObjectType string          `json:"object_type,omitempty"`
	ObjectID   string          `json:"object_id,omitempty"`
	Initiator  Initiator       `json:"initiator"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Webhook subscribes an external URL to one event slug.
type Webhook struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Event      string    `json:"event"`
	Secret     []byte    `json:"-"`
	Active     bool      `json:"active"`
	EventCount int64     `json:"event_count"`
	CreatedAt  time.Time `json:"created_at"`
}
