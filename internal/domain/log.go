package domain

import "time"

// LogEntry is one line appended to a named log channel.
type LogEntry struct {
	ID        int64     `json:"id"`
	Channel   string    `json:"channel"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
