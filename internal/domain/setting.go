package domain

import (
	"encoding/json"
	"time"
)

// Setting is a persisted settings value.
type Setting struct {
	Key       string
	Value     json.RawMessage
	UpdatedAt time.Time
}
