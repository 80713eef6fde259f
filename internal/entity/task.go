package entity

import (
	"encoding/json"
	"time"
)

// Job types understood by the worker.
const (
	TaskRefreshCredential = "refresh_credential"
	TaskParseQuery        = "parse_query"
	TaskSweepDiscounts    = "sweep_discounts"
)

// Task is a unit of background work as stored on the task queue.
type Task struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// ParseQueryPayload is the payload of a parse_query task.
type ParseQueryPayload struct {
	Query        string `json:"query"`
	Source       string `json:"source"`
	FetchDetails bool   `json:"fetch_details"`
}
