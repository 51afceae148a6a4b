package types

import "time"

// ActivityStatus is the outcome recorded for an activity entry
type ActivityStatus string

const (
	ActivitySuccess ActivityStatus = "success"
	ActivityError   ActivityStatus = "error"
)

// ActivityLogEntry represents a single user-facing activity line
type ActivityLogEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	AgentName string         `json:"agent_name"`
	Message   string         `json:"message"`
	Status    ActivityStatus `json:"status"`
}
