package domain

import "time"

// Entry is one activity log record: who did what to which resource.
type Entry struct {
	ID         string
	ActorID    string
	Action     string
	Resource   string
	ResourceID string
	IP         string
	// Metadata is a JSON object; empty when there is none.
	Metadata  string
	CreatedAt time.Time
}
