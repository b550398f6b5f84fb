package domain

import "time"

// AuditLog represents one recorded authentication event.
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
