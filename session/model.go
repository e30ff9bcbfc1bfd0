package session

import "time"

// Session is a login session as persisted in Redis.
type Session struct {
	ID                  string
	UserID              string
	PendingSecondFactor bool

	CreatedAt time.Time
	ExpiresAt time.Time
}
