package domain

import "time"

// Session ties an opaque identifier to a user. Validity depends only on
// CreatedAt and the configured maximum age; deleting the row revokes it.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// IsValid reports whether CreatedAt is strictly after now-maxAge. A
// non-positive maxAge means the window is unconfigured and nothing is valid.
func (s *Session) IsValid(now time.Time, maxAge time.Duration) bool {
	if s == nil || maxAge <= 0 {
		return false
	}
	return s.CreatedAt.After(now.Add(-maxAge))
}
