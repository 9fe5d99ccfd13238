package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Kind names the message an item will produce.
type Kind string

const (
	KindActivation    Kind = "activation"
	KindPasswordReset Kind = "password_reset"
)

// Item is a pending notification. It only references the user; the token is
// read from the user record when the message is sent, so a superseded or
// redeemed token is never mailed and nothing secret rests in the queue file.
type Item struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	UserID    string    `json:"user_id"`
	Priority  int       `json:"priority"`
	Retries   int       `json:"retries"`
	Timestamp time.Time `json:"timestamp"`

	bucketKey []byte
}

func (i *Item) normalize() {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Priority <= 0 || i.Priority > 5 {
		i.Priority = 3
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = time.Now()
	}
}

func (i Item) sameTarget(other Item) bool {
	return i.Kind == other.Kind && i.UserID == other.UserID
}
