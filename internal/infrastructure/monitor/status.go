package monitor

import "time"

type Status struct {
	// Services maps each dependency to whether its last probe succeeded.
	Services   map[string]bool `json:"services"`
	Healthy    bool            `json:"healthy"`
	OutboxSize int             `json:"outbox_size"`
	LastCheck  time.Time       `json:"last_check"`
}
