package strength

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		password string
		confirm  string
		hints    []string
		valid    bool
		reason   string
	}{
		{name: "mismatch", password: "correctHorseBatteryStaple", confirm: "correctHorseBatteryStapl", reason: "passwords do not match"},
		{name: "too short", password: "Ab1!", confirm: "Ab1!", reason: "password length out of bounds"},
		{name: "too long", password: strings.Repeat("x", 513), confirm: strings.Repeat("x", 513), reason: "password length out of bounds"},
		{name: "common", password: "password", confirm: "password", reason: "password is too easy to guess"},
		{name: "strong", password: "violet-Anchor-94-glacier", confirm: "violet-Anchor-94-glacier", valid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(tt.password, tt.confirm, tt.hints...)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestEvaluatePenalizesAccountHints(t *testing.T) {
	password := "margaretthatcher1925"
	without := Evaluate(password, password)
	with := Evaluate(password, password, "margaretthatcher1925@example.com")
	assert.LessOrEqual(t, with.Score, without.Score)
	assert.False(t, with.Valid)
}
