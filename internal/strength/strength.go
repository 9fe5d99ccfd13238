// Package strength gives advisory feedback on password choices. Its verdict
// never gates activation or reset; only the length and confirmation rules do.
package strength

import (
	"errors"
	"strings"

	"github.com/nbutton23/zxcvbn-go"

	"github.com/NightOwlRecon/IntriCase/domain"
)

// MinScore is the lowest zxcvbn score (0..4) reported as acceptable.
const MinScore = 3

type Result struct {
	Valid  bool   `json:"valid"`
	Score  int    `json:"score"`
	Reason string `json:"reason,omitempty"`
}

// Evaluate checks password against the hard rules first, then estimates its
// strength with hints such as the email or display name penalized.
func Evaluate(password, confirm string, hints ...string) Result {
	if err := domain.ValidatePassword(password, confirm); err != nil {
		var dErr *domain.Error
		reason := "invalid password"
		if errors.As(err, &dErr) {
			reason = dErr.Message
		}
		return Result{Reason: reason}
	}

	inputs := make([]string, 0, len(hints)*2)
	for _, h := range hints {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		inputs = append(inputs, h)
		if local, _, ok := strings.Cut(h, "@"); ok && local != "" {
			inputs = append(inputs, local)
		}
	}

	score := zxcvbn.PasswordStrength(password, inputs).Score
	if score < MinScore {
		return Result{Score: score, Reason: "password is too easy to guess"}
	}
	return Result{Valid: true, Score: score}
}
