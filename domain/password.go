package domain

import "unicode/utf8"

const (
	MinPasswordLength = 8
	MaxPasswordLength = 512
)

// ValidatePassword enforces confirmation and length bounds. It must run before
// any hashing so attacker-supplied input cannot drive hashing cost.
func ValidatePassword(password, confirm string) error {
	if password != confirm {
		return ErrPasswordMismatch
	}
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength || n > MaxPasswordLength {
		return ErrPasswordLength
	}
	return nil
}
