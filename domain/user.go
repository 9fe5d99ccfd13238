package domain

import (
	"crypto/subtle"
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

// User represents an administrator account. The credential and OTP fields are
// secrets and are excluded from every serialized or logged form.
type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	DisplayName    *string    `json:"display_name"`
	Enabled        bool       `json:"enabled"`
	CreatedAt      time.Time  `json:"created_at"`
	CredentialHash *string    `json:"-"`
	OTP            *string    `json:"-"`
	OTPIssuedAt    *time.Time `json:"-"`
}

// PublicUser is the only user representation allowed to leave the process.
type PublicUser struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName *string   `json:"display_name"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

func (u *User) IsActive() bool {
	return u != nil && u.Enabled
}

func (u *User) HasCredential() bool {
	return u != nil && u.CredentialHash != nil && *u.CredentialHash != ""
}

// HasPendingOTP reports whether an activation or reset window is open.
func (u *User) HasPendingOTP() bool {
	return u != nil && u.OTP != nil && u.OTPIssuedAt != nil
}

// OTPValid reports whether submitted matches the pending token and the token was
// issued less than window before now. A non-positive window never validates.
func (u *User) OTPValid(submitted string, now time.Time, window time.Duration) bool {
	if !u.HasPendingOTP() || window <= 0 {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(*u.OTP), []byte(submitted)) != 1 {
		return false
	}
	return now.Sub(*u.OTPIssuedAt) < window
}

// Public projects the user onto its non-secret fields.
func (u *User) Public() PublicUser {
	if u == nil {
		return PublicUser{}
	}
	return PublicUser{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Enabled:     u.Enabled,
		CreatedAt:   u.CreatedAt,
	}
}

// PublicUsers projects a slice of users.
func PublicUsers(users []*User) []PublicUser {
	out := make([]PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out
}

func (u User) String() string {
	name := ""
	if u.DisplayName != nil {
		name = *u.DisplayName
	}
	return fmt.Sprintf("User{id=%s email=%s display_name=%q enabled=%t}", u.ID, u.Email, name, u.Enabled)
}

func (u User) GoString() string {
	return u.String()
}

// MarshalLogObject lets zap log users without touching the secret fields.
func (u User) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", u.ID)
	enc.AddString("email", u.Email)
	enc.AddBool("enabled", u.Enabled)
	enc.AddBool("activated", u.CredentialHash != nil)
	return nil
}
