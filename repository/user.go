package repository

import (
	"context"
	"time"

	"github.com/NightOwlRecon/IntriCase/domain"
)

// ListFilter selects which users List returns.
type ListFilter int

const (
	ListAll ListFilter = iota
	ListEnabled
)

// OTPRedemption describes a conditional credential change. It applies only if
// the stored OTP still equals OTP and was issued strictly after IssuedAfter.
type OTPRedemption struct {
	UserID         string
	OTP            string
	IssuedAfter    time.Time
	CredentialHash string
	// DisplayName is left untouched when nil.
	DisplayName *string
}

// UserRepository persists user records. Lookups return domain.ErrUserNotFound
// on a miss and Create returns domain.ErrDuplicateEmail for a taken address.
// List orders by display name in byte order with unnamed users last, then by
// creation time.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateDisplayName(ctx context.Context, id, name string) error
	UpdateCredential(ctx context.Context, id, hash string) error
	UpdateEnabled(ctx context.Context, id string, enabled bool) error
	SetOTP(ctx context.Context, id, otp string, issuedAt time.Time) error
	// SetOTPByEmail sets the OTP of the enabled user with email in one write
	// and returns the updated record, or domain.ErrUserNotFound.
	SetOTPByEmail(ctx context.Context, email, otp string, issuedAt time.Time) (*domain.User, error)
	ClearOTP(ctx context.Context, id string) error
	// RedeemOTP sets the credential (and display name), clears the OTP in one
	// write, and reports whether the condition matched.
	RedeemOTP(ctx context.Context, r OTPRedemption) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]*domain.User, error)
}
