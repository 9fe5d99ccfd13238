package memory

import (
	"context"
	"crypto/subtle"
	"sort"
	"sync"
	"time"

	"github.com/NightOwlRecon/IntriCase/domain"
	"github.com/NightOwlRecon/IntriCase/repository"
)

type userRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
}

// NewUserRepository returns a process-local user repository. Records are copied
// on the way in and out so callers never share state with the store.
func NewUserRepository() repository.UserRepository {
	return &userRepository{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	if user == nil || user.ID == "" {
		return domain.ErrInvalidPayload
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return domain.ErrDuplicateEmail
	}
	r.byID[user.ID] = cloneUser(user)
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(r.byID[id]), nil
}

func (r *userRepository) UpdateDisplayName(ctx context.Context, id, name string) error {
	return r.update(id, func(u *domain.User) {
		u.DisplayName = &name
	})
}

func (r *userRepository) UpdateCredential(ctx context.Context, id, hash string) error {
	return r.update(id, func(u *domain.User) {
		u.CredentialHash = &hash
	})
}

func (r *userRepository) UpdateEnabled(ctx context.Context, id string, enabled bool) error {
	return r.update(id, func(u *domain.User) {
		u.Enabled = enabled
	})
}

func (r *userRepository) SetOTP(ctx context.Context, id, otp string, issuedAt time.Time) error {
	return r.update(id, func(u *domain.User) {
		u.OTP = &otp
		u.OTPIssuedAt = &issuedAt
	})
}

func (r *userRepository) SetOTPByEmail(ctx context.Context, email, otp string, issuedAt time.Time) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[email]
	if !ok || !r.byID[id].Enabled {
		return nil, domain.ErrUserNotFound
	}
	u := r.byID[id]
	u.OTP = &otp
	u.OTPIssuedAt = &issuedAt
	return cloneUser(u), nil
}

func (r *userRepository) ClearOTP(ctx context.Context, id string) error {
	return r.update(id, func(u *domain.User) {
		u.OTP = nil
		u.OTPIssuedAt = nil
	})
}

func (r *userRepository) RedeemOTP(ctx context.Context, red repository.OTPRedemption) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[red.UserID]
	if !ok || !u.HasPendingOTP() {
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(*u.OTP), []byte(red.OTP)) != 1 || !u.OTPIssuedAt.After(red.IssuedAfter) {
		return false, nil
	}

	hash := red.CredentialHash
	u.CredentialHash = &hash
	if red.DisplayName != nil {
		name := *red.DisplayName
		u.DisplayName = &name
	}
	u.OTP = nil
	u.OTPIssuedAt = nil
	return true, nil
}

func (r *userRepository) List(ctx context.Context, filter repository.ListFilter) ([]*domain.User, error) {
	r.mu.RLock()
	out := make([]*domain.User, 0, len(r.byID))
	for _, u := range r.byID {
		if filter == repository.ListEnabled && !u.Enabled {
			continue
		}
		out = append(out, cloneUser(u))
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.DisplayName == nil && b.DisplayName != nil:
			return false
		case a.DisplayName != nil && b.DisplayName == nil:
			return true
		case a.DisplayName != nil && *a.DisplayName != *b.DisplayName:
			return *a.DisplayName < *b.DisplayName
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return a.ID < b.ID
		}
	})
	return out, nil
}

func (r *userRepository) update(id string, fn func(*domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	fn(u)
	return nil
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	if u.DisplayName != nil {
		v := *u.DisplayName
		c.DisplayName = &v
	}
	if u.CredentialHash != nil {
		v := *u.CredentialHash
		c.CredentialHash = &v
	}
	if u.OTP != nil {
		v := *u.OTP
		c.OTP = &v
	}
	if u.OTPIssuedAt != nil {
		v := *u.OTPIssuedAt
		c.OTPIssuedAt = &v
	}
	return &c
}
