package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NightOwlRecon/IntriCase/domain"
	"github.com/NightOwlRecon/IntriCase/pkg/credential"
	"github.com/NightOwlRecon/IntriCase/repository"
	"github.com/NightOwlRecon/IntriCase/usecase"
)

// Config carries the directory's timing settings.
type Config struct {
	// OTPValidity is how long an issued token stays usable. Zero means the
	// window is unconfigured and no token validates.
	OTPValidity time.Duration
}

// UseCase is the user directory.
type UseCase struct {
	repo     repository.UserRepository
	hasher   usecase.PasswordHasher
	tokens   usecase.TokenGenerator
	notifier usecase.Notifier
	cfg      Config
	now      usecase.Clock
	logger   *zap.Logger
}

type Option func(*UseCase)

// WithClock overrides the time source.
func WithClock(clock usecase.Clock) Option {
	return func(uc *UseCase) {
		if clock != nil {
			uc.now = clock
		}
	}
}

func New(
	repo repository.UserRepository,
	hasher usecase.PasswordHasher,
	tokens usecase.TokenGenerator,
	notifier usecase.Notifier,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	uc := &UseCase{
		repo:     repo,
		hasher:   hasher,
		tokens:   tokens,
		notifier: notifier,
		cfg:      cfg,
		now:      usecase.SystemClock,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Invite creates an enabled account without a credential and opens its
// activation window. The returned user carries the pending OTP. Delivery
// failures are logged and never undo the account.
func (uc *UseCase) Invite(ctx context.Context, email string) (*domain.User, error) {
	if strings.TrimSpace(email) == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidPayload
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "allocate user id", err)
	}
	token, err := uc.newToken()
	if err != nil {
		return nil, err
	}

	now := uc.now()
	user := &domain.User{
		ID:          id.String(),
		Email:       email,
		Enabled:     true,
		CreatedAt:   now,
		OTP:         &token,
		OTPIssuedAt: &now,
	}
	if err := uc.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	uc.logger.Info("user invited", zap.Object("user", user))

	uc.notify(ctx, user, uc.notifyActivation)
	return user, nil
}

// Bootstrap invites email unless an account already uses it. created reports
// whether a new account (with a fresh activation token) was made.
func (uc *UseCase) Bootstrap(ctx context.Context, email string) (user *domain.User, created bool, err error) {
	existing, err := uc.repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return existing, false, nil
	case !domain.IsDomainError(err, domain.ErrCodeNotFound):
		return nil, false, err
	}
	user, err = uc.Invite(ctx, email)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

func (uc *UseCase) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return uc.repo.GetByEmail(ctx, email)
}

func (uc *UseCase) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return uc.repo.GetByID(ctx, id)
}

func (uc *UseCase) SetDisplayName(ctx context.Context, user *domain.User, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ErrInvalidPayload
	}
	if err := uc.repo.UpdateDisplayName(ctx, user.ID, name); err != nil {
		return err
	}
	user.DisplayName = &name
	return nil
}

// SetCredential replaces the stored credential without touching the OTP.
func (uc *UseCase) SetCredential(ctx context.Context, user *domain.User, plaintext string) error {
	if err := domain.ValidatePassword(plaintext, plaintext); err != nil {
		return err
	}
	hash, err := uc.hash(ctx, plaintext)
	if err != nil {
		return err
	}
	if err := uc.repo.UpdateCredential(ctx, user.ID, hash); err != nil {
		return err
	}
	user.CredentialHash = &hash
	return nil
}

// SetEnabled toggles whether the account may log in. Disabling stands in for
// deletion.
func (uc *UseCase) SetEnabled(ctx context.Context, id string, enabled bool) (*domain.User, error) {
	if err := uc.repo.UpdateEnabled(ctx, id, enabled); err != nil {
		return nil, err
	}
	user, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	uc.logger.Info("user enabled flag changed", zap.Object("user", user))
	return user, nil
}

// IssueOTP stores a fresh token, replacing any pending one.
func (uc *UseCase) IssueOTP(ctx context.Context, user *domain.User) (string, error) {
	token, err := uc.newToken()
	if err != nil {
		return "", err
	}
	now := uc.now()
	if err := uc.repo.SetOTP(ctx, user.ID, token, now); err != nil {
		return "", err
	}
	user.OTP = &token
	user.OTPIssuedAt = &now
	return token, nil
}

// IssueResetOTP opens a reset window for the enabled account registered under
// email. The token is generated and the write issued whether or not such an
// account exists, so both outcomes cost the same.
func (uc *UseCase) IssueResetOTP(ctx context.Context, email string) (*domain.User, string, error) {
	token, err := uc.newToken()
	if err != nil {
		return nil, "", err
	}
	user, err := uc.repo.SetOTPByEmail(ctx, email, token, uc.now())
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (uc *UseCase) ClearOTP(ctx context.Context, user *domain.User) error {
	if err := uc.repo.ClearOTP(ctx, user.ID); err != nil {
		return err
	}
	user.OTP = nil
	user.OTPIssuedAt = nil
	return nil
}

// IsOTPValid checks a submitted token against the user as read by the caller.
// It never consumes the token.
func (uc *UseCase) IsOTPValid(user *domain.User, submitted string) bool {
	return user.OTPValid(submitted, uc.now(), uc.cfg.OTPValidity)
}

// RedeemOTP hashes plaintext and, in a single conditional write, stores it,
// optionally sets the display name, and clears the OTP. The write only applies
// while the token still matches and is unexpired, so two concurrent
// redemptions cannot both succeed.
func (uc *UseCase) RedeemOTP(ctx context.Context, user *domain.User, otp, plaintext string, displayName *string) error {
	if uc.cfg.OTPValidity <= 0 {
		return domain.ErrInvalidOTP
	}
	hash, err := uc.hash(ctx, plaintext)
	if err != nil {
		return err
	}

	ok, err := uc.repo.RedeemOTP(ctx, repository.OTPRedemption{
		UserID:         user.ID,
		OTP:            otp,
		IssuedAfter:    uc.now().Add(-uc.cfg.OTPValidity),
		CredentialHash: hash,
		DisplayName:    displayName,
	})
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidOTP
	}

	user.CredentialHash = &hash
	if displayName != nil {
		user.DisplayName = displayName
	}
	user.OTP = nil
	user.OTPIssuedAt = nil
	return nil
}

// List returns users ordered by display name, unnamed last, then by creation.
func (uc *UseCase) List(ctx context.Context, filter repository.ListFilter) ([]*domain.User, error) {
	return uc.repo.List(ctx, filter)
}

// ResendActivation reopens the activation window of an account that has not
// set a credential yet and sends the new token.
func (uc *UseCase) ResendActivation(ctx context.Context, id string) (*domain.User, error) {
	user, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.HasCredential() {
		return nil, domain.NewError(domain.ErrCodeConflict, "user already activated")
	}
	if _, err := uc.IssueOTP(ctx, user); err != nil {
		return nil, err
	}
	uc.notify(ctx, user, uc.notifyActivation)
	return user, nil
}

// NotifyPasswordReset sends the pending reset token of user.
func (uc *UseCase) NotifyPasswordReset(ctx context.Context, user *domain.User) {
	uc.notify(ctx, user, uc.notifyReset)
}

func (uc *UseCase) notifyActivation(ctx context.Context, user *domain.User) error {
	return uc.notifier.NotifyActivation(ctx, user)
}

func (uc *UseCase) notifyReset(ctx context.Context, user *domain.User) error {
	return uc.notifier.NotifyPasswordReset(ctx, user)
}

func (uc *UseCase) notify(ctx context.Context, user *domain.User, send func(context.Context, *domain.User) error) {
	if uc.notifier == nil {
		return
	}
	if err := send(ctx, user); err != nil {
		uc.logger.Warn("otp notification failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

func (uc *UseCase) newToken() (string, error) {
	token, err := uc.tokens.GenerateToken()
	if err != nil {
		return "", domain.WrapError(domain.ErrCodeHashing, "generate token", err)
	}
	return token, nil
}

func (uc *UseCase) hash(ctx context.Context, plaintext string) (string, error) {
	hash, err := uc.hasher.Hash(ctx, plaintext)
	if err != nil {
		if errors.Is(err, credential.ErrEntropy) || errors.Is(err, credential.ErrInvalidParams) {
			return "", domain.WrapError(domain.ErrCodeHashing, "hash credential", err)
		}
		return "", domain.WrapError(domain.ErrCodeInternal, "hash credential", err)
	}
	return hash, nil
}
