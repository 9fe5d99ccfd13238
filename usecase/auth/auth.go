package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/NightOwlRecon/IntriCase/domain"
	"github.com/NightOwlRecon/IntriCase/pkg/credential"
	"github.com/NightOwlRecon/IntriCase/usecase"
	"github.com/NightOwlRecon/IntriCase/usecase/sessions"
	"github.com/NightOwlRecon/IntriCase/usecase/users"
)

const timingPlaceholder = "intricase-timing-placeholder"

// ActivateInput is the payload of an activation attempt.
type ActivateInput struct {
	UserID      string
	OTP         string
	DisplayName string
	Password    string
	Confirm     string
}

// ResetInput is the payload of a password reset completion.
type ResetInput struct {
	UserID   string
	OTP      string
	Password string
	Confirm  string
}

// UseCase orchestrates login, activation, password reset and logout, and
// resolves session ids for the request gate.
type UseCase struct {
	users    *users.UseCase
	sessions *sessions.UseCase
	hasher   usecase.PasswordHasher
	logger   *zap.Logger

	placeholderMu sync.Mutex
	placeholder   string
}

func New(users *users.UseCase, sessions *sessions.UseCase, hasher usecase.PasswordHasher, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		logger:   logger,
	}
}

// Login returns a new session for valid credentials. Unknown email, disabled
// account, missing credential and wrong password all yield
// domain.ErrInvalidCredentials after comparable work.
func (uc *UseCase) Login(ctx context.Context, email, password string) (*domain.Session, *domain.User, error) {
	if utf8.RuneCountInString(password) > domain.MaxPasswordLength {
		return nil, nil, domain.ErrInvalidCredentials
	}

	user, err := uc.users.FindByEmail(ctx, email)
	if err != nil {
		if !domain.IsDomainError(err, domain.ErrCodeNotFound) {
			return nil, nil, err
		}
		uc.burn(ctx, password)
		return nil, nil, domain.ErrInvalidCredentials
	}

	if !user.IsActive() || !user.HasCredential() {
		uc.burn(ctx, password)
		return nil, nil, domain.ErrInvalidCredentials
	}

	ok, err := uc.hasher.Verify(ctx, *user.CredentialHash, password)
	if err != nil {
		if errors.Is(err, credential.ErrMalformedHash) {
			uc.logger.Error("stored credential hash is corrupt", zap.String("user_id", user.ID), zap.Error(err))
			return nil, nil, domain.WrapError(domain.ErrCodeInvalidCredentials, "invalid credentials",
				domain.WrapError(domain.ErrCodeHashFormat, "corrupt credential hash", err))
		}
		return nil, nil, domain.WrapError(domain.ErrCodeInternal, "verify credential", err)
	}
	if !ok {
		return nil, nil, domain.ErrInvalidCredentials
	}

	session, err := uc.sessions.Create(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	uc.logger.Info("user logged in", zap.Object("user", user))
	return session, user, nil
}

// Activate sets the first credential and display name of an invited user.
func (uc *UseCase) Activate(ctx context.Context, in ActivateInput) error {
	if err := domain.ValidatePassword(in.Password, in.Confirm); err != nil {
		return err
	}
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		return domain.ErrInvalidPayload
	}

	user, err := uc.users.FindByID(ctx, in.UserID)
	if err != nil {
		return err
	}
	if !uc.users.IsOTPValid(user, in.OTP) {
		return domain.ErrInvalidOTP
	}
	if err := uc.users.RedeemOTP(ctx, user, in.OTP, in.Password, &name); err != nil {
		return err
	}
	uc.logger.Info("user activated", zap.Object("user", user))
	return nil
}

// RequestReset opens a reset window for an existing enabled account and queues
// the token for delivery. Callers must not reveal whether the account exists.
func (uc *UseCase) RequestReset(ctx context.Context, email string) (string, error) {
	user, token, err := uc.users.IssueResetOTP(ctx, email)
	if err != nil {
		return "", err
	}
	uc.users.NotifyPasswordReset(ctx, user)
	return token, nil
}

// ResetPassword replaces the credential of an enabled account holding a valid
// reset token.
func (uc *UseCase) ResetPassword(ctx context.Context, in ResetInput) error {
	if err := domain.ValidatePassword(in.Password, in.Confirm); err != nil {
		return err
	}
	user, err := uc.users.FindByID(ctx, in.UserID)
	if err != nil {
		return err
	}
	if !user.IsActive() || !uc.users.IsOTPValid(user, in.OTP) {
		return domain.ErrInvalidOTP
	}
	if err := uc.users.RedeemOTP(ctx, user, in.OTP, in.Password, nil); err != nil {
		return err
	}
	uc.logger.Info("password reset", zap.Object("user", user))
	return nil
}

// Logout deletes the session. Unknown or empty ids are not an error.
func (uc *UseCase) Logout(ctx context.Context, sessionID string) error {
	return uc.sessions.Delete(ctx, sessionID)
}

// Authenticate resolves a session id to an enabled user. An expired session is
// deleted before the rejection is returned.
func (uc *UseCase) Authenticate(ctx context.Context, sessionID string) (*domain.User, error) {
	session, err := uc.sessions.Find(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !uc.sessions.IsValid(session) {
		if err := uc.sessions.Delete(ctx, session.ID); err != nil {
			uc.logger.Warn("failed to evict expired session", zap.String("session_id", session.ID), zap.Error(err))
		}
		return nil, domain.ErrSessionExpired
	}
	user, err := uc.users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive() {
		return nil, domain.ErrAccountDisabled
	}
	return user, nil
}

// burn runs one verification against a throwaway record so failure paths that
// skip the real check take about as long as a wrong password.
func (uc *UseCase) burn(ctx context.Context, password string) {
	placeholder := uc.placeholderHash(ctx)
	if placeholder == "" {
		return
	}
	_, _ = uc.hasher.Verify(ctx, placeholder, password)
}

func (uc *UseCase) placeholderHash(ctx context.Context) string {
	uc.placeholderMu.Lock()
	defer uc.placeholderMu.Unlock()

	if uc.placeholder == "" {
		hash, err := uc.hasher.Hash(ctx, timingPlaceholder)
		if err != nil {
			uc.logger.Warn("failed to prepare placeholder hash", zap.Error(err))
			return ""
		}
		uc.placeholder = hash
	}
	return uc.placeholder
}
