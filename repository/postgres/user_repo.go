package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/NightOwlRecon/IntriCase/domain"
	"github.com/NightOwlRecon/IntriCase/repository"
)

const userColumns = `id, email, display_name, enabled, created_at, credential_hash, otp, otp_issued_at`

type userRepository struct {
	db DB
}

// NewUserRepository instantiates a Postgres-backed user repository.
func NewUserRepository(db DB) repository.UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	if user == nil || user.ID == "" {
		return domain.ErrInvalidPayload
	}

	const query = `
		INSERT INTO users (id, email, display_name, enabled, created_at, otp, otp_issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		user.ID,
		user.Email,
		user.DisplayName,
		user.Enabled,
		user.CreatedAt,
		user.OTP,
		user.OTPIssuedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateEmail
	}
	return persistenceError("insert user", err)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.getOne(ctx, query, email)
}

func (r *userRepository) UpdateDisplayName(ctx context.Context, id, name string) error {
	const query = `UPDATE users SET display_name = $2 WHERE id = $1`
	return r.exec(ctx, "update display name", query, id, name)
}

func (r *userRepository) UpdateCredential(ctx context.Context, id, hash string) error {
	const query = `UPDATE users SET credential_hash = $2 WHERE id = $1`
	return r.exec(ctx, "update credential", query, id, hash)
}

func (r *userRepository) UpdateEnabled(ctx context.Context, id string, enabled bool) error {
	const query = `UPDATE users SET enabled = $2 WHERE id = $1`
	return r.exec(ctx, "update enabled", query, id, enabled)
}

func (r *userRepository) SetOTP(ctx context.Context, id, otp string, issuedAt time.Time) error {
	const query = `UPDATE users SET otp = $2, otp_issued_at = $3 WHERE id = $1`
	return r.exec(ctx, "set otp", query, id, otp, issuedAt)
}

func (r *userRepository) SetOTPByEmail(ctx context.Context, email, otp string, issuedAt time.Time) (*domain.User, error) {
	const query = `UPDATE users SET otp = $2, otp_issued_at = $3 WHERE email = $1 AND enabled RETURNING ` + userColumns
	u, err := scanUser(r.db.QueryRow(ctx, query, email, otp, issuedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, persistenceError("set otp by email", err)
	}
	return u, nil
}

func (r *userRepository) ClearOTP(ctx context.Context, id string) error {
	const query = `UPDATE users SET otp = NULL, otp_issued_at = NULL WHERE id = $1`
	return r.exec(ctx, "clear otp", query, id)
}

func (r *userRepository) RedeemOTP(ctx context.Context, red repository.OTPRedemption) (bool, error) {
	const query = `
		UPDATE users
		SET credential_hash = $4,
			display_name = COALESCE($5, display_name),
			otp = NULL,
			otp_issued_at = NULL
		WHERE id = $1
			AND otp = $2
			AND otp_issued_at > $3
	`
	tag, err := r.db.Exec(ctx, query, red.UserID, red.OTP, red.IssuedAfter, red.CredentialHash, red.DisplayName)
	if err != nil {
		return false, persistenceError("redeem otp", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *userRepository) List(ctx context.Context, filter repository.ListFilter) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	if filter == repository.ListEnabled {
		query += ` WHERE enabled`
	}
	query += ` ORDER BY display_name COLLATE "C" ASC NULLS LAST, created_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, persistenceError("list users", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, persistenceError("scan user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("list users", err)
	}
	return users, nil
}

func (r *userRepository) getOne(ctx context.Context, query string, arg string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, persistenceError("get user", err)
	}
	return u, nil
}

func (r *userRepository) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return persistenceError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.Enabled,
		&u.CreatedAt,
		&u.CredentialHash,
		&u.OTP,
		&u.OTPIssuedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}
