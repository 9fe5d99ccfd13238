//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NightOwlRecon/IntriCase/domain"
	"github.com/NightOwlRecon/IntriCase/internal/config"
	pginfra "github.com/NightOwlRecon/IntriCase/internal/infrastructure/postgres"
	"github.com/NightOwlRecon/IntriCase/repository"
)

// Run with: INTRICASE_TEST_DATABASE_URL=postgres://... go test -tags integration ./repository/postgres/
func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("INTRICASE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("INTRICASE_TEST_DATABASE_URL not set")
	}

	cfg := &config.Config{
		Database:   config.DatabaseConfig{URL: url, Name: "intricase_test"},
		Migrations: config.MigrationsConfig{Enabled: true},
	}
	require.NoError(t, pginfra.RunMigrations(cfg, nil))

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `TRUNCATE sessions, users`)
	require.NoError(t, err)
	return pool
}

func invitedUser(t *testing.T, repo repository.UserRepository, id, email, otp string, issued time.Time) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), &domain.User{
		ID: id, Email: email, Enabled: true, CreatedAt: issued, OTP: &otp, OTPIssuedAt: &issued,
	}))
}

func TestIntegrationRedeemOTP(t *testing.T) {
	pool := openTestPool(t)
	repo := NewUserRepository(pool)
	ctx := context.Background()
	issued := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	invitedUser(t, repo, "u1", "a@example.com", "token", issued)

	name := "Alice"
	redeem := func(otp string, after time.Time) bool {
		ok, err := repo.RedeemOTP(ctx, repository.OTPRedemption{
			UserID: "u1", OTP: otp, IssuedAfter: after, CredentialHash: "hash", DisplayName: &name,
		})
		require.NoError(t, err)
		return ok
	}

	assert.False(t, redeem("wrong", issued.Add(-time.Hour)), "wrong token")
	assert.False(t, redeem("token", issued), "issued exactly at the cutoff is expired")
	assert.True(t, redeem("token", issued.Add(-time.Hour)))
	assert.False(t, redeem("token", issued.Add(-time.Hour)), "a token redeems once")

	u, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, u.CredentialHash)
	assert.Equal(t, "hash", *u.CredentialHash)
	assert.Equal(t, "Alice", *u.DisplayName)
	assert.Nil(t, u.OTP)
	assert.Nil(t, u.OTPIssuedAt)
}

func TestIntegrationRedeemOTPKeepsDisplayNameWhenNil(t *testing.T) {
	pool := openTestPool(t)
	repo := NewUserRepository(pool)
	ctx := context.Background()
	issued := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	invitedUser(t, repo, "u1", "a@example.com", "token", issued)
	require.NoError(t, repo.UpdateDisplayName(ctx, "u1", "Alice"))

	ok, err := repo.RedeemOTP(ctx, repository.OTPRedemption{UserID: "u1", OTP: "token", IssuedAfter: issued.Add(-time.Hour), CredentialHash: "hash"})
	require.NoError(t, err)
	assert.True(t, ok)

	u, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", *u.DisplayName)
}

func TestIntegrationDuplicateEmailAndMisses(t *testing.T) {
	pool := openTestPool(t)
	repo := NewUserRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	invitedUser(t, repo, "u1", "a@example.com", "t1", now)

	err := repo.Create(ctx, &domain.User{ID: "u2", Email: "a@example.com", Enabled: true, CreatedAt: now})
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)

	_, err = repo.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.ErrorIs(t, repo.ClearOTP(ctx, "missing"), domain.ErrUserNotFound)
}

func TestIntegrationSetOTPByEmail(t *testing.T) {
	pool := openTestPool(t)
	repo := NewUserRepository(pool)
	ctx := context.Background()
	issued := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	invitedUser(t, repo, "u1", "a@example.com", "t1", issued)

	later := issued.Add(time.Hour)
	u, err := repo.SetOTPByEmail(ctx, "a@example.com", "t2", later)
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "t2", *u.OTP)
	assert.True(t, later.Equal(*u.OTPIssuedAt))

	require.NoError(t, repo.UpdateEnabled(ctx, "u1", false))
	_, err = repo.SetOTPByEmail(ctx, "a@example.com", "t3", later)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = repo.SetOTPByEmail(ctx, "nobody@example.com", "t3", later)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestIntegrationListOrder(t *testing.T) {
	pool := openTestPool(t)
	repo := NewUserRepository(pool)
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	for i, tc := range []struct {
		id, name string
	}{
		{"u-unnamed", ""},
		{"u-alice", "alice"},
		{"u-zed", "Zed"},
		{"u-bob", "Bob"},
	} {
		invitedUser(t, repo, tc.id, tc.id+"@example.com", "t", t0.Add(time.Duration(i)*time.Minute))
		if tc.name != "" {
			require.NoError(t, repo.UpdateDisplayName(ctx, tc.id, tc.name))
		}
	}
	require.NoError(t, repo.UpdateEnabled(ctx, "u-bob", false))

	ids := func(users []*domain.User) []string {
		out := make([]string, 0, len(users))
		for _, u := range users {
			out = append(out, u.ID)
		}
		return out
	}

	all, err := repo.List(ctx, repository.ListAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"u-bob", "u-zed", "u-alice", "u-unnamed"}, ids(all))

	enabled, err := repo.List(ctx, repository.ListEnabled)
	require.NoError(t, err)
	assert.Equal(t, []string{"u-zed", "u-alice", "u-unnamed"}, ids(enabled))
}

func TestIntegrationSessionPurgeBoundary(t *testing.T) {
	pool := openTestPool(t)
	users := NewUserRepository(pool)
	sessions := NewSessionRepository(pool)
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	invitedUser(t, users, "u1", "a@example.com", "t", t0)

	require.NoError(t, sessions.Create(ctx, &domain.Session{ID: "old", UserID: "u1", CreatedAt: t0}))
	require.NoError(t, sessions.Create(ctx, &domain.Session{ID: "new", UserID: "u1", CreatedAt: t0.Add(time.Second)}))

	n, err := sessions.DeleteCreatedBefore(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = sessions.Get(ctx, "old")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	s, err := sessions.Get(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, "u1", s.UserID)
}
