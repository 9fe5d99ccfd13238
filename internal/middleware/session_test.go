package middleware

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/NightOwlRecon/IntriCase/domain"
	"github.com/NightOwlRecon/IntriCase/internal/authcookie"
	"github.com/NightOwlRecon/IntriCase/pkg/credential"
	"github.com/NightOwlRecon/IntriCase/repository/memory"
	"github.com/NightOwlRecon/IntriCase/usecase/auth"
	"github.com/NightOwlRecon/IntriCase/usecase/sessions"
	"github.com/NightOwlRecon/IntriCase/usecase/users"
)

type stubAuthenticator struct {
	users map[string]*domain.User
	err   error
	calls int
}

func (s *stubAuthenticator) Authenticate(_ context.Context, sessionID string) (*domain.User, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if u, ok := s.users[sessionID]; ok {
		return u, nil
	}
	return nil, domain.ErrSessionNotFound
}

func newCodec(t *testing.T) *authcookie.Codec {
	t.Helper()
	c, err := authcookie.New(authcookie.Config{Secret: []byte("0123456789abcdef0123456789abcdef")})
	require.NoError(t, err)
	return c
}

func requestWithSession(t *testing.T, codec *authcookie.Codec, sessionID string) *fasthttp.RequestCtx {
	t.Helper()
	ctx := &fasthttp.RequestCtx{}
	value, err := codec.Sign(&domain.Session{ID: sessionID, CreatedAt: time.Now()})
	require.NoError(t, err)
	ctx.Request.Header.SetCookie(authcookie.SessionCookie, value)
	return ctx
}

func clearedCookies(ctx *fasthttp.RequestCtx) bool {
	for _, name := range []string{authcookie.SessionCookie, authcookie.UserDetailsCookie} {
		c := &fasthttp.Cookie{}
		c.SetKey(name)
		if !ctx.Response.Header.Cookie(c) || len(c.Value()) != 0 {
			return false
		}
	}
	return true
}

func okHandler(reached *bool) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		*reached = true
		ctx.SetStatusCode(http.StatusOK)
	}
}

func TestRequire(t *testing.T) {
	codec := newCodec(t)
	alice := &domain.User{ID: "u1", Email: "a@example.com", Enabled: true}
	stub := &stubAuthenticator{users: map[string]*domain.User{"good": alice}}
	gate := NewSessionGate(stub, codec, nil, "", nil)

	t.Run("valid session", func(t *testing.T) {
		ctx := requestWithSession(t, codec, "good")
		var reached bool
		gate.Require(func(ctx *fasthttp.RequestCtx) {
			reached = true
			user, ok := CurrentUser(ctx)
			require.True(t, ok)
			assert.Equal(t, "u1", user.ID)
		})(ctx)
		assert.True(t, reached)
		assert.False(t, clearedCookies(ctx))
	})

	rejected := map[string]*fasthttp.RequestCtx{
		"no cookie":       {},
		"unknown session": requestWithSession(t, codec, "missing"),
	}
	tampered := &fasthttp.RequestCtx{}
	tampered.Request.Header.SetCookie(authcookie.SessionCookie, "not-a-token")
	rejected["tampered cookie"] = tampered

	for name, ctx := range rejected {
		t.Run(name, func(t *testing.T) {
			var reached bool
			gate.Require(okHandler(&reached))(ctx)
			assert.False(t, reached)
			assert.Equal(t, http.StatusUnauthorized, ctx.Response.StatusCode())
			assert.Contains(t, string(ctx.Response.Body()), `"code":"UNAUTHORIZED"`)
			assert.True(t, clearedCookies(ctx))
		})
	}
}

func TestRequireFailsClosedOnBackendError(t *testing.T) {
	codec := newCodec(t)
	stub := &stubAuthenticator{err: domain.WrapError(domain.ErrCodePersistence, "get session", assert.AnError)}
	gate := NewSessionGate(stub, codec, nil, "", nil)

	ctx := requestWithSession(t, codec, "any")
	var reached bool
	gate.Require(okHandler(&reached))(ctx)
	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, ctx.Response.StatusCode())
}

func TestRequireRedirects(t *testing.T) {
	codec := newCodec(t)
	gate := NewSessionGate(&stubAuthenticator{}, codec, nil, "/login", nil)

	ctx := &fasthttp.RequestCtx{}
	var reached bool
	gate.Require(okHandler(&reached))(ctx)
	assert.False(t, reached)
	assert.Equal(t, http.StatusTemporaryRedirect, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Header.Peek("Location")), "/login")
	assert.True(t, clearedCookies(ctx))
}

func TestOptional(t *testing.T) {
	codec := newCodec(t)
	alice := &domain.User{ID: "u1", Enabled: true}
	stub := &stubAuthenticator{users: map[string]*domain.User{"good": alice}}
	gate := NewSessionGate(stub, codec, nil, "", nil)

	t.Run("anonymous request leaves cookies alone", func(t *testing.T) {
		ctx := &fasthttp.RequestCtx{}
		var reached bool
		gate.Optional(okHandler(&reached))(ctx)
		assert.True(t, reached)
		assert.Empty(t, ctx.Response.Header.PeekCookie(authcookie.SessionCookie))
		_, ok := CurrentUser(ctx)
		assert.False(t, ok)
	})

	t.Run("stale session is cleared and request continues", func(t *testing.T) {
		ctx := requestWithSession(t, codec, "gone")
		var reached bool
		gate.Optional(okHandler(&reached))(ctx)
		assert.True(t, reached)
		assert.True(t, clearedCookies(ctx))
		_, ok := CurrentUser(ctx)
		assert.False(t, ok)
	})

	t.Run("valid session attaches the user", func(t *testing.T) {
		ctx := requestWithSession(t, codec, "good")
		gate.Optional(func(ctx *fasthttp.RequestCtx) {
			user, ok := CurrentUser(ctx)
			require.True(t, ok)
			assert.Equal(t, "u1", user.ID)
		})(ctx)
	})
}

func TestSessionExpiresAfterMaxAge(t *testing.T) {
	const password = "correctHorseBatteryStaple"
	hasher, err := credential.NewHasher(credential.Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}, 2)
	require.NoError(t, err)

	t0 := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	now := t0
	clock := func() time.Time { return now }

	sessRepo := memory.NewSessionRepository()
	userUC := users.New(memory.NewUserRepository(), hasher, hasher, nil, users.Config{OTPValidity: 48 * time.Hour}, nil, users.WithClock(clock))
	sessUC := sessions.New(sessRepo, 7*24*time.Hour, nil, sessions.WithClock(clock))
	authUC := auth.New(userUC, sessUC, hasher, nil)

	bg := context.Background()
	invited, err := userUC.Invite(bg, "b@example.com")
	require.NoError(t, err)
	require.NoError(t, authUC.Activate(bg, auth.ActivateInput{
		UserID: invited.ID, OTP: *invited.OTP, DisplayName: "Bob", Password: password, Confirm: password,
	}))
	session, _, err := authUC.Login(bg, "b@example.com", password)
	require.NoError(t, err)

	codec := newCodec(t)
	gate := NewSessionGate(authUC, codec, nil, "", nil)

	request := func() (*fasthttp.RequestCtx, bool) {
		ctx := requestWithSession(t, codec, session.ID)
		var reached bool
		gate.Require(okHandler(&reached))(ctx)
		return ctx, reached
	}

	now = t0.Add(6 * 24 * time.Hour)
	_, reached := request()
	assert.True(t, reached)

	now = t0.Add(8 * 24 * time.Hour)
	ctx, reached := request()
	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, ctx.Response.StatusCode())
	assert.True(t, clearedCookies(ctx))

	_, err = sessRepo.Get(bg, session.ID)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))
}
