package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	fasthttprouter "github.com/fasthttp/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/NightOwlRecon/IntriCase/api/handler"
	"github.com/NightOwlRecon/IntriCase/domain"
	"github.com/NightOwlRecon/IntriCase/internal/authcookie"
	"github.com/NightOwlRecon/IntriCase/internal/infrastructure/monitor"
	"github.com/NightOwlRecon/IntriCase/internal/middleware"
	"github.com/NightOwlRecon/IntriCase/internal/router"
	"github.com/NightOwlRecon/IntriCase/pkg/credential"
	"github.com/NightOwlRecon/IntriCase/pkg/httpcontext"
	"github.com/NightOwlRecon/IntriCase/repository/memory"
	authUC "github.com/NightOwlRecon/IntriCase/usecase/auth"
	"github.com/NightOwlRecon/IntriCase/usecase/sessions"
	"github.com/NightOwlRecon/IntriCase/usecase/users"
)

const password = "correctHorseBatteryStaple"

type staticStatus monitor.Status

func (s staticStatus) GetStatus() monitor.Status { return monitor.Status(s) }

type env struct {
	router *fasthttprouter.Router
	users  *users.UseCase
}

func newEnv(t *testing.T) *env {
	t.Helper()
	hasher, err := credential.NewHasher(credential.Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}, 4)
	require.NoError(t, err)
	codec, err := authcookie.New(authcookie.Config{Secret: []byte("0123456789abcdef0123456789abcdef")})
	require.NoError(t, err)

	userUC := users.New(memory.NewUserRepository(), hasher, hasher, nil, users.Config{OTPValidity: 48 * time.Hour}, nil)
	sessUC := sessions.New(memory.NewSessionRepository(), 7*24*time.Hour, nil)
	auth := authUC.New(userUC, sessUC, hasher, nil)
	adapter := httpcontext.NewAdapter(5 * time.Second)

	handlers := router.Handlers{
		Auth:   apiHandler.NewAuthHandler(auth, codec, adapter, nil),
		Users:  apiHandler.NewUsersHandler(userUC, adapter, nil),
		Health: apiHandler.NewHealthHandler(staticStatus{Healthy: true, Services: map[string]bool{"postgresql": true}}, adapter, nil),
	}
	gate := middleware.NewSessionGate(auth, codec, adapter, "", nil)
	return &env{router: router.New(handlers, gate), users: userUC}
}

func (e *env) do(method, path string, body interface{}, sessionCookie string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != nil {
		raw, _ := json.Marshal(body)
		ctx.Request.SetBody(raw)
		ctx.Request.Header.SetContentType("application/json")
	}
	if sessionCookie != "" {
		ctx.Request.Header.SetCookie(authcookie.SessionCookie, sessionCookie)
	}
	e.router.Handler(ctx)
	return ctx
}

func (e *env) activated(t *testing.T, email string) *domain.User {
	t.Helper()
	user, err := e.users.Invite(context.Background(), email)
	require.NoError(t, err)
	ctx := e.do(http.MethodPost, "/api/auth/activate", map[string]string{
		"user_id": user.ID, "otp": *user.OTP, "display_name": "Alice", "password": password, "confirm_password": password,
	}, "")
	require.Equal(t, http.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	return user
}

func (e *env) login(t *testing.T, email string) string {
	t.Helper()
	ctx := e.do(http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password}, "")
	require.Equal(t, http.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	c, ok := cookie(ctx, authcookie.SessionCookie)
	require.True(t, ok)
	return string(c.Value())
}

func cookie(ctx *fasthttp.RequestCtx, name string) (*fasthttp.Cookie, bool) {
	c := &fasthttp.Cookie{}
	c.SetKey(name)
	return c, ctx.Response.Header.Cookie(c)
}

func assertCleared(t *testing.T, ctx *fasthttp.RequestCtx) {
	t.Helper()
	for _, name := range []string{authcookie.SessionCookie, authcookie.UserDetailsCookie} {
		c, ok := cookie(ctx, name)
		require.True(t, ok, name)
		assert.Empty(t, c.Value(), name)
	}
}

func envelope(t *testing.T, ctx *fasthttp.RequestCtx) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out))
	return out
}

func TestLoginMeLogout(t *testing.T) {
	e := newEnv(t)
	e.activated(t, "a@example.com")

	ctx := e.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "a@example.com", "password": password}, "")
	require.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	details, ok := cookie(ctx, authcookie.UserDetailsCookie)
	require.True(t, ok)
	assert.Contains(t, string(details.Value()), "a%40example.com")
	assert.NotContains(t, string(ctx.Response.Body()), "otp")

	session, _ := cookie(ctx, authcookie.SessionCookie)
	value := string(session.Value())

	me := e.do(http.MethodGet, "/api/auth/me", nil, value)
	require.Equal(t, http.StatusOK, me.Response.StatusCode())
	assert.Equal(t, "a@example.com", envelope(t, me)["data"].(map[string]interface{})["email"])

	out := e.do(http.MethodPost, "/api/auth/logout", nil, value)
	assert.Equal(t, http.StatusOK, out.Response.StatusCode())
	assertCleared(t, out)

	again := e.do(http.MethodGet, "/api/auth/me", nil, value)
	assert.Equal(t, http.StatusUnauthorized, again.Response.StatusCode())
	assertCleared(t, again)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	e := newEnv(t)
	e.activated(t, "a@example.com")

	wrong := e.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "a@example.com", "password": "wrong-password"}, "")
	unknown := e.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "nobody@example.com", "password": password}, "")

	for _, ctx := range []*fasthttp.RequestCtx{wrong, unknown} {
		assert.Equal(t, http.StatusUnauthorized, ctx.Response.StatusCode())
		assertCleared(t, ctx)
	}
	assert.Equal(t, string(wrong.Response.Body()), string(unknown.Response.Body()))
}

func TestLoginRejectsMalformedBody(t *testing.T) {
	e := newEnv(t)
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(http.MethodPost)
	ctx.Request.SetRequestURI("/api/auth/login")
	ctx.Request.SetBodyString("{not json")
	e.router.Handler(ctx)

	assert.Equal(t, http.StatusBadRequest, ctx.Response.StatusCode())
	assertCleared(t, ctx)
}

func TestActivateUnknownUserLooksLikeBadToken(t *testing.T) {
	e := newEnv(t)
	ctx := e.do(http.MethodPost, "/api/auth/activate", map[string]string{
		"user_id": "missing", "otp": "x", "display_name": "Bob", "password": password, "confirm_password": password,
	}, "")
	assert.Equal(t, http.StatusBadRequest, ctx.Response.StatusCode())
	assert.Equal(t, "INVALID_OTP", envelope(t, ctx)["code"])
}

func TestActivateRejectsMismatchedPasswords(t *testing.T) {
	e := newEnv(t)
	user, err := e.users.Invite(context.Background(), "a@example.com")
	require.NoError(t, err)

	ctx := e.do(http.MethodPost, "/api/auth/activate", map[string]string{
		"user_id": user.ID, "otp": *user.OTP, "display_name": "Alice", "password": password, "confirm_password": password + "!",
	}, "")
	assert.Equal(t, http.StatusBadRequest, ctx.Response.StatusCode())
	assert.Equal(t, "INVALID", envelope(t, ctx)["code"])

	stored, err := e.users.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, e.users.IsOTPValid(stored, *user.OTP))
}

func TestResetRequestDoesNotRevealAccounts(t *testing.T) {
	e := newEnv(t)
	e.activated(t, "a@example.com")

	known := e.do(http.MethodPost, "/api/auth/reset", map[string]string{"email": "a@example.com"}, "")
	unknown := e.do(http.MethodPost, "/api/auth/reset", map[string]string{"email": "nobody@example.com"}, "")

	assert.Equal(t, http.StatusAccepted, known.Response.StatusCode())
	assert.Equal(t, http.StatusAccepted, unknown.Response.StatusCode())
	assert.Equal(t, string(known.Response.Body()), string(unknown.Response.Body()))
}

func TestResetConfirmFlow(t *testing.T) {
	e := newEnv(t)
	user := e.activated(t, "a@example.com")

	require.Equal(t, http.StatusAccepted, e.do(http.MethodPost, "/api/auth/reset", map[string]string{"email": "a@example.com"}, "").Response.StatusCode())
	stored, err := e.users.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.True(t, stored.HasPendingOTP())

	const next = "another-Long-passphrase-7"
	ctx := e.do(http.MethodPost, "/api/auth/reset/confirm", map[string]string{
		"user_id": user.ID, "otp": *stored.OTP, "password": next, "confirm_password": next,
	}, "")
	require.Equal(t, http.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))

	old := e.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "a@example.com", "password": password}, "")
	assert.Equal(t, http.StatusUnauthorized, old.Response.StatusCode())
	fresh := e.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "a@example.com", "password": next}, "")
	assert.Equal(t, http.StatusOK, fresh.Response.StatusCode())
}

func TestPasswordCheck(t *testing.T) {
	e := newEnv(t)
	ctx := e.do(http.MethodPost, "/api/auth/password/check", map[string]string{"candidate_id": "u1", "display_name": "Alice", "password": "short", "confirm": "short"}, "")
	require.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	data := envelope(t, ctx)["data"].(map[string]interface{})
	assert.Equal(t, false, data["valid"])
	assert.NotEmpty(t, data["reason"])
}

func TestAdminRoutesRequireSession(t *testing.T) {
	e := newEnv(t)
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/users"},
		{http.MethodGet, "/api/users/all"},
		{http.MethodGet, "/api/admin/users/list"},
		{http.MethodPost, "/api/admin/users/invite"},
		{http.MethodPost, "/api/admin/users/x/resend"},
		{http.MethodPut, "/api/admin/users/x/enabled"},
	} {
		ctx := e.do(route.method, route.path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, ctx.Response.StatusCode(), route.path)
	}
}

func TestAdminInviteListAndDisable(t *testing.T) {
	e := newEnv(t)
	e.activated(t, "admin@example.com")
	session := e.login(t, "admin@example.com")

	invite := e.do(http.MethodPost, "/api/admin/users/invite", map[string]string{"email": "new@example.com"}, session)
	require.Equal(t, http.StatusCreated, invite.Response.StatusCode(), string(invite.Response.Body()))
	assert.NotContains(t, string(invite.Response.Body()), "otp")
	newID := envelope(t, invite)["data"].(map[string]interface{})["id"].(string)

	dup := e.do(http.MethodPost, "/api/admin/users/invite", map[string]string{"email": "new@example.com"}, session)
	assert.Equal(t, http.StatusConflict, dup.Response.StatusCode())

	resend := e.do(http.MethodPost, "/api/admin/users/"+newID+"/resend", nil, session)
	assert.Equal(t, http.StatusAccepted, resend.Response.StatusCode())

	disable := e.do(http.MethodPut, "/api/admin/users/"+newID+"/enabled", map[string]bool{"enabled": false}, session)
	require.Equal(t, http.StatusOK, disable.Response.StatusCode(), string(disable.Response.Body()))

	enabled := e.do(http.MethodGet, "/api/users", nil, session)
	require.Equal(t, http.StatusOK, enabled.Response.StatusCode())
	assert.Len(t, envelope(t, enabled)["data"], 1)

	all := e.do(http.MethodGet, "/api/users/all", nil, session)
	assert.Len(t, envelope(t, all)["data"], 2)

	missing := e.do(http.MethodPut, "/api/admin/users/"+newID+"/enabled", map[string]string{}, session)
	assert.Equal(t, http.StatusBadRequest, missing.Response.StatusCode())
}

func TestDisabledAccountLosesSession(t *testing.T) {
	e := newEnv(t)
	user := e.activated(t, "a@example.com")
	session := e.login(t, "a@example.com")

	_, err := e.users.SetEnabled(context.Background(), user.ID, false)
	require.NoError(t, err)

	ctx := e.do(http.MethodGet, "/api/auth/me", nil, session)
	assert.Equal(t, http.StatusUnauthorized, ctx.Response.StatusCode())
	assertCleared(t, ctx)
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	ctx := e.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, true, envelope(t, ctx)["data"].(map[string]interface{})["services"].(map[string]interface{})["postgresql"])
}
