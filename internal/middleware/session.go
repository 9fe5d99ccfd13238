package middleware

import (
	"context"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/NightOwlRecon/IntriCase/api/transport"
	"github.com/NightOwlRecon/IntriCase/domain"
	"github.com/NightOwlRecon/IntriCase/internal/authcookie"
	"github.com/NightOwlRecon/IntriCase/pkg/httpcontext"
	appLogger "github.com/NightOwlRecon/IntriCase/pkg/logger"
)

const userValueKey = "intricase.user"

// Authenticator resolves a session id to the user it belongs to.
type Authenticator interface {
	Authenticate(ctx context.Context, sessionID string) (*domain.User, error)
}

// SessionGate authenticates requests from the session cookie.
type SessionGate struct {
	auth     Authenticator
	cookies  *authcookie.Codec
	adapter  *httpcontext.Adapter
	redirect string
	logger   *zap.Logger
}

// NewSessionGate builds the gate. With a non-empty loginRedirect rejected
// requests are redirected there instead of receiving 401.
func NewSessionGate(auth Authenticator, cookies *authcookie.Codec, adapter *httpcontext.Adapter, loginRedirect string, logger *zap.Logger) *SessionGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if adapter == nil {
		adapter = httpcontext.NewAdapter(0)
	}
	return &SessionGate{
		auth:     auth,
		cookies:  cookies,
		adapter:  adapter,
		redirect: loginRedirect,
		logger:   logger,
	}
}

// Require lets only authenticated requests through. Every rejection clears
// both authentication cookies.
func (g *SessionGate) Require(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if user, _ := g.resolve(ctx); user == nil {
			g.reject(ctx)
			return
		}
		next(ctx)
	}
}

// Optional is for routes open to anonymous callers. A request without a
// session cookie passes untouched; one with an unusable cookie has the cookies
// cleared and continues anonymously.
func (g *SessionGate) Optional(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if user, present := g.resolve(ctx); user == nil && present {
			g.cookies.ClearAll(ctx)
		}
		next(ctx)
	}
}

// CurrentUser returns the user attached by the gate.
func CurrentUser(ctx *fasthttp.RequestCtx) (*domain.User, bool) {
	user, ok := ctx.UserValue(userValueKey).(*domain.User)
	return user, ok && user != nil
}

func (g *SessionGate) resolve(ctx *fasthttp.RequestCtx) (*domain.User, bool) {
	sessionID, present, err := g.cookies.SessionID(ctx)
	if !present {
		return nil, false
	}
	if err != nil {
		g.logger.Debug("rejected session cookie", zap.Error(err))
		return nil, true
	}

	stdCtx, cancel := g.adapter.Attach(ctx)
	defer cancel()

	user, err := g.auth.Authenticate(stdCtx, sessionID)
	if err != nil {
		log := appLogger.WithRequestID(stdCtx, g.logger)
		switch domain.CodeOf(err) {
		case domain.ErrCodeNotFound, domain.ErrCodeUnauthorized:
			log.Debug("session not accepted", zap.String("session_id", sessionID), zap.Error(err))
		default:
			log.Error("session lookup failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		return nil, true
	}

	ctx.SetUserValue(userValueKey, user)
	return user, true
}

func (g *SessionGate) reject(ctx *fasthttp.RequestCtx) {
	g.cookies.ClearAll(ctx)
	if g.redirect != "" {
		ctx.Redirect(g.redirect, fasthttp.StatusTemporaryRedirect)
		return
	}
	transport.NewError(string(domain.ErrCodeUnauthorized), "unauthorized", nil).Write(ctx, http.StatusUnauthorized)
}
