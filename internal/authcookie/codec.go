package authcookie

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/valyala/fasthttp"

	"github.com/NightOwlRecon/IntriCase/domain"
)

const (
	// SessionCookie carries the signed session id.
	SessionCookie = "session"
	// UserDetailsCookie carries a client-readable public snapshot of the user.
	// It is never used for authorization.
	UserDetailsCookie = "user_details"

	MinSecretLength = 32
)

var (
	ErrSecretTooShort = fmt.Errorf("cookie secret must be at least %d bytes", MinSecretLength)
	ErrInvalidToken   = errors.New("invalid session cookie")
)

type Config struct {
	Secret []byte
	Issuer string
	Secure bool
	// MaxAge sets the browser-side lifetime of both cookies. Zero makes them
	// session cookies.
	MaxAge time.Duration
}

// Codec owns both authentication cookies. Every write or clear goes through it
// so the pair is always set and removed together.
type Codec struct {
	secret []byte
	issuer string
	secure bool
	maxAge time.Duration
}

func New(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "intricase"
	}
	return &Codec{
		secret: append([]byte(nil), cfg.Secret...),
		issuer: issuer,
		secure: cfg.Secure,
		maxAge: cfg.MaxAge,
	}, nil
}

// Sign produces the session cookie value for a session.
func (c *Codec) Sign(session *domain.Session) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:       session.ID,
		Issuer:   c.issuer,
		IssuedAt: jwt.NewNumericDate(session.CreatedAt),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Parse verifies a session cookie value and returns the session id.
func (c *Codec) Parse(value string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Issuer != c.issuer || claims.ID == "" {
		return "", ErrInvalidToken
	}
	return claims.ID, nil
}

// SessionID extracts the session id from the request. present reports whether
// a session cookie was sent at all, which lets callers tell an anonymous
// request from a tampered or stale one.
func (c *Codec) SessionID(ctx *fasthttp.RequestCtx) (id string, present bool, err error) {
	raw := ctx.Request.Header.Cookie(SessionCookie)
	if len(raw) == 0 {
		return "", false, nil
	}
	id, err = c.Parse(string(raw))
	return id, true, err
}

// Establish writes both cookies after a successful login.
func (c *Codec) Establish(ctx *fasthttp.RequestCtx, session *domain.Session, user domain.PublicUser) error {
	value, err := c.Sign(session)
	if err != nil {
		return err
	}
	details, err := json.Marshal(user)
	if err != nil {
		return err
	}
	c.write(ctx, SessionCookie, value, true)
	c.write(ctx, UserDetailsCookie, url.QueryEscape(string(details)), false)
	return nil
}

// ClearAll instructs the client to drop both cookies.
func (c *Codec) ClearAll(ctx *fasthttp.RequestCtx) {
	for _, name := range []string{SessionCookie, UserDetailsCookie} {
		cookie := fasthttp.AcquireCookie()
		cookie.SetKey(name)
		cookie.SetValue("")
		cookie.SetPath("/")
		cookie.SetExpire(fasthttp.CookieExpireDelete)
		cookie.SetHTTPOnly(name == SessionCookie)
		cookie.SetSecure(c.secure)
		cookie.SetSameSite(fasthttp.CookieSameSiteLaxMode)
		ctx.Response.Header.SetCookie(cookie)
		fasthttp.ReleaseCookie(cookie)
	}
}

func (c *Codec) write(ctx *fasthttp.RequestCtx, name, value string, httpOnly bool) {
	cookie := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(cookie)

	cookie.SetKey(name)
	cookie.SetValue(value)
	cookie.SetPath("/")
	cookie.SetHTTPOnly(httpOnly)
	cookie.SetSecure(c.secure)
	cookie.SetSameSite(fasthttp.CookieSameSiteLaxMode)
	if c.maxAge > 0 {
		cookie.SetMaxAge(int(c.maxAge.Seconds()))
	}
	ctx.Response.Header.SetCookie(cookie)
}
