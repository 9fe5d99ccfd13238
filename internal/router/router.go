package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/NightOwlRecon/IntriCase/api/handler"
)

type Handlers struct {
	Auth   *apiHandler.AuthHandler
	Users  *apiHandler.UsersHandler
	Health *apiHandler.HealthHandler
}

// Gate wraps handlers with session authentication.
type Gate interface {
	Require(next fasthttp.RequestHandler) fasthttp.RequestHandler
	Optional(next fasthttp.RequestHandler) fasthttp.RequestHandler
}

func New(handlers Handlers, gate Gate) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)

	// Routes reachable without a session
	r.POST("/api/auth/login", gate.Optional(handlers.Auth.Login))
	r.GET("/api/auth/logout", gate.Optional(handlers.Auth.Logout))
	r.POST("/api/auth/logout", gate.Optional(handlers.Auth.Logout))
	r.POST("/api/auth/activate", gate.Optional(handlers.Auth.Activate))
	r.POST("/api/auth/reset", gate.Optional(handlers.Auth.RequestReset))
	r.POST("/api/auth/reset/confirm", gate.Optional(handlers.Auth.ConfirmReset))
	r.POST("/api/auth/password/check", gate.Optional(handlers.Auth.CheckPassword))

	// Protected routes
	r.GET("/api/auth/me", gate.Require(handlers.Auth.Me))
	r.GET("/api/users", gate.Require(handlers.Users.List))
	r.GET("/api/users/all", gate.Require(handlers.Users.ListAll))

	admin := r.Group("/api/admin/users")
	admin.GET("/list", gate.Require(handlers.Users.ListAll))
	admin.POST("/invite", gate.Require(handlers.Users.Invite))
	admin.POST("/{id}/resend", gate.Require(handlers.Users.ResendActivation))
	admin.PUT("/{id}/enabled", gate.Require(handlers.Users.SetEnabled))

	return r
}
