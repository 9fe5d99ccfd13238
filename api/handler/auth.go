package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/NightOwlRecon/IntriCase/api/transport"
	"github.com/NightOwlRecon/IntriCase/domain"
	"github.com/NightOwlRecon/IntriCase/internal/authcookie"
	"github.com/NightOwlRecon/IntriCase/internal/middleware"
	"github.com/NightOwlRecon/IntriCase/internal/strength"
	"github.com/NightOwlRecon/IntriCase/pkg/httpcontext"
	appLogger "github.com/NightOwlRecon/IntriCase/pkg/logger"
	authUC "github.com/NightOwlRecon/IntriCase/usecase/auth"
)

type AuthHandler struct {
	baseHandler
	uc      *authUC.UseCase
	cookies *authcookie.Codec
}

func NewAuthHandler(uc *authUC.UseCase, cookies *authcookie.Codec, adapter *httpcontext.Adapter, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
		cookies:     cookies,
	}
}

// @Summary Log in with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Router /api/auth/login [post]
func (h *AuthHandler) Login(ctx *fasthttp.RequestCtx) {
	var req transport.LoginRequest
	if !h.decode(ctx, &req) {
		h.cookies.ClearAll(ctx)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	session, user, err := h.uc.Login(stdCtx, req.Email, req.Password)
	if err != nil {
		h.cookies.ClearAll(ctx)
		h.respondError(ctx, stdCtx, err)
		return
	}

	// A previous session sent with this request is replaced by the new one.
	if previous, present, perr := h.cookies.SessionID(ctx); present && perr == nil && previous != session.ID {
		if err := h.uc.Logout(stdCtx, previous); err != nil {
			appLogger.WithRequestID(stdCtx, h.logger).Warn("failed to drop previous session", zap.Error(err))
		}
	}

	if err := h.cookies.Establish(ctx, session, user.Public()); err != nil {
		h.cookies.ClearAll(ctx)
		h.respondError(ctx, stdCtx, domain.WrapError(domain.ErrCodeInternal, "establish session cookie", err))
		return
	}
	h.respondSuccess(ctx, http.StatusOK, user.Public())
}

// @Summary Log out and clear authentication cookies
// @Tags auth
// @Router /api/auth/logout [post]
func (h *AuthHandler) Logout(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	h.cookies.ClearAll(ctx)
	if sessionID, present, err := h.cookies.SessionID(ctx); present && err == nil {
		if err := h.uc.Logout(stdCtx, sessionID); err != nil {
			h.respondError(ctx, stdCtx, err)
			return
		}
	}
	h.respondSuccess(ctx, http.StatusOK, map[string]bool{"logged_out": true})
}

// @Summary Activate an invited account
// @Tags auth
// @Accept json
// @Produce json
// @Router /api/auth/activate [post]
func (h *AuthHandler) Activate(ctx *fasthttp.RequestCtx) {
	var req transport.ActivateRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	err := h.uc.Activate(stdCtx, authUC.ActivateInput{
		UserID:      req.UserID,
		OTP:         req.OTP,
		DisplayName: req.DisplayName,
		Password:    req.Password,
		Confirm:     req.ConfirmPassword,
	})
	if err != nil {
		h.respondError(ctx, stdCtx, hideUnknownUser(err))
		return
	}
	h.respondSuccess(ctx, http.StatusOK, map[string]bool{"activated": true})
}

// @Summary Request a password reset email
// @Tags auth
// @Accept json
// @Router /api/auth/reset [post]
func (h *AuthHandler) RequestReset(ctx *fasthttp.RequestCtx) {
	var req transport.ResetRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	// The answer is the same whether or not the account exists.
	if _, err := h.uc.RequestReset(stdCtx, req.Email); err != nil && !domain.IsDomainError(err, domain.ErrCodeNotFound) {
		appLogger.WithRequestID(stdCtx, h.logger).Error("password reset request failed", zap.Error(err))
	}
	h.respondSuccess(ctx, http.StatusAccepted, map[string]string{"message": "if the account exists, a reset link has been sent"})
}

// @Summary Complete a password reset
// @Tags auth
// @Accept json
// @Router /api/auth/reset/confirm [post]
func (h *AuthHandler) ConfirmReset(ctx *fasthttp.RequestCtx) {
	var req transport.ResetConfirmRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	err := h.uc.ResetPassword(stdCtx, authUC.ResetInput{
		UserID:   req.UserID,
		OTP:      req.OTP,
		Password: req.Password,
		Confirm:  req.ConfirmPassword,
	})
	if err != nil {
		h.respondError(ctx, stdCtx, hideUnknownUser(err))
		return
	}
	h.respondSuccess(ctx, http.StatusOK, map[string]bool{"reset": true})
}

// @Summary Advisory password strength check
// @Tags auth
// @Accept json
// @Produce json
// @Router /api/auth/password/check [post]
func (h *AuthHandler) CheckPassword(ctx *fasthttp.RequestCtx) {
	var req transport.PasswordCheckRequest
	if !h.decode(ctx, &req) {
		return
	}
	h.respondSuccess(ctx, http.StatusOK, strength.Evaluate(req.Password, req.Confirm, req.DisplayName, req.CandidateID))
}

// @Summary Current user
// @Tags auth
// @Produce json
// @Router /api/auth/me [get]
func (h *AuthHandler) Me(ctx *fasthttp.RequestCtx) {
	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		h.respondError(ctx, nil, domain.ErrUnauthorized)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, user.Public())
}

// hideUnknownUser reports a lookup miss on a token link the same way as a bad
// token.
func hideUnknownUser(err error) error {
	if domain.IsDomainError(err, domain.ErrCodeNotFound) {
		return domain.ErrInvalidOTP
	}
	return err
}
