package handler

import (
	"net/http"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/NightOwlRecon/IntriCase/api/transport"
	"github.com/NightOwlRecon/IntriCase/domain"
	"github.com/NightOwlRecon/IntriCase/internal/middleware"
	"github.com/NightOwlRecon/IntriCase/pkg/httpcontext"
	"github.com/NightOwlRecon/IntriCase/repository"
	usersUC "github.com/NightOwlRecon/IntriCase/usecase/users"
)

type UsersHandler struct {
	baseHandler
	uc *usersUC.UseCase
}

func NewUsersHandler(uc *usersUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *UsersHandler {
	return &UsersHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary List enabled users
// @Tags users
// @Produce json
// @Router /api/users [get]
func (h *UsersHandler) List(ctx *fasthttp.RequestCtx) {
	h.list(ctx, repository.ListEnabled)
}

// @Summary List all users
// @Tags users
// @Produce json
// @Router /api/users/all [get]
func (h *UsersHandler) ListAll(ctx *fasthttp.RequestCtx) {
	h.list(ctx, repository.ListAll)
}

func (h *UsersHandler) list(ctx *fasthttp.RequestCtx, filter repository.ListFilter) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	list, err := h.uc.List(stdCtx, filter)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, domain.PublicUsers(list))
}

// @Summary Invite a new user
// @Tags admin
// @Accept json
// @Produce json
// @Router /api/admin/users/invite [post]
func (h *UsersHandler) Invite(ctx *fasthttp.RequestCtx) {
	var req transport.InviteRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	user, err := h.uc.Invite(stdCtx, strings.TrimSpace(req.Email))
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	if actor, ok := middleware.CurrentUser(ctx); ok {
		h.logger.Info("invite issued", zap.String("by", actor.ID), zap.String("user_id", user.ID))
	}
	h.respondSuccess(ctx, http.StatusCreated, user.Public())
}

// @Summary Re-send the activation email
// @Tags admin
// @Router /api/admin/users/{id}/resend [post]
func (h *UsersHandler) ResendActivation(ctx *fasthttp.RequestCtx) {
	id, _ := ctx.UserValue("id").(string)

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	user, err := h.uc.ResendActivation(stdCtx, id)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusAccepted, user.Public())
}

// @Summary Enable or disable a user
// @Tags admin
// @Accept json
// @Router /api/admin/users/{id}/enabled [put]
func (h *UsersHandler) SetEnabled(ctx *fasthttp.RequestCtx) {
	id, _ := ctx.UserValue("id").(string)

	var req transport.EnabledRequest
	if !h.decode(ctx, &req) {
		return
	}
	if req.Enabled == nil {
		h.respondError(ctx, nil, domain.ErrInvalidPayload)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	user, err := h.uc.SetEnabled(stdCtx, id, *req.Enabled)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, user.Public())
}
