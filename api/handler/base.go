package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/NightOwlRecon/IntriCase/api/transport"
	"github.com/NightOwlRecon/IntriCase/domain"
	"github.com/NightOwlRecon/IntriCase/pkg/httpcontext"
	appLogger "github.com/NightOwlRecon/IntriCase/pkg/logger"
)

type baseHandler struct {
	adapter *httpcontext.Adapter
	logger  *zap.Logger
}

func newBaseHandler(adapter *httpcontext.Adapter, logger *zap.Logger) baseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return baseHandler{adapter: adapter, logger: logger}
}

func (h baseHandler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if h.adapter != nil {
		return h.adapter.Attach(ctx)
	}
	return context.WithCancel(context.Background())
}

func (h baseHandler) decode(ctx *fasthttp.RequestCtx, dst interface{}) bool {
	if err := json.Unmarshal(ctx.PostBody(), dst); err != nil {
		h.respondError(ctx, nil, domain.ErrInvalidPayload)
		return false
	}
	return true
}

func (h baseHandler) respondJSON(ctx *fasthttp.RequestCtx, status int, payload transport.Envelope) {
	payload.Write(ctx, status)
}

func (h baseHandler) respondSuccess(ctx *fasthttp.RequestCtx, status int, data interface{}) {
	h.respondJSON(ctx, status, transport.NewSuccess(data))
}

// respondError writes a generic message for the error class. Internal detail
// only goes to the log.
func (h baseHandler) respondError(ctx *fasthttp.RequestCtx, stdCtx context.Context, err error) {
	status, code := mapError(err)
	if status >= http.StatusInternalServerError {
		log := h.logger
		if stdCtx != nil {
			log = appLogger.WithRequestID(stdCtx, h.logger)
		}
		log.Error("request failed", zap.String("path", string(ctx.Path())), zap.Error(err))
	}
	h.respondJSON(ctx, status, transport.NewError(code, publicMessages[code], nil))
}

var publicMessages = map[string]string{
	string(domain.ErrCodeUnauthorized):       "unauthorized",
	string(domain.ErrCodeInvalidCredentials): "invalid email or password",
	string(domain.ErrCodeInvalid):            "invalid request",
	string(domain.ErrCodeInvalidOTP):         "invalid or expired link",
	string(domain.ErrCodeNotFound):           "not found",
	string(domain.ErrCodeConflict):           "conflict",
	string(domain.ErrCodeInternal):           "internal error",
}

func mapError(err error) (int, string) {
	switch {
	case domain.IsDomainError(err, domain.ErrCodeInvalidCredentials):
		return http.StatusUnauthorized, string(domain.ErrCodeInvalidCredentials)
	case domain.IsDomainError(err, domain.ErrCodeUnauthorized):
		return http.StatusUnauthorized, string(domain.ErrCodeUnauthorized)
	case domain.IsDomainError(err, domain.ErrCodeInvalidOTP):
		return http.StatusBadRequest, string(domain.ErrCodeInvalidOTP)
	case domain.IsDomainError(err, domain.ErrCodeInvalid):
		return http.StatusBadRequest, string(domain.ErrCodeInvalid)
	case domain.IsDomainError(err, domain.ErrCodeNotFound):
		return http.StatusNotFound, string(domain.ErrCodeNotFound)
	case domain.IsDomainError(err, domain.ErrCodeConflict):
		return http.StatusConflict, string(domain.ErrCodeConflict)
	default:
		return http.StatusInternalServerError, string(domain.ErrCodeInternal)
	}
}
