package httpcontext

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	appLogger "github.com/NightOwlRecon/IntriCase/pkg/logger"
)

// Key represents a context value key exported for reuse.
type Key string

const (
	KeyRemoteAddr Key = "remote_addr"
	KeyUserAgent  Key = "user_agent"

	maxRequestIDLength = 64
)

// Adapter converts fasthttp.RequestCtx into a stdlib context with a deadline
// and request metadata.
type Adapter struct {
	timeout time.Duration
}

// NewAdapter constructs a new Adapter using the provided timeout.
func NewAdapter(timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Adapter{
		timeout: timeout,
	}
}

// Attach creates a context bounded by the adapter timeout. The request id is
// taken from X-Request-ID when it is well formed, generated otherwise, and
// echoed back on the response.
func (a *Adapter) Attach(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	stdCtx, cancel := context.WithTimeout(context.Background(), a.timeout)

	reqID := requestID(ctx)
	stdCtx = appLogger.ContextWithRequestID(stdCtx, reqID)
	ctx.Response.Header.Set("X-Request-ID", reqID)

	if remoteAddr := ctx.RemoteAddr(); remoteAddr != nil {
		stdCtx = context.WithValue(stdCtx, KeyRemoteAddr, remoteAddr.String())
	}
	if ua := string(ctx.Request.Header.UserAgent()); ua != "" {
		stdCtx = context.WithValue(stdCtx, KeyUserAgent, ua)
	}

	return stdCtx, cancel
}

// RemoteAddr returns the client address recorded by Attach.
func RemoteAddr(ctx context.Context) string {
	addr, _ := ctx.Value(KeyRemoteAddr).(string)
	return addr
}

// requestID reuses an inbound X-Request-ID only if it is short and printable,
// since it ends up in every log line of the request.
func requestID(ctx *fasthttp.RequestCtx) string {
	header := ctx.Request.Header.Peek("X-Request-ID")
	if len(header) == 0 || len(header) > maxRequestIDLength {
		return uuid.NewString()
	}
	for _, b := range header {
		if b < 0x21 || b > 0x7e {
			return uuid.NewString()
		}
	}
	return string(header)
}
