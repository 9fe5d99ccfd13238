package transport

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

// Envelope wraps every JSON response. Error carries only a public message;
// internal detail never leaves the server.
type Envelope struct {
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
	Meta   any    `json:"meta,omitempty"`
}

func NewSuccess(data any) Envelope {
	return Envelope{Status: "success", Data: data}
}

// NewError builds an error envelope. meta is optional detail safe to expose,
// such as per-dependency health.
func NewError(code, message string, meta any) Envelope {
	return Envelope{
		Status: "error",
		Code:   code,
		Error:  message,
		Meta:   meta,
	}
}

// Write sends the envelope as the response body with status.
func (e Envelope) Write(ctx *fasthttp.RequestCtx, status int) {
	body, err := json.Marshal(e)
	if err != nil {
		body = []byte(`{"status":"error","code":"INTERNAL"}`)
		status = fasthttp.StatusInternalServerError
	}
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}
