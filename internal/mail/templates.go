package mail

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"text/template"
	"time"
)

type Kind string

const (
	Activation    Kind = "activation"
	PasswordReset Kind = "password_reset"
)

var bodies = template.Must(template.New("mail").Parse(`
{{define "activation"}}Hello,

An IntriCase account has been created for {{.Email}}.

Choose a display name and password to activate it:

{{.Link}}

This link expires in {{.ValidFor}}. If you were not expecting this email you can ignore it.
{{end}}
{{define "password_reset"}}Hello{{if .DisplayName}} {{.DisplayName}}{{end}},

A password reset was requested for your IntriCase account.

Set a new password here:

{{.Link}}

This link expires in {{.ValidFor}}. If you did not request a reset you can ignore this email; your password has not changed.
{{end}}`))

var subjects = map[Kind]string{
	Activation:    "Activate your IntriCase account",
	PasswordReset: "Reset your IntriCase password",
}

var paths = map[Kind]string{
	Activation:    "/activate",
	PasswordReset: "/reset",
}

// Recipient is what a template needs to know about the user.
type Recipient struct {
	UserID      string
	Email       string
	DisplayName string
	OTP         string
}

// Renderer builds messages whose links point at BaseURL.
type Renderer struct {
	baseURL  string
	validFor time.Duration
}

func NewRenderer(baseURL string, validFor time.Duration) *Renderer {
	return &Renderer{baseURL: strings.TrimRight(baseURL, "/"), validFor: validFor}
}

// Link returns the page URL carrying the user id and token.
func (r *Renderer) Link(kind Kind, userID, otp string) string {
	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("otp", otp)
	return r.baseURL + paths[kind] + "?" + q.Encode()
}

func (r *Renderer) Render(kind Kind, to Recipient) (Message, error) {
	subject, ok := subjects[kind]
	if !ok {
		return Message{}, fmt.Errorf("mail: unknown message kind %q", kind)
	}
	var buf bytes.Buffer
	err := bodies.ExecuteTemplate(&buf, string(kind), struct {
		Email       string
		DisplayName string
		Link        string
		ValidFor    string
	}{
		Email:       to.Email,
		DisplayName: to.DisplayName,
		Link:        r.Link(kind, to.UserID, to.OTP),
		ValidFor:    humanize(r.validFor),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to.Email, Subject: subject, Body: strings.TrimLeft(buf.String(), "\n")}, nil
}

func humanize(d time.Duration) string {
	switch {
	case d >= 48*time.Hour && d%(24*time.Hour) == 0:
		return fmt.Sprintf("%d days", int(d/(24*time.Hour)))
	case d >= 2*time.Hour:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	case d >= time.Hour:
		return "1 hour"
	default:
		return d.String()
	}
}
