package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
)

type TemplateKind string

const (
	KindVerification      TemplateKind = "verification"
	KindAlreadyRegistered TemplateKind = "already-registered"
	KindPasswordReset     TemplateKind = "password-reset"
	KindPasswordChanged   TemplateKind = "password-changed"
)

// Message is a rendered email ready for delivery.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

type templateSet struct {
	subject string
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

type templateData struct {
	Email     string
	VerifyURL string
	ResetURL  string
	ForgotURL string
}

var templates = map[TemplateKind]templateSet{
	KindVerification: {
		subject: "Please verify your email address",
		text: texttemplate.Must(texttemplate.New("verification").Parse(`Email Verification

Thank you for registering!

Please click the link below to verify your email address:
{{.VerifyURL}}

If you did not request this email, please ignore it.
`)),
		html: htmltemplate.Must(htmltemplate.New("verification").Parse(`<h1>Email Verification</h1>
<p>Thank you for registering!</p>
<p>Please click the link below to verify your email address:</p>
<p><a href="{{.VerifyURL}}">{{.VerifyURL}}</a></p>
<p>If you did not request this email, please ignore it.</p>
`)),
	},
	KindAlreadyRegistered: {
		subject: "Email Already Registered",
		text: texttemplate.Must(texttemplate.New("already-registered").Parse(`Email Already Registered

Your email {{.Email}} is already registered.

If you don't know your password you can reset it here: {{.ForgotURL}}
{{if .VerifyURL}}
If you haven't verified your email yet, please click the link below:
{{.VerifyURL}}
{{end}}`)),
		html: htmltemplate.Must(htmltemplate.New("already-registered").Parse(`<h1>Email Already Registered</h1>
<p>Your email <strong>{{.Email}}</strong> is already registered.</p>
<p>If you don't know your password you can <a href="{{.ForgotURL}}">reset it here</a>.</p>
{{if .VerifyURL}}<p>If you haven't verified your email yet, please click the link below:</p>
<p><a href="{{.VerifyURL}}">{{.VerifyURL}}</a></p>
{{end}}`)),
	},
	KindPasswordReset: {
		subject: "Reset Your Password",
		text: texttemplate.Must(texttemplate.New("password-reset").Parse(`Reset Password

Please click the link below to reset your password:
{{.ResetURL}}

If you did not request this email, please ignore it.
`)),
		html: htmltemplate.Must(htmltemplate.New("password-reset").Parse(`<h1>Reset Password</h1>
<p>Please click the link below to reset your password:</p>
<p><a href="{{.ResetURL}}">{{.ResetURL}}</a></p>
<p>If you did not request this email, please ignore it.</p>
`)),
	},
	KindPasswordChanged: {
		subject: "Your Password Has Been Changed",
		text: texttemplate.Must(texttemplate.New("password-changed").Parse(`Password Changed

Your password has been changed successfully.

If you did not change your password, please contact support immediately.
`)),
		html: htmltemplate.Must(htmltemplate.New("password-changed").Parse(`<h1>Password Changed</h1>
<p>Your password has been changed successfully.</p>
<p>If you did not change your password, please contact support immediately.</p>
`)),
	},
}

// Renderer turns a template kind and its params into a Message. Links point
// at the frontend; the only recognised param is "token".
type Renderer struct {
	frontendURL string
}

func NewRenderer(frontendURL string) *Renderer {
	return &Renderer{frontendURL: strings.TrimRight(frontendURL, "/")}
}

func (r *Renderer) Render(to string, kind TemplateKind, params map[string]string) (*Message, error) {
	set, ok := templates[kind]
	if !ok {
		return nil, fmt.Errorf("unknown email template %q", kind)
	}

	data := templateData{
		Email:     to,
		ForgotURL: r.frontendURL + "/account/forgot-password",
	}
	if token := params["token"]; token != "" {
		switch kind {
		case KindVerification, KindAlreadyRegistered:
			data.VerifyURL = r.link("/account/verify-email", token)
		case KindPasswordReset:
			data.ResetURL = r.link("/account/reset-password", token)
		}
	}
	if kind == KindVerification && data.VerifyURL == "" {
		return nil, fmt.Errorf("email template %q requires a token", kind)
	}
	if kind == KindPasswordReset && data.ResetURL == "" {
		return nil, fmt.Errorf("email template %q requires a token", kind)
	}

	var text, html bytes.Buffer
	if err := set.text.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("failed to render %s text: %w", kind, err)
	}
	if err := set.html.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("failed to render %s html: %w", kind, err)
	}
	return &Message{Subject: set.subject, Text: text.String(), HTML: html.String()}, nil
}

func (r *Renderer) link(path, token string) string {
	return r.frontendURL + path + "?token=" + url.QueryEscape(token)
}
