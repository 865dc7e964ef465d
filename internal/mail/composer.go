package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/gitrueng/user-management-app/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

// ComposerConfig holds the addressing and link settings for account emails.
type ComposerConfig struct {
	From          string
	FromName      string
	ClientURL     string
	VerifyParam   string
	ResetParam    string
	VerifySubject string
	ResetSubject  string
}

// Composer renders verification and reset emails. The link in each email
// is ClientURL with the token added as a query parameter.
type Composer struct {
	cfg       ComposerConfig
	clientURL *url.URL
	templates *template.Template
}

type templateData struct {
	Name     string
	Username string
	Link     string
}

// NewComposer parses the embedded templates and the client URL.
func NewComposer(cfg ComposerConfig) (*Composer, error) {
	u, err := url.Parse(cfg.ClientURL)
	if err != nil {
		return nil, fmt.Errorf("parse client url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("client url %q must be absolute", cfg.ClientURL)
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &Composer{cfg: cfg, clientURL: u, templates: tmpl}, nil
}

// Verification renders the email that confirms a new account's address.
func (c *Composer) Verification(a *domain.Account, token string) (*Message, error) {
	return c.compose(a, TemplateVerifyEmail, c.cfg.VerifySubject, c.cfg.VerifyParam, token)
}

// PasswordReset renders the email carrying a password reset link.
func (c *Composer) PasswordReset(a *domain.Account, token string) (*Message, error) {
	return c.compose(a, TemplateResetPassword, c.cfg.ResetSubject, c.cfg.ResetParam, token)
}

func (c *Composer) compose(a *domain.Account, name, subject, param, token string) (*Message, error) {
	data := templateData{
		Name:     displayName(a),
		Username: a.Username,
		Link:     c.link(param, token),
	}

	var body bytes.Buffer
	if err := c.templates.ExecuteTemplate(&body, name+".html", data); err != nil {
		return nil, fmt.Errorf("render %s email: %w", name, err)
	}

	return &Message{
		ID:       uuid.NewString(),
		Template: name,
		From:     c.cfg.From,
		FromName: c.cfg.FromName,
		To:       a.Email,
		Username: a.Username,
		Subject:  subject,
		HTMLBody: body.String(),
	}, nil
}

func (c *Composer) link(param, token string) string {
	u := *c.clientURL
	q := u.Query()
	q.Set(param, token)
	u.RawQuery = q.Encode()
	return u.String()
}

func displayName(a *domain.Account) string {
	if name := strings.TrimSpace(a.FirstName + " " + a.LastName); name != "" {
		return name
	}
	return a.Username
}
