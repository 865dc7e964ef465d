// Package mail builds account emails and delivers them off the request path.
package mail

import (
	"context"
	"net/mail"
)

// Template names, also used as the message kind in logs and events.
const (
	TemplateVerifyEmail   = "verify_email"
	TemplateResetPassword = "reset_password"
)

// Message is one rendered email.
type Message struct {
	ID       string `json:"id"`
	Template string `json:"template"`
	From     string `json:"from"`
	FromName string `json:"from_name"`
	To       string `json:"to"`
	Username string `json:"username"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
}

// FromHeader formats the sender as an RFC 5322 address.
func (m *Message) FromHeader() string {
	return (&mail.Address{Name: m.FromName, Address: m.From}).String()
}

// Sender delivers a message over one transport.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg *Message) error
}
