package mail

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/hzi-braunschweig/pia-system/internal/platform/config"
)

// SMTP sends verification mail through a plain SMTP relay.
type SMTP struct {
	cfg config.SMTPConfig
}

func NewSMTP(cfg config.SMTPConfig) *SMTP {
	return &SMTP{cfg: cfg}
}

func (s *SMTP) SendVerificationLink(ctx context.Context, to, link string, expiresIn time.Duration) error {
	minutes := int(expiresIn.Minutes())

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Verify your email address")

	body := fmt.Sprintf(
		"Someone has created an account with this email address.\n\n"+
			"If this was you, click the link below to verify your email address:\n\n%s\n\n"+
			"This link will expire within %d minutes.\n\n"+
			"If you didn't create this account, just ignore this message.",
		link, minutes)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send verification mail: %w", err)
	}
	return nil
}
