// Package mailer delivers verification captchas over SMTP.
package mailer

import (
	"fmt"
	"sync"

	"gopkg.in/gomail.v2"

	"github.com/subitlab-buf/sms4-backend/internal/config"
)

// Mailer sends a captcha to an email address. The event names the flow
// the captcha belongs to, e.g. "signing up" or "resetting password",
// and appears in the message body.
type Mailer interface {
	SendCaptcha(to, event, captcha string) error
}

const subject = "Your SubIT Screen Management System verification code"

// SMTPMailer delivers mail through an SMTP relay.
type SMTPMailer struct {
	from   string
	dialer *gomail.Dialer
}

// NewSMTP builds a mailer from the SMTP configuration.
func NewSMTP(cfg config.SMTP) *SMTPMailer {
	return &SMTPMailer{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (m *SMTPMailer) SendCaptcha(to, event, captcha string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", fmt.Sprintf("Your verification code for %s is: \n\n%s", event, captcha))

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("mailer: sending captcha to %s: %w", to, err)
	}
	return nil
}

// Capture records sent captchas instead of delivering them. Tests use
// it to complete verification flows without a mail relay.
type Capture struct {
	mu   sync.Mutex
	last map[string]string
}

func NewCapture() *Capture {
	return &Capture{last: make(map[string]string)}
}

func (c *Capture) SendCaptcha(to, event, captcha string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[to] = captcha
	return nil
}

// Last returns the most recent captcha sent to the address.
func (c *Capture) Last(to string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	captcha, ok := c.last[to]
	return captcha, ok
}
