package mail

import (
	"fmt"
	"log"

	"gopkg.in/gomail.v2"
)

// Mailer delivers one-time codes to users.
type Mailer interface {
	SendOTP(email, code string, validMinutes int) error
}

type smtpMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPMailer returns a Mailer backed by an SMTP server.
func NewSMTPMailer(host string, port int, user, password, from string) Mailer {
	return &smtpMailer{
		dialer: gomail.NewDialer(host, port, user, password),
		from:   from,
	}
}

func (m *smtpMailer) SendOTP(email, code string, validMinutes int) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", "Your one-time login code")

	body := fmt.Sprintf(`
		<h3>One-time login code</h3>
		<p>Your code is: <strong>%s</strong></p>
		<p>It is valid for %d minutes. If you did not request this code, you can ignore this email.</p>
	`, code, validMinutes)
	msg.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send otp email: %w", err)
	}
	return nil
}

type logMailer struct{}

// NewLogMailer returns a Mailer that only logs sends. Used when SMTP is not
// configured; the code itself is never logged.
func NewLogMailer() Mailer {
	return logMailer{}
}

func (logMailer) SendOTP(email, _ string, validMinutes int) error {
	log.Printf("[mail] dev mode: otp for %s suppressed (valid %dm)", maskEmail(email), validMinutes)
	return nil
}

func maskEmail(email string) string {
	if len(email) <= 4 {
		return "****"
	}
	return email[:2] + "****" + email[len(email)-2:]
}
