package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"net/url"
	"time"

	"github.com/redmonkez12/authman/internal/config"
	"github.com/redmonkez12/authman/internal/logging"
	"github.com/redmonkez12/authman/templates"
)

const (
	dialTimeout = 10 * time.Second
	sendTimeout = 30 * time.Second
)

type sendFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	smtpHost     string
	smtpPort     string
	smtpUser     string
	smtpPassword string
	fromEmail    string
	baseURL      string
	resetTTL     time.Duration
	resetTmpl    *template.Template
	logLinks     bool
	send         sendFunc
}

// NewService creates the mailer. logLinks allows reset links to be written to
// the log when no SMTP host is configured and must only be set in development.
func NewService(cfg config.EmailConfig, resetTokenTTL time.Duration, logLinks bool) (*Service, error) {
	tmpl, err := template.ParseFS(templates.EmailFS, "email/password_reset.html")
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	return &Service{
		smtpHost:     cfg.SMTPHost,
		smtpPort:     cfg.SMTPPort,
		smtpUser:     cfg.SMTPUser,
		smtpPassword: cfg.SMTPPassword,
		fromEmail:    cfg.SMTPUser,
		baseURL:      cfg.BaseURL,
		resetTTL:     resetTokenTTL,
		resetTmpl:    tmpl,
		logLinks:     logLinks,
		send:         sendMail,
	}, nil
}

// ResetLink is the page where the holder of token picks a new password
func (s *Service) ResetLink(token string) string {
	return fmt.Sprintf("%s/resetpassword/%s", s.baseURL, url.PathEscape(token))
}

// SendPasswordResetEmail sends a password reset link to the user.
// Without an SMTP host nothing is sent; the link is logged in development only.
// This method is designed to be called in a goroutine
func (s *Service) SendPasswordResetEmail(ctx context.Context, toEmail, token string) error {
	logger := logging.GetLoggerFromContext(ctx)

	resetLink := s.ResetLink(token)

	if s.smtpHost == "" {
		if s.logLinks {
			logger.Info("smtp not configured, password reset link not mailed", "email", toEmail, "link", resetLink)
		} else {
			logger.Warn("smtp not configured, password reset email dropped", "email", toEmail)
		}
		return nil
	}

	subject := "Reset your password"
	body, err := s.renderPasswordResetEmailTemplate(resetLink)
	if err != nil {
		logger.Error("failed to render password reset email template", "error", err)
		return fmt.Errorf("render template: %w", err)
	}

	if err := s.sendEmail(ctx, toEmail, subject, body); err != nil {
		logger.Error("failed to send password reset email", "email", toEmail, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	logger.Info("password reset email sent", "email", toEmail)
	return nil
}

func (s *Service) sendEmail(ctx context.Context, to, subject, body string) error {
	auth := smtp.PlainAuth("", s.smtpUser, s.smtpPassword, s.smtpHost)

	// Build message
	msg := []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s\r\n",
		s.fromEmail, to, subject, body,
	))

	addr := fmt.Sprintf("%s:%s", s.smtpHost, s.smtpPort)
	return s.send(ctx, addr, auth, s.fromEmail, []string{to}, msg)
}

// sendMail is smtp.SendMail bounded by ctx and sendTimeout
func sendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("parse address: %w", err)
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("set deadline: %w", err)
	}

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("greeting: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return fmt.Errorf("auth: %w", err)
			}
		}
	}

	if err := c.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to: %w", err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	return c.Quit()
}

func (s *Service) renderPasswordResetEmailTemplate(resetLink string) (string, error) {
	var buf bytes.Buffer
	data := struct {
		ResetLink string
		ExpiresIn string
	}{
		ResetLink: resetLink,
		ExpiresIn: formatTTL(s.resetTTL),
	}

	if err := s.resetTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return buf.String(), nil
}

func formatTTL(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d.Hours()))
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	default:
		return d.String()
	}
}
