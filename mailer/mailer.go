// Package mailer delivers verification and password reset links.
package mailer

import (
	"context"
	"fmt"
	"time"

	gateway "github.com/goliatone/go-auth-gateway"
	goerrors "github.com/goliatone/go-errors"
	"github.com/wneessen/go-mail"
)

const (
	DefaultFromName = "From The Hart"

	subjectVerify = "Verify your From The Hart account"
	subjectReset  = "Reset your From The Hart password"
)

// Config holds the SMTP settings.
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
	Timeout     time.Duration
}

// Sender is satisfied by *mail.Client.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPDispatcher implements gateway.EmailDispatcher over SMTP.
type SMTPDispatcher struct {
	sender      Sender
	fromName    string
	fromAddress string
	logger      gateway.Logger
}

func NewSMTPDispatcher(cfg Config) (*SMTPDispatcher, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("mailer: smtp host is required")
	}
	if cfg.FromAddress == "" {
		return nil, fmt.Errorf("mailer: from address is required")
	}

	opts := []mail.Option{
		mail.WithTLSPortPolicy(mail.TLSMandatory),
	}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mailer: failed to create smtp client: %w", err)
	}

	return NewDispatcher(client, cfg.FromName, cfg.FromAddress), nil
}

// NewDispatcher builds a dispatcher around an existing sender.
func NewDispatcher(sender Sender, fromName, fromAddress string) *SMTPDispatcher {
	if fromName == "" {
		fromName = DefaultFromName
	}
	return &SMTPDispatcher{
		sender:      sender,
		fromName:    fromName,
		fromAddress: fromAddress,
		logger:      nopLogger{},
	}
}

func (d *SMTPDispatcher) WithLogger(logger gateway.Logger) *SMTPDispatcher {
	if logger != nil {
		d.logger = logger
	}
	return d
}

func (d *SMTPDispatcher) SendVerificationEmail(ctx context.Context, email, link string) error {
	return d.send(ctx, email, subjectVerify, VerificationBody(link))
}

func (d *SMTPDispatcher) SendPasswordResetEmail(ctx context.Context, email, link string) error {
	return d.send(ctx, email, subjectReset, PasswordResetBody(link))
}

func (d *SMTPDispatcher) send(ctx context.Context, to, subject, body string) error {
	msg, err := d.message(to, subject, body)
	if err != nil {
		return err
	}

	if err := d.sender.DialAndSendWithContext(ctx, msg); err != nil {
		d.logger.Error("failed to send %q: %v", subject, err)
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to send email").
			WithMetadata(map[string]any{"subject": subject})
	}

	d.logger.Info("sent %q", subject)
	return nil
}

func (d *SMTPDispatcher) message(to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(d.fromName, d.fromAddress); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "invalid from address")
	}
	if err := msg.To(to); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid recipient address")
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

func VerificationBody(link string) string {
	return fmt.Sprintf(`Welcome to From The Hart!

Please verify your email address by opening this link:

%s

This link will expire in 24 hours.
`, link)
}

func PasswordResetBody(link string) string {
	return fmt.Sprintf(`You requested to reset your password. Open this link to set a new password:

%s

If you didn't request this change, you can ignore this email.
This link will expire in 1 hour.
`, link)
}

// LogDispatcher writes links to the logger instead of sending mail. It is
// meant for local development.
type LogDispatcher struct {
	logger gateway.Logger
}

func NewLogDispatcher(logger gateway.Logger) *LogDispatcher {
	if logger == nil {
		logger = nopLogger{}
	}
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) SendVerificationEmail(_ context.Context, email, link string) error {
	d.logger.Info("verification link for %s: %s", email, link)
	return nil
}

func (d *LogDispatcher) SendPasswordResetEmail(_ context.Context, email, link string) error {
	d.logger.Info("password reset link for %s: %s", email, link)
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

var (
	_ gateway.EmailDispatcher = (*SMTPDispatcher)(nil)
	_ gateway.EmailDispatcher = (*LogDispatcher)(nil)
)
