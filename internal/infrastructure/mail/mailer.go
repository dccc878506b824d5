// Package mail delivers plain-text client mails through an agency's own
// SMTP account, or through the platform account when the agency has none.
package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odyssee/backend/internal/domain/tenancy"
	"github.com/odyssee/backend/internal/infrastructure/config"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

const defaultTimeout = 15 * time.Second

// ErrNoSender is returned when neither the account nor the message names a sender
var ErrNoSender = errors.New("smtp: no sender address")

// Account is an SMTP submission account
type Account struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
	UseSSL   bool
	Sender   string
}

// AccountFromAgency converts a decrypted agency mail configuration
func AccountFromAgency(cfg tenancy.MailConfig) Account {
	return Account{
		Host:     cfg.Server,
		Port:     int(cfg.Port),
		Username: cfg.Username,
		Password: cfg.Password,
		UseTLS:   cfg.UseTLS,
		UseSSL:   cfg.UseSSL,
		Sender:   cfg.Sender,
	}
}

// AccountFromPlatform converts the platform fallback settings
func AccountFromPlatform(cfg config.MailConfig) Account {
	return Account{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		UseTLS:   cfg.UseTLS,
		UseSSL:   cfg.UseSSL,
		Sender:   cfg.From,
	}
}

// Message is a plain-text mail
type Message struct {
	From    string // overrides Account.Sender when set
	To      string
	Subject string
	Body    string
}

type deliverFunc func(ctx context.Context, client *gomail.Client, msg *gomail.Msg) error

func dialAndSend(ctx context.Context, client *gomail.Client, msg *gomail.Msg) error {
	return client.DialAndSendWithContext(ctx, msg)
}

// SMTPMailer sends messages with go-mail
type SMTPMailer struct {
	timeout time.Duration
	deliver deliverFunc
	logger  *zap.Logger
}

// NewSMTPMailer creates a mailer; a zero timeout means 15s
func NewSMTPMailer(timeout time.Duration, logger *zap.Logger) *SMTPMailer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &SMTPMailer{
		timeout: timeout,
		deliver: dialAndSend,
		logger:  logger,
	}
}

// Send delivers msg through account
func (m *SMTPMailer) Send(ctx context.Context, account Account, msg Message) error {
	mail, err := buildMessage(account, msg)
	if err != nil {
		return err
	}

	client, err := gomail.NewClient(account.Host, m.clientOptions(account)...)
	if err != nil {
		return fmt.Errorf("smtp: configure client for %s: %w", account.Host, err)
	}

	if err := m.deliver(ctx, client, mail); err != nil {
		m.logger.Error("Failed to send mail",
			zap.String("smtp_host", account.Host),
			zap.Int("smtp_port", account.Port),
			zap.Error(err))
		return fmt.Errorf("smtp: send via %s: %w", account.Host, err)
	}

	m.logger.Info("Mail sent",
		zap.String("smtp_host", account.Host),
		zap.String("subject", msg.Subject))
	return nil
}

func (m *SMTPMailer) clientOptions(account Account) []gomail.Option {
	opts := []gomail.Option{
		gomail.WithTimeout(m.timeout),
	}
	if account.Port > 0 {
		opts = append(opts, gomail.WithPort(account.Port))
	}
	if account.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(account.Username),
			gomail.WithPassword(account.Password),
		)
	}
	switch {
	case account.UseSSL:
		opts = append(opts, gomail.WithSSL())
	case account.UseTLS:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	return opts
}

func buildMessage(account Account, msg Message) (*gomail.Msg, error) {
	from := msg.From
	if from == "" {
		from = account.Sender
	}
	if from == "" {
		from = account.Username
	}
	if from == "" {
		return nil, ErrNoSender
	}

	mail := gomail.NewMsg()
	if err := mail.From(from); err != nil {
		return nil, fmt.Errorf("smtp: invalid sender %q: %w", from, err)
	}
	if err := mail.To(msg.To); err != nil {
		return nil, fmt.Errorf("smtp: invalid recipient %q: %w", msg.To, err)
	}
	mail.Subject(msg.Subject)
	mail.SetBodyString(gomail.TypeTextPlain, msg.Body)
	return mail, nil
}
