// Package email sends transactional mail through Postmark, or writes it to
// disk in development.
package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/trevia/pkg/validator"
)

var (
	ErrFailedToSendEmail = errors.New("email: failed to send")
	ErrInvalidConfig     = errors.New("email: invalid config")
	ErrInvalidMessage    = errors.New("email: invalid message")
)

// Sender delivers a single rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a rendered email.
type Message struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"-"`
	Tag      string `json:"tag,omitempty"`
}

// Validate checks the recipient and that subject and body are set.
func (m Message) Validate() error {
	if err := validator.Apply(
		validator.ValidEmail("to", m.To),
		validator.Required("subject", m.Subject),
		validator.Required("body_html", m.BodyHTML),
	); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return nil
}

// Config selects and configures the sender. Postmark is used when the server
// token is set.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"no-reply@trevia.local"`
	SupportEmail         string `env:"SUPPORT_EMAIL" envDefault:"support@trevia.local"`
	DevOutputDir         string `env:"EMAIL_DEV_DIR" envDefault:"./tmp/emails"`
}

// New returns a Postmark sender when configured, otherwise a DevSender.
func New(cfg Config) (Sender, error) {
	if cfg.PostmarkServerToken == "" {
		return NewDevSender(cfg.DevOutputDir), nil
	}
	return NewPostmarkSender(cfg)
}
