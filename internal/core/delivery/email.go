package delivery

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/sentinel-ops/sentinel-backend-go/internal/config"
	pkgerrors "github.com/sentinel-ops/sentinel-backend-go/pkg/errors"
)

// EmailChannel delivers alert events over SMTP
type EmailChannel struct {
	cfg config.EmailChannelConfig
}

// NewEmailChannel creates an SMTP email adapter
func NewEmailChannel(cfg config.EmailChannelConfig) *EmailChannel {
	return &EmailChannel{cfg: cfg}
}

// Name returns the channel name
func (c *EmailChannel) Name() string {
	return "email"
}

// Send mails the event to the configured recipients. net/smtp negotiates
// STARTTLS when the server advertises it.
func (c *EmailChannel) Send(ctx context.Context, event *Event) error {
	if len(c.cfg.Recipients) == 0 {
		return fmt.Errorf("%w: email: no recipients configured", pkgerrors.ErrChannelSend)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", c.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(c.cfg.Recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", event.Subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(event.Message)

	addr := fmt.Sprintf("%s:%d", c.cfg.SMTPHost, c.cfg.SMTPPort)

	var auth smtp.Auth
	if c.cfg.Username != "" {
		auth = smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.SMTPHost)
	}

	if err := smtp.SendMail(addr, auth, c.cfg.From, c.cfg.Recipients, []byte(msg.String())); err != nil {
		return fmt.Errorf("%w: email: %v", pkgerrors.ErrChannelSend, err)
	}

	return nil
}
