package appengine

import (
	"context"
	"time"

	"github.com/cardinal-app/magiclink"
	"google.golang.org/appengine/mail"
)

// MailTransport sends sign-in messages via the mail service.
type MailTransport struct {
	// Sender must be an address authorised to send for the app.
	Sender string
	TTL    time.Duration
}

// Message builds the mail for recipient.
func (t MailTransport) Message(recipient, linkURL, code string) *mail.Message {
	msg := magiclink.ComposeMessage(linkURL, code, t.TTL)
	return &mail.Message{
		Sender:   t.Sender,
		To:       []string{recipient},
		Subject:  msg.Subject,
		Body:     msg.Text,
		HTMLBody: msg.HTML,
	}
}

// Send sends an email to the specified recipient.
func (t MailTransport) Send(ctx context.Context, recipient, linkURL, code string) error {
	return mail.Send(ctx, t.Message(recipient, linkURL, code))
}
