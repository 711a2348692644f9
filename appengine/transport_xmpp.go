package appengine

import (
	"context"
	"time"

	"github.com/cardinal-app/magiclink"
	"google.golang.org/appengine/xmpp"
)

// XMPPTransport sends the plain text sign-in message via the XMPP service.
type XMPPTransport struct {
	Sender string
	TTL    time.Duration
}

// Message builds the chat message for recipient.
func (t XMPPTransport) Message(recipient, linkURL, code string) *xmpp.Message {
	return &xmpp.Message{
		Sender: t.Sender,
		To:     []string{recipient},
		Body:   magiclink.ComposeMessage(linkURL, code, t.TTL).Text,
	}
}

// Send sends an XMPP message to the specified recipient.
func (t XMPPTransport) Send(ctx context.Context, recipient, linkURL, code string) error {
	return t.Message(recipient, linkURL, code).Send(ctx)
}
