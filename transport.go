package magiclink

import (
	"context"
	"fmt"
	"html"
	"time"

	"go.uber.org/zap"
)

// Transport represents a mechanism that delivers a sign-in link and its
// matching short code to a recipient.
type Transport interface {
	// Send delivers linkURL and code to recipient, which is usually an
	// email address. A returned error means the user will not receive
	// the challenge.
	Send(ctx context.Context, recipient, linkURL, code string) error
}

// Message is the rendered content of a sign-in notification.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

// ComposeMessage renders the standard sign-in message.
func ComposeMessage(linkURL, code string, ttl time.Duration) Message {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	validity := fmt.Sprintf("valid for %d minutes", int(ttl/time.Minute))
	link := html.EscapeString(linkURL)
	return Message{
		Subject: "Your sign-in link",
		Text: fmt.Sprintf("Click to sign in: %s\n\nOr enter this code in the app: %s (%s).",
			linkURL, code, validity),
		HTML: fmt.Sprintf(`<p>Click to sign in:</p><p><a href="%s">%s</a></p><p>Or enter this code in the app: <b>%s</b> (%s).</p>`,
			link, link, html.EscapeString(code), validity),
	}
}

// LogTransport is intended for development; it writes the message to the
// logger instead of delivering it.
type LogTransport struct {
	Logger *zap.Logger
	TTL    time.Duration
}

func (lt LogTransport) Send(ctx context.Context, recipient, linkURL, code string) error {
	l := lt.Logger
	if l == nil {
		l = zap.L()
	}
	msg := ComposeMessage(linkURL, code, lt.TTL)
	l.Info("sign-in message",
		zap.String("recipient", recipient),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Text),
	)
	return nil
}
