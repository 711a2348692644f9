package magiclink

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESAPI is the subset of the SES client used by SESTransport.
type SESAPI interface {
	SendEmail(ctx context.Context, in *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESTransport delivers sign-in messages through Amazon SES.
type SESTransport struct {
	client SESAPI
	from   string
	TTL    time.Duration
}

// NewSESTransport returns a transport sending from the verified address
// from.
func NewSESTransport(client SESAPI, from string) *SESTransport {
	return &SESTransport{client: client, from: from, TTL: DefaultCodeTTL}
}

func (t *SESTransport) Send(ctx context.Context, recipient, linkURL, code string) error {
	msg := ComposeMessage(linkURL, code, t.TTL)
	_, err := t.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(t.from),
		Destination: &types.Destination{
			ToAddresses: []string{recipient},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(msg.Text)},
				Html: &types.Content{Data: aws.String(msg.HTML)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}
