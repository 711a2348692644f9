/*
Package magiclink implements passwordless sign-in for an identity pipeline's
custom authentication challenge. The user receives an email containing a
deep link and a six-digit code; either can answer the challenge.

Install the library with `go get`:

	$ go get github.com/cardinal-app/magiclink

Create a MagicLink with a code store and a transport. MemStore holds codes
in memory until they expire; LogTransport writes messages to the logger
instead of sending them.

	ml := magiclink.New(magiclink.NewMemStore(), magiclink.LogTransport{})

The pipeline calls three stages. Define decides, from the attempts made so
far, whether to issue tokens, fail, or present another challenge:

	d := ml.Define(session)

Create mints a code and a link token, stores both for the user and sends
them:

	ch, err := ml.Create(ctx, magiclink.CreateRequest{
		Username: username,
		Email:    email,
	})

Verify accepts the current round's code, or any unexpired code or link
token stored for the same user. Each stored value works once:

	res, err := ml.Verify(ctx, magiclink.VerifyRequest{
		Answer:         answer,
		ExpectedAnswer: ch.PrivateParameters[magiclink.ParamAnswer],
		Username:       username,
	})

When the deep link base is an http(s) URL, mount ConsumeHandler at
ConsumePath to bounce emailed links into the app.

Adapters for AWS Cognito triggers live in the cognito package; the pipeline
package provides a self-hosted equivalent.
*/
package magiclink
