package magiclink

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CreateRequest identifies who a challenge is issued for.
type CreateRequest struct {
	Username string
	// Email is the delivery address; Username is used when empty.
	Email string
}

// Challenge is the result of one issuance round. PrivateParameters stay
// with the identity pipeline; PublicParameters may be shown to the client.
type Challenge struct {
	PublicParameters  map[string]string
	PrivateParameters map[string]string
	Metadata          string
	// LinkURL is the deep link that was delivered.
	LinkURL string
}

// Issuer mints a short code and a link token per round, stores both bound
// to the user and delivers them.
type Issuer struct {
	store     CodeStore
	transport Transport
	cfg       Config
	codes     TokenGenerator
	links     TokenGenerator
	sink      EventSink
	logger    *zap.Logger
	now       func() time.Time
}

// NewIssuer returns an Issuer writing to store and delivering via transport.
func NewIssuer(store CodeStore, transport Transport, opts ...Option) *Issuer {
	return newIssuer(store, transport, buildOptions(opts))
}

func newIssuer(store CodeStore, transport Transport, o settings) *Issuer {
	return &Issuer{
		store:     store,
		transport: transport,
		cfg:       o.cfg,
		codes:     o.codes,
		links:     o.links,
		sink:      o.sink,
		logger:    o.logger,
		now:       o.now,
	}
}

// Create generates, stores and delivers a fresh challenge. Earlier rounds'
// codes are left untouched and stay valid until they expire.
func (i *Issuer) Create(ctx context.Context, req CreateRequest) (*Challenge, error) {
	if i.store == nil {
		return nil, ErrNoStore
	}
	if i.transport == nil {
		return nil, ErrNoTransport
	}
	recipient := req.Email
	if recipient == "" {
		recipient = req.Username
	}

	code, err := i.codes.Generate(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	token, err := i.links.Generate(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate link token: %w", err)
	}

	// The link token is the preferred path; the short code is for manual
	// entry. Both are bound to the same user.
	if err := i.store.Put(ctx, token, req.Username, i.cfg.CodeTTL); err != nil {
		return nil, fmt.Errorf("store link token: %w", err)
	}
	if err := i.store.Put(ctx, code, req.Username, i.cfg.CodeTTL); err != nil {
		return nil, fmt.Errorf("store code: %w", err)
	}

	link, err := LinkURL(i.cfg.DeepLinkBase, token)
	if err != nil {
		return nil, err
	}
	if err := i.transport.Send(ctx, recipient, link, code); err != nil {
		i.logger.Error("failed to deliver sign-in message",
			zap.String("username", req.Username), zap.Error(err))
		return nil, fmt.Errorf("send sign-in message: %w", err)
	}

	i.logger.Debug("challenge issued", zap.String("username", req.Username))
	emit(ctx, i.sink, i.logger, Event{
		Type:     EventChallengeIssued,
		Username: req.Username,
		Time:     i.now(),
	})

	return &Challenge{
		PublicParameters: map[string]string{ParamDelivery: DeliveryEmail},
		PrivateParameters: map[string]string{
			ParamAnswer:    code,
			ParamLinkToken: token,
		},
		Metadata: ChallengeMetadata,
		LinkURL:  link,
	}, nil
}

func emit(ctx context.Context, sink EventSink, logger *zap.Logger, e Event) {
	if err := sink.Emit(ctx, e); err != nil {
		logger.Warn("failed to emit event", zap.String("type", e.Type), zap.Error(err))
	}
}
