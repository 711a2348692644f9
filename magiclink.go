package magiclink

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	// CustomChallenge is the challenge name requested from, and recorded
	// by, the identity pipeline for every magic link round.
	CustomChallenge = "CUSTOM_CHALLENGE"
	// ChallengeMetadata tags each issued challenge.
	ChallengeMetadata = "MAGIC_LINK"
	// DeliveryEmail is the only delivery channel advertised to clients.
	DeliveryEmail = "email"

	// Keys used in the challenge parameter maps.
	ParamDelivery  = "delivery"
	ParamAnswer    = "answer"
	ParamLinkToken = "linkToken"

	// DefaultDeepLinkBase is used when no deep link base is configured.
	DefaultDeepLinkBase = "myapp://magic"
	// DefaultCodeTTL is how long issued codes and link tokens remain valid.
	DefaultCodeTTL = 10 * time.Minute
	// DefaultRetryCeiling is the number of session entries after which an
	// unsuccessful flow is failed.
	DefaultRetryCeiling = 3
)

var (
	ErrNoStore     = errors.New("no code store has been configured")
	ErrNoTransport = errors.New("no transport has been configured")
)

// Config holds the settings shared by the challenge stages. A zero value
// is valid; see DefaultConfig.
type Config struct {
	// DeepLinkBase is either a custom URI (myapp://magic) that receives the
	// link token directly, or an http(s) origin whose consume endpoint
	// relays to the app.
	DeepLinkBase string
	// CodeTTL is applied to both the short code and the link token.
	CodeTTL time.Duration
	// RetryCeiling is the session length at which an unsuccessful flow is
	// failed.
	RetryCeiling int
}

// DefaultConfig returns the configuration used when none is provided.
func DefaultConfig() Config {
	return Config{
		DeepLinkBase: DefaultDeepLinkBase,
		CodeTTL:      DefaultCodeTTL,
		RetryCeiling: DefaultRetryCeiling,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DeepLinkBase == "" {
		c.DeepLinkBase = d.DeepLinkBase
	}
	if c.CodeTTL <= 0 {
		c.CodeTTL = d.CodeTTL
	}
	if c.RetryCeiling <= 0 {
		c.RetryCeiling = d.RetryCeiling
	}
	return c
}

// MagicLink bundles the three challenge stages around one code store and
// transport. Each method is independent: no state is carried between calls
// other than what lives in the store.
type MagicLink struct {
	cfg      Config
	issuer   *Issuer
	verifier *Verifier
}

type settings struct {
	cfg    Config
	logger *zap.Logger
	sink   EventSink
	now    func() time.Time
	codes  TokenGenerator
	links  TokenGenerator
}

// Option configures a MagicLink, Issuer or Verifier.
type Option func(*settings)

// WithConfig sets the deep link base, code TTL and retry ceiling.
func WithConfig(cfg Config) Option {
	return func(o *settings) { o.cfg = cfg }
}

// WithLogger sets the logger used for diagnostics. Codes and tokens are
// never logged.
func WithLogger(l *zap.Logger) Option {
	return func(o *settings) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEventSink sets the destination for audit events.
func WithEventSink(s EventSink) Option {
	return func(o *settings) { o.sink = s }
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *settings) {
		if now != nil {
			o.now = now
		}
	}
}

// WithGenerators overrides the short code and link token generators.
func WithGenerators(codes, links TokenGenerator) Option {
	return func(o *settings) {
		if codes != nil {
			o.codes = codes
		}
		if links != nil {
			o.links = links
		}
	}
}

func buildOptions(opts []Option) settings {
	o := settings{
		cfg:    DefaultConfig(),
		logger: zap.NewNop(),
		sink:   nopSink{},
		now:    time.Now,
		codes:  NumericCodeGenerator{},
		links:  HexTokenGenerator{Bytes: 24},
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.cfg = o.cfg.withDefaults()
	if o.sink == nil {
		o.sink = nopSink{}
	}
	return o
}

// New returns a MagicLink using the given store and transport.
func New(store CodeStore, transport Transport, opts ...Option) *MagicLink {
	o := buildOptions(opts)
	return &MagicLink{
		cfg:      o.cfg,
		issuer:   newIssuer(store, transport, o),
		verifier: newVerifier(store, o),
	}
}

// Config returns the effective configuration.
func (m *MagicLink) Config() Config {
	return m.cfg
}

// Define decides the next step for the pipeline given the session history.
func (m *MagicLink) Define(session []*Attempt) Decision {
	return Define(session, m.cfg.RetryCeiling)
}

// Create issues a new challenge for the user.
func (m *MagicLink) Create(ctx context.Context, req CreateRequest) (*Challenge, error) {
	return m.issuer.Create(ctx, req)
}

// Verify checks the user's answer to the current challenge.
func (m *MagicLink) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	return m.verifier.Verify(ctx, req)
}
