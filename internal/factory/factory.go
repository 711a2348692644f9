// Package factory builds the code store, transport and event sink selected
// by configuration and owns their lifecycle.
package factory

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/cardinal-app/magiclink"
	"github.com/cardinal-app/magiclink/audit"
	"github.com/cardinal-app/magiclink/internal/config"
	"github.com/cardinal-app/magiclink/pipeline"
)

const purgeInterval = time.Minute

// Factory manages the lifecycle of all application dependencies.
type Factory struct {
	config *config.Config
	logger *zap.Logger

	store     magiclink.CodeStore
	transport magiclink.Transport
	sink      magiclink.EventSink
	redis     redis.UniversalClient

	awsOnce sync.Once
	awsCfg  aws.Config
	awsErr  error

	closers   []func(context.Context) error
	closeOnce sync.Once
}

// New connects to the configured backends. On error, anything already
// opened is closed.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Factory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Factory{config: cfg, logger: logger}

	var err error
	if f.store, err = f.newStore(ctx); err != nil {
		f.Close(ctx)
		return nil, fmt.Errorf("code store: %w", err)
	}
	if f.transport, err = f.newTransport(ctx); err != nil {
		f.Close(ctx)
		return nil, fmt.Errorf("transport: %w", err)
	}
	f.sink = f.newSink()

	logger.Info("factory initialized",
		zap.String("environment", cfg.Env),
		zap.String("code_store", cfg.CodeStore),
		zap.String("transport", cfg.Transport),
		zap.Bool("audit", len(cfg.KafkaBrokersList()) > 0),
	)
	return f, nil
}

func (f *Factory) Config() *config.Config { return f.config }
func (f *Factory) Logger() *zap.Logger    { return f.logger }

// MagicLink returns the challenge stages wired to the configured backends.
func (f *Factory) MagicLink() *magiclink.MagicLink {
	return magiclink.New(f.store, f.transport,
		magiclink.WithConfig(magiclink.Config{
			DeepLinkBase: f.config.DeepLinkBase(),
			CodeTTL:      f.config.CodeTTLDuration(),
		}),
		magiclink.WithLogger(f.logger.Named("magiclink")),
		magiclink.WithEventSink(f.sink),
	)
}

// Pipeline returns the local identity pipeline. Its directory holds the
// DEV_USERS accounts.
func (f *Factory) Pipeline(ml *magiclink.MagicLink) *pipeline.Pipeline {
	dir := pipeline.NewMemDirectory()
	for _, email := range f.config.DevUsersList() {
		dir.Add(pipeline.User{
			Username: email,
			Attributes: map[string]string{
				magiclink.AttrEmail:         email,
				magiclink.AttrEmailVerified: "true",
			},
		})
	}
	flows := pipeline.NewCookieFlowStore(
		f.flowBackend(),
		[]byte(f.config.SessionAuthKey),
		[]byte(f.config.SessionEncryptionKey),
		15*time.Minute,
	)
	signer := pipeline.NewTokenSigner([]byte(f.config.TokenSigningKey), f.config.TokenIssuer, time.Hour)
	return pipeline.New(ml, dir, flows, signer, f.logger.Named("pipeline"))
}

// flowBackend shares Redis with the code store when there is one, so flows
// survive across replicas.
func (f *Factory) flowBackend() pipeline.FlowBackend {
	if f.redis != nil {
		return pipeline.NewRedisFlowBackend(f.redis)
	}
	return pipeline.NewMemFlowBackend()
}

// Close releases all backends. Safe to call more than once.
func (f *Factory) Close(ctx context.Context) error {
	var errs []error
	f.closeOnce.Do(func() {
		for i := len(f.closers) - 1; i >= 0; i-- {
			if err := f.closers[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

func (f *Factory) onClose(fn func(context.Context) error) {
	f.closers = append(f.closers, fn)
}

func (f *Factory) aws(ctx context.Context) (aws.Config, error) {
	f.awsOnce.Do(func() {
		var opts []func(*awsconfig.LoadOptions) error
		if r := f.config.AWSRegionName(); r != "" {
			opts = append(opts, awsconfig.WithRegion(r))
		}
		f.awsCfg, f.awsErr = awsconfig.LoadDefaultConfig(ctx, opts...)
	})
	return f.awsCfg, f.awsErr
}

func (f *Factory) newStore(ctx context.Context) (magiclink.CodeStore, error) {
	switch f.config.CodeStore {
	case config.StoreRedis:
		opt, err := redis.ParseURL(f.config.RedisURL)
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(opt)
		f.onClose(func(context.Context) error { return client.Close() })
		f.redis = client
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return magiclink.NewRedisStore(client), nil

	case config.StoreDynamoDB:
		awsCfg, err := f.aws(ctx)
		if err != nil {
			return nil, err
		}
		return magiclink.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), f.config.TableName), nil

	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, f.config.DatabaseURL)
		if err != nil {
			return nil, err
		}
		f.onClose(func(context.Context) error { pool.Close(); return nil })
		if _, err := pool.Exec(ctx, magiclink.PostgresSchema); err != nil {
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		store := magiclink.NewPostgresStore(pool)
		f.startPurger(store)
		return store, nil

	case config.StoreMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(f.config.MongoURI))
		if err != nil {
			return nil, err
		}
		f.onClose(client.Disconnect)
		store := magiclink.NewMongoStore(client.Database(f.config.MongoDatabase).Collection(magiclink.DefaultMongoCollection))
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		return store, nil

	case config.StoreMemory, "":
		store := magiclink.NewMemStore()
		f.onClose(func(context.Context) error { store.Release(); return nil })
		return store, nil
	}
	return nil, fmt.Errorf("unknown code store %q", f.config.CodeStore)
}

// startPurger removes expired Postgres rows in the background until Close.
func (f *Factory) startPurger(store *magiclink.PostgresStore) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(purgeInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if n, err := store.Purge(ctx); err != nil {
					f.logger.Warn("purge expired codes", zap.Error(err))
				} else if n > 0 {
					f.logger.Debug("purged expired codes", zap.Int64("count", n))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	f.onClose(func(context.Context) error {
		cancel()
		<-done
		return nil
	})
}

func (f *Factory) newTransport(ctx context.Context) (magiclink.Transport, error) {
	ttl := f.config.CodeTTLDuration()
	switch f.config.Transport {
	case config.TransportSES:
		awsCfg, err := f.aws(ctx)
		if err != nil {
			return nil, err
		}
		t := magiclink.NewSESTransport(ses.NewFromConfig(awsCfg), f.config.FromEmail)
		t.TTL = ttl
		return t, nil

	case config.TransportSMTP:
		host, port, err := net.SplitHostPort(f.config.SMTPAddr)
		if err != nil {
			return nil, err
		}
		var auth smtp.Auth
		if f.config.SMTPUsername != "" {
			auth = smtp.PlainAuth("", f.config.SMTPUsername, f.config.SMTPPassword, host)
		}
		t := magiclink.NewSMTPTransport(f.config.SMTPAddr, f.config.FromEmail, auth)
		t.UseSSL = port == "465"
		t.TTL = ttl
		return t, nil

	case config.TransportLog, "":
		return magiclink.LogTransport{Logger: f.logger.Named("transport"), TTL: ttl}, nil
	}
	return nil, fmt.Errorf("unknown transport %q", f.config.Transport)
}

func (f *Factory) newSink() magiclink.EventSink {
	brokers := f.config.KafkaBrokersList()
	if len(brokers) == 0 {
		return nil
	}
	sink := audit.NewKafkaSink(brokers, f.config.AuditKafkaTopic, f.logger.Named("audit"))
	f.onClose(func(context.Context) error { return sink.Close() })
	return sink
}
