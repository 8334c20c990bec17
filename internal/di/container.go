package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/psicolfis/checkout-api/internal/catalog"
	"github.com/psicolfis/checkout-api/internal/handlers"
	"github.com/psicolfis/checkout-api/internal/payments"
	"github.com/psicolfis/checkout-api/internal/platform/config"
	"github.com/psicolfis/checkout-api/internal/platform/events"
	pfirestore "github.com/psicolfis/checkout-api/internal/platform/firestore"
	"github.com/psicolfis/checkout-api/internal/platform/idempotency"
	"github.com/psicolfis/checkout-api/internal/platform/observability"
	ppostgres "github.com/psicolfis/checkout-api/internal/platform/postgres"
	"github.com/psicolfis/checkout-api/internal/platform/ratelimit"
	"github.com/psicolfis/checkout-api/internal/platform/redisx"
	"github.com/psicolfis/checkout-api/internal/repositories"
	boltrepo "github.com/psicolfis/checkout-api/internal/repositories/bolt"
	firestorerepo "github.com/psicolfis/checkout-api/internal/repositories/firestore"
	pgrepo "github.com/psicolfis/checkout-api/internal/repositories/postgres"
	"github.com/psicolfis/checkout-api/internal/services"
)

const (
	storageCheckTimeout = 1500 * time.Millisecond
	redisCheckTimeout   = time.Second
	eventsCheckTimeout  = 2 * time.Second
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Checkout services.CheckoutService
	Status   services.StatusService
	Webhook  services.WebhookService
	System   services.SystemService
}

// Container wires storage, the payment provider, event publishing and services for runtime use.
type Container struct {
	Config       config.Config
	Logger       *zap.Logger
	Catalog      *catalog.Catalog
	Transactions repositories.TransactionRepository
	Redis        *redis.Client
	Publisher    services.TransactionEventPublisher
	Services     Services

	build   services.BuildInfo
	events  observability.EventLogger
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

type containerOptions struct {
	logger       *zap.Logger
	build        services.BuildInfo
	clock        func() time.Time
	transactions repositories.TransactionRepository
	stripe       *payments.StripeProvider
}

// Option customises container construction.
type Option func(*containerOptions)

// WithLogger sets the base logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithBuildInfo sets the metadata reported by health endpoints.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *containerOptions) {
		o.build = build
	}
}

// WithClock overrides the time source for services.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		o.clock = clock
	}
}

// WithTransactionRepository bypasses the configured storage driver.
func WithTransactionRepository(repo repositories.TransactionRepository) Option {
	return func(o *containerOptions) {
		o.transactions = repo
	}
}

// WithStripeProvider bypasses construction of the Stripe client.
func WithStripeProvider(provider *payments.StripeProvider) Option {
	return func(o *containerOptions) {
		o.stripe = provider
	}
}

// NewContainer constructs the runtime dependencies described by cfg. On error every
// resource opened so far is released.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (_ *Container, err error) {
	options := containerOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.logger == nil {
		options.logger = zap.NewNop()
	}
	if options.clock == nil {
		options.clock = time.Now
	}
	if strings.TrimSpace(options.build.Environment) == "" {
		options.build.Environment = cfg.Environment
	}
	if options.build.StartedAt.IsZero() {
		options.build.StartedAt = options.clock().UTC()
	}

	c := &Container{
		Config: cfg,
		Logger: options.logger,
		build:  options.build,
		events: observability.NewEventLogger(options.logger.Named("services")),
	}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
		}
	}()

	c.Catalog = catalog.New(catalog.WithProductRefs(cfg.Checkout.ProductRefs))

	if options.transactions != nil {
		c.Transactions = options.transactions
	} else if c.Transactions, err = openTransactions(ctx, cfg.Storage); err != nil {
		return nil, err
	}
	c.addCloser("storage", c.Transactions.Close)

	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		client, redisErr := redisx.New(ctx, redisx.Settings{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if redisErr != nil {
			return nil, fmt.Errorf("connect redis: %w", redisErr)
		}
		c.Redis = client
		c.addCloser("redis", client.Close)
	}

	checks := []repositories.DependencyCheck{{
		Name:    "storage",
		Timeout: storageCheckTimeout,
		Check:   c.Transactions.Ping,
	}}
	if c.Redis != nil {
		client := c.Redis
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: redisCheckTimeout,
			Check: func(ctx context.Context) error {
				return redisx.Ping(ctx, client)
			},
		})
	}

	publisher, publisherCheck, err := c.openPublisher(ctx, cfg.Events)
	if err != nil {
		return nil, err
	}
	if publisher != nil {
		c.Publisher = publisher
	}
	if publisherCheck != nil {
		checks = append(checks, *publisherCheck)
	}

	stripeProvider := options.stripe
	if stripeProvider == nil {
		stripeProvider, err = payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:    cfg.PSP.StripeAPIKey,
			AccountID: cfg.PSP.StripeAccountID,
			Timeout:   cfg.PSP.StripeTimeout,
			Logger:    payments.StripeLogger(c.events),
			Clock:     options.clock,
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe provider: %w", err)
		}
	}

	c.Services, err = c.buildServices(stripeProvider, checks, options.clock)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func openTransactions(ctx context.Context, storage config.StorageConfig) (repositories.TransactionRepository, error) {
	switch storage.Driver {
	case config.DriverFirestore:
		provider := pfirestore.NewProvider(pfirestore.Settings{
			ProjectID:    storage.Firestore.ProjectID,
			EmulatorHost: storage.Firestore.EmulatorHost,
		})
		repo, err := firestorerepo.NewTransactionRepository(provider, storage.Firestore.Collection)
		if err != nil {
			_ = provider.Close()
			return nil, fmt.Errorf("build firestore repository: %w", err)
		}
		return repo, nil
	case config.DriverPostgres:
		pool, err := ppostgres.Connect(ctx, ppostgres.Settings{
			DSN:      storage.Postgres.DSN,
			MaxConns: int32(storage.Postgres.MaxConns),
		})
		if err != nil {
			return nil, err
		}
		repo, err := pgrepo.NewTransactionRepository(pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("build postgres repository: %w", err)
		}
		return repo, nil
	case config.DriverBolt:
		repo, err := boltrepo.Open(storage.Bolt.Path)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", storage.Driver)
	}
}

func (c *Container) openPublisher(ctx context.Context, cfg config.EventsConfig) (services.TransactionEventPublisher, *repositories.DependencyCheck, error) {
	switch cfg.Backend {
	case config.EventsBackendNone:
		return nil, nil, nil
	case config.EventsBackendPubSub:
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("connect pubsub: %w", err)
		}
		c.addCloser("pubsub", client.Close)
		topic := client.Topic(cfg.PubSub.Topic)
		publisher, err := events.NewPubSubPublisher(topic)
		if err != nil {
			return nil, nil, err
		}
		c.addCloser("pubsub topic", publisher.Close)
		check := &repositories.DependencyCheck{
			Name:     "pubsub",
			Timeout:  eventsCheckTimeout,
			Optional: true,
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s not found", topic.ID())
				}
				return nil
			},
		}
		return publisher, check, nil
	case config.EventsBackendKafka:
		publisher, err := events.NewKafkaPublisher(events.KafkaSettings{
			Brokers:     cfg.Kafka.Brokers,
			Topic:       cfg.Kafka.Topic,
			ErrorLogger: observability.NewPrintfAdapter(c.Logger.Named("kafka"), zapcore.ErrorLevel),
		})
		if err != nil {
			return nil, nil, err
		}
		c.addCloser("kafka", publisher.Close)
		return publisher, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported events backend %q", cfg.Backend)
	}
}

func (c *Container) buildServices(stripeProvider *payments.StripeProvider, checks []repositories.DependencyCheck, clock func() time.Time) (Services, error) {
	logger := services.EventLogger(c.events)

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Catalog:      c.Catalog,
		Payments:     stripeProvider,
		Transactions: c.Transactions,
		SuccessPath:  c.Config.Checkout.SuccessPath,
		CancelPath:   c.Config.Checkout.CancelPath,
		SourceTag:    c.Config.Checkout.SourceTag,
		Locale:       c.Config.Checkout.Locale,
		Clock:        clock,
		Logger:       logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}

	statusSvc, err := services.NewStatusService(services.StatusServiceDeps{
		Payments:     stripeProvider,
		Transactions: c.Transactions,
		Publisher:    c.Publisher,
		Clock:        clock,
		Logger:       logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build status service: %w", err)
	}

	webhookSvc, err := services.NewWebhookService(services.WebhookServiceDeps{
		Verifier:     payments.NewWebhookVerifier(c.Config.PSP.StripeWebhookSecret, 0),
		Transactions: c.Transactions,
		Publisher:    c.Publisher,
		Clock:        clock,
		Logger:       logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build webhook service: %w", err)
	}

	healthRepo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return Services{}, fmt.Errorf("build health repository: %w", err)
	}
	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Clock:            clock,
		Build:            c.build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}

	return Services{
		Checkout: checkoutSvc,
		Status:   statusSvc,
		Webhook:  webhookSvc,
		System:   systemSvc,
	}, nil
}

// Router assembles the HTTP handler tree with observability, CORS, rate limiting and idempotency.
func (c *Container) Router() http.Handler {
	cfg := c.Config
	traceProject := strings.TrimSpace(cfg.Storage.Firestore.ProjectID)
	httpLogger := c.Logger.Named("http")

	sessionGuards := []func(http.Handler) http.Handler{
		ratelimit.Middleware(c.limiter("checkout", cfg.RateLimits.CheckoutPerMinute), ratelimit.Logger(c.events)),
		idempotency.Middleware(c.idempotencyStore(),
			idempotency.WithHeader(cfg.Idempotency.Header),
			idempotency.WithTTL(cfg.Idempotency.TTL),
			idempotency.WithReservationTTL(redisx.TTLReservation),
			idempotency.WithMethods(http.MethodPost),
			idempotency.WithMaxBodyBytes(handlers.MaxCheckoutRequestBody),
			idempotency.WithLogger(idempotency.Logger(c.events)),
		),
	}

	checkoutHandlers := handlers.NewCheckoutHandlers(c.Services.Checkout, c.Services.Status,
		handlers.WithSessionMiddlewares(sessionGuards...),
	)
	webhookHandlers := handlers.NewStripeWebhookHandlers(c.Services.Webhook)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(c.build),
		handlers.WithHealthSystemService(c.Services.System),
	)

	return handlers.NewRouter(
		handlers.WithBasePath(cfg.Server.BasePath),
		handlers.WithRequestTimeout(cfg.Server.RequestTimeout),
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(httpLogger),
			observability.TraceMiddleware(traceProject),
			observability.RecoveryMiddleware(httpLogger),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithCORS(cfg.CORS.AllowedOrigins, time.Duration(cfg.CORS.MaxAge)*time.Second, cfg.Idempotency.Header),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithWebhookMiddlewares(
			ratelimit.Middleware(c.limiter("webhook", cfg.RateLimits.WebhookPerMinute), ratelimit.Logger(c.events)),
		),
	)
}

// limiter returns a per-client limiter for bucket, or nil when perMinute disables it.
func (c *Container) limiter(bucket string, perMinute int) ratelimit.Limiter {
	if perMinute <= 0 {
		return nil
	}
	if c.Redis != nil {
		limiter, err := ratelimit.NewRedisLimiter(c.Redis, bucket, perMinute, time.Minute, nil)
		if err == nil {
			return limiter
		}
		c.Logger.Warn("redis rate limiter unavailable; using in-memory limiter", zap.String("bucket", bucket), zap.Error(err))
	}
	return ratelimit.NewMemoryLimiter(perMinute, time.Minute, nil)
}

func (c *Container) idempotencyStore() idempotency.Store {
	if c.Redis != nil {
		store, err := idempotency.NewRedisStore(c.Redis, "checkout")
		if err == nil {
			return store
		}
		c.Logger.Warn("redis idempotency store unavailable; using in-memory store", zap.Error(err))
	}
	return idempotency.NewMemoryStore()
}

func (c *Container) addCloser(name string, fn func() error) {
	if fn == nil {
		return
	}
	c.closers = append(c.closers, namedCloser{name: name, close: fn})
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		closer := c.closers[i]
		if err := closer.close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", closer.name, err))
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
