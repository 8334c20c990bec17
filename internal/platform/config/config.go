package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"
)

const (
	defaultEnvFile            = ".env"
	defaultPort               = "8080"
	defaultBasePath           = "/api"
	defaultReadTimeout        = 15 * time.Second
	defaultWriteTimeout       = 30 * time.Second
	defaultIdleTimeout        = 120 * time.Second
	defaultRequestTimeout     = 30 * time.Second
	defaultEnvironment        = "local"
	defaultStripeTimeout      = 10 * time.Second
	defaultSuccessPath        = "/gracias?session_id={CHECKOUT_SESSION_ID}"
	defaultCancelPath         = "/cancelado"
	defaultSourceTag          = "psicolfis-web"
	defaultLocale             = "es"
	defaultCORSOrigin         = "https://psicolfis.net"
	defaultCORSMaxAge         = 300
	defaultStorageDriver      = DriverFirestore
	defaultCollection         = "transactions"
	defaultPostgresMaxConns   = 8
	defaultBoltPath           = "data/checkout.db"
	defaultEventsTopic        = "transaction-events"
	defaultCheckoutPerMinute  = 30
	defaultWebhookPerMinute   = 600
	defaultIdempotencyHeader  = "Idempotency-Key"
	defaultIdempotencyTTL     = 24 * time.Hour
	defaultSecretFallbackFile = ".secrets.local"
)

// Storage drivers accepted by API_STORAGE_DRIVER.
const (
	DriverFirestore = "firestore"
	DriverPostgres  = "postgres"
	DriverBolt      = "bolt"
)

// Event backends accepted by API_EVENTS_BACKEND. An empty value disables publishing.
const (
	EventsBackendNone   = ""
	EventsBackendPubSub = "pubsub"
	EventsBackendKafka  = "kafka"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	PSP         PSPConfig
	Checkout    CheckoutConfig
	CORS        CORSConfig
	Storage     StorageConfig
	Redis       RedisConfig
	Events      EventsConfig
	RateLimits  RateLimitConfig
	Idempotency IdempotencyConfig
	Secrets     SecretsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port           string
	BasePath       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// PSPConfig collects the Stripe credentials.
type PSPConfig struct {
	StripeAPIKey        string
	StripeWebhookSecret string
	StripeAccountID     string
	StripeTimeout       time.Duration
}

// CheckoutConfig shapes the hosted checkout sessions.
type CheckoutConfig struct {
	SuccessPath string
	CancelPath  string
	SourceTag   string
	Locale      string
	ProductRefs map[string]string
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string
	MaxAge         int
}

// StorageConfig selects and configures the transaction store.
type StorageConfig struct {
	Driver    string
	Firestore FirestoreConfig
	Postgres  PostgresConfig
	Bolt      BoltConfig
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	Collection   string
}

// PostgresConfig stores pool parameters.
type PostgresConfig struct {
	DSN      string
	MaxConns int
}

// BoltConfig points at the embedded database file.
type BoltConfig struct {
	Path string
}

// RedisConfig is optional; an empty Addr selects in-memory limiters and stores.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// EventsConfig selects where transaction status changes are published.
type EventsConfig struct {
	Backend string
	PubSub  PubSubConfig
	Kafka   KafkaConfig
}

// PubSubConfig targets a Cloud Pub/Sub topic.
type PubSubConfig struct {
	ProjectID string
	Topic     string
}

// KafkaConfig targets a Kafka topic.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	CheckoutPerMinute int
	WebhookPerMinute  int
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
}

// SecretsConfig configures the Secret Manager fetcher.
type SecretsConfig struct {
	DefaultProjectID string
	FallbackFile     string
	CredentialsFile  string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
type MissingSecretsError struct {
	secrets []missingSecret
}

type missingSecret struct {
	name     string
	redacted string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.secrets) == 0 {
		return "missing required secrets"
	}
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns a copy of the redacted secret identifiers.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.redacted)
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.name)
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// EnvironmentValues returns the effective key/value environment map after applying the same precedence
// rules as Load (dotenv < OS env < explicit env map). Callers use it to initialise the secret fetcher
// before invoking Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	for key, value := range dotEnvValues {
		values[key] = value
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			key = strings.TrimSpace(key)
			if !ok || key == "" {
				continue
			}
			values[key] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory.
// Identifiers match the config field names recorded by the loader (e.g. "PSP.StripeAPIKey").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnvValues[key]; ok {
			return value, true
		}
		return "", false
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "API_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:           stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			BasePath:       normaliseBasePath(stringWithDefault(lookup, "API_SERVER_BASE_PATH", defaultBasePath)),
			ReadTimeout:    durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:   durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:    durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout: durationWithDefault(lookup, "API_SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
		},
		PSP: PSPConfig{
			StripeAPIKey:        stringWithDefault(lookup, "API_PSP_STRIPE_API_KEY", ""),
			StripeWebhookSecret: stringWithDefault(lookup, "API_PSP_STRIPE_WEBHOOK_SECRET", ""),
			StripeAccountID:     stringWithDefault(lookup, "API_PSP_STRIPE_ACCOUNT_ID", ""),
			StripeTimeout:       durationWithDefault(lookup, "API_PSP_STRIPE_TIMEOUT", defaultStripeTimeout),
		},
		Checkout: CheckoutConfig{
			SuccessPath: stringWithDefault(lookup, "API_CHECKOUT_SUCCESS_PATH", defaultSuccessPath),
			CancelPath:  stringWithDefault(lookup, "API_CHECKOUT_CANCEL_PATH", defaultCancelPath),
			SourceTag:   stringWithDefault(lookup, "API_CHECKOUT_SOURCE_TAG", defaultSourceTag),
			Locale:      stringWithDefault(lookup, "API_CHECKOUT_LOCALE", defaultLocale),
			ProductRefs: mapWithDefault(lookup, "API_CHECKOUT_PRODUCT_REFS"),
		},
		CORS: CORSConfig{
			AllowedOrigins: csvWithDefault(lookup, "API_CORS_ALLOWED_ORIGINS", []string{defaultCORSOrigin}),
			MaxAge:         intWithDefault(lookup, "API_CORS_MAX_AGE", defaultCORSMaxAge),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(stringWithDefault(lookup, "API_STORAGE_DRIVER", defaultStorageDriver)),
			Firestore: FirestoreConfig{
				ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
				EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
				Collection:   stringWithDefault(lookup, "API_FIRESTORE_COLLECTION", defaultCollection),
			},
			Postgres: PostgresConfig{
				DSN:      stringWithDefault(lookup, "API_POSTGRES_DSN", ""),
				MaxConns: intWithDefault(lookup, "API_POSTGRES_MAX_CONNS", defaultPostgresMaxConns),
			},
			Bolt: BoltConfig{
				Path: stringWithDefault(lookup, "API_BOLT_PATH", defaultBoltPath),
			},
		},
		Redis: RedisConfig{
			Addr:     stringWithDefault(lookup, "API_REDIS_ADDR", ""),
			Password: stringWithDefault(lookup, "API_REDIS_PASSWORD", ""),
			DB:       intWithDefault(lookup, "API_REDIS_DB", 0),
		},
		Events: EventsConfig{
			Backend: strings.ToLower(stringWithDefault(lookup, "API_EVENTS_BACKEND", EventsBackendNone)),
			PubSub: PubSubConfig{
				ProjectID: stringWithDefault(lookup, "API_EVENTS_PUBSUB_PROJECT_ID", ""),
				Topic:     stringWithDefault(lookup, "API_EVENTS_PUBSUB_TOPIC", defaultEventsTopic),
			},
			Kafka: KafkaConfig{
				Brokers: csvWithDefault(lookup, "API_EVENTS_KAFKA_BROKERS", nil),
				Topic:   stringWithDefault(lookup, "API_EVENTS_KAFKA_TOPIC", defaultEventsTopic),
			},
		},
		RateLimits: RateLimitConfig{
			CheckoutPerMinute: intWithDefault(lookup, "API_RATELIMIT_CHECKOUT_PER_MIN", defaultCheckoutPerMinute),
			WebhookPerMinute:  intWithDefault(lookup, "API_RATELIMIT_WEBHOOK_PER_MIN", defaultWebhookPerMinute),
		},
		Idempotency: IdempotencyConfig{
			Header: stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:    durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
		Secrets: SecretsConfig{
			DefaultProjectID: stringWithDefault(lookup, "API_SECRET_DEFAULT_PROJECT_ID", ""),
			FallbackFile:     stringWithDefault(lookup, "API_SECRET_FALLBACK_FILE", defaultSecretFallbackFile),
			CredentialsFile:  stringWithDefault(lookup, "API_SECRET_CREDENTIALS_FILE", ""),
		},
	}

	// Pub/Sub and Secret Manager default to the Firestore project.
	if cfg.Events.PubSub.ProjectID == "" {
		cfg.Events.PubSub.ProjectID = cfg.Storage.Firestore.ProjectID
	}
	if cfg.Secrets.DefaultProjectID == "" {
		cfg.Secrets.DefaultProjectID = cfg.Storage.Firestore.ProjectID
	}

	resolvedSecrets := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"PSP.StripeAPIKey", &cfg.PSP.StripeAPIKey},
		{"PSP.StripeWebhookSecret", &cfg.PSP.StripeWebhookSecret},
		{"Storage.Postgres.DSN", &cfg.Storage.Postgres.DSN},
		{"Redis.Password", &cfg.Redis.Password},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = resolved
		resolvedSecrets[target.name] = strings.TrimSpace(resolved)
	}

	if locale, ok := canonicalLocale(cfg.Checkout.Locale); ok {
		cfg.Checkout.Locale = locale
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolvedSecrets); missing != nil {
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port <= 0 || port > 65535 {
		missing = append(missing, "Server.Port")
	}
	if !strings.HasPrefix(cfg.Server.BasePath, "/") {
		missing = append(missing, "Server.BasePath")
	}
	if cfg.PSP.StripeTimeout <= 0 {
		missing = append(missing, "PSP.StripeTimeout")
	}
	if !strings.HasPrefix(cfg.Checkout.SuccessPath, "/") {
		missing = append(missing, "Checkout.SuccessPath")
	}
	if !strings.HasPrefix(cfg.Checkout.CancelPath, "/") {
		missing = append(missing, "Checkout.CancelPath")
	}
	if _, ok := canonicalLocale(cfg.Checkout.Locale); !ok {
		missing = append(missing, "Checkout.Locale")
	}
	for _, origin := range cfg.CORS.AllowedOrigins {
		if origin == "*" {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			missing = append(missing, "CORS.AllowedOrigins")
			break
		}
	}

	switch cfg.Storage.Driver {
	case DriverFirestore:
		if strings.TrimSpace(cfg.Storage.Firestore.ProjectID) == "" {
			missing = append(missing, "Storage.Firestore.ProjectID")
		}
		if strings.TrimSpace(cfg.Storage.Firestore.Collection) == "" {
			missing = append(missing, "Storage.Firestore.Collection")
		}
	case DriverPostgres:
		if strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
			missing = append(missing, "Storage.Postgres.DSN")
		}
		if cfg.Storage.Postgres.MaxConns <= 0 {
			missing = append(missing, "Storage.Postgres.MaxConns")
		}
	case DriverBolt:
		if strings.TrimSpace(cfg.Storage.Bolt.Path) == "" {
			missing = append(missing, "Storage.Bolt.Path")
		}
	default:
		missing = append(missing, "Storage.Driver")
	}

	switch cfg.Events.Backend {
	case EventsBackendNone:
	case EventsBackendPubSub:
		if cfg.Events.PubSub.ProjectID == "" {
			missing = append(missing, "Events.PubSub.ProjectID")
		}
		if cfg.Events.PubSub.Topic == "" {
			missing = append(missing, "Events.PubSub.Topic")
		}
	case EventsBackendKafka:
		if len(cfg.Events.Kafka.Brokers) == 0 {
			missing = append(missing, "Events.Kafka.Brokers")
		}
		if cfg.Events.Kafka.Topic == "" {
			missing = append(missing, "Events.Kafka.Topic")
		}
	default:
		missing = append(missing, "Events.Backend")
	}

	if cfg.RateLimits.CheckoutPerMinute < 0 {
		missing = append(missing, "RateLimits.CheckoutPerMinute")
	}
	if cfg.RateLimits.WebhookPerMinute < 0 {
		missing = append(missing, "RateLimits.WebhookPerMinute")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func canonicalLocale(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, "auto") {
		return "auto", true
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return "", false
	}
	return tag.String(), true
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	if len(required) == 0 {
		return nil
	}
	missing := make([]missingSecret, 0, len(required))
	seen := make(map[string]struct{})
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if value := strings.TrimSpace(resolved[trimmed]); value != "" {
			continue
		}
		missing = append(missing, missingSecret{
			name:     trimmed,
			redacted: redactSecretName(trimmed),
		})
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{secrets: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	values, err := godotenv.Read(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

func normaliseBasePath(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "/" {
		return "/"
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	return strings.TrimRight(trimmed, "/")
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string, fallback []string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return append([]string(nil), fallback...)
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func mapWithDefault(lookup func(string) (string, bool), key string) map[string]string {
	values := make(map[string]string)
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return values
	}
	for _, entry := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if !ok || name == "" || value == "" {
			continue
		}
		values[name] = value
	}
	return values
}
