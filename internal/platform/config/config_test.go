package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "psicolfis-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.BasePath != "/api" {
		t.Errorf("expected default base path /api, got %s", cfg.Server.BasePath)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Environment != "local" {
		t.Errorf("expected default environment local, got %s", cfg.Environment)
	}
	if cfg.PSP.StripeTimeout != defaultStripeTimeout {
		t.Errorf("unexpected stripe timeout: %s", cfg.PSP.StripeTimeout)
	}
	if cfg.Checkout.SuccessPath != "/gracias?session_id={CHECKOUT_SESSION_ID}" {
		t.Errorf("unexpected success path %s", cfg.Checkout.SuccessPath)
	}
	if cfg.Checkout.CancelPath != "/cancelado" {
		t.Errorf("unexpected cancel path %s", cfg.Checkout.CancelPath)
	}
	if cfg.Checkout.Locale != "es" {
		t.Errorf("expected locale es, got %s", cfg.Checkout.Locale)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 || cfg.CORS.AllowedOrigins[0] != "https://psicolfis.net" {
		t.Errorf("unexpected cors origins %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Storage.Driver != DriverFirestore {
		t.Errorf("expected firestore driver, got %s", cfg.Storage.Driver)
	}
	if cfg.Storage.Firestore.Collection != "transactions" {
		t.Errorf("unexpected collection %s", cfg.Storage.Firestore.Collection)
	}
	if cfg.Events.Backend != EventsBackendNone {
		t.Errorf("expected events disabled, got %s", cfg.Events.Backend)
	}
	if cfg.Secrets.DefaultProjectID != "psicolfis-dev" {
		t.Errorf("expected secret project to default to firestore project, got %s", cfg.Secrets.DefaultProjectID)
	}
	if cfg.RateLimits.CheckoutPerMinute != 30 {
		t.Errorf("unexpected checkout rate limit: %d", cfg.RateLimits.CheckoutPerMinute)
	}
	if cfg.RateLimits.WebhookPerMinute != 600 {
		t.Errorf("unexpected webhook rate limit: %d", cfg.RateLimits.WebhookPerMinute)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_ENVIRONMENT":                "PROD",
		"API_SERVER_PORT":                "9090",
		"API_SERVER_BASE_PATH":           "v1/",
		"API_SERVER_IDLE_TIMEOUT":        "2m",
		"API_PSP_STRIPE_API_KEY":         "secret://stripe/api",
		"API_PSP_STRIPE_WEBHOOK_SECRET":  "secret://stripe/webhook",
		"API_PSP_STRIPE_TIMEOUT":         "4s",
		"API_CHECKOUT_LOCALE":            "pt-br",
		"API_CHECKOUT_PRODUCT_REFS":      "IRIS=prod_iris, alex=prod_alex, broken",
		"API_CORS_ALLOWED_ORIGINS":       "https://psicolfis.net, https://www.psicolfis.net",
		"API_STORAGE_DRIVER":             "postgres",
		"API_POSTGRES_DSN":               "secret://postgres/dsn",
		"API_REDIS_ADDR":                 "localhost:6379",
		"API_REDIS_DB":                   "2",
		"API_EVENTS_BACKEND":             "kafka",
		"API_EVENTS_KAFKA_BROKERS":       "kafka-1:9092,kafka-2:9092",
		"API_RATELIMIT_CHECKOUT_PER_MIN": "5",
		"API_RATELIMIT_WEBHOOK_PER_MIN":  "50",
		"API_IDEMPOTENCY_HEADER":         "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":            "48h",
	}

	secrets := map[string]string{
		"secret://stripe/api":     "sk_test_123",
		"secret://stripe/webhook": "whsec_123",
		"secret://postgres/dsn":   "postgres://checkout@db/checkout",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
		WithRequiredSecrets("PSP.StripeAPIKey"),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Environment != "prod" {
		t.Errorf("expected lowercased environment, got %s", cfg.Environment)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.BasePath != "/v1" {
		t.Errorf("expected normalised base path /v1, got %s", cfg.Server.BasePath)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.PSP.StripeAPIKey != "sk_test_123" {
		t.Errorf("expected resolved stripe api key, got %s", cfg.PSP.StripeAPIKey)
	}
	if cfg.PSP.StripeWebhookSecret != "whsec_123" {
		t.Errorf("expected resolved webhook secret, got %s", cfg.PSP.StripeWebhookSecret)
	}
	if cfg.PSP.StripeTimeout != 4*time.Second {
		t.Errorf("unexpected stripe timeout %s", cfg.PSP.StripeTimeout)
	}
	if cfg.Checkout.Locale != "pt-BR" {
		t.Errorf("expected canonical locale pt-BR, got %s", cfg.Checkout.Locale)
	}
	if len(cfg.Checkout.ProductRefs) != 2 || cfg.Checkout.ProductRefs["iris"] != "prod_iris" {
		t.Errorf("unexpected product refs %v", cfg.Checkout.ProductRefs)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 {
		t.Errorf("expected 2 cors origins, got %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Storage.Postgres.DSN != "postgres://checkout@db/checkout" {
		t.Errorf("expected resolved postgres dsn, got %s", cfg.Storage.Postgres.DSN)
	}
	if cfg.Redis.DB != 2 {
		t.Errorf("unexpected redis db %d", cfg.Redis.DB)
	}
	if len(cfg.Events.Kafka.Brokers) != 2 || cfg.Events.Kafka.Topic != "transaction-events" {
		t.Errorf("unexpected kafka config %+v", cfg.Events.Kafka)
	}
	if cfg.RateLimits.CheckoutPerMinute != 5 {
		t.Errorf("unexpected checkout rate limit %d", cfg.RateLimits.CheckoutPerMinute)
	}
	if cfg.RateLimits.WebhookPerMinute != 50 {
		t.Errorf("unexpected webhook rate limit %d", cfg.RateLimits.WebhookPerMinute)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" {
		t.Errorf("unexpected idempotency header %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency ttl %s", cfg.Idempotency.TTL)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "# local overrides\nAPI_SERVER_PORT=7070\nexport API_STORAGE_DRIVER=bolt\nAPI_BOLT_PATH=\"tmp/checkout.db\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Storage.Driver != DriverBolt {
		t.Errorf("expected bolt driver from dotenv, got %s", cfg.Storage.Driver)
	}
	if cfg.Storage.Bolt.Path != "tmp/checkout.db" {
		t.Errorf("expected unquoted bolt path, got %s", cfg.Storage.Bolt.Path)
	}
}

func TestLoadMissingDotEnvIsIgnored(t *testing.T) {
	env := map[string]string{"API_STORAGE_DRIVER": "bolt"}
	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(filepath.Join(t.TempDir(), "absent.env")),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
}

func TestLoadValidationFailures(t *testing.T) {
	cases := map[string]struct {
		env   map[string]string
		field string
	}{
		"firestore without project": {
			env:   map[string]string{},
			field: "Storage.Firestore.ProjectID",
		},
		"unknown driver": {
			env:   map[string]string{"API_STORAGE_DRIVER": "mongo"},
			field: "Storage.Driver",
		},
		"postgres without dsn": {
			env:   map[string]string{"API_STORAGE_DRIVER": "postgres"},
			field: "Storage.Postgres.DSN",
		},
		"kafka without brokers": {
			env:   map[string]string{"API_STORAGE_DRIVER": "bolt", "API_EVENTS_BACKEND": "kafka"},
			field: "Events.Kafka.Brokers",
		},
		"pubsub without project": {
			env:   map[string]string{"API_STORAGE_DRIVER": "bolt", "API_EVENTS_BACKEND": "pubsub"},
			field: "Events.PubSub.ProjectID",
		},
		"unknown events backend": {
			env:   map[string]string{"API_STORAGE_DRIVER": "bolt", "API_EVENTS_BACKEND": "nats"},
			field: "Events.Backend",
		},
		"relative cors origin": {
			env:   map[string]string{"API_STORAGE_DRIVER": "bolt", "API_CORS_ALLOWED_ORIGINS": "psicolfis.net"},
			field: "CORS.AllowedOrigins",
		},
		"invalid locale": {
			env:   map[string]string{"API_STORAGE_DRIVER": "bolt", "API_CHECKOUT_LOCALE": "not a locale"},
			field: "Checkout.Locale",
		},
		"invalid port": {
			env:   map[string]string{"API_STORAGE_DRIVER": "bolt", "API_SERVER_PORT": "http"},
			field: "Server.Port",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(context.Background(), WithEnvMap(tc.env), WithoutSystemEnv(), WithEnvFile(""))
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %T (%v)", err, err)
			}
			found := false
			for _, field := range validation.Fields() {
				if field == tc.field {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %s in %v", tc.field, validation.Fields())
			}
		})
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_STORAGE_DRIVER":     "bolt",
		"API_PSP_STRIPE_API_KEY": "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIRESTORE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIRESTORE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_DEFAULT_PROJECT_ID", "os-secrets")

	overrides := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "override-project",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIRESTORE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_DEFAULT_PROJECT_ID"]; got != "os-secrets" {
		t.Fatalf("expected system env secret project, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"API_STORAGE_DRIVER": "bolt",
	}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.StripeAPIKey"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("PSP.StripeAPIKey")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
	if got := missing.Names(); len(got) != 1 || got[0] != "PSP.StripeAPIKey" {
		t.Fatalf("unexpected names %v", got)
	}
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"API_STORAGE_DRIVER":            "bolt",
		"API_PSP_STRIPE_WEBHOOK_SECRET": "sm://stripe/webhook",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "secret://stripe/webhook" {
			return "whsec_legacy", nil
		}
		return "", errors.New("not found")
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.PSP.StripeWebhookSecret != "whsec_legacy" {
		t.Fatalf("expected legacy secret, got %s", cfg.PSP.StripeWebhookSecret)
	}
}
