package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"API_FIRESTORE_PROJECT_ID": "frozen-haven-test",
		}),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port, got %q", cfg.Server.Port)
	}
	if cfg.Payments.VerifyBaseURL != "https://api.flutterwave.com/v3" {
		t.Fatalf("unexpected verify base URL %q", cfg.Payments.VerifyBaseURL)
	}
	if cfg.Payments.WebhookHeader != "X-Webhook-Signature" {
		t.Fatalf("unexpected webhook header %q", cfg.Payments.WebhookHeader)
	}
	if cfg.Payments.Currency != "NGN" {
		t.Fatalf("unexpected currency %q", cfg.Payments.Currency)
	}
	if cfg.Alerts.TTL != 7*24*time.Hour {
		t.Fatalf("unexpected alert TTL %v", cfg.Alerts.TTL)
	}
	if cfg.Stock.LowStockThreshold != 5 {
		t.Fatalf("unexpected low stock threshold %d", cfg.Stock.LowStockThreshold)
	}
	if cfg.Orders.LookupLimit != 10 {
		t.Fatalf("unexpected lookup limit %d", cfg.Orders.LookupLimit)
	}
}

func TestLoadEnvMapOverridesDefaults(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"API_SERVER_PORT":          "9090",
			"API_FIRESTORE_PROJECT_ID": "frozen-haven-test",
			"API_ALERTS_TTL":           "48h",
			"API_STOCK_LOW_THRESHOLD":  "12",
		}),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Fatalf("expected overridden port, got %q", cfg.Server.Port)
	}
	if cfg.Alerts.TTL != 48*time.Hour {
		t.Fatalf("expected overridden TTL, got %v", cfg.Alerts.TTL)
	}
	if cfg.Stock.LowStockThreshold != 12 {
		t.Fatalf("expected overridden threshold, got %d", cfg.Stock.LowStockThreshold)
	}
}

func TestLoadFirestoreProjectFallsBackToFirebase(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"API_FIREBASE_PROJECT_ID": "frozen-haven-prod",
		}),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Firestore.ProjectID != "frozen-haven-prod" {
		t.Fatalf("expected firestore project to fall back, got %q", cfg.Firestore.ProjectID)
	}
}

func TestLoadMissingProjectFailsValidation(t *testing.T) {
	_, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{}),
	)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	found := false
	for _, field := range vErr.Fields() {
		if field == "Firestore.ProjectID" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Firestore.ProjectID in %v", vErr.Fields())
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref != "secret://projects/p/secrets/flw-key/versions/latest" {
			t.Fatalf("unexpected ref %q", ref)
		}
		return "FLWSECK-resolved", nil
	})

	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"API_FIRESTORE_PROJECT_ID": "frozen-haven-test",
			"API_PAYMENTS_SECRET_KEY":  "sm://projects/p/secrets/flw-key/versions/latest",
		}),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Payments.SecretKey != "FLWSECK-resolved" {
		t.Fatalf("expected resolved secret, got %q", cfg.Payments.SecretKey)
	}
}

func TestLoadSecretResolutionFailure(t *testing.T) {
	resolver := SecretResolverFunc(func(context.Context, string) (string, error) {
		return "", errors.New("access denied")
	})

	_, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"API_FIRESTORE_PROJECT_ID":    "frozen-haven-test",
			"API_PAYMENTS_WEBHOOK_SECRET": "secret://projects/p/secrets/hook/versions/1",
		}),
		WithSecretResolver(resolver),
	)
	if err == nil {
		t.Fatal("expected error")
	}
	var sErr *SecretError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if sErr.Ref != "secret://projects/p/secrets/hook/versions/1" {
		t.Fatalf("unexpected ref %q", sErr.Ref)
	}
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	contents := "# local overrides\nexport API_SERVER_PORT=7000\nAPI_FIRESTORE_PROJECT_ID=\"frozen-haven-local\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(path),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "7000" {
		t.Fatalf("expected port from .env, got %q", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "frozen-haven-local" {
		t.Fatalf("expected quoted value trimmed, got %q", cfg.Firestore.ProjectID)
	}
}
