package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wb-go/wbf/zlog"
)

func TestMain(m *testing.M) {
	zlog.Init()
	m.Run()
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaultsAndEnv(t *testing.T) {
	path := writeConfig(t, `
database:
  master:
    host: "db"
    port: "5432"
    user: "app"
    name: "images"
    ssl_mode: "disable"
kafka:
  brokers: ["kafka:9092"]
  topic: "requests"
  group_id: "workers"
`)
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("NOTIFY_WEBHOOK_URL", "https://hooks.example/done")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Master.Pass != "secret" {
		t.Fatalf("expected password from env, got %q", cfg.Database.Master.Pass)
	}
	if cfg.Notifier.WebhookURL != "https://hooks.example/done" {
		t.Fatalf("expected webhook from env, got %q", cfg.Notifier.WebhookURL)
	}
	if cfg.Queue.Driver != DriverKafka {
		t.Fatalf("expected default driver kafka, got %q", cfg.Queue.Driver)
	}
	if cfg.Processor.Quality != 50 || cfg.Processor.FetchTimeout != 30*time.Second {
		t.Fatalf("unexpected processor defaults %+v", cfg.Processor)
	}
	if cfg.Kafka.Topic != "requests" || len(cfg.Kafka.Brokers) != 1 {
		t.Fatalf("unexpected kafka config %+v", cfg.Kafka)
	}

	want := "postgres://app:secret@db:5432/images?sslmode=disable"
	if got := cfg.Database.Master.DSN(); got != want {
		t.Fatalf("DSN = %q, want %q", got, want)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, "queue:\n  driver: \"rabbit\"\n")

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
