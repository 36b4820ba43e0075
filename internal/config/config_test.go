package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalYAML = `
server:
  addr: ":8080"
db:
  dsn: "postgres://localhost/gateway"
chain:
  api_base: "https://api.blockcypher.com/v1/ltc/main"
orders:
  plans:
    monthly: "9.99"
`

func TestLoad(t *testing.T) {
	t.Run("defaults applied", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, minimalYAML))
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Chain.RequiredConfirmations != 2 {
			t.Fatalf("required confirmations = %d", cfg.Chain.RequiredConfirmations)
		}
		if cfg.Chain.FeeRatePerByte != 50 {
			t.Fatalf("fee rate = %d", cfg.Chain.FeeRatePerByte)
		}
		if cfg.OrderTTL() != 30*time.Minute {
			t.Fatalf("ttl = %s", cfg.OrderTTL())
		}
		if cfg.MonitorInterval() != 10*time.Second {
			t.Fatalf("interval = %s", cfg.MonitorInterval())
		}
		if cfg.SweepRequestGap() != 2*time.Second {
			t.Fatalf("sweep gap = %s", cfg.SweepRequestGap())
		}
		if cfg.Logging.Level != "info" {
			t.Fatalf("log level = %s", cfg.Logging.Level)
		}
	})

	t.Run("explicit values win over defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, minimalYAML+`
monitor:
  interval_seconds: 30
`))
		if err != nil {
			t.Fatal(err)
		}
		if cfg.MonitorInterval() != 30*time.Second {
			t.Fatalf("interval = %s", cfg.MonitorInterval())
		}
	})

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("REQUIRED_CONFIRMATIONS", "6")
		t.Setenv("PAYMENT_TIMEOUT_MINUTES", "15")
		t.Setenv("BLOCKCYPHER_TOKEN", "tkn")

		cfg, err := Load(writeConfig(t, minimalYAML))
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Chain.RequiredConfirmations != 6 {
			t.Fatalf("required confirmations = %d", cfg.Chain.RequiredConfirmations)
		}
		if cfg.OrderTTL() != 15*time.Minute {
			t.Fatalf("ttl = %s", cfg.OrderTTL())
		}
		if cfg.Chain.Token != "tkn" {
			t.Fatalf("token = %s", cfg.Chain.Token)
		}
	})

	t.Run("missing required fields rejected", func(t *testing.T) {
		cases := map[string]string{
			"no addr": `
db:
  dsn: "x"
chain:
  api_base: "y"
orders:
  plans:
    a: "1"
`,
			"no plans": `
server:
  addr: ":8080"
db:
  dsn: "x"
chain:
  api_base: "y"
`,
		}
		for name, body := range cases {
			t.Run(name, func(t *testing.T) {
				if _, err := Load(writeConfig(t, body)); err == nil {
					t.Fatal("expected error")
				}
			})
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Fatal("expected error")
		}
	})
}
