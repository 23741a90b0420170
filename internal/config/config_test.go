package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Run("creates defaults", func(t *testing.T) {
		dir := t.TempDir()
		cfg, err := Load(dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(cfg.JWTSecret) != 32 {
			t.Errorf("JWTSecret has %d bytes, want 32", len(cfg.JWTSecret))
		}
		if cfg.Quotas != DefaultQuotas() || cfg.RateLimits != DefaultRateLimits() {
			t.Errorf("unexpected defaults %+v", cfg)
		}
		if cfg.Rates.SolarCapacityKW != 5.985 {
			t.Errorf("rates = %+v", cfg.Rates)
		}
		if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
			t.Fatalf("config not saved: %v", err)
		}

		again, err := Load(dir)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(again.JWTSecret, cfg.JWTSecret) {
			t.Error("JWTSecret should be stable across loads")
		}
	})

	t.Run("partial file keeps defaults", func(t *testing.T) {
		dir := t.TempDir()
		doc := `{"rate_limits":{"write_rate_per_min":5},"holidays":["2026-07-04"]}`
		if err := os.WriteFile(filepath.Join(dir, FileName), []byte(doc), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(dir)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.RateLimits.WriteRatePerMin != 5 || cfg.RateLimits.ReadRatePerMin != DefaultRateLimits().ReadRatePerMin {
			t.Errorf("rate limits = %+v", cfg.RateLimits)
		}
		if cfg.Quotas.MaxRequestBodyBytes != DefaultQuotas().MaxRequestBodyBytes {
			t.Errorf("quotas = %+v", cfg.Quotas)
		}
		if len(cfg.Holidays) != 1 || len(cfg.JWTSecret) != 32 {
			t.Errorf("cfg = %+v", cfg)
		}
	})

	t.Run("errors", func(t *testing.T) {
		tests := map[string]string{
			"syntax":    `{`,
			"short key": `{"jwt_secret":"YWJj"}`,
			"quota":     `{"quotas":{"max_request_body_bytes":-1}}`,
			"rate":      `{"rate_limits":{"read_rate_per_min":-1}}`,
			"tariff":    `{"rates":{"on_peak":-0.1}}`,
			"holiday":   `{"holidays":["July 4"]}`,
		}
		for name, doc := range tests {
			t.Run(name, func(t *testing.T) {
				dir := t.TempDir()
				if err := os.WriteFile(filepath.Join(dir, FileName), []byte(doc), 0o600); err != nil {
					t.Fatal(err)
				}
				if _, err := Load(dir); err == nil {
					t.Error("expected an error")
				}
			})
		}
	})
}

func TestSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	cfg := &ServerConfig{JWTSecret: bytes.Repeat([]byte{1}, 32), Quotas: DefaultQuotas()}
	if err := cfg.Save(dir); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(data), "}\n") {
		t.Errorf("config should end with a newline: %q", data)
	}
	cfg.JWTSecret = nil
	if err := cfg.Save(dir); err == nil {
		t.Error("saving an invalid config should fail")
	}
}

func TestRead(t *testing.T) {
	t.Run("missing file gives defaults", func(t *testing.T) {
		dir := t.TempDir()
		cfg, err := Read(dir)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Quotas != DefaultQuotas() || len(cfg.JWTSecret) != 0 || cfg.Holidays != nil {
			t.Errorf("cfg = %+v", cfg)
		}
		if _, err := os.Stat(filepath.Join(dir, FileName)); !os.IsNotExist(err) {
			t.Errorf("Read created %s: %v", FileName, err)
		}
	})

	t.Run("file is read but not rewritten", func(t *testing.T) {
		dir := t.TempDir()
		doc := `{"holidays":["2026-07-04"]}`
		path := filepath.Join(dir, FileName)
		if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := Read(dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(cfg.Holidays) != 1 || cfg.Holidays[0] != "2026-07-04" {
			t.Errorf("holidays = %v", cfg.Holidays)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != doc {
			t.Errorf("file rewritten: %q", data)
		}
	})

	t.Run("invalid holiday", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, FileName), []byte(`{"holidays":["July 4"]}`), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Read(dir); err == nil {
			t.Error("expected an error")
		}
	})
}
