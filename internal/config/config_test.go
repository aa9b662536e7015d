package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DISPATCH_CONFIG_FILE", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Matching.RadiusMeters != DefaultMatchRadiusMeters {
		t.Fatalf("expected default radius, got %v", cfg.Matching.RadiusMeters)
	}
	if cfg.Fare.Base != "5.00" || cfg.Fare.PerDistance != "1.50" || cfg.Fare.PerTime != "0.50" {
		t.Fatalf("unexpected fare defaults: %+v", cfg.Fare)
	}
	if cfg.Backend.Store != BackendMemory || cfg.Meter.Mode != MeterFixed {
		t.Fatalf("unexpected backend defaults: %+v %+v", cfg.Backend, cfg.Meter)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dispatch.yaml")
	content := []byte(`
http:
  addr: ":9090"
matching:
  radius_meters: 2500
fare:
  base: "3.00"
  currency: EUR
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DISPATCH_CONFIG_FILE", path)
	t.Setenv("DISPATCH_HTTP_ADDR", ":7070")
	t.Setenv("DISPATCH_MATCH_RADIUS_METERS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":7070" {
		t.Fatalf("env should override file, got %s", cfg.HTTP.Addr)
	}
	if cfg.Matching.RadiusMeters != 2500 {
		t.Fatalf("expected file radius 2500, got %v", cfg.Matching.RadiusMeters)
	}
	if cfg.Fare.Base != "3.00" || cfg.Fare.Currency != "EUR" || cfg.Fare.PerTime != "0.50" {
		t.Fatalf("unexpected fare config: %+v", cfg.Fare)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"unknown store", func(c *Config) { c.Backend.Store = "mysql" }, false},
		{"unknown index", func(c *Config) { c.Backend.Index = "h3" }, false},
		{"maps without key", func(c *Config) { c.Meter.Mode = MeterMaps }, false},
		{"maps with key", func(c *Config) { c.Meter.Mode = MeterMaps; c.Meter.MapsAPIKey = "k" }, true},
		{"pg fares on memory store", func(c *Config) { c.Fare.Source = BackendPostgres }, false},
		{"zero radius", func(c *Config) { c.Matching.RadiusMeters = 0 }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if (err == nil) != tc.ok {
				t.Fatalf("Validate() = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}
