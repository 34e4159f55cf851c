// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cliparse

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestParseFlags_EnvVars(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DATABASE_URL", "postgres://test")
	t.Setenv("DATABASE_TYPE", "postgres")
	t.Setenv("HOUSE_KEY_SALT", "test-salt")
	t.Setenv("VOTER_SALT", "test-voter")

	cfg, err := ParseFlags([]string{})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Port)
	}
	if cfg.DatabaseType != "postgres" {
		t.Errorf("expected postgres, got %s", cfg.DatabaseType)
	}
	if cfg.VoterSalt != "test-voter" {
		t.Errorf("expected voter salt from env, got %q", cfg.VoterSalt)
	}
}

func TestParseFlags_CLIOverridesEnv(t *testing.T) {
	t.Setenv("PORT", "9000")

	cfg, err := ParseFlags([]string{"-p", "8080", "-d", "file:test.db", "-house-salt", "s1", "-voter-salt", "s2"})
	if err != nil {
		t.Fatal(err)
	}

	// CLI should override env
	if cfg.Port != 8080 {
		t.Errorf("CLI should override env: expected 8080, got %d", cfg.Port)
	}
	if cfg.DatabaseType != "sqlite" {
		t.Errorf("expected sqlite default, got %s", cfg.DatabaseType)
	}
}

func TestParseFlags_MissingSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "file:test.db")
	t.Setenv("HOUSE_KEY_SALT", "")
	t.Setenv("VOTER_SALT", "")

	tests := []struct {
		name string
		args []string
	}{
		{"no salts", []string{}},
		{"no voter salt", []string{"-house-salt", "s1"}},
		{"bad database type", []string{"-house-salt", "s1", "-voter-salt", "s2", "-t", "oracle"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFlags(tt.args); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseFlags_CORSOrigins(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "https://env.example")
	base := []string{"-d", "file:test.db", "-house-salt", "s1", "-voter-salt", "s2"}

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"env", base, []string{"https://env.example"}},
		{"flag", append(base, "-cors", " https://a.example, ,https://b.example"), []string{"https://a.example", "https://b.example"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseFlags(tt.args)
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(cfg.CORSOrigins, tt.want) {
				t.Errorf("expected origins %v, got %v", tt.want, cfg.CORSOrigins)
			}
		})
	}

	t.Setenv("CORS_ORIGINS", "")
	cfg, err := ParseFlags(base)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.CORSOrigins) != 0 {
		t.Errorf("expected no origins by default, got %v", cfg.CORSOrigins)
	}
}

func TestParseEconomy(t *testing.T) {
	t.Setenv("CHOREWHEEL_POINTS_PER_RESIDENT", "120")
	t.Setenv("CHOREWHEEL_BOOTSTRAP_DURATION", "24h")
	t.Setenv("CHOREWHEEL_EARLY_CLOSE", "false")

	e, err := ParseEconomy()
	if err != nil {
		t.Fatal(err)
	}

	if e.PointsPerResident != 120 {
		t.Errorf("expected 120 points, got %v", e.PointsPerResident)
	}
	if e.BootstrapDuration != 24*time.Hour {
		t.Errorf("expected 24h bootstrap, got %v", e.BootstrapDuration)
	}
	if e.EarlyClose {
		t.Error("expected early close disabled")
	}
	// Untouched values keep their defaults
	if e.DampingFactor != 0.99 {
		t.Errorf("expected damping 0.99, got %v", e.DampingFactor)
	}
}

func TestParseEconomy_Invalid(t *testing.T) {
	t.Setenv("CHOREWHEEL_DAMPING_FACTOR", "1.5")
	if _, err := ParseEconomy(); err == nil {
		t.Error("expected error for damping factor above 1")
	}

	t.Setenv("CHOREWHEEL_DAMPING_FACTOR", "abc")
	if _, err := ParseEconomy(); err == nil {
		t.Error("expected parse error")
	}
}

func TestParseEconomy_SpecialChoreRange(t *testing.T) {
	t.Setenv("CHOREWHEEL_CHORE_SPECIAL_PCT_MIN", "0.7")
	if _, err := ParseEconomy(); err == nil {
		t.Error("expected error for a minimum above the 0.6 maximum")
	}

	t.Setenv("CHOREWHEEL_CHORE_SPECIAL_PCT_MAX", "0.8")
	if _, err := ParseEconomy(); err != nil {
		t.Errorf("expected [0.7, 0.8] to be accepted, got %v", err)
	}

	t.Setenv("CHOREWHEEL_BREAK_MIN_DAYS", "-1")
	if _, err := ParseEconomy(); err == nil {
		t.Error("expected error for negative break min days")
	}
}

func TestDefaultEconomy(t *testing.T) {
	t.Setenv("CHOREWHEEL_POINTS_PER_RESIDENT", "1")

	e := DefaultEconomy()
	if e.PointsPerResident != 100 {
		t.Errorf("expected environment to be ignored, got %v points", e.PointsPerResident)
	}
	if e.HeartsBaseline != 5 || e.HeartsPollLength != 72*time.Hour || e.PenaltyDelay != 30*time.Hour {
		t.Errorf("unexpected defaults: %+v", e)
	}
	if !e.EarlyClose {
		t.Error("expected early close on by default")
	}
	if e.BreakMinDays != 3 || e.SpecialChoreMaxValueProportion != 1 || e.SpecialChoreProposalPollLength != 24*time.Hour {
		t.Errorf("unexpected special chore defaults: %+v", e)
	}
	if e.ThingsPollLength != 6*time.Hour || e.ThingsMinVotesScalar != 50 || e.ThingsMaxPct != 0.6 {
		t.Errorf("unexpected things defaults: %+v", e)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("CHOREWHEEL_TEST_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHOREWHEEL_TEST_VALUE", "")
	os.Unsetenv("CHOREWHEEL_TEST_VALUE")

	if err := LoadDotEnv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("CHOREWHEEL_TEST_VALUE"); got != "from-file" {
		t.Errorf("expected value from file, got %q", got)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing file should not be an error: %v", err)
	}
}
