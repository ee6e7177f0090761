package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Sync.Interval != 6*time.Hour {
		t.Errorf("expected 6h sync interval, got %v", cfg.Sync.Interval)
	}
	if cfg.Sync.MaxAttempts != 3 {
		t.Errorf("expected 3 fetch attempts, got %d", cfg.Sync.MaxAttempts)
	}
	if cfg.Notify.CheckInterval != 15*time.Minute {
		t.Errorf("expected 15m check interval, got %v", cfg.Notify.CheckInterval)
	}
	if cfg.Cleanup.RetentionDays != 90 {
		t.Errorf("expected 90 day retention, got %d", cfg.Cleanup.RetentionDays)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SYNC_INTERVAL", "2h")
	t.Setenv("NOTIFY_MAX_RETRIES", "5")
	t.Setenv("EMAIL_ENABLED", "true")
	t.Setenv("EMAIL_SMTP_HOST", "smtp.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Sync.Interval != 2*time.Hour {
		t.Errorf("expected 2h sync interval, got %v", cfg.Sync.Interval)
	}
	if cfg.Notify.MaxRetries != 5 {
		t.Errorf("expected 5 retries, got %d", cfg.Notify.MaxRetries)
	}
	if !cfg.Channels.Email.Enabled || cfg.Channels.Email.SMTPHost != "smtp.example.com" {
		t.Errorf("email config not read from env: %+v", cfg.Channels.Email)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"bad port", map[string]string{"SERVER_PORT": "70000"}},
		{"zero attempts", map[string]string{"SYNC_MAX_ATTEMPTS": "0"}},
		{"check interval wider than window", map[string]string{"NOTIFY_CHECK_INTERVAL": "2h"}},
		{"zero retention", map[string]string{"CLEANUP_RETENTION_DAYS": "0"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestEnvHelpersIgnoreMalformedValues(t *testing.T) {
	t.Setenv("SYNC_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("SYNC_INTERVAL", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Sync.MaxAttempts != 3 {
		t.Errorf("malformed int should fall back to default, got %d", cfg.Sync.MaxAttempts)
	}
	if cfg.Sync.Interval != 6*time.Hour {
		t.Errorf("malformed duration should fall back to default, got %v", cfg.Sync.Interval)
	}
}
