package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	if !errors.Is(err, ErrMissingJWTSecret) {
		t.Fatalf("Expected ErrMissingJWTSecret, got %v", err)
	}

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("Expected *ConfigError, got %T", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	for _, k := range []string{"PORT", "STORE_DRIVER", "SESSION_DURATION", "RATE_LIMIT_REQUESTS", "MISSED_SWEEP_ENABLED", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Store.Driver != StoreSQLite {
		t.Errorf("Expected sqlite store, got %s", cfg.Store.Driver)
	}
	if cfg.Security.SessionDuration != 336*time.Hour {
		t.Errorf("Expected 336h session, got %v", cfg.Security.SessionDuration)
	}
	if cfg.Security.RateLimitRequests != 100 {
		t.Errorf("Expected 100 requests, got %d", cfg.Security.RateLimitRequests)
	}
	if !cfg.Sweep.Enabled || cfg.Sweep.AuditRetentionDays != 90 {
		t.Errorf("Unexpected sweep config: %+v", cfg.Sweep)
	}
	if len(cfg.Security.AllowedOrigins) != 2 {
		t.Errorf("Unexpected origins: %v", cfg.Security.AllowedOrigins)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_DRIVER", "MONGO")
	t.Setenv("MONGODB_URI", "mongodb://db:27017")
	t.Setenv("SESSION_DURATION", "not-a-duration")
	t.Setenv("LOGIN_RATE_WINDOW", "5m")
	t.Setenv("HSTS_ENABLED", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Store.Driver != StoreMongo || cfg.Store.MongoURI != "mongodb://db:27017" {
		t.Errorf("Unexpected store config: %+v", cfg.Store)
	}
	if cfg.Security.SessionDuration != 336*time.Hour {
		t.Errorf("Invalid duration should fall back to default, got %v", cfg.Security.SessionDuration)
	}
	if cfg.Security.LoginRateWindow != 5*time.Minute {
		t.Errorf("Expected 5m login window, got %v", cfg.Security.LoginRateWindow)
	}
	if cfg.Security.HSTSEnabled {
		t.Error("Expected HSTS disabled")
	}
	if got := cfg.Security.AllowedOrigins; len(got) != 2 || got[1] != "https://b.example" {
		t.Errorf("Unexpected origins: %v", got)
	}
}

func TestLoad_UnknownStoreDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_DRIVER", "postgres")

	var cfgErr *ConfigError
	if _, err := Load(); !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigError, got %v", err)
	}
}

func TestLoadAgent(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
		check   func(t *testing.T, cfg *AgentConfig)
	}{
		{
			name:    "missing credentials",
			env:     map[string]string{"AGENT_USERNAME": "", "AGENT_PASSWORD": ""},
			wantErr: ErrMissingAgentUsername,
		},
		{
			name: "defaults",
			env:  map[string]string{"AGENT_USERNAME": "alice", "AGENT_PASSWORD": "pw", "AGENT_SNOOZE_MINUTES": "", "AGENT_LISTEN": ""},
			check: func(t *testing.T, cfg *AgentConfig) {
				if cfg.SnoozeDuration != 5*time.Minute {
					t.Errorf("Expected 5m snooze, got %v", cfg.SnoozeDuration)
				}
				if cfg.Listen != "127.0.0.1:8765" {
					t.Errorf("Expected loopback listen address, got %s", cfg.Listen)
				}
			},
		},
		{
			name: "overrides",
			env: map[string]string{
				"AGENT_USERNAME":         "alice",
				"AGENT_PASSWORD":         "pw",
				"AGENT_SNOOZE_MINUTES":   "10",
				"AGENT_POLL_INTERVAL":    "2s",
				"AGENT_AUDIO_ENABLED":    "false",
				"AGENT_REFRESH_INTERVAL": "30s",
			},
			check: func(t *testing.T, cfg *AgentConfig) {
				if cfg.SnoozeDuration != 10*time.Minute || cfg.PollInterval != 2*time.Second {
					t.Errorf("Unexpected durations: %+v", cfg)
				}
				if cfg.AudioEnabled {
					t.Error("Expected audio disabled")
				}
				if cfg.RefreshInterval != 30*time.Second {
					t.Errorf("Expected 30s refresh, got %v", cfg.RefreshInterval)
				}
			},
		},
		{
			name: "non-positive snooze falls back",
			env:  map[string]string{"AGENT_USERNAME": "alice", "AGENT_PASSWORD": "pw", "AGENT_SNOOZE_MINUTES": "-3"},
			check: func(t *testing.T, cfg *AgentConfig) {
				if cfg.SnoozeDuration != 5*time.Minute {
					t.Errorf("Expected 5m snooze, got %v", cfg.SnoozeDuration)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := LoadAgent()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadAgent failed: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\n\nMM_TEST_A=plain\nexport MM_TEST_B=\"quoted value\"\nMM_TEST_C=keep\nnot a pair\nMM_TEST_D=a=b\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}

	t.Setenv("MM_TEST_C", "from-env")
	for _, k := range []string{"MM_TEST_A", "MM_TEST_B", "MM_TEST_D"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile failed: %v", err)
	}

	want := map[string]string{
		"MM_TEST_A": "plain",
		"MM_TEST_B": "quoted value",
		"MM_TEST_C": "from-env",
		"MM_TEST_D": "a=b",
	}
	for k, v := range want {
		if got := os.Getenv(k); got != v {
			t.Errorf("%s: expected %q, got %q", k, v, got)
		}
	}

	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Expected error for missing file")
	}
}
