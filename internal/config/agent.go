package config

import "time"

// AgentConfig configures the local reminder agent.
type AgentConfig struct {
	APIURL   string
	Username string
	Password string

	// StatePath is the SQLite file holding the dose ledger. Empty keeps the
	// ledger in memory only.
	StatePath string

	Listen          string
	ControlToken    string
	RefreshInterval time.Duration
	PollInterval    time.Duration
	SnoozeDuration  time.Duration
	AudioEnabled    bool
	BellEnabled     bool
}

// LoadAgent reads the agent configuration from environment variables
func LoadAgent() (*AgentConfig, error) {
	cfg := &AgentConfig{
		APIURL:          getEnv("AGENT_API_URL", "http://localhost:8080"),
		Username:        getEnv("AGENT_USERNAME", ""),
		Password:        getEnv("AGENT_PASSWORD", ""),
		StatePath:       getEnv("AGENT_STATE_PATH", "./data/agent.db"),
		Listen:          getEnv("AGENT_LISTEN", "127.0.0.1:8765"),
		ControlToken:    getEnv("AGENT_CONTROL_TOKEN", ""),
		RefreshInterval: getDuration("AGENT_REFRESH_INTERVAL", time.Minute),
		PollInterval:    getDuration("AGENT_POLL_INTERVAL", 5*time.Second),
		SnoozeDuration:  time.Duration(getInt("AGENT_SNOOZE_MINUTES", 5)) * time.Minute,
		AudioEnabled:    getBool("AGENT_AUDIO_ENABLED", true),
		BellEnabled:     getBool("AGENT_BELL_ENABLED", true),
	}

	if cfg.Username == "" || cfg.Password == "" {
		return nil, ErrMissingAgentUsername
	}
	if cfg.SnoozeDuration <= 0 {
		cfg.SnoozeDuration = 5 * time.Minute
	}
	return cfg, nil
}
