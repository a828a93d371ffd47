package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	// Document store settings
	StoreBackend string
	DBPath       string
	GitHubRepo   string
	GitHubBranch string
	GitHubToken  string

	// Server settings
	ServerHost string
	ServerPort int
	APIKey     string

	// Pipeline settings
	OpenAIKey    string
	PollInterval time.Duration
	FeedTimeout  time.Duration
	Scheduler    bool

	// Log settings
	LogLevel zerolog.Level
}

// DefaultConfig returns an initial configuration with hardcoded
// defaults. Secrets are only ever read from the environment.
func DefaultConfig() *Config {
	logLevel, _ := zerolog.ParseLevel(DefaultLogLevel)

	return &Config{
		StoreBackend: DefaultStoreBackend,
		DBPath:       DefaultDBPath,
		GitHubRepo:   GetEnvString("NEWSBRIEF_GITHUB_REPO", ""),
		GitHubBranch: GetEnvString("NEWSBRIEF_GITHUB_BRANCH", DefaultGitHubBranch),
		GitHubToken:  GetEnvString("GITHUB_TOKEN", ""),
		ServerHost:   DefaultServerHost,
		ServerPort:   DefaultServerPort,
		APIKey:       GetEnvString("NEWSBRIEF_API_KEY", ""),
		OpenAIKey:    GetEnvString("OPENAI_API_KEY", ""),
		PollInterval: time.Duration(DefaultPollSeconds) * time.Second,
		FeedTimeout:  time.Duration(DefaultFeedTimeout) * time.Second,
		Scheduler:    true,
		LogLevel:     GetEnvLogLevel("NEWSBRIEF_LOG_LEVEL", logLevel),
	}
}

// ListenAddr returns the formatted listen address for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}
