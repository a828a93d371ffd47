package config

// Constants defining default values for application configuration
const (
	DefaultDBPath = "./newsbrief.db"

	// DefaultStoreBackend selects the document store implementation:
	// "sqlite" keeps documents in a local database file, "github"
	// commits each document as a JSON file in a repository.
	DefaultStoreBackend = "sqlite"

	DefaultGitHubBranch = "main"

	DefaultServerPort = 8080
	DefaultServerHost = "" // Empty string means all interfaces

	DefaultPollSeconds = 60 // Seconds between scheduler checks
	DefaultFeedTimeout = 10 // Seconds allowed per feed request

	DefaultLogLevel = "info"
)

// Names of the persisted documents.
const (
	DocArticles = "news_data"
	DocSettings = "config"
	DocStats    = "stats"
	DocRunLog   = "logs"
)
