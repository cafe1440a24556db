package config

import (
	"strings"
	"time"
)

// ServerConfig holds runtime configuration for the deployment stream server.
type ServerConfig struct {
	Environment        string
	Addr               string
	LogLevel           string
	ConfigFile         string
	HelpContentFile    string
	StaticDir          string
	DeployType         string
	DeployHeading      string
	DryRun             bool
	StatusBackend      string
	KillOnDisconnect   bool
	PollInterval       time.Duration
	SettleIterations   int
	MonitorTimeout     time.Duration
	PreCommandTimeout  time.Duration
	SyncTimeout        time.Duration
	LogSourceTimeout   time.Duration
	PollTimeout        time.Duration
	JoinTimeout        time.Duration
	RateLimitPerMin    int
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
	AuthTokenSecret    string
	CallbackURL        string
	CallbackToken      string
	CallbackTimeout    time.Duration
}

// LoadServerConfig constructs a ServerConfig from environment variables.
func LoadServerConfig() ServerConfig {
	return ServerConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("SERVER_ADDR", ":8080"),
		LogLevel:           GetString("LOG_LEVEL", "info"),
		ConfigFile:         GetString("CONFIG_FILE", FirstExisting("./config.json", "/app/config.json")),
		HelpContentFile:    GetString("HELP_CONTENT_FILE", FirstExisting("./help-content.json", "/app/help-content.json")),
		StaticDir:          GetString("STATIC_DIR", "."),
		DeployType:         strings.TrimSpace(GetString("DEPLOY_TYPE", "")),
		DeployHeading:      strings.TrimSpace(GetString("DEPLOY_HEADING", "")),
		DryRun:             GetBool("DRY_RUN", false),
		StatusBackend:      GetString("STATUS_BACKEND", "command"),
		KillOnDisconnect:   GetBool("KILL_ON_DISCONNECT", false),
		PollInterval:       GetSeconds("POLL_INTERVAL_SECONDS", 5),
		SettleIterations:   GetInt("SETTLE_ITERATIONS", 2),
		MonitorTimeout:     GetSeconds("MONITOR_TIMEOUT_SECONDS", 300),
		PreCommandTimeout:  GetSeconds("PRE_COMMAND_TIMEOUT_SECONDS", 600),
		SyncTimeout:        GetSeconds("SYNC_COMMAND_TIMEOUT_SECONDS", 600),
		LogSourceTimeout:   GetSeconds("LOG_SOURCE_TIMEOUT_SECONDS", 30),
		PollTimeout:        GetSeconds("POLL_TIMEOUT_SECONDS", 10),
		JoinTimeout:        GetSeconds("JOIN_TIMEOUT_SECONDS", 10),
		RateLimitPerMin:    GetInt("RATE_LIMIT_PER_MINUTE", 10),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
		AuthTokenSecret:    GetString("AUTH_TOKEN_SECRET", ""),
		CallbackURL:        GetString("DEPLOY_CALLBACK_URL", ""),
		CallbackToken:      GetString("DEPLOY_CALLBACK_TOKEN", ""),
		CallbackTimeout:    GetSeconds("DEPLOY_CALLBACK_TIMEOUT_SECONDS", 10),
	}
}
