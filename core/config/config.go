package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App        AppConfig
	Paths      PathsConfig
	Database   DatabaseConfig
	Backend    BackendConfig
	Messenger  MessengerConfig
	Cache      CacheConfig
	WorkerPool WorkerPoolConfig
	Monitor    MonitorConfig
}

type AppConfig struct {
	Version        string
	Port           string
	Debug          bool
	Environment    string
	BasicAuth      []string
	BasePath       string
	TrustedProxies []string
	ServerID       string
	// EncryptionKey seals stored connector secrets when set.
	EncryptionKey string
}

type PathsConfig struct {
	BaseDir  string
	Storages string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string // File path for SQLite, DB Name for Postgres
	ValkeyEnabled   bool
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
}

// BackendConfig points at the conversational backend the webhook relays to.
type BackendConfig struct {
	APIServerURI   string
	Environment    string
	RequestTimeout time.Duration
	UserAgent      string
}

type MessengerConfig struct {
	GraphAPIURL   string
	APIVersion    string
	ConnectorType string
	SendTimeout   time.Duration
}

type CacheConfig struct {
	CredentialTTL   time.Duration
	SessionTTL      time.Duration
	CleanupInterval time.Duration
}

type WorkerPoolConfig struct {
	Size      int
	QueueSize int
}

// MonitorConfig sizes the in-memory relay event buffer.
type MonitorConfig struct {
	BufferSize int
	EventTTL   time.Duration
}

// Global provides access to the loaded configuration globally
var Global *Config

// LoadConfig loads configuration from Environment Variables or defaults.
func LoadConfig() (*Config, error) {
	baseDir := getEnv("APP_BASE_DIR", "storages")

	debug := getEnvBool("APP_DEBUG", false)
	if !debug {
		debug = getEnvBool("DEBUG", false)
	}

	var basicAuth []string
	if v := os.Getenv("APP_BASIC_AUTH"); v != "" {
		basicAuth = strings.Split(v, ",")
	}

	appCfg := AppConfig{
		Version:     "v1.0.0",
		Port:        getEnv("APP_PORT", "3000"),
		Debug:       debug,
		Environment: getEnv("APP_ENV", "development"),
		BasicAuth:   basicAuth,
		BasePath:    getEnv("APP_BASE_PATH", ""),
		ServerID:    getEnv("SERVER_ID", ""),

		EncryptionKey: os.Getenv("APP_ENCRYPTION_KEY"),
	}
	if v := os.Getenv("APP_TRUSTED_PROXIES"); v != "" {
		appCfg.TrustedProxies = strings.Split(v, ",")
	}

	pathsCfg := PathsConfig{
		BaseDir:  baseDir,
		Storages: baseDir,
	}

	dbCfg := DatabaseConfig{
		Driver:          getEnv("DB_DRIVER", "sqlite"),
		Name:            getEnv("DB_NAME", filepath.Join(pathsCfg.Storages, "messenger.db")),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		ValkeyEnabled:   getEnvBool("VALKEY_ENABLED", false),
		ValkeyAddress:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
		ValkeyPassword:  getEnv("VALKEY_PASSWORD", ""),
		ValkeyDB:        getEnvInt("VALKEY_DB", 0),
		ValkeyKeyPrefix: getEnv("VALKEY_KEY_PREFIX", "azmsg:"),
	}

	backendCfg := BackendConfig{
		APIServerURI:   strings.TrimRight(getEnv("BACKEND_API_SERVER_URI", "http://localhost:7070"), "/"),
		Environment:    getEnv("BACKEND_ENVIRONMENT", "unrestricted"),
		RequestTimeout: getEnvDuration("BACKEND_REQUEST_TIMEOUT", 10*time.Second),
		UserAgent:      getEnv("BACKEND_USER_AGENT", "Jetty 9.4/HTTP CLIENT - AI.LABS.EDDI"),
	}

	messengerCfg := MessengerConfig{
		GraphAPIURL:   strings.TrimRight(getEnv("MESSENGER_GRAPH_API_URL", "https://graph.facebook.com"), "/"),
		APIVersion:    getEnv("MESSENGER_API_VERSION", "v19.0"),
		ConnectorType: getEnv("MESSENGER_CONNECTOR_TYPE", "eddi://ai.labs.channel.facebook"),
		SendTimeout:   getEnvDuration("MESSENGER_SEND_TIMEOUT", 10*time.Second),
	}

	cacheCfg := CacheConfig{
		CredentialTTL:   getEnvDuration("CACHE_CREDENTIAL_TTL", time.Hour),
		SessionTTL:      getEnvDuration("CACHE_SESSION_TTL", 24*time.Hour),
		CleanupInterval: getEnvDuration("CACHE_CLEANUP_INTERVAL", time.Minute),
	}

	cfg := &Config{
		App:        appCfg,
		Paths:      pathsCfg,
		Database:   dbCfg,
		Backend:    backendCfg,
		Messenger:  messengerCfg,
		Cache:      cacheCfg,
		WorkerPool: WorkerPoolConfig{Size: getEnvInt("MESSAGE_WORKER_POOL_SIZE", 20), QueueSize: getEnvInt("MESSAGE_WORKER_QUEUE_SIZE", 1000)},
		Monitor:    MonitorConfig{BufferSize: getEnvInt("MONITOR_BUFFER_SIZE", 200), EventTTL: getEnvDuration("MONITOR_EVENT_TTL", time.Hour)},
	}

	Global = cfg
	return cfg, nil
}
