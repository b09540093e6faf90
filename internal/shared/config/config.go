// Package config loads the process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends.
const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
)

type Config struct {
	Server       ServerConfig
	Stores       StoresConfig
	Database     DatabaseConfig
	Firebase     FirebaseConfig
	JWT          JWTConfig
	Encryption   EncryptionConfig
	Scheduler    SchedulerConfig
	StudyPlanner StudyPlannerConfig
	Inbox        InboxConfig
	Sync         SyncConfig
	TLS          TLSConfig
	Telemetry    TelemetryConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	AllowedHosts []string
}

// StoresConfig selects where user data and sync state live.
type StoresConfig struct {
	// Backend holds entities, rules and credentials: firestore or memory.
	Backend string
	// SyncStateBackend holds mappings, jobs, logs and the inbox: firestore,
	// postgres or memory.
	SyncStateBackend string
}

type DatabaseConfig struct {
	URL             string
	MigrateOnStart  bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

type JWTConfig struct {
	Secret string
}

type EncryptionConfig struct {
	Key string
}

type SchedulerConfig struct {
	Enabled       bool
	ScheduleTimes []string
	PushInterval  time.Duration
	JobTimeout    time.Duration
	WorkerCount   int
	QueueSize     int
	RunOnStartup  bool
}

type StudyPlannerConfig struct {
	PullURL   string
	PushURL   string
	Timeout   time.Duration
	RateLimit float64
}

type InboxConfig struct {
	BatchSize    int
	PollInterval time.Duration
}

type SyncConfig struct {
	TimeZone   string
	StaleAfter time.Duration
	PushWindow time.Duration
}

type TLSConfig struct {
	Enabled      bool
	CertPath     string
	KeyPath      string
	RedirectHTTP bool
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	OTLPEndpoint string
}

func Load() (*Config, error) {
	var errs []string
	intEnv := func(key string, def int) int {
		v, err := getIntEnv(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	durationEnv := func(key string, def time.Duration) time.Duration {
		v, err := getDurationEnv(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}

	rateLimit, err := strconv.ParseFloat(getEnv("STUDYPLANNER_RATE_LIMIT", "2"), 64)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STUDYPLANNER_RATE_LIMIT: %v", err))
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Host:         getEnv("HOST", "0.0.0.0"),
			AllowedHosts: splitList(getEnv("ALLOWED_HOSTS", "")),
		},
		Stores: StoresConfig{
			Backend:          strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
			SyncStateBackend: strings.ToLower(getEnv("SYNC_STATE_BACKEND", "")),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MigrateOnStart:  getBoolEnv("DB_MIGRATE_ON_START", false),
			MaxOpenConns:    intEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    intEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: durationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Firebase: FirebaseConfig{
			ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Encryption: EncryptionConfig{
			Key: getEnv("ENCRYPTION_KEY", ""),
		},
		Scheduler: SchedulerConfig{
			Enabled:       getBoolEnv("SCHEDULER_ENABLED", true),
			ScheduleTimes: splitList(getEnv("SCHEDULER_TIMES", "06:00,12:00,18:00")),
			PushInterval:  durationEnv("SCHEDULER_PUSH_INTERVAL", 30*time.Minute),
			JobTimeout:    durationEnv("SCHEDULER_JOB_TIMEOUT", 5*time.Minute),
			WorkerCount:   intEnv("SCHEDULER_WORKERS", 5),
			QueueSize:     intEnv("SCHEDULER_QUEUE_SIZE", 100),
			RunOnStartup:  getBoolEnv("SCHEDULER_RUN_ON_STARTUP", false),
		},
		StudyPlanner: StudyPlannerConfig{
			PullURL:   getEnv("STUDYPLANNER_PULL_URL", ""),
			PushURL:   getEnv("STUDYPLANNER_PUSH_URL", ""),
			Timeout:   durationEnv("STUDYPLANNER_TIMEOUT", 30*time.Second),
			RateLimit: rateLimit,
		},
		Inbox: InboxConfig{
			BatchSize:    intEnv("INBOX_BATCH_SIZE", 50),
			PollInterval: durationEnv("INBOX_POLL_INTERVAL", 30*time.Second),
		},
		Sync: SyncConfig{
			TimeZone:   getEnv("TIME_ZONE", "UTC"),
			StaleAfter: durationEnv("SYNC_STALE_AFTER", 30*time.Minute),
			PushWindow: durationEnv("SYNC_PUSH_WINDOW", 14*24*time.Hour),
		},
		TLS: TLSConfig{
			Enabled:      getBoolEnv("TLS_ENABLED", false),
			CertPath:     getEnv("TLS_CERT_PATH", ""),
			KeyPath:      getEnv("TLS_KEY_PATH", ""),
			RedirectHTTP: getBoolEnv("TLS_REDIRECT_HTTP", false),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "lifedash-api"),
			Environment:  getEnv("OTEL_ENVIRONMENT", "development"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", ""),
		},
	}
	if cfg.Stores.SyncStateBackend == "" {
		cfg.Stores.SyncStateBackend = cfg.Stores.Backend
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and their combinations.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Encryption.Key == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(c.Encryption.Key) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes")
	}

	switch c.Stores.Backend {
	case BackendMemory, BackendFirestore:
	default:
		return fmt.Errorf("STORE_BACKEND must be memory or firestore, got %q", c.Stores.Backend)
	}
	switch c.Stores.SyncStateBackend {
	case BackendMemory, BackendFirestore:
	case BackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when SYNC_STATE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("SYNC_STATE_BACKEND must be memory, firestore or postgres, got %q", c.Stores.SyncStateBackend)
	}
	if c.UsesFirestore() && c.Firebase.ProjectID == "" {
		return fmt.Errorf("FIREBASE_PROJECT_ID is required for the firestore backend")
	}

	if _, err := c.Sync.Location(); err != nil {
		return fmt.Errorf("invalid TIME_ZONE: %w", err)
	}
	for _, t := range c.Scheduler.ScheduleTimes {
		if _, err := time.Parse("15:04", t); err != nil {
			return fmt.Errorf("invalid SCHEDULER_TIMES entry %q: want HH:MM", t)
		}
	}
	if c.Scheduler.WorkerCount < 1 {
		return fmt.Errorf("SCHEDULER_WORKERS must be at least 1")
	}
	if c.Inbox.BatchSize < 1 {
		return fmt.Errorf("INBOX_BATCH_SIZE must be at least 1")
	}

	if c.TLS.Enabled {
		if c.TLS.CertPath == "" {
			return fmt.Errorf("TLS_CERT_PATH is required when TLS_ENABLED=true")
		}
		if c.TLS.KeyPath == "" {
			return fmt.Errorf("TLS_KEY_PATH is required when TLS_ENABLED=true")
		}
	}
	return nil
}

// UsesFirestore reports whether any store lives in Firestore.
func (c *Config) UsesFirestore() bool {
	return c.Stores.Backend == BackendFirestore || c.Stores.SyncStateBackend == BackendFirestore
}

// Location returns the configured time zone.
func (c SyncConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.TimeZone)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
