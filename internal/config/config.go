package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	SQLite       SQLiteConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Scheduler    SchedulerConfig
	Tickets      TicketConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// SQLiteConfig selects the single-node store used when no Postgres DSN is set.
type SQLiteConfig struct {
	Path string
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// SchedulerConfig controls the durable timer poller.
type SchedulerConfig struct {
	Enabled             bool
	PollIntervalSeconds int
	BatchSize           int
	LeaseSeconds        int
}

// TicketConfig holds escalation delays and ticket policy.
type TicketConfig struct {
	NudgeMinutes         int
	StaffReminderMinutes int
	MuteMinutes          int
	CloseWindowMinutes   int
	StaffAlertsChannelID int64
	StaffRoleID          int64
	SystemActorID        int64
	AutoArchiveOnClose   bool
}

// NotificationConfig holds the Redis outbox the chat adapter consumes.
type NotificationConfig struct {
	Stream    string
	KeyPrefix string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-desk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "data/support-desk.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Scheduler: SchedulerConfig{
			Enabled:             getEnvAsBool("SCHEDULER_ENABLED", true),
			PollIntervalSeconds: getEnvAsInt("SCHEDULER_POLL_INTERVAL_SECONDS", 30),
			BatchSize:           getEnvAsInt("SCHEDULER_BATCH_SIZE", 100),
			LeaseSeconds:        getEnvAsInt("SCHEDULER_LEASE_SECONDS", 90),
		},
		Tickets: TicketConfig{
			NudgeMinutes:         getEnvAsInt("TICKET_NUDGE_MINUTES", 120),
			StaffReminderMinutes: getEnvAsInt("TICKET_STAFF_REMINDER_MINUTES", 720),
			MuteMinutes:          getEnvAsInt("TICKET_MUTE_MINUTES", 30),
			CloseWindowMinutes:   getEnvAsInt("TICKET_CLOSE_WINDOW_MINUTES", 120),
			StaffAlertsChannelID: getEnvAsInt64("TICKET_STAFF_ALERTS_CHANNEL_ID", 0),
			StaffRoleID:          getEnvAsInt64("TICKET_STAFF_ROLE_ID", 0),
			SystemActorID:        getEnvAsInt64("TICKET_SYSTEM_ACTOR_ID", 0),
			AutoArchiveOnClose:   getEnvAsBool("TICKET_AUTO_ARCHIVE_ON_CLOSE", false),
		},
		Notification: NotificationConfig{
			Stream:    getEnv("NOTIFY_STREAM", "support-desk:gateway"),
			KeyPrefix: getEnv("NOTIFY_KEY_PREFIX", "support-desk"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// PollInterval returns the poll loop period, defaulting to 30s.
func (s SchedulerConfig) PollInterval() time.Duration {
	if s.PollIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

// LeaseTTL returns how long a poller keeps the lease without renewing it.
func (s SchedulerConfig) LeaseTTL() time.Duration {
	if s.LeaseSeconds <= 0 {
		return 3 * s.PollInterval()
	}
	return time.Duration(s.LeaseSeconds) * time.Second
}

// NudgeDelay is how long a member ticket waits before the owner is nudged.
func (t TicketConfig) NudgeDelay() time.Duration {
	return minutes(t.NudgeMinutes, 120)
}

// StaffReminderDelay is how long a staff ticket waits before staff are reminded.
func (t TicketConfig) StaffReminderDelay() time.Duration {
	return minutes(t.StaffReminderMinutes, 720)
}

// MuteDuration is the default length of a ticket mute.
func (t TicketConfig) MuteDuration() time.Duration {
	return minutes(t.MuteMinutes, 30)
}

// CloseWindow is how long after creation the owner may close a member ticket.
func (t TicketConfig) CloseWindow() time.Duration {
	return minutes(t.CloseWindowMinutes, 120)
}

func minutes(val, fallback int) time.Duration {
	if val <= 0 {
		val = fallback
	}
	return time.Duration(val) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsInt64(key string, fallback int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
