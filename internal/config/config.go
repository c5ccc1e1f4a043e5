package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the deadman binaries.
type Config struct {
	// ServerAddress is the gRPC address of the monitor service.
	ServerAddress string `yaml:"server_addr"`
	// Timeout is the duration for network operations and RPC calls.
	Timeout time.Duration `yaml:"timeout"`
	// LogLevel is the minimum zap level (debug, info, warn, error).
	LogLevel string `yaml:"log_level,omitempty"`
	// LogFormat selects the console or json encoder.
	LogFormat string `yaml:"log_format,omitempty"`
	// Database selects and configures the storage engine.
	Database Database `yaml:"database"`
	// Lock selects the per-subject lock implementation.
	Lock Lock `yaml:"lock"`
	// Sender selects how notifications leave the process.
	Sender Sender `yaml:"sender"`
	// Escalation tunes the tick loop.
	Escalation Escalation `yaml:"escalation"`
}

// Database configures the repository backend.
type Database struct {
	// Type is DatabaseSQLite or DatabaseMemory.
	Type string `yaml:"type"`
	// Path is the SQLite file path.
	Path string `yaml:"path,omitempty"`
}

// Lock configures per-subject exclusive sections.
type Lock struct {
	// Type is LockMemory or LockRedis.
	Type string `yaml:"type"`
	// RedisAddress is the host:port of the Redis server.
	RedisAddress string `yaml:"redis_addr,omitempty"`
	// RedisPassword authenticates against Redis.
	RedisPassword string `yaml:"password,omitempty"`
	// RedisDB is the logical Redis database.
	RedisDB int `yaml:"db,omitempty"`
	// TTL is the lease duration of a Redis lock.
	TTL time.Duration `yaml:"ttl,omitempty"`
}

// Sender configures outbound delivery.
type Sender struct {
	// Type is SenderLog or SenderHTTP.
	Type string `yaml:"type"`
	// BaseURL is the messaging gateway root URL.
	BaseURL string `yaml:"base_url,omitempty"`
	// Token is sent as a bearer token to the gateway.
	Token string `yaml:"token,omitempty"`
	// Retries is the number of transport retries per send.
	Retries int `yaml:"retries,omitempty"`
	// Timeout bounds one HTTP request.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Escalation tunes the reminder and emergency policy.
type Escalation struct {
	// TickInterval is the period between two evaluations.
	TickInterval time.Duration `yaml:"tick_interval"`
	// Workers bounds the number of subjects evaluated in parallel.
	Workers int `yaml:"workers"`
	// SendTimeout bounds one sender call.
	SendTimeout time.Duration `yaml:"send_timeout"`
	// ReminderTiers are the lead times before the deadline at which the subject is reminded.
	ReminderTiers []time.Duration `yaml:"reminder_tiers"`
	// ReminderChannel is the channel used for reminders.
	ReminderChannel string `yaml:"reminder_channel"`
	// EmergencyChannel is the channel used for emergency alerts.
	EmergencyChannel string `yaml:"emergency_channel"`
	// EmergencyDelay is the grace period after a missed deadline.
	EmergencyDelay time.Duration `yaml:"emergency_delay"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "deadman-settings.yaml"

	// DefaultDatabasePath is the default SQLite file.
	DefaultDatabasePath = "deadman.db"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultLockTTL is the default Redis lease duration.
	DefaultLockTTL = 30 * time.Second

	// DefaultSenderRetries is the default number of gateway retries.
	DefaultSenderRetries = 2

	// DefaultTickInterval is the default period of the escalation loop.
	DefaultTickInterval = time.Minute

	// DefaultWorkers is the default escalation parallelism.
	DefaultWorkers = 4

	// DefaultSendTimeout is the default bound on one sender call.
	DefaultSendTimeout = 10 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

// Backend names accepted in the settings file.
const (
	DatabaseSQLite = "sqlite"
	DatabaseMemory = "memory"
	LockMemory     = "memory"
	LockRedis      = "redis"
	SenderLog      = "log"
	SenderHTTP     = "http"
	ChannelEmail   = "email"
	ChannelWA      = "whatsapp"
)

// DefaultReminderTiers returns the reminder lead times used when none are configured.
func DefaultReminderTiers() []time.Duration {
	return []time.Duration{6 * time.Hour, 2 * time.Hour}
}

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errServerSocketRequired is returned when server address is missing.
	errServerSocketRequired = errors.New("server address must be provided")
	// errUnknownBackend is returned for unsupported type values.
	errUnknownBackend = errors.New("unknown backend type")
	// errRedisAddressRequired is returned when the redis lock has no address.
	errRedisAddressRequired = errors.New("redis lock requires redis_addr")
	// errBaseURLRequired is returned when the http sender has no gateway URL.
	errBaseURLRequired = errors.New("http sender requires base_url")
	// errInvalidEscalation is returned for negative or empty escalation values.
	errInvalidEscalation = errors.New("invalid escalation settings")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions, the file may hold gateway and Redis secrets.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the settings and fills in defaults for omitted values.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if settings.ServerAddress == "" {
		return errServerSocketRequired
	}

	if _, err := net.ResolveTCPAddr("tcp", settings.ServerAddress); err != nil {
		return fmt.Errorf("invalid server socket: %w", err)
	}

	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	if err := validateDatabase(&settings.Database); err != nil {
		return err
	}

	if err := validateLock(&settings.Lock); err != nil {
		return err
	}

	if err := validateSender(&settings.Sender); err != nil {
		return err
	}

	return validateEscalation(&settings.Escalation)
}

func validateDatabase(db *Database) error {
	switch db.Type {
	case "":
		db.Type = DatabaseSQLite
	case DatabaseSQLite, DatabaseMemory:
	default:
		return fmt.Errorf("%w: database %q", errUnknownBackend, db.Type)
	}

	if db.Type == DatabaseSQLite && db.Path == "" {
		db.Path = DefaultDatabasePath
	}

	return nil
}

func validateLock(l *Lock) error {
	switch l.Type {
	case "":
		l.Type = LockMemory
	case LockMemory:
	case LockRedis:
		if l.RedisAddress == "" {
			return errRedisAddressRequired
		}
	default:
		return fmt.Errorf("%w: lock %q", errUnknownBackend, l.Type)
	}

	if l.TTL <= 0 {
		l.TTL = DefaultLockTTL
	}

	return nil
}

func validateSender(s *Sender) error {
	switch s.Type {
	case "":
		s.Type = SenderLog
	case SenderLog:
	case SenderHTTP:
		if s.BaseURL == "" {
			return errBaseURLRequired
		}

		if _, err := url.ParseRequestURI(s.BaseURL); err != nil {
			return fmt.Errorf("invalid sender base URL: %w", err)
		}
	default:
		return fmt.Errorf("%w: sender %q", errUnknownBackend, s.Type)
	}

	if s.Retries < 0 {
		return fmt.Errorf("%w: negative sender retries", errInvalidEscalation)
	}

	if s.Retries == 0 {
		s.Retries = DefaultSenderRetries
	}

	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}

	return nil
}

func validateEscalation(e *Escalation) error {
	if e.TickInterval <= 0 {
		e.TickInterval = DefaultTickInterval
	}

	if e.Workers <= 0 {
		e.Workers = DefaultWorkers
	}

	if e.SendTimeout <= 0 {
		e.SendTimeout = DefaultSendTimeout
	}

	if len(e.ReminderTiers) == 0 {
		e.ReminderTiers = DefaultReminderTiers()
	}

	if slices.ContainsFunc(e.ReminderTiers, func(d time.Duration) bool { return d <= 0 }) {
		return fmt.Errorf("%w: reminder tiers must be positive", errInvalidEscalation)
	}

	if e.EmergencyDelay < 0 {
		return fmt.Errorf("%w: negative emergency delay", errInvalidEscalation)
	}

	if e.ReminderChannel == "" {
		e.ReminderChannel = ChannelEmail
	}

	if e.EmergencyChannel == "" {
		e.EmergencyChannel = ChannelWA
	}

	for _, ch := range []string{e.ReminderChannel, e.EmergencyChannel} {
		if ch != ChannelEmail && ch != ChannelWA {
			return fmt.Errorf("%w: unknown channel %q", errInvalidEscalation, ch)
		}
	}

	return nil
}
