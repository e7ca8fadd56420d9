package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Twilio TwilioConfig
	Sync   SyncConfig
	Alert  AlertConfig
}

type AppConfig struct {
	Env  string
	Port int
	Name string
}

type DBConfig struct {
	// Driver is "pgx" (Postgres) or "sqlite3". sqlite3 is only accepted outside production.
	Driver string

	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	// Path is the sqlite database file.
	Path string
}

// RedisConfig is optional. An empty Host disables the cross-replica pass lock.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	// AccessTokenTTL applies to tokens minted by this service (operator tokens).
	AccessTokenTTL time.Duration
}

// TwilioConfig holds credentials for the Video REST API.
// Either API key + secret or account SID + auth token must be set.
type TwilioConfig struct {
	AccountSID     string
	AuthToken      string
	APIKey         string
	APISecret      string
	VideoBaseURL   string
	RequestTimeout time.Duration

	// StatusCallbackURL is the public URL Twilio posts room status callbacks to.
	// Callbacks are only accepted when it and AuthToken are set.
	StatusCallbackURL string
}

type SyncConfig struct {
	Enabled bool

	Interval                 time.Duration
	EmptyRoomTimeout         time.Duration
	SingleParticipantTimeout time.Duration
	MinCallDuration          time.Duration

	MaxConcurrency int
	LockTTL        time.Duration
}

type AlertConfig struct {
	DiscordWebhookURL string
}

const (
	defaultVideoBaseURL = "https://video.twilio.com"
	defaultAppName      = "smarttv-backend"
)

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Name = strings.TrimSpace(os.Getenv("APP_NAME"))
	c.App.Port = mustInt(&parseErrs, "APP_PORT")

	c.DB.Driver = strings.TrimSpace(os.Getenv("DB_DRIVER"))
	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port = optionalInt(&parseErrs, "DB_PORT")
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	c.DB.Path = strings.TrimSpace(os.Getenv("DB_PATH"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = optionalInt(&parseErrs, "REDIS_PORT")
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = optionalDuration(&parseErrs, "JWT_ACCESS_TTL")

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.APIKey = strings.TrimSpace(os.Getenv("TWILIO_API_KEY"))
	c.Twilio.APISecret = os.Getenv("TWILIO_API_SECRET")
	c.Twilio.VideoBaseURL = strings.TrimSpace(os.Getenv("TWILIO_VIDEO_BASE_URL"))
	c.Twilio.RequestTimeout = optionalDuration(&parseErrs, "TWILIO_REQUEST_TIMEOUT")
	c.Twilio.StatusCallbackURL = strings.TrimSpace(os.Getenv("TWILIO_STATUS_CALLBACK_URL"))

	// Duration env vars are optional; defaults applied in Validate().
	c.Sync.Enabled = optionalBool(&parseErrs, "SYNC_ENABLED", true)
	c.Sync.Interval = optionalDuration(&parseErrs, "SYNC_INTERVAL")
	c.Sync.EmptyRoomTimeout = optionalDuration(&parseErrs, "SYNC_EMPTY_ROOM_TIMEOUT")
	c.Sync.SingleParticipantTimeout = optionalDuration(&parseErrs, "SYNC_SINGLE_PARTICIPANT_TIMEOUT")
	c.Sync.MinCallDuration = optionalDuration(&parseErrs, "SYNC_MIN_CALL_DURATION")
	c.Sync.MaxConcurrency = optionalInt(&parseErrs, "SYNC_MAX_CONCURRENCY")
	c.Sync.LockTTL = optionalDuration(&parseErrs, "SYNC_LOCK_TTL")

	c.Alert.DiscordWebhookURL = strings.TrimSpace(os.Getenv("DISCORD_WEBHOOK_URL"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills environment-aware defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.Name == "" {
		c.App.Name = defaultAppName
	}

	errs = append(errs, c.validateDB()...)

	if c.Redis.Host != "" {
		if c.Redis.Port == 0 {
			c.Redis.Port = 6379
		}
		if c.Redis.Port < 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.AccessTokenTTL == 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	errs = append(errs, c.validateTwilio()...)
	errs = append(errs, c.validateSync()...)

	return joinErrors(errs)
}

func (c *Config) validateDB() []error {
	var errs []error
	if c.DB.Driver == "" {
		c.DB.Driver = "pgx"
	}
	switch c.DB.Driver {
	case "sqlite3":
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_DRIVER sqlite3 is not allowed in production"))
		}
		if c.DB.Path == "" {
			c.DB.Path = "callsync.db"
		}
		return errs
	case "pgx":
	default:
		return append(errs, fmt.Errorf("DB_DRIVER must be one of pgx, sqlite3, got %q", c.DB.Driver))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c *Config) validateTwilio() []error {
	var errs []error
	hasKey := c.Twilio.APIKey != "" && c.Twilio.APISecret != ""
	hasToken := c.Twilio.AccountSID != "" && c.Twilio.AuthToken != ""
	if !hasKey && !hasToken {
		errs = append(errs, errors.New("TWILIO_API_KEY/TWILIO_API_SECRET or TWILIO_ACCOUNT_SID/TWILIO_AUTH_TOKEN are required"))
	}
	if c.Twilio.VideoBaseURL == "" {
		c.Twilio.VideoBaseURL = defaultVideoBaseURL
	}
	c.Twilio.VideoBaseURL = strings.TrimRight(c.Twilio.VideoBaseURL, "/")
	if c.Twilio.RequestTimeout <= 0 {
		c.Twilio.RequestTimeout = 5 * time.Second
	}
	return errs
}

func (c *Config) validateSync() []error {
	var errs []error
	if c.Sync.Interval <= 0 {
		c.Sync.Interval = 3 * time.Minute
	}
	if c.Sync.EmptyRoomTimeout <= 0 {
		c.Sync.EmptyRoomTimeout = 5 * time.Minute
	}
	if c.Sync.SingleParticipantTimeout <= 0 {
		c.Sync.SingleParticipantTimeout = 10 * time.Minute
	}
	if c.Sync.MinCallDuration <= 0 {
		c.Sync.MinCallDuration = 5 * time.Minute
	}
	if c.Sync.MaxConcurrency <= 0 {
		c.Sync.MaxConcurrency = 8
	}
	if c.Sync.MaxConcurrency > 64 {
		errs = append(errs, fmt.Errorf("SYNC_MAX_CONCURRENCY must be at most 64, got %d", c.Sync.MaxConcurrency))
	}
	// The lock must outlive a normal pass; one interval is the upper bound a pass may take.
	if c.Sync.LockTTL <= 0 {
		c.Sync.LockTTL = c.Sync.Interval
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// DSN returns the driver-specific data source name.
// Avoid logging this string; it contains secrets.
func (c Config) DSN() string {
	if c.DB.Driver == "sqlite3" {
		return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", c.DB.Path)
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// TwilioCredentials returns the basic-auth pair for the REST API, preferring an API key.
func (c Config) TwilioCredentials() (user, pass string) {
	if c.Twilio.APIKey != "" && c.Twilio.APISecret != "" {
		return c.Twilio.APIKey, c.Twilio.APISecret
	}
	return c.Twilio.AccountSID, c.Twilio.AuthToken
}

func mustInt(errs *[]error, key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		*errs = append(*errs, fmt.Errorf("%s is required", key))
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return 0
	}
	return n
}

func optionalInt(errs *[]error, key string) int {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0
	}
	return mustInt(errs, key)
}

func optionalDuration(errs *[]error, key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a duration, got %q", key, v))
		return 0
	}
	return d
}

func optionalBool(errs *[]error, key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
		return def
	}
	return b
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
