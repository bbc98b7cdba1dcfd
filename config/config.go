package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sagarc03/burndrop"
	"github.com/sagarc03/burndrop/database"
	burnhttp "github.com/sagarc03/burndrop/http"
	"github.com/sagarc03/burndrop/objectstore"
)

// configKey is the context key for storing the loaded configuration.
type configKey struct{}

// WithContext returns a new context with the config stored.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config from context.
// Returns an error if config is not found.
func FromContext(ctx context.Context) (*Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*Config)
	if !ok || cfg == nil {
		return nil, errors.New("config not found in context")
	}
	return cfg, nil
}

// Config is the root configuration struct for burndrop.
type Config struct {
	Server    ServerConfig        `mapstructure:"server"`
	Service   ServiceConfig       `mapstructure:"service"`
	Sweeper   SweeperConfig       `mapstructure:"sweeper"`
	Database  database.Config     `mapstructure:"database"`
	Storage   StorageConfig       `mapstructure:"storage"`
	RateLimit RateLimitConfig     `mapstructure:"ratelimit"`
	CORS      burnhttp.CORSConfig `mapstructure:"cors"`
	Log       LogConfig           `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port              int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	MaxUploadSize     int64         `mapstructure:"max_upload_size" validate:"min=0"`
	ConcealAuthErrors bool          `mapstructure:"conceal_auth_errors"`
	TrustProxy        bool          `mapstructure:"trust_proxy"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	StatsInterval     time.Duration `mapstructure:"stats_interval" validate:"gt=0"`
}

// ServiceConfig holds share lifecycle configuration.
type ServiceConfig struct {
	DefaultTTL           time.Duration `mapstructure:"default_ttl" validate:"gt=0"`
	MaxTTL               time.Duration `mapstructure:"max_ttl" validate:"gtefield=DefaultTTL"`
	MaxDownloadsLimit    int           `mapstructure:"max_downloads_limit" validate:"min=1"`
	IDAttempts           int           `mapstructure:"id_attempts" validate:"min=1"`
	StoreRetries         int           `mapstructure:"store_retries" validate:"gte=0"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval" validate:"gt=0"`
	CleanupTimeout       time.Duration `mapstructure:"cleanup_timeout" validate:"gt=0"`
	BcryptCost           int           `mapstructure:"bcrypt_cost" validate:"min=4,max=31"`
	ReclaimOnAccess      bool          `mapstructure:"reclaim_on_access"`
}

// SweeperConfig holds background cleanup configuration.
type SweeperConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval" validate:"gt=0"`
	BatchSize int           `mapstructure:"batch_size" validate:"min=1,max=10000"`
	// TombstoneRetention is how long cleaned-up records are kept; negative keeps them forever.
	TombstoneRetention time.Duration `mapstructure:"tombstone_retention"`
}

// StorageConfig holds blob storage configuration.
type StorageConfig struct {
	Type string             `mapstructure:"type" validate:"required,oneof=filesystem s3 memory"`
	Path string             `mapstructure:"path" validate:"required_if=Type filesystem"`
	S3   objectstore.Config `mapstructure:"s3"`
}

// RateLimitConfig bounds wrong password attempts per share and client.
type RateLimitConfig struct {
	// PasswordAttempts of 0 disables throttling.
	PasswordAttempts int           `mapstructure:"password_attempts" validate:"min=0"`
	Window           time.Duration `mapstructure:"window" validate:"gt=0"`
	CacheSize        int           `mapstructure:"cache_size" validate:"min=1"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level     string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format    string `mapstructure:"format" validate:"required,oneof=text json"`
	SentryDSN string `mapstructure:"sentry_dsn" validate:"omitempty,url"`
}

// flagToViperKey maps CLI flag names to viper configuration keys.
var flagToViperKey = map[string]string{
	"db-type":      "database.type",
	"db-dsn":       "database.dsn",
	"storage-type": "storage.type",
	"storage-path": "storage.path",
	"port":         "server.port",
	"log-level":    "log.level",
	"log-format":   "log.format",
}

// bindFlags binds CLI flags to viper keys with custom name mapping.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		// Use custom mapping if it exists, otherwise use flag name as-is
		viperKey := f.Name
		if mapped, ok := flagToViperKey[viperKey]; ok {
			viperKey = mapped
		}

		// Only bind if the flag was explicitly set
		if f.Changed {
			_ = v.BindPFlag(viperKey, f)
		}
	})
}

// setDefaults configures default values on the viper instance. Every key
// needs a default, even an empty one, for its environment variable to be seen.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5708)
	v.SetDefault("server.max_upload_size", 100<<20)
	v.SetDefault("server.conceal_auth_errors", false)
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("server.read_timeout", 5*time.Minute)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.idle_timeout", 2*time.Minute)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.stats_interval", burnhttp.DefaultStatsInterval)

	v.SetDefault("service.default_ttl", burndrop.DefaultTTL)
	v.SetDefault("service.max_ttl", burndrop.DefaultMaxTTL)
	v.SetDefault("service.max_downloads_limit", burndrop.DefaultMaxDownloadsLimit)
	v.SetDefault("service.id_attempts", burndrop.DefaultIDAttempts)
	v.SetDefault("service.store_retries", burndrop.DefaultStoreRetries)
	v.SetDefault("service.retry_initial_interval", burndrop.DefaultRetryInterval)
	v.SetDefault("service.cleanup_timeout", burndrop.DefaultCleanupTimeout)
	v.SetDefault("service.bcrypt_cost", burndrop.DefaultBcryptCost)
	v.SetDefault("service.reclaim_on_access", false)

	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.interval", burndrop.DefaultSweepInterval)
	v.SetDefault("sweeper.batch_size", burndrop.DefaultSweepBatchSize)
	v.SetDefault("sweeper.tombstone_retention", burndrop.DefaultTombstoneRetention)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "burndrop.db")
	v.SetDefault("database.tables.shares", "burndrop_shares")
	v.SetDefault("database.timeout", time.Second)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.type", "filesystem")
	v.SetDefault("storage.path", "./data")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key", "")
	v.SetDefault("storage.s3.secret_key", "")
	v.SetDefault("storage.s3.prefix", "")
	v.SetDefault("storage.s3.create_bucket", false)

	v.SetDefault("ratelimit.password_attempts", burnhttp.DefaultPasswordAttempts)
	v.SetDefault("ratelimit.window", burnhttp.DefaultAttemptWindow)
	v.SetDefault("ratelimit.cache_size", burnhttp.DefaultAttemptCacheSize)

	v.SetDefault("cors.enabled", false)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", burnhttp.PasswordHeader})
	v.SetDefault("cors.exposed_headers", []string{"Content-Disposition", burnhttp.RemainingHeader})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", 300)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.sentry_dsn", "")
}

// Load reads configuration and returns a validated Config struct.
// Order of precedence (highest to lowest): flags > env > config files > defaults
//
// Parameters:
//   - configFiles: list of config file paths (later files override earlier ones)
//   - flags: cobra flag set for flag binding (can be nil)
func Load(configFiles []string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Read config files
	if len(configFiles) > 0 {
		v.SetConfigFile(configFiles[0])
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("error reading config file", "file", configFiles[0], "err", err)
		}

		for _, cf := range configFiles[1:] {
			v.SetConfigFile(cf)
			if err := v.MergeInConfig(); err != nil {
				slog.Warn("error merging config file", "file", cf, "err", err)
			}
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				slog.Warn("error reading config file", "err", err)
			}
		}
	}

	// 3. Bind environment variables, .env files fill in what the process lacks
	loadDotEnv(".env")
	v.SetEnvPrefix("BURNDROP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Bind flags (if provided)
	if flags != nil {
		bindFlags(v, flags)
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// 6. Validate using go-playground/validator
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// validate covers the rules that span sections.
func (c *Config) validate() error {
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return errors.New("storage.s3.bucket is required when storage.type is s3")
	}
	if c.Database.Type == "postgres" || c.Database.Type == "sqlite" {
		if err := c.Database.Tables.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// loadDotEnv exports the variables of the given files without overriding
// variables that are already set. Missing files are skipped.
func loadDotEnv(files ...string) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("error reading env file", "file", f, "err", err)
		}
	}
}
