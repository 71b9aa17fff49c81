package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Transport TransportConfig `mapstructure:"transport"`
	Sender    SenderConfig    `mapstructure:"sender"`
	DKIM      DKIMConfig      `mapstructure:"dkim"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Bulk      BulkConfig      `mapstructure:"bulk"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// APIConfig holds HTTP server configuration.
type APIConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`

	// TrustedProxies lists the peer addresses or CIDR ranges whose
	// X-Forwarded-For and X-Real-IP headers are honoured. Empty means the
	// TCP peer address is always the client address.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// SMTPConfig holds the outbound relay connection settings.
type SMTPConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	Secure             bool          `mapstructure:"secure"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	HelloName          string        `mapstructure:"hello_name"`
	Timeout            time.Duration `mapstructure:"timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// TransportConfig selects the delivery transport.
type TransportConfig struct {
	// Type is one of "smtp", "ses", "stdout", "file".
	Type          string        `mapstructure:"type"`
	SESRegion     string        `mapstructure:"ses_region"`
	OutputDir     string        `mapstructure:"output_dir"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
}

// SenderConfig is the identity every composed message is sent as.
type SenderConfig struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
	Domain  string `mapstructure:"domain"`
	Mailer  string `mapstructure:"mailer"`
}

// DKIMConfig holds DKIM signing key material. Signing is disabled when
// neither PrivateKey nor PrivateKeyFile is set.
type DKIMConfig struct {
	Domain         string `mapstructure:"domain"`
	Selector       string `mapstructure:"selector"`
	PrivateKey     string `mapstructure:"private_key"`
	PrivateKeyFile string `mapstructure:"private_key_file"`
}

// Enabled reports whether any key material is configured.
func (c DKIMConfig) Enabled() bool {
	return c.PrivateKey != "" || c.PrivateKeyFile != ""
}

// RateLimitConfig holds the per-source-address limit applied to send routes.
// RedisURL selects the Redis-backed limiter; when empty an in-process
// limiter is used.
type RateLimitConfig struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
	RedisURL    string        `mapstructure:"redis_url"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
}

// BulkConfig holds bulk send limits.
type BulkConfig struct {
	MaxEmails int           `mapstructure:"max_emails"`
	Delay     time.Duration `mapstructure:"delay"`
}

// ResolverConfig holds MX lookup settings.
type ResolverConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Output    string `mapstructure:"output"`
	FilePath  string `mapstructure:"file_path"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxFiles  int    `mapstructure:"max_files"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// legacyEnv maps config keys to the unprefixed environment variable names
// used by older deployments.
var legacyEnv = map[string]string{
	"api.port":             "PORT",
	"smtp.host":            "SMTP_HOST",
	"smtp.port":            "SMTP_PORT",
	"smtp.username":        "SMTP_USER",
	"smtp.password":        "SMTP_PASS",
	"sender.name":          "FROM_NAME",
	"sender.address":       "FROM_EMAIL",
	"sender.domain":        "DOMAIN",
	"dkim.selector":        "DKIM_SELECTOR",
	"dkim.private_key":     "DKIM_PRIVATE_KEY",
	"rate_limit.redis_url": "REDIS_URL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 3000)
	v.SetDefault("api.read_timeout", 10*time.Second)
	v.SetDefault("api.write_timeout", 60*time.Second)
	v.SetDefault("api.shutdown_timeout", 30*time.Second)
	v.SetDefault("api.max_body_bytes", 10<<20)
	v.SetDefault("api.trusted_proxies", []string{})

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.secure", false)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.hello_name", "")
	v.SetDefault("smtp.timeout", 30*time.Second)
	v.SetDefault("smtp.insecure_skip_verify", false)

	v.SetDefault("transport.type", "smtp")
	v.SetDefault("transport.ses_region", "")
	v.SetDefault("transport.output_dir", "./mail_output")
	v.SetDefault("transport.check_interval", 30*time.Second)

	v.SetDefault("sender.name", "")
	v.SetDefault("sender.address", "")
	v.SetDefault("sender.domain", "")
	v.SetDefault("sender.mailer", "mailrelay")

	v.SetDefault("dkim.domain", "")
	v.SetDefault("dkim.selector", "default")
	v.SetDefault("dkim.private_key", "")
	v.SetDefault("dkim.private_key_file", "")

	v.SetDefault("rate_limit.max_requests", 5)
	v.SetDefault("rate_limit.window", 15*time.Minute)
	v.SetDefault("rate_limit.redis_url", "")
	v.SetDefault("rate_limit.key_prefix", "ratelimit:send")

	v.SetDefault("bulk.max_emails", 10)
	v.SetDefault("bulk.delay", time.Second)

	v.SetDefault("resolver.timeout", 5*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "./logs/mailrelay.log")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_files", 5)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory; a missing file
// is not an error and leaves the built-in defaults in place.
// Environment variables with prefix MAILRELAY_ override file values.
// For example, MAILRELAY_SMTP_HOST overrides smtp.host. The unprefixed names
// in legacyEnv are accepted as well.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("MAILRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for key, legacy := range legacyEnv {
		envName := "MAILRELAY_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envName, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", legacy, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DKIM.Domain == "" {
		cfg.DKIM.Domain = cfg.Sender.Domain
	}

	return &cfg, nil
}

// BulkWriteTimeout is the write deadline for a full /send-bulk request:
// every entry may spend the resolver and SMTP timeouts plus the inter-send
// delay, on top of the ordinary response budget.
func (c *Config) BulkWriteTimeout() time.Duration {
	perEntry := c.SMTP.Timeout + c.Resolver.Timeout + c.Bulk.Delay
	return time.Duration(c.Bulk.MaxEmails)*perEntry + c.API.WriteTimeout
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if c.Sender.Address == "" {
		return errors.New("sender.address is required")
	}
	if c.Sender.Domain == "" {
		return errors.New("sender.domain is required")
	}
	if c.Bulk.MaxEmails <= 0 {
		return errors.New("bulk.max_emails must be positive")
	}
	if c.RateLimit.MaxRequests <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate_limit.max_requests and rate_limit.window must be positive")
	}

	switch c.Transport.Type {
	case "smtp":
		if c.SMTP.Host == "" {
			return errors.New("smtp.host is required for the smtp transport")
		}
		if c.SMTP.Port <= 0 {
			return errors.New("smtp.port must be positive")
		}
	case "ses":
		if c.Transport.SESRegion == "" {
			return errors.New("transport.ses_region is required for the ses transport")
		}
	case "stdout", "file":
	default:
		return fmt.Errorf("unknown transport type: %s", c.Transport.Type)
	}

	if c.DKIM.Enabled() && c.DKIM.Selector == "" {
		return errors.New("dkim.selector is required when a DKIM key is configured")
	}

	return nil
}
