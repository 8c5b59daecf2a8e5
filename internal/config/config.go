package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the full configuration surface for the application.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Scylla    ScyllaConfig    `mapstructure:"scylla"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Bulk      BulkConfig      `mapstructure:"bulk"`
	Vonage    VonageConfig    `mapstructure:"vonage"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Voicemail VoicemailConfig `mapstructure:"voicemail"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	Version  string `mapstructure:"version"`
	LogLevel string `mapstructure:"log_level"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	BodyLimit    int           `mapstructure:"body_limit"`
	// PublicBaseURL is the externally reachable origin used to build webhook URLs.
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

type ScyllaConfig struct {
	Hosts             []string      `mapstructure:"hosts"`
	Port              int           `mapstructure:"port"`
	Keyspace          string        `mapstructure:"keyspace"`
	Consistency       string        `mapstructure:"consistency"`
	Timeout           time.Duration `mapstructure:"timeout"`
	DisableInitSchema bool          `mapstructure:"disable_init_schema"`
	// HistoryTTL expires archived calls; zero keeps them forever.
	HistoryTTL time.Duration `mapstructure:"history_ttl"`
}

type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	ClientID        string        `mapstructure:"client_id"`
	EventsTopic     string        `mapstructure:"events_topic"`
	ConsumerGroupID string        `mapstructure:"consumer_group_id"`
	CommitInterval  time.Duration `mapstructure:"commit_interval"`
	Partitions      int           `mapstructure:"partitions"`
	// PublishBuffer bounds the number of events waiting for the Kafka writer.
	PublishBuffer int `mapstructure:"publish_buffer"`
}

type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

type TelemetryConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	ServiceName     string        `mapstructure:"service_name"`
	SampleRatio     float64       `mapstructure:"sample_ratio"`
	MetricsEnabled  bool          `mapstructure:"metrics_enabled"`
	TracingEnabled  bool          `mapstructure:"tracing_enabled"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SchedulerConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	MaxBatchSize int           `mapstructure:"max_batch_size"`
	// CallingWindowStart and CallingWindowEnd are "HH:MM" in the operator's time zone.
	CallingWindowStart string `mapstructure:"calling_window_start"`
	CallingWindowEnd   string `mapstructure:"calling_window_end"`
}

type BulkConfig struct {
	DefaultDelay  time.Duration `mapstructure:"default_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	MaxUploadRows int           `mapstructure:"max_upload_rows"`
}

type VonageConfig struct {
	// Provider selects the placement client: "vonage" or "mock".
	Provider       string        `mapstructure:"provider"`
	APIURL         string        `mapstructure:"api_url"`
	ApplicationID  string        `mapstructure:"application_id"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	FromNumber     string        `mapstructure:"from_number"`
	ForwardTo      string        `mapstructure:"forward_to"`
	Greeting       string        `mapstructure:"greeting"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type AuthConfig struct {
	Secret     string        `mapstructure:"secret"`
	Issuer     string        `mapstructure:"issuer"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
}

type VoicemailConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	DefaultMessage string `mapstructure:"default_message"`
	AgentName      string `mapstructure:"agent_name"`
	CompanyName    string `mapstructure:"company_name"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("VYNCE")
	v.SetEnvKeyReplacer(NewEnvReplacer())

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "vynce")
	v.SetDefault("app.env", "development")
	v.SetDefault("http.port", 3000)
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.body_limit", 10*1024*1024)
	v.SetDefault("kafka.events_topic", "vynce.call-events")
	v.SetDefault("kafka.consumer_group_id", "vynce-archiver")
	v.SetDefault("kafka.partitions", 12)
	v.SetDefault("kafka.publish_buffer", 1024)
	v.SetDefault("redis.key_prefix", "vynce")
	v.SetDefault("scylla.consistency", "local_quorum")
	v.SetDefault("scheduler.tick_interval", 5*time.Second)
	v.SetDefault("scheduler.max_batch_size", 20)
	v.SetDefault("bulk.default_delay", 1500*time.Millisecond)
	v.SetDefault("bulk.max_delay", 60*time.Second)
	v.SetDefault("bulk.max_upload_rows", 20000)
	v.SetDefault("vonage.provider", "vonage")
	v.SetDefault("vonage.api_url", "https://api.nexmo.com")
	v.SetDefault("vonage.request_timeout", 10*time.Second)
	v.SetDefault("auth.issuer", "vynce")
	v.SetDefault("auth.access_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_ttl", 7*24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("voicemail.enabled", true)
	v.SetDefault("voicemail.default_message", "Hello, this is Vynce calling. Please call us back at your earliest convenience. Thank you!")
	v.SetDefault("voicemail.agent_name", "Vynce Agent")
	v.SetDefault("voicemail.company_name", "Vynce")
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Port <= 0 {
		errs = append(errs, errors.New("http.port must be positive"))
	}
	if c.HTTP.PublicBaseURL == "" {
		errs = append(errs, errors.New("http.public_base_url is required for provider webhooks"))
	}
	if c.Bulk.DefaultDelay < 0 || c.Bulk.DefaultDelay > c.Bulk.MaxDelay {
		errs = append(errs, fmt.Errorf("bulk.default_delay must be between 0 and %s", c.Bulk.MaxDelay))
	}
	if len(c.Auth.Secret) < 32 {
		errs = append(errs, errors.New("auth.secret must be at least 32 characters"))
	}
	switch c.Vonage.Provider {
	case "mock":
	case "vonage":
		if c.Vonage.ApplicationID == "" || c.Vonage.PrivateKeyPath == "" {
			errs = append(errs, errors.New("vonage.application_id and vonage.private_key_path are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("vonage.provider %q is not supported", c.Vonage.Provider))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: invalid: %w", errors.Join(errs...))
	}
	return nil
}

// NewEnvReplacer standardizes environment variable names.
func NewEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}
