package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for launchpad.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Wait         WaitConfig         `mapstructure:"wait"`
	Migrations   MigrationsConfig   `mapstructure:"migrations"`
	Dependencies DependenciesConfig `mapstructure:"dependencies"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// ServerConfig describes the application server that launchpad hands off to,
// plus launchpad's own admin listener used in supervise mode.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Command         string        `mapstructure:"command"`
	Args            []string      `mapstructure:"args"`
	AdminPort       int           `mapstructure:"admin_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// WaitConfig tunes the dependency-wait phase.
type WaitConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	OverallTimeout time.Duration `mapstructure:"overall_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

// MigrationsConfig controls the schema-migration phase. When Dir is empty the
// migrations embedded in the binary are used.
type MigrationsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
	Table   string `mapstructure:"table"`
}

type DependenciesConfig struct {
	Postgres PostgresConfig    `mapstructure:"postgres"`
	Redis    RedisConfig       `mapstructure:"redis"`
	NATS     NATSConfig        `mapstructure:"nats"`
	HTTP     []HTTPCheckConfig `mapstructure:"http"`
}

type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type RedisConfig struct {
	DSN string `mapstructure:"dsn"`
}

// NATSConfig is optional: an empty URL means no NATS dependency is waited on.
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// HTTPCheckConfig describes an HTTP endpoint that must answer 2xx before the
// application server starts (e.g. a broker's admin REST surface).
type HTTPCheckConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
	LogLevel     string `mapstructure:"log_level"`
	LogFile      string `mapstructure:"log_file"`
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables with the LAUNCHPAD_ prefix (e.g. LAUNCHPAD_SERVER_PORT).
// The container entrypoint contract predates the prefix, so its bare variable
// names are honored as fallbacks: RUN_MIGRATIONS, HOST, PORT, POSTGRES_DSN
// and REDIS_DSN.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("LAUNCHPAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindLegacyEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// bindLegacyEnv wires the bare entrypoint variables next to the prefixed ones.
// The prefixed name wins when both are set.
func bindLegacyEnv(v *viper.Viper) {
	v.BindEnv("server.host", "LAUNCHPAD_SERVER_HOST", "HOST")                                     //nolint:errcheck
	v.BindEnv("server.port", "LAUNCHPAD_SERVER_PORT", "PORT")                                     //nolint:errcheck
	v.BindEnv("migrations.enabled", "LAUNCHPAD_MIGRATIONS_ENABLED", "RUN_MIGRATIONS")             //nolint:errcheck
	v.BindEnv("dependencies.postgres.dsn", "LAUNCHPAD_DEPENDENCIES_POSTGRES_DSN", "POSTGRES_DSN") //nolint:errcheck
	v.BindEnv("dependencies.redis.dsn", "LAUNCHPAD_DEPENDENCIES_REDIS_DSN", "REDIS_DSN")          //nolint:errcheck
}

func (c *Config) validate() error {
	if c.Dependencies.Postgres.DSN == "" {
		return fmt.Errorf("dependencies.postgres.dsn (POSTGRES_DSN) is required")
	}
	if c.Dependencies.Redis.DSN == "" {
		return fmt.Errorf("dependencies.redis.dsn (REDIS_DSN) is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.Command == "" {
		return fmt.Errorf("server.command is required")
	}
	for _, hc := range c.Dependencies.HTTP {
		if hc.Name == "" || hc.URL == "" {
			return fmt.Errorf("dependencies.http entries need both name and url")
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.command", "app-server")
	v.SetDefault("server.admin_port", 8081)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("wait.connect_timeout", 2*time.Second)
	v.SetDefault("wait.overall_timeout", 60*time.Second)
	v.SetDefault("wait.poll_interval", 1*time.Second)

	v.SetDefault("migrations.enabled", true)
	v.SetDefault("migrations.dir", "")
	v.SetDefault("migrations.table", "schema_migrations")

	v.SetDefault("dependencies.postgres.max_conns", 2)
	v.SetDefault("dependencies.nats.url", "")

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.service_name", "launchpad")
	v.SetDefault("telemetry.log_level", "info")
	v.SetDefault("telemetry.log_file", "")
}
