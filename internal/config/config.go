package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all the configuration for the application.
type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"production"`
	HTTPServer `yaml:"http_server"`
	Database   `yaml:"database"`
	Redis      `yaml:"redis"`
	RateLimit  `yaml:"rate_limit"`
	Geo        `yaml:"geo"`
	Analytics  `yaml:"analytics"`
	UserAgent  `yaml:"user_agent"`
	Auth       `yaml:"auth"`
}

// HTTPServer holds HTTP listener settings.
type HTTPServer struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"10s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" env:"HTTP_MAX_HEADER_BYTES" env-default:"16384"`
}

// Database holds datastore connection settings.
type Database struct {
	Driver          string `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`
	Host            string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port            int    `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User            string `yaml:"user" env:"DB_USER" env-default:"postgres"`
	Password        string `yaml:"password" env:"DB_PASSWORD"`
	DBName          string `yaml:"dbname" env:"DB_NAME" env-default:"clixy"`
	SSLMode         string `yaml:"sslmode" env:"DB_SSLMODE" env-default:"disable"`
	Timezone        string `yaml:"timezone" env:"DB_TIMEZONE" env-default:"UTC"`
	SQLitePath      string `yaml:"sqlite_path" env:"DB_SQLITE_PATH" env-default:"clixy.db"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"20"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" env-default:"1h"`
	AutoMigrate     bool   `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE" env-default:"false"`
	SeedData        bool   `yaml:"seed_data" env:"DB_SEED_DATA" env-default:"false"`
}

// Redis holds the optional shared cache settings. An empty Addr disables Redis.
type Redis struct {
	Addr         string        `yaml:"addr" env:"REDIS_ADDR"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB           int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	LinkCacheTTL time.Duration `yaml:"link_cache_ttl" env:"REDIS_LINK_CACHE_TTL" env-default:"0s"`
}

// RateLimit configures the per-slug fixed window limiter.
type RateLimit struct {
	Backend       string        `yaml:"backend" env:"RATE_LIMIT_BACKEND" env-default:"memory"`
	Window        time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW" env-default:"60s"`
	MaxHits       int64         `yaml:"max_hits" env:"RATE_LIMIT_MAX_HITS" env-default:"30"`
	MaxKeys       int           `yaml:"max_keys" env:"RATE_LIMIT_MAX_KEYS" env-default:"100000"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"RATE_LIMIT_SWEEP_INTERVAL" env-default:"5m"`
}

// Geo configures country resolution.
type Geo struct {
	// DisableEdgeHeaders ignores CDN country headers, for deployments not behind Vercel or Cloudflare.
	DisableEdgeHeaders bool          `yaml:"disable_edge_headers" env:"GEO_DISABLE_EDGE_HEADERS"`
	EdgeHeaders        []string      `yaml:"edge_headers" env:"GEO_EDGE_HEADERS" env-separator:"," env-default:"X-Vercel-IP-Country,CF-IPCountry"`
	Endpoint           string        `yaml:"endpoint" env:"GEO_ENDPOINT" env-default:"http://ip-api.com/json"`
	Timeout            time.Duration `yaml:"timeout" env:"GEO_TIMEOUT" env-default:"2s"`
	RequestsPerMinute  int           `yaml:"requests_per_minute" env:"GEO_REQUESTS_PER_MINUTE" env-default:"40"`
	MMDBPath           string        `yaml:"mmdb_path" env:"GEO_MMDB_PATH"`
}

// Analytics configures the background click capture workers.
type Analytics struct {
	WorkerCount     int           `yaml:"worker_count" env:"ANALYTICS_WORKERS" env-default:"4"`
	BufferSize      int           `yaml:"buffer_size" env:"ANALYTICS_BUFFER_SIZE" env-default:"1024"`
	RetryAttempts   int           `yaml:"retry_attempts" env:"ANALYTICS_RETRY_ATTEMPTS" env-default:"1"`
	RetryDelay      time.Duration `yaml:"retry_delay" env:"ANALYTICS_RETRY_DELAY" env-default:"500ms"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"ANALYTICS_WRITE_TIMEOUT" env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"ANALYTICS_SHUTDOWN_TIMEOUT" env-default:"10s"`
	VisitorSalt     string        `yaml:"visitor_salt" env:"ANALYTICS_VISITOR_SALT"`
}

// UserAgent configures the User-Agent parser.
type UserAgent struct {
	// RegexesPath points at a uap-core regexes.yaml. Empty uses the definitions bundled with uap-go.
	RegexesPath string `yaml:"regexes_path" env:"UA_REGEXES_PATH"`
}

// Auth configures bearer token validation for the stats API.
type Auth struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"JWT_ISSUER"`

	// AllowedOrigins may call the stats API from a browser.
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:3000"`
}

// MustLoad loads the application configuration.
func MustLoad() *Config {
	// Try to load .env file (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment variables")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/local.yml"
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot load config: %s", err)
	}
	return cfg
}

// Load reads configuration from path when it exists, otherwise from the environment only.
func Load(path string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		log.Println("Config file not found, using environment variables only")
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read config from environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("rate_limit.backend is redis but redis.addr is empty")
		}
	default:
		return fmt.Errorf("unknown rate_limit.backend %q", c.RateLimit.Backend)
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}

	if c.RateLimit.Window <= 0 || c.RateLimit.MaxHits <= 0 {
		return fmt.Errorf("rate_limit.window and rate_limit.max_hits must be positive")
	}
	return nil
}
