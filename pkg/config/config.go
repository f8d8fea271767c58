package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	SourceEnv     = "env"
	SourceMySQL   = "mysql"
	SourceBinance = "binance"
	SourceInflux  = "influx"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `env:", prefix=SERVER_"`
	Scanner  ScannerConfig
	Cache    CacheConfig
	Exchange ExchangeConfig `env:", prefix=EXCHANGE_"`
	MySQL    MySQLConfig    `env:", prefix=MYSQL_"`
	InfluxDB InfluxConfig   `env:", prefix=INFLUXDB_"`
	Redis    RedisConfig    `env:", prefix=REDIS_"`
	Security SecurityConfig `env:", prefix=SECURITY_"`
	Logging  LoggingConfig  `env:", prefix=LOG_"`

	// Optional YAML overlay, see applyFile
	File string `env:"CONFIG_FILE"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string        `env:"HOST, default=0.0.0.0"`
	Port         int           `env:"PORT, default=8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=3m"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT, default=120s"`
}

// ScannerConfig holds the instrument matrix and detection parameters
type ScannerConfig struct {
	Symbols    []string   `env:"SYMBOLS, default=BTCUSDT,ETHUSDT,SOLUSDT"`
	Timeframes Timeframes `env:"TIMEFRAMES, default=15m:500,1h:500,4h:500,1d:500"`
	RSIPeriod  int        `env:"RSI_PERIOD, default=14"`
	Lookback   int        `env:"LB_L, default=5"`
	Lookahead  int        `env:"LB_R, default=5"`
	RangeLower int        `env:"RANGE_LOWER, default=5"`
	RangeUpper int        `env:"RANGE_UPPER, default=60"`

	Workers         int           `env:"SCAN_WORKERS, default=1"`
	RequestInterval time.Duration `env:"SCAN_REQUEST_INTERVAL, default=200ms"`
	Timeout         time.Duration `env:"SCAN_TIMEOUT, default=2m"`

	SymbolsSource string `env:"SYMBOLS_SOURCE, default=env"`
	DataSource    string `env:"DATA_SOURCE, default=binance"`
}

// CacheConfig holds result cache configuration
type CacheConfig struct {
	TTL         Seconds `env:"CACHE_TTL, default=30"`
	RefreshCron string  `env:"REFRESH_CRON"`
}

// ExchangeConfig holds exchange configuration
type ExchangeConfig struct {
	Timeout    time.Duration `env:"TIMEOUT, default=10s"`
	MaxRetries int           `env:"MAX_RETRIES, default=3"`
	RetryDelay time.Duration `env:"RETRY_DELAY, default=1s"`

	Binance BinanceConfig
}

// BinanceConfig holds Binance-specific configuration
type BinanceConfig struct {
	APIKey    string `env:"BINANCE_API_KEY"`
	SecretKey string `env:"BINANCE_SECRET_KEY"`
	APIURL    string `env:"BINANCE_API_URL, default=https://api.binance.com"`
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	Host            string        `env:"HOST, default=localhost"`
	Port            int           `env:"PORT, default=3306"`
	Database        string        `env:"DATABASE, default=trading"`
	User            string        `env:"USER, default=trading"`
	Password        string        `env:"PASSWORD"`
	Exchange        string        `env:"SYMBOLS_EXCHANGE, default=binance"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS, default=5"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS, default=2"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME, default=5m"`
}

// InfluxConfig holds InfluxDB configuration
type InfluxConfig struct {
	URL     string        `env:"URL, default=http://localhost:8086"`
	Token   string        `env:"TOKEN"`
	Org     string        `env:"ORG, default=trading-org"`
	Bucket  string        `env:"BUCKET, default=trading"`
	Timeout time.Duration `env:"TIMEOUT, default=10s"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled      bool          `env:"ENABLED, default=false"`
	Host         string        `env:"HOST, default=localhost"`
	Port         int           `env:"PORT, default=6379"`
	Password     string        `env:"PASSWORD"`
	DB           int           `env:"DB, default=0"`
	Key          string        `env:"SNAPSHOT_KEY, default=divergences:snapshot"`
	PoolSize     int           `env:"POOL_SIZE, default=10"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT, default=5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=3s"`
}

// SecurityConfig holds CORS configuration
type SecurityConfig struct {
	CORSEnabled bool     `env:"CORS_ENABLED, default=true"`
	CORSOrigins []string `env:"CORS_ORIGINS, default=*"`
	CORSMethods []string `env:"CORS_METHODS, default=GET,OPTIONS"`
	CORSHeaders []string `env:"CORS_HEADERS, default=Content-Type"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `env:"LEVEL, default=info"`
	Format string `env:"FORMAT, default=json"`
	Output string `env:"OUTPUT, default=stdout"`
}

// Load loads configuration from environment variables using go-envconfig
func Load() (*Config, error) {
	return LoadWith(context.Background(), envconfig.OsLookuper())
}

// LoadWith loads configuration from the given lookuper
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	// Hosting platforms inject a bare PORT
	if _, ok := lookuper.Lookup("SERVER_PORT"); !ok {
		if v, ok := lookuper.Lookup("PORT"); ok {
			port, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("invalid PORT %q: %w", v, err)
			}
			cfg.Server.Port = port
		}
	}

	if cfg.File != "" {
		if err := applyFile(&cfg, cfg.File, lookuper); err != nil {
			return nil, fmt.Errorf("failed to apply config file: %w", err)
		}
	}

	cfg.Scanner.Symbols = NormalizeSymbols(cfg.Scanner.Symbols)
	cfg.Scanner.SymbolsSource = strings.ToLower(strings.TrimSpace(cfg.Scanner.SymbolsSource))
	cfg.Scanner.DataSource = strings.ToLower(strings.TrimSpace(cfg.Scanner.DataSource))

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	s := c.Scanner
	switch s.SymbolsSource {
	case SourceEnv:
		if len(s.Symbols) == 0 {
			return fmt.Errorf("at least one symbol is required")
		}
	case SourceMySQL:
	default:
		return fmt.Errorf("unknown symbols source %q", s.SymbolsSource)
	}

	switch s.DataSource {
	case SourceBinance, SourceInflux:
	default:
		return fmt.Errorf("unknown data source %q", s.DataSource)
	}

	if len(s.Timeframes) == 0 {
		return fmt.Errorf("at least one timeframe is required")
	}
	for _, tf := range s.Timeframes {
		if tf.Bars <= 0 {
			return fmt.Errorf("timeframe %s: bar count must be positive", tf.Interval)
		}
	}

	if s.RSIPeriod < 1 {
		return fmt.Errorf("RSI period must be at least 1, got %d", s.RSIPeriod)
	}
	if s.Lookback < 1 || s.Lookahead < 1 {
		return fmt.Errorf("pivot windows must be at least 1, got %d/%d", s.Lookback, s.Lookahead)
	}
	if s.RangeLower < 1 || s.RangeLower > s.RangeUpper {
		return fmt.Errorf("invalid pivot distance range [%d, %d]", s.RangeLower, s.RangeUpper)
	}
	if s.Workers < 1 {
		return fmt.Errorf("scan workers must be at least 1, got %d", s.Workers)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("scan timeout must be positive")
	}

	if c.Cache.TTL.Duration() <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}

	if s.DataSource == SourceBinance && c.Exchange.Binance.APIURL == "" {
		return fmt.Errorf("Binance API URL is required")
	}
	if s.DataSource == SourceInflux && c.InfluxDB.URL == "" {
		return fmt.Errorf("InfluxDB URL is required")
	}
	if c.Exchange.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	return nil
}

// MinBars is the shortest series the detector evaluates
func (c *Config) MinBars() int {
	return c.Scanner.RSIPeriod + c.Scanner.Lookback + c.Scanner.Lookahead
}

// GetMySQLDSN returns MySQL DSN string
func (c *Config) GetMySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		c.MySQL.User,
		c.MySQL.Password,
		c.MySQL.Host,
		c.MySQL.Port,
		c.MySQL.Database,
	)
}

// GetRedisAddr returns Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// GetServerAddr returns server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// NormalizeSymbols trims and upper-cases symbols, dropping blanks
func NormalizeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func lookupSet(lookuper envconfig.Lookuper, key string) bool {
	_, ok := lookuper.Lookup(key)
	return ok
}
