package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Pool       PoolConfig       `mapstructure:"pool"`
	Forwarding ForwardingConfig `mapstructure:"forwarding"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // "mysql" or "sqlite"
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Path     string `mapstructure:"path"` // sqlite file path
}

// TelegramConfig holds the protocol client selection, the session artifact
// location and the connect timeout passed to the client.
type TelegramConfig struct {
	// Driver selects the protocol client implementation. "inproc" runs
	// against the in-process network; MTProto adapters register their own
	// name.
	Driver         string        `mapstructure:"driver"`
	SessionsPath   string        `mapstructure:"sessions_path"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// PoolConfig holds account pool tuning.
type PoolConfig struct {
	DailyLimit          int           `mapstructure:"daily_limit"`
	ErrorThreshold      int           `mapstructure:"error_threshold"`
	AutoReconnect       bool          `mapstructure:"auto_reconnect"`
	ReconnectBaseDelay  time.Duration `mapstructure:"reconnect_base_delay"`
	ReconnectMaxDelay   time.Duration `mapstructure:"reconnect_max_delay"`
	ReconnectMaxRetries int           `mapstructure:"reconnect_max_retries"`
	CheckInterval       time.Duration `mapstructure:"check_interval"`
}

// ForwardingConfig holds forwarding engine tuning.
type ForwardingConfig struct {
	DestinationDelay time.Duration `mapstructure:"destination_delay"`
	MaxFloodWait     time.Duration `mapstructure:"max_flood_wait"`
	ExcerptLength    int           `mapstructure:"excerpt_length"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	// .env is optional; real environment wins either way
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("database.driver", "mysql")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)
	viper.SetDefault("database.path", "data/tg-tool-bot.db")

	viper.SetDefault("telegram.driver", "inproc")
	viper.SetDefault("telegram.sessions_path", "sessions")
	viper.SetDefault("telegram.connect_timeout", "30s")

	viper.SetDefault("pool.daily_limit", 45)
	viper.SetDefault("pool.error_threshold", 5)
	viper.SetDefault("pool.auto_reconnect", true)
	viper.SetDefault("pool.reconnect_base_delay", "1s")
	viper.SetDefault("pool.reconnect_max_delay", "60s")
	viper.SetDefault("pool.reconnect_max_retries", 10)
	viper.SetDefault("pool.check_interval", "5m")

	viper.SetDefault("forwarding.destination_delay", "1500ms")
	viper.SetDefault("forwarding.max_flood_wait", "300s")
	viper.SetDefault("forwarding.excerpt_length", 250)
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	viper.BindEnv("database.driver", "DB_DRIVER")
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")
	viper.BindEnv("database.path", "DB_PATH")

	viper.BindEnv("telegram.driver", "TG_DRIVER")
	viper.BindEnv("telegram.sessions_path", "TG_SESSIONS_PATH")
	viper.BindEnv("telegram.connect_timeout", "TG_CONNECT_TIMEOUT")

	viper.BindEnv("pool.daily_limit", "POOL_DAILY_LIMIT")
	viper.BindEnv("pool.error_threshold", "POOL_ERROR_THRESHOLD")
	viper.BindEnv("pool.auto_reconnect", "POOL_AUTO_RECONNECT")
	viper.BindEnv("pool.reconnect_base_delay", "POOL_RECONNECT_BASE_DELAY")
	viper.BindEnv("pool.reconnect_max_delay", "POOL_RECONNECT_MAX_DELAY")
	viper.BindEnv("pool.reconnect_max_retries", "POOL_RECONNECT_MAX_RETRIES")
	viper.BindEnv("pool.check_interval", "POOL_CHECK_INTERVAL")

	viper.BindEnv("forwarding.destination_delay", "FORWARDING_DESTINATION_DELAY")
	viper.BindEnv("forwarding.max_flood_wait", "FORWARDING_MAX_FLOOD_WAIT")
	viper.BindEnv("forwarding.excerpt_length", "FORWARDING_EXCERPT_LENGTH")
}

// GetDSN returns the MySQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "mysql":
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host, user, and dbname are required for mysql")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Telegram.Driver == "" {
		return fmt.Errorf("telegram driver is required")
	}
	if c.Telegram.SessionsPath == "" {
		return fmt.Errorf("telegram sessions path is required")
	}

	if c.Pool.DailyLimit <= 0 {
		return fmt.Errorf("pool daily limit must be greater than 0")
	}
	if c.Pool.ReconnectBaseDelay <= 0 || c.Pool.ReconnectMaxDelay < c.Pool.ReconnectBaseDelay {
		return fmt.Errorf("pool reconnect delays are invalid")
	}

	if c.Forwarding.MaxFloodWait <= 0 {
		return fmt.Errorf("forwarding max flood wait must be greater than 0")
	}

	return nil
}
