package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Host        string   `mapstructure:"host"`
		Port        int      `mapstructure:"port"`
		Env         string   `mapstructure:"env"`
		CORSOrigins []string `mapstructure:"cors_origins"`
	} `mapstructure:"server"`

	Database struct {
		Driver       string        `mapstructure:"driver"` // postgres, mysql, sqlite
		DSN          string        `mapstructure:"dsn"`
		MaxOpenConns int           `mapstructure:"max_open_conns"`
		MaxIdleConns int           `mapstructure:"max_idle_conns"`
		ConnMaxLife  time.Duration `mapstructure:"conn_max_lifetime"`
		AutoMigrate  bool          `mapstructure:"auto_migrate"`
	} `mapstructure:"database"`

	Redis RedisConfig `mapstructure:"redis"`

	Queue QueueConfig `mapstructure:"queue"`

	Notification NotificationConfig `mapstructure:"notification"`

	Email struct {
		SMTPHost     string        `mapstructure:"smtp_host"`
		SMTPPort     int           `mapstructure:"smtp_port"`
		SMTPUsername string        `mapstructure:"smtp_user"`
		SMTPPassword string        `mapstructure:"smtp_password"`
		FromEmail    string        `mapstructure:"from_email"`
		FromName     string        `mapstructure:"from_name"`
		UseTLS       bool          `mapstructure:"use_tls"`
		Timeout      time.Duration `mapstructure:"timeout"`
	} `mapstructure:"email"`

	SMS struct {
		AccountSID string `mapstructure:"account_sid"`
		AuthToken  string `mapstructure:"auth_token"`
		FromNumber string `mapstructure:"from_number"`
	} `mapstructure:"sms"`

	RateLimit struct {
		RespondLimit  int64         `mapstructure:"respond_limit"`
		RespondWindow time.Duration `mapstructure:"respond_window"`
	} `mapstructure:"rate_limit"`

	Metrics struct {
		CacheTTL time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"metrics"`

	Events struct {
		AMQPURL  string `mapstructure:"amqp_url"`
		Exchange string `mapstructure:"exchange"`
	} `mapstructure:"events"`

	AuditArchive struct {
		Enabled  bool          `mapstructure:"enabled"`
		Interval time.Duration `mapstructure:"interval"`
		Storage  StorageConfig `mapstructure:"storage"`
	} `mapstructure:"audit_archive"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type QueueConfig struct {
	Engine         string        `mapstructure:"engine"` // gorm, procedures
	WindowMinutes  int           `mapstructure:"window_minutes"`
	WindowSize     int           `mapstructure:"window_size"`
	MaxQueueSize   int           `mapstructure:"max_queue_size"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	LockRetries    int           `mapstructure:"lock_retries"`
	LockRetryDelay time.Duration `mapstructure:"lock_retry_delay"`
	DefaultExpiry  time.Duration `mapstructure:"default_expiry"`
}

// WindowDuration - длительность одного окна ответа
func (q QueueConfig) WindowDuration() time.Duration {
	return time.Duration(q.WindowMinutes) * time.Minute
}

type NotificationConfig struct {
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBatchSize  int           `mapstructure:"retry_batch_size"`
	VAPIDPublicKey  string        `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string        `mapstructure:"vapid_private_key"`
	VAPIDSubject    string        `mapstructure:"vapid_subject"`
	PayloadKeyHex   string        `mapstructure:"payload_key"`
	TemplatesFile   string        `mapstructure:"templates_file"`
}

// PayloadKey декодирует ключ AES-256 для шифрования данных в письмах
func (n NotificationConfig) PayloadKey() ([]byte, error) {
	if n.PayloadKeyHex == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(n.PayloadKeyHex)
	if err != nil {
		return nil, fmt.Errorf("notification.payload_key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("notification.payload_key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

type StorageConfig struct {
	Type      string `mapstructure:"type"`      // local, s3
	BasePath  string `mapstructure:"base_path"` // For local storage
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Endpoint  string `mapstructure:"endpoint"` // custom S3 endpoint (minio, r2)
}

const envPrefix = "SHIFTQ"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.env", "development")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key_prefix", "shiftq")

	v.SetDefault("queue.engine", "gorm")
	v.SetDefault("queue.window_minutes", 15)
	v.SetDefault("queue.window_size", 1)
	v.SetDefault("queue.max_queue_size", 100)
	v.SetDefault("queue.lock_ttl", 30*time.Second)
	v.SetDefault("queue.lock_retries", 3)
	v.SetDefault("queue.lock_retry_delay", 50*time.Millisecond)
	v.SetDefault("queue.default_expiry", 24*time.Hour)

	v.SetDefault("notification.retry_interval", 30*time.Second)
	v.SetDefault("notification.max_retries", 3)
	v.SetDefault("notification.retry_batch_size", 100)
	v.SetDefault("notification.vapid_subject", "mailto:ops@example.com")

	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.from_name", "Shift Offers")
	v.SetDefault("email.use_tls", true)
	v.SetDefault("email.timeout", 30*time.Second)

	v.SetDefault("rate_limit.respond_limit", 10)
	v.SetDefault("rate_limit.respond_window", time.Minute)

	v.SetDefault("metrics.cache_ttl", time.Hour)

	v.SetDefault("events.exchange", "shift_offers")

	v.SetDefault("audit_archive.interval", time.Hour)
	v.SetDefault("audit_archive.storage.type", "local")
	v.SetDefault("audit_archive.storage.base_path", "./audit-archive")
}

var AppConfig *Config

// Load читает конфиг: значения по умолчанию, затем YAML-файл (если есть),
// затем переменные окружения SHIFTQ_*.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	AppConfig = &cfg
	return &cfg, nil
}

// Validate проверяет значения, без которых сервис работать не может
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("database.driver: unsupported %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	switch c.Queue.Engine {
	case "gorm", "procedures":
	default:
		return fmt.Errorf("queue.engine: unsupported %q", c.Queue.Engine)
	}
	if c.Queue.WindowMinutes <= 0 {
		return errors.New("queue.window_minutes must be positive")
	}
	if c.Queue.WindowSize <= 0 {
		return errors.New("queue.window_size must be positive")
	}
	if c.Queue.MaxQueueSize <= 0 {
		return errors.New("queue.max_queue_size must be positive")
	}
	if c.Notification.MaxRetries <= 0 {
		return errors.New("notification.max_retries must be positive")
	}
	if _, err := c.Notification.PayloadKey(); err != nil {
		return err
	}
	if c.Email.SMTPHost != "" && c.Notification.PayloadKeyHex == "" {
		return errors.New("notification.payload_key is required when email is enabled")
	}
	return nil
}

// Addr - адрес HTTP сервера
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func GetConfig() *Config {
	return AppConfig
}
