package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Backend names shared by the MQ and storage sections.
const (
	BackendNone     = "none"
	BackendRabbitMQ = "rabbitmq"
	BackendPubSub   = "pubsub"
	BackendMinio    = "minio"
	BackendGCS      = "gcs"
)

type Config struct {
	Env        string `envconfig:"ENV" default:"prod"`
	ServerPort int    `envconfig:"SERVER_PORT" default:"8080"`

	Database  DatabaseConfig  `ignored:"true"`
	Auth      AuthConfig      `ignored:"true"`
	Log       LogConfig       `ignored:"true"`
	RateLimit RateLimitConfig `ignored:"true"`
	MQ        MQConfig        `ignored:"true"`
	RabbitMQ  RabbitMQConfig  `ignored:"true"`
	PubSub    PubSubConfig    `ignored:"true"`
	Storage   StorageConfig   `ignored:"true"`
	Minio     MinioConfig     `ignored:"true"`
	GCS       GCSConfig       `ignored:"true"`
}

type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"messagely"`
	Password string `envconfig:"DB_PASSWORD" default:"password"`
	DBName   string `envconfig:"DB_NAME" default:"messagely"`
	UseSSL   bool   `envconfig:"DB_USE_SSL" default:"false"`
}

type AuthConfig struct {
	// JWTSecret signs session tokens. The server refuses to start without it.
	JWTSecret string        `envconfig:"JWT_SECRET"`
	TokenTTL  time.Duration `envconfig:"JWT_TTL" default:"24h"`
	// BcryptWorkFactor is the bcrypt cost used for new password hashes.
	BcryptWorkFactor int `envconfig:"BCRYPT_WORK_FACTOR" default:"12"`
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

type RateLimitConfig struct {
	// AuthPerMinute bounds login and registration attempts per client IP.
	AuthPerMinute float64 `envconfig:"AUTH_RATE_PER_MINUTE" default:"10"`
	AuthBurst     int     `envconfig:"AUTH_RATE_BURST" default:"5"`
}

type MQConfig struct {
	// Backend is one of "none", "rabbitmq" or "pubsub".
	Backend string `envconfig:"MQ_BACKEND" default:"none"`
}

type RabbitMQConfig struct {
	URL             string `envconfig:"RABBITMQ_URL"`
	PrefetchCount   int    `envconfig:"RABBITMQ_PREFETCH" default:"16"`
	QueueDurable    bool   `envconfig:"RABBITMQ_QUEUE_DURABLE" default:"true"`
	QueueAutoDelete bool   `envconfig:"RABBITMQ_QUEUE_AUTO_DELETE" default:"false"`
}

type PubSubConfig struct {
	ProjectID          string `envconfig:"PUBSUB_PROJECT_ID"`
	CredentialsFile    string `envconfig:"PUBSUB_CREDENTIALS_FILE"`
	SubscriptionSuffix string `envconfig:"PUBSUB_SUBSCRIPTION_SUFFIX" default:"-sub"`
}

type StorageConfig struct {
	// Backend is one of "none", "minio" or "gcs".
	Backend string `envconfig:"STORAGE_BACKEND" default:"none"`
}

type MinioConfig struct {
	Endpoint  string `envconfig:"MINIO_ENDPOINT"`
	AccessKey string `envconfig:"MINIO_ACCESS_KEY"`
	SecretKey string `envconfig:"MINIO_SECRET_KEY"`
	Bucket    string `envconfig:"MINIO_BUCKET" default:"messagely-archives"`
	UseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

type GCSConfig struct {
	ProjectID       string `envconfig:"GCS_PROJECT_ID"`
	Bucket          string `envconfig:"GCS_BUCKET"`
	CredentialsFile string `envconfig:"GCS_CREDENTIALS_FILE"`
}

// LoadConfig reads configuration from the environment. In dev a local .env
// file is loaded first; variables already set in the environment win.
func LoadConfig() (Config, error) {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	var cfg Config
	sections := []any{
		&cfg,
		&cfg.Database,
		&cfg.Auth,
		&cfg.Log,
		&cfg.RateLimit,
		&cfg.MQ,
		&cfg.RabbitMQ,
		&cfg.PubSub,
		&cfg.Storage,
		&cfg.Minio,
		&cfg.GCS,
	}
	for _, section := range sections {
		if err := envconfig.Process("", section); err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
	}
	return cfg, nil
}

// IsDev reports whether the process runs in the dev environment.
func (c Config) IsDev() bool {
	return c.Env == "dev"
}
