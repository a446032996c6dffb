package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"local"`
	Storage    string `yaml:"storage" env:"STORAGE" env-default:"memory"`
	Tokens     `yaml:"tokens"`
	HTTPServer `yaml:"http_server"`
	Limits     `yaml:"limits"`
	Postgres   `yaml:"postgres"`
	Redis      `yaml:"redis"`
	RabbitMQ   `yaml:"rabbitmq"`
	S3         `yaml:"s3"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:8080"`
	BasePath    string        `yaml:"base_path" env:"HTTP_BASE_PATH"`
	PublicURL   string        `yaml:"public_url" env:"PUBLIC_URL" env-default:"http://localhost:8080"`
	RateLimit   bool          `yaml:"rate_limit" env:"HTTP_RATE_LIMIT" env-default:"true"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// Tokens.Secret has no default: the signing key must always come from outside.
type Tokens struct {
	Secret     string        `yaml:"secret" env:"JWT_SECRET" env-required:"true"`
	AccessTTL  time.Duration `yaml:"access_ttl" env:"ACCESS_TOKEN_TTL" env-default:"1h"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	ResetTTL   time.Duration `yaml:"reset_ttl" env:"RESET_TOKEN_TTL" env-default:"1h"`
}

type Limits struct {
	MaxChannels int `yaml:"max_channels" env:"MAX_CHANNELS" env-default:"10"`
}

type Postgres struct {
	DSN      string `yaml:"dsn" env:"DATABASE_URL"`
	MaxConns int32  `yaml:"max_conns" env:"DATABASE_MAX_CONNS" env-default:"10"`
	MinConns int32  `yaml:"min_conns" env:"DATABASE_MIN_CONNS" env-default:"2"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type RabbitMQ struct {
	URL            string        `yaml:"url" env:"RABBITMQ_URL"`
	QueueName      string        `yaml:"queue_name" env:"RABBITMQ_QUEUE" env-default:"mail"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout" env:"RABBITMQ_CONFIRM_TIMEOUT" env-default:"5s"`
}

type S3 struct {
	Bucket    string `yaml:"bucket" env:"S3_BUCKET"`
	Region    string `yaml:"region" env:"AWS_REGION" env-default:"us-east-1"`
	Endpoint  string `yaml:"endpoint" env:"S3_ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"AWS_ACCESS_KEY_ID"`
	SecretKey string `yaml:"secret_key" env:"AWS_SECRET_ACCESS_KEY"`
}

type SMTP struct {
	Host     string `yaml:"host" env:"SMTP_HOST" env-required:"true"`
	Port     int    `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	Username string `yaml:"username" env:"SMTP_USER"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"EMAIL_FROM" env-default:"noreply@webpub.local"`
}

type MailSenderConfig struct {
	Env      string `yaml:"env" env:"ENV" env-default:"local"`
	RabbitMQ `yaml:"rabbitmq"`
	SMTP     `yaml:"smtp"`
}

// MustLoad reads the server configuration and panics when it is invalid.
func MustLoad() *Config {
	var cfg Config

	mustRead(fetchConfigPath(), &cfg)

	return &cfg
}

func MustLoadMailSender() *MailSenderConfig {
	var cfg MailSenderConfig

	mustRead(fetchConfigPath(), &cfg)

	return &cfg
}

// Load reads configuration from path, or from the environment alone when path is empty.
func Load(path string, cfg any) error {
	if path == "" {
		return cleanenv.ReadEnv(cfg)
	}

	return cleanenv.ReadConfig(path, cfg)
}

func mustRead(path string, cfg any) {
	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			panic("Config file does not exist: " + path)
		}
	}

	if err := Load(path, cfg); err != nil {
		panic("Failed to read config: " + err.Error())
	}
}

// fetchConfigPath takes the path from the -config flag, then from CONFIG_PATH.
func fetchConfigPath() string {
	var res string

	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.StringVar(&res, "config", "", "path to config file")
	_ = fs.Parse(os.Args[1:])

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
