package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.yaml.in/yaml/v4"
)

const envPrefix = "SHIPDESK"

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Email    EmailConfig    `yaml:"email"`
	ShipDesk ShipDeskConfig `yaml:"shipdesk"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

type KafkaConfig struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port"`
	ShipmentScannedTopicName string `yaml:"shipment_scanned_topic_name"`
	EmailRequestedTopicName  string `yaml:"email_requested_topic_name"`
}

func (k KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type EmailConfig struct {
	// "log" | "smtp" | "resend" | "kafka" (kafka — письма уходят в shipdesk-mailer)
	Transport  string `yaml:"transport"`
	APIBaseURL string `yaml:"api_base_url"`
	APIKey     string `yaml:"api_key"`
	From       string `yaml:"from"`

	RateLimitPerDomainPerMinute int `yaml:"rate_limit_per_domain_per_minute"`
	// очередь и воркеры только у in-process mailer в shipdesk-api
	QueueSize   int `yaml:"queue_size"`
	Concurrency int `yaml:"concurrency"`

	SendTimeoutSeconds int `yaml:"send_timeout_seconds"`

	Backoff1Seconds int `yaml:"backoff_1_seconds"`
	Backoff2Seconds int `yaml:"backoff_2_seconds"`
	Backoff3Seconds int `yaml:"backoff_3_seconds"`
	MaxAttempts     int `yaml:"max_attempts"`
}

type ShipDeskConfig struct {
	HTTPAddr                string `yaml:"http_addr"`
	KafkaConsumerGroup      string `yaml:"kafka_consumer_group"`
	CurrentStatusTTLSeconds int    `yaml:"current_status_ttl_seconds"`

	JWTSecret             string `yaml:"jwt_secret"`
	ProfileTimeoutSeconds int    `yaml:"profile_timeout_seconds"`

	MailerHTTPAddr      string `yaml:"mailer_http_addr"`
	MailerConsumerGroup string `yaml:"mailer_consumer_group"`
}

func (c ShipDeskConfig) CurrentStatusTTL() time.Duration {
	return time.Duration(c.CurrentStatusTTLSeconds) * time.Second
}

// secrets: то, что не хранят в YAML: SHIPDESK_DATABASE_PASSWORD, SHIPDESK_JWT_SECRET и т.д.
// Пустая переменная не перетирает значение из файла.
type secrets struct {
	DatabasePassword string `envconfig:"DATABASE_PASSWORD"`
	SMTPPassword     string `envconfig:"SMTP_PASSWORD"`
	EmailAPIKey      string `envconfig:"EMAIL_API_KEY"`
	JWTSecret        string `envconfig:"JWT_SECRET"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	if err := applyEnv(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func applyEnv(cfg *Config) error {
	var s secrets
	if err := envconfig.Process(envPrefix, &s); err != nil {
		return fmt.Errorf("failed to read env overrides: %w", err)
	}
	if s.DatabasePassword != "" {
		cfg.Database.Password = s.DatabasePassword
	}
	if s.SMTPPassword != "" {
		cfg.SMTP.Password = s.SMTPPassword
	}
	if s.EmailAPIKey != "" {
		cfg.Email.APIKey = s.EmailAPIKey
	}
	if s.JWTSecret != "" {
		cfg.ShipDesk.JWTSecret = s.JWTSecret
	}
	return nil
}
