package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Queue backends
const (
	QueueBackendSQS   = "sqs"
	QueueBackendRedis = "redis"
)

// Email providers
const (
	EmailProviderSMTP = "smtp"
	EmailProviderSES  = "ses"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis config
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Queue config
	QueueBackend  string // sqs or redis
	SQSRegion     string
	SQSQueueURL   string
	RedisQueueKey string

	// Email delivery
	EmailProvider string // smtp or ses
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPFrom      string

	// AWS Services
	AWSRegion    string
	SESFromEmail string
	SNSRegion    string
	SMSEnabled   bool
	PushTopicARN string // empty disables push delivery

	// Rule engine limits
	RuleMaxRecipients       int
	RuleDispatchConcurrency int
	UserPageSize            int

	RateLimitPerMinute int
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		DBHost:    "localhost",
		DBPort:    5432,
		DBUser:    "opsuite",
		DBName:    "opsuite",
		DBSSLMode: "disable",

		RedisHost: "localhost",
		RedisPort: 6379,

		QueueBackend:  QueueBackendRedis,
		RedisQueueKey: "opsuite:notifications",

		EmailProvider: EmailProviderSMTP,
		SMTPHost:      "localhost",
		SMTPPort:      587,
		SMTPFrom:      "noreply@opsuite.local",

		AWSRegion:    "us-east-1",
		SESFromEmail: "noreply@opsuite.local",

		RuleMaxRecipients:       5000,
		RuleDispatchConcurrency: 8,
		UserPageSize:            500,

		RateLimitPerMinute: 100,
	}

	var err error

	if port := os.Getenv("PORT"); port != "" {
		if cfg.Port, err = strconv.Atoi(port); err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		if cfg.DBPort, err = strconv.Atoi(port); err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		if cfg.RedisPort, err = strconv.Atoi(port); err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		if cfg.RedisDB, err = strconv.Atoi(db); err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
	}

	// Queue config
	if backend := os.Getenv("QUEUE_BACKEND"); backend != "" {
		if backend != QueueBackendSQS && backend != QueueBackendRedis {
			return nil, fmt.Errorf("invalid QUEUE_BACKEND %q: must be sqs or redis", backend)
		}
		cfg.QueueBackend = backend
	}

	if key := os.Getenv("REDIS_QUEUE_KEY"); key != "" {
		cfg.RedisQueueKey = key
	}

	if url := os.Getenv("SQS_QUEUE_URL"); url != "" {
		cfg.SQSQueueURL = url
	}

	if cfg.QueueBackend == QueueBackendSQS && cfg.SQSQueueURL == "" {
		return nil, fmt.Errorf("SQS_QUEUE_URL is required when QUEUE_BACKEND=sqs")
	}

	// Email config
	if provider := os.Getenv("EMAIL_PROVIDER"); provider != "" {
		if provider != EmailProviderSMTP && provider != EmailProviderSES {
			return nil, fmt.Errorf("invalid EMAIL_PROVIDER %q: must be smtp or ses", provider)
		}
		cfg.EmailProvider = provider
	}

	if host := os.Getenv("SMTP_HOST"); host != "" {
		cfg.SMTPHost = host
	}

	if port := os.Getenv("SMTP_PORT"); port != "" {
		if cfg.SMTPPort, err = strconv.Atoi(port); err != nil {
			return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
		}
	}

	if user := os.Getenv("SMTP_USERNAME"); user != "" {
		cfg.SMTPUsername = user
	}

	if pass := os.Getenv("SMTP_PASSWORD"); pass != "" {
		cfg.SMTPPassword = pass
	}

	if from := os.Getenv("SMTP_FROM"); from != "" {
		cfg.SMTPFrom = from
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	if from := os.Getenv("SES_FROM_EMAIL"); from != "" {
		cfg.SESFromEmail = from
	}

	if region := os.Getenv("SQS_REGION"); region != "" {
		cfg.SQSRegion = region
	} else {
		cfg.SQSRegion = cfg.AWSRegion
	}

	if region := os.Getenv("SNS_REGION"); region != "" {
		cfg.SNSRegion = region
	} else {
		cfg.SNSRegion = cfg.AWSRegion
	}

	if enabled := os.Getenv("SMS_ENABLED"); enabled != "" {
		if cfg.SMSEnabled, err = strconv.ParseBool(enabled); err != nil {
			return nil, fmt.Errorf("invalid SMS_ENABLED: %w", err)
		}
	}

	if arn := os.Getenv("PUSH_TOPIC_ARN"); arn != "" {
		cfg.PushTopicARN = arn
	}

	// Rule engine limits
	if cfg.RuleMaxRecipients, err = positiveInt("RULE_MAX_RECIPIENTS", cfg.RuleMaxRecipients); err != nil {
		return nil, err
	}
	if cfg.RuleDispatchConcurrency, err = positiveInt("RULE_DISPATCH_CONCURRENCY", cfg.RuleDispatchConcurrency); err != nil {
		return nil, err
	}
	if cfg.UserPageSize, err = positiveInt("USER_PAGE_SIZE", cfg.UserPageSize); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = positiveInt("RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute); err != nil {
		return nil, err
	}

	return cfg, nil
}

func positiveInt(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive, got %d", name, v)
	}
	return v, nil
}
