package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "LOG_LEVEL", "ENV", "QUEUE_BACKEND", "EMAIL_PROVIDER", "RULE_MAX_RECIPIENTS"} {
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.LogLevel)
	}
	if cfg.Env != "development" {
		t.Errorf("expected env 'development', got %s", cfg.Env)
	}
	if cfg.QueueBackend != QueueBackendRedis {
		t.Errorf("expected redis queue backend, got %s", cfg.QueueBackend)
	}
	if cfg.EmailProvider != EmailProviderSMTP {
		t.Errorf("expected smtp email provider, got %s", cfg.EmailProvider)
	}
	if cfg.RuleMaxRecipients != 5000 {
		t.Errorf("expected 5000 max recipients, got %d", cfg.RuleMaxRecipients)
	}
	if cfg.SNSRegion != cfg.AWSRegion {
		t.Errorf("expected SNS region to default to AWS region, got %s", cfg.SNSRegion)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ENV", "production")
	t.Setenv("QUEUE_BACKEND", "sqs")
	t.Setenv("SQS_QUEUE_URL", "https://sqs.us-east-1.amazonaws.com/123456789/jobs")
	t.Setenv("EMAIL_PROVIDER", "ses")
	t.Setenv("SMS_ENABLED", "true")
	t.Setenv("RULE_DISPATCH_CONCURRENCY", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.LogLevel)
	}
	if cfg.Env != "production" {
		t.Errorf("expected env 'production', got %s", cfg.Env)
	}
	if cfg.QueueBackend != QueueBackendSQS {
		t.Errorf("expected sqs backend, got %s", cfg.QueueBackend)
	}
	if cfg.EmailProvider != EmailProviderSES {
		t.Errorf("expected ses provider, got %s", cfg.EmailProvider)
	}
	if !cfg.SMSEnabled {
		t.Error("expected SMS to be enabled")
	}
	if cfg.RuleDispatchConcurrency != 2 {
		t.Errorf("expected dispatch concurrency 2, got %d", cfg.RuleDispatchConcurrency)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric port", "PORT", "abc"},
		{"unknown queue backend", "QUEUE_BACKEND", "kafka"},
		{"unknown email provider", "EMAIL_PROVIDER", "pigeon"},
		{"zero max recipients", "RULE_MAX_RECIPIENTS", "0"},
		{"bad bool", "SMS_ENABLED", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_SQSRequiresQueueURL(t *testing.T) {
	t.Setenv("QUEUE_BACKEND", "sqs")
	t.Setenv("SQS_QUEUE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when SQS backend has no queue URL")
	}
}
