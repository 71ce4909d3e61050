package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestConfigDSN(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		expected string
	}{
		{
			name:     "with password",
			cfg:      Config{Host: "db", Port: 5432, User: "opsuite", Password: "secret", Database: "opsuite", SSLMode: "disable"},
			expected: "host=db port=5432 user=opsuite password=secret dbname=opsuite sslmode=disable",
		},
		{
			name:     "without password",
			cfg:      Config{Host: "localhost", Port: 5433, User: "app", Database: "inv", SSLMode: "require"},
			expected: "host=localhost port=5433 user=app dbname=inv sslmode=require",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.DSN(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestIsConflict(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"wrapped", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"exclusion violation", &pgconn.PgError{Code: "23P01"}, true},
		{"wrapped exclusion", fmt.Errorf("commit: %w", &pgconn.PgError{Code: "23P01"}), true},
		{"foreign key", &pgconn.PgError{Code: "23503"}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConflict(tt.err); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}
