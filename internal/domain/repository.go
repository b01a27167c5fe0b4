package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence. Decisions and
// fraud reports are append-only: the interface exposes no update or delete
// for them.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	CountTransactionsByPayer(ctx context.Context, payerID string, since time.Time) (int64, error)

	// Rule operations. SaveRule upserts; rule ordering (priority, seq)
	// must survive a storage round-trip.
	SaveRule(ctx context.Context, rule *Rule) error
	GetRule(ctx context.Context, ruleID string) (*Rule, error)
	ListRules(ctx context.Context) ([]*Rule, error)
	DeleteRule(ctx context.Context, ruleID string) error

	// Decision operations (append-only)
	SaveDecision(ctx context.Context, d *Decision) error
	GetDecision(ctx context.Context, id string) (*Decision, error)

	// Fraud report operations (append-only)
	SaveFraudReport(ctx context.Context, r *FraudReport) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `yaml:"driver" validate:"oneof=sqlite postgres"`

	// SQLite specific
	SQLitePath string `yaml:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `yaml:"postgres_host"`
	PostgresPort     int    `yaml:"postgres_port"`
	PostgresUser     string `yaml:"postgres_user"`
	PostgresPassword string `yaml:"postgres_password"`
	PostgresDB       string `yaml:"postgres_db"`
	PostgresSSLMode  string `yaml:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}
