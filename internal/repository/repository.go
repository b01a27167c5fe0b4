// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openrisk/kestrel/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a transaction. Replays of the same transaction
// id keep the first stored row.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, amount, timestamp, channel, payment_mode,
			payer_id, payee_id, device, browser, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.Amount, tx.Timestamp,
		string(tx.Channel), string(tx.PaymentMode),
		tx.PayerID, tx.PayeeID, tx.Device, tx.Browser,
		tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: save transaction: %v", domain.ErrPersistence, err)
	}
	return nil
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `
		SELECT id, amount, timestamp, channel, payment_mode,
			   payer_id, payee_id, device, browser, created_at
		FROM transactions
		WHERE id = ?
	`

	var tx domain.Transaction
	var channel, paymentMode string

	err := r.db.QueryRowContext(ctx, r.rebind(query), txID).Scan(
		&tx.ID, &tx.Amount, &tx.Timestamp,
		&channel, &paymentMode,
		&tx.PayerID, &tx.PayeeID, &tx.Device, &tx.Browser,
		&tx.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get transaction: %v", domain.ErrPersistence, err)
	}

	tx.Channel = domain.Channel(channel)
	tx.PaymentMode = domain.PaymentMode(paymentMode)
	return &tx, nil
}

// CountTransactionsByPayer counts a payer's transactions since the given
// time. Used as the velocity fallback when the counter cache is cold.
func (r *SQLRepository) CountTransactionsByPayer(ctx context.Context, payerID string, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM transactions
		WHERE payer_id = ? AND timestamp >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), payerID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: count transactions: %v", domain.ErrPersistence, err)
	}
	return count, nil
}

// SaveRule upserts a rule. Predicate literals round-trip through JSON so
// numeric and string values survive storage unchanged.
func (r *SQLRepository) SaveRule(ctx context.Context, rule *domain.Rule) error {
	value, err := json.Marshal(rule.Predicate.Value)
	if err != nil {
		return fmt.Errorf("%w: encode predicate value: %v", domain.ErrPersistence, err)
	}

	active := 0
	if rule.Active {
		active = 1
	}

	query := `
		INSERT INTO rules (
			id, name, description, rule_type, field, operator, value,
			reason, severity, active, priority, seq, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			rule_type = excluded.rule_type,
			field = excluded.field,
			operator = excluded.operator,
			value = excluded.value,
			reason = excluded.reason,
			severity = excluded.severity,
			active = excluded.active,
			priority = excluded.priority,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description,
		string(rule.Type), rule.Predicate.Field, string(rule.Predicate.Operator), string(value),
		rule.Reason, rule.Severity, active, rule.Priority, rule.Seq,
		rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: save rule: %v", domain.ErrPersistence, err)
	}
	return nil
}

// GetRule retrieves a rule by ID.
func (r *SQLRepository) GetRule(ctx context.Context, ruleID string) (*domain.Rule, error) {
	query := ruleSelect + ` WHERE id = ?`

	rule, err := r.scanRule(r.db.QueryRowContext(ctx, r.rebind(query), ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get rule: %v", domain.ErrPersistence, err)
	}
	return rule, nil
}

// ListRules retrieves all rules, active and inactive, in evaluation
// order.
func (r *SQLRepository) ListRules(ctx context.Context) ([]*domain.Rule, error) {
	query := ruleSelect + ` ORDER BY priority, seq`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: list rules: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var rules []*domain.Rule
	for rows.Next() {
		rule, err := r.scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: list rules: %v", domain.ErrPersistence, err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list rules: %v", domain.ErrPersistence, err)
	}
	return rules, nil
}

// DeleteRule removes a rule permanently.
func (r *SQLRepository) DeleteRule(ctx context.Context, ruleID string) error {
	query := `DELETE FROM rules WHERE id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), ruleID)
	if err != nil {
		return fmt.Errorf("%w: delete rule: %v", domain.ErrPersistence, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: delete rule: %v", domain.ErrPersistence, err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const ruleSelect = `
	SELECT id, name, description, rule_type, field, operator, value,
		   reason, severity, active, priority, seq, created_at, updated_at
	FROM rules`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanRule(row rowScanner) (*domain.Rule, error) {
	var rule domain.Rule
	var ruleType, operator, value string
	var active int

	err := row.Scan(
		&rule.ID, &rule.Name, &rule.Description,
		&ruleType, &rule.Predicate.Field, &operator, &value,
		&rule.Reason, &rule.Severity, &active, &rule.Priority, &rule.Seq,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Type = domain.RuleType(ruleType)
	rule.Predicate.Operator = domain.Operator(operator)
	rule.Active = active == 1
	if err := json.Unmarshal([]byte(value), &rule.Predicate.Value); err != nil {
		return nil, fmt.Errorf("decode predicate value for %s: %w", rule.ID, err)
	}

	return &rule, nil
}

// SaveDecision appends a decision. Decisions are never updated; a
// primary key conflict means a duplicate decision id and is an error.
func (r *SQLRepository) SaveDecision(ctx context.Context, d *domain.Decision) error {
	isFraud := 0
	if d.IsFraud {
		isFraud = 1
	}

	query := `
		INSERT INTO decisions (
			id, transaction_id, is_fraud, source, reason, score, rule_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		d.ID, d.TransactionID, isFraud, string(d.Source),
		d.Reason, d.Score, d.RuleID, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: save decision: %v", domain.ErrPersistence, err)
	}
	return nil
}

// GetDecision retrieves a decision by ID.
func (r *SQLRepository) GetDecision(ctx context.Context, id string) (*domain.Decision, error) {
	query := `
		SELECT id, transaction_id, is_fraud, source, reason, score, rule_id, created_at
		FROM decisions
		WHERE id = ?
	`

	var d domain.Decision
	var isFraud int
	var source string

	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&d.ID, &d.TransactionID, &isFraud, &source,
		&d.Reason, &d.Score, &d.RuleID, &d.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get decision: %v", domain.ErrPersistence, err)
	}

	d.IsFraud = isFraud == 1
	d.Source = domain.Source(source)
	return &d, nil
}

// SaveFraudReport appends a fraud report.
func (r *SQLRepository) SaveFraudReport(ctx context.Context, report *domain.FraudReport) error {
	query := `
		INSERT INTO fraud_reports (
			id, transaction_id, reporting_entity_id, details, reported_at
		) VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		report.ID, report.TransactionID, report.ReportingEntityID,
		report.Details, report.ReportedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: save fraud report: %v", domain.ErrPersistence, err)
	}
	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
