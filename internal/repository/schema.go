package repository

// Schemas use the portable subset of SQL shared by SQLite and
// PostgreSQL; migrations run on every start and are idempotent.

const transactionsSchema = `
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	amount DOUBLE PRECISION NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	channel TEXT NOT NULL,
	payment_mode TEXT NOT NULL,
	payer_id TEXT NOT NULL DEFAULT '',
	payee_id TEXT NOT NULL DEFAULT '',
	device TEXT NOT NULL DEFAULT '',
	browser TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
`

// Velocity fallback counts scan this index when the cache is cold.
const transactionsPayerIndex = `
CREATE INDEX IF NOT EXISTS idx_transactions_payer_ts
	ON transactions (payer_id, timestamp);
`

const rulesSchema = `
CREATE TABLE IF NOT EXISTS rules (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	rule_type TEXT NOT NULL,
	field TEXT NOT NULL,
	operator TEXT NOT NULL,
	value TEXT NOT NULL,
	reason TEXT NOT NULL,
	severity DOUBLE PRECISION NOT NULL,
	active INTEGER NOT NULL,
	priority INTEGER NOT NULL,
	seq BIGINT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

const decisionsSchema = `
CREATE TABLE IF NOT EXISTS decisions (
	id TEXT PRIMARY KEY,
	transaction_id TEXT NOT NULL,
	is_fraud INTEGER NOT NULL,
	source TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	score DOUBLE PRECISION NOT NULL,
	rule_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
`

const decisionsTxIndex = `
CREATE INDEX IF NOT EXISTS idx_decisions_tx
	ON decisions (transaction_id);
`

const fraudReportsSchema = `
CREATE TABLE IF NOT EXISTS fraud_reports (
	id TEXT PRIMARY KEY,
	transaction_id TEXT NOT NULL,
	reporting_entity_id TEXT NOT NULL,
	details TEXT NOT NULL DEFAULT '',
	reported_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in creation order.
func AllSchemas() []string {
	return []string{
		transactionsSchema,
		transactionsPayerIndex,
		rulesSchema,
		decisionsSchema,
		decisionsTxIndex,
		fraudReportsSchema,
	}
}
