package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const schema = `
CREATE TABLE IF NOT EXISTS agent_settings (
	wallet_address       TEXT PRIMARY KEY,
	auto_execute         INTEGER NOT NULL,
	min_confidence       REAL NOT NULL,
	risk_level           TEXT NOT NULL,
	max_amount_per_trade TEXT NOT NULL,
	enabled              INTEGER NOT NULL,
	created_at           TIMESTAMP NOT NULL,
	updated_at           TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS execution_logs (
	id             TEXT PRIMARY KEY,
	wallet_address TEXT NOT NULL,
	action         TEXT NOT NULL,
	confidence     REAL NOT NULL,
	reasoning      TEXT NOT NULL,
	amount         TEXT,
	tx_hash        TEXT,
	status         TEXT NOT NULL,
	timestamp      TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_execution_logs_wallet
	ON execution_logs (wallet_address, timestamp DESC);

CREATE TABLE IF NOT EXISTS agent_runs (
	id      INTEGER PRIMARY KEY CHECK (id = 1),
	last_run TIMESTAMP NOT NULL
);
`

// SQLStore is a Store backed by database/sql.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store over an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// EnsureSchema creates the storage tables when absent.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Settings returns the settings for a wallet, or ErrNotFound.
func (s *SQLStore) Settings(ctx context.Context, walletAddress string) (AgentSettings, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT wallet_address, auto_execute, min_confidence, risk_level, max_amount_per_trade, enabled, created_at, updated_at
		 FROM agent_settings WHERE wallet_address = ?`,
		strings.ToLower(walletAddress),
	)

	var settings AgentSettings
	err := row.Scan(
		&settings.WalletAddress,
		&settings.AutoExecute,
		&settings.MinConfidence,
		&settings.RiskLevel,
		&settings.MaxAmountPerTrade,
		&settings.Enabled,
		&settings.CreatedAt,
		&settings.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return AgentSettings{}, ErrNotFound
	}
	if err != nil {
		return AgentSettings{}, fmt.Errorf("failed to get settings: %w", err)
	}
	return settings, nil
}

// SaveSettings inserts or updates the settings for a wallet.
func (s *SQLStore) SaveSettings(ctx context.Context, settings AgentSettings) error {
	now := time.Now().UTC()
	if settings.CreatedAt.IsZero() {
		settings.CreatedAt = now
	}
	settings.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_settings
			(wallet_address, auto_execute, min_confidence, risk_level, max_amount_per_trade, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (wallet_address) DO UPDATE SET
			auto_execute = excluded.auto_execute,
			min_confidence = excluded.min_confidence,
			risk_level = excluded.risk_level,
			max_amount_per_trade = excluded.max_amount_per_trade,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`,
		strings.ToLower(settings.WalletAddress),
		settings.AutoExecute,
		settings.MinConfidence,
		settings.RiskLevel,
		settings.MaxAmountPerTrade,
		settings.Enabled,
		settings.CreatedAt,
		settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// ActiveAgents returns all enabled, auto-executing agents.
func (s *SQLStore) ActiveAgents(ctx context.Context) ([]AgentSettings, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT wallet_address, auto_execute, min_confidence, risk_level, max_amount_per_trade, enabled, created_at, updated_at
		 FROM agent_settings WHERE enabled = 1 AND auto_execute = 1`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list active agents: %w", err)
	}
	defer rows.Close()

	var agents []AgentSettings
	for rows.Next() {
		var settings AgentSettings
		if err := rows.Scan(
			&settings.WalletAddress,
			&settings.AutoExecute,
			&settings.MinConfidence,
			&settings.RiskLevel,
			&settings.MaxAmountPerTrade,
			&settings.Enabled,
			&settings.CreatedAt,
			&settings.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan agent settings: %w", err)
		}
		agents = append(agents, settings)
	}
	return agents, rows.Err()
}

// AppendExecution records an execution log entry.
func (s *SQLStore) AppendExecution(ctx context.Context, record ExecutionRecord) (ExecutionRecord, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	record.WalletAddress = strings.ToLower(record.WalletAddress)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO execution_logs
			(id, wallet_address, action, confidence, reasoning, amount, tx_hash, status, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.WalletAddress,
		record.Action,
		record.Confidence,
		record.Reasoning,
		record.Amount,
		record.TxHash,
		record.Status,
		record.Timestamp,
	)
	if err != nil {
		return ExecutionRecord{}, fmt.Errorf("failed to append execution: %w", err)
	}
	return record, nil
}

// Executions returns recent execution records, newest first.
func (s *SQLStore) Executions(ctx context.Context, walletAddress string, limit int) ([]ExecutionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, wallet_address, action, confidence, reasoning, amount, tx_hash, status, timestamp
		 FROM execution_logs`
	args := []any{}
	if walletAddress != "" {
		query += ` WHERE wallet_address = ?`
		args = append(args, strings.ToLower(walletAddress))
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var records []ExecutionRecord
	for rows.Next() {
		var record ExecutionRecord
		if err := rows.Scan(
			&record.ID,
			&record.WalletAddress,
			&record.Action,
			&record.Confidence,
			&record.Reasoning,
			&record.Amount,
			&record.TxHash,
			&record.Status,
			&record.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Stats summarizes the execution history.
func (s *SQLStore) Stats(ctx context.Context, walletAddress string) (Stats, error) {
	query := `SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'executed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'skipped' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		 FROM execution_logs`
	args := []any{}
	if walletAddress != "" {
		query += ` WHERE wallet_address = ?`
		args = append(args, strings.ToLower(walletAddress))
	}

	var stats Stats
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.TotalExecutions,
		&stats.SuccessfulBuys,
		&stats.Skipped,
		&stats.Failed,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

// LastRun returns the last recorded agent run time.
func (s *SQLStore) LastRun(ctx context.Context) (time.Time, error) {
	var lastRun time.Time
	err := s.db.QueryRowContext(ctx, `SELECT last_run FROM agent_runs WHERE id = 1`).Scan(&lastRun)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last run: %w", err)
	}
	return lastRun, nil
}

// SetLastRun records the agent run time.
func (s *SQLStore) SetLastRun(ctx context.Context, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_runs (id, last_run) VALUES (1, ?)
		 ON CONFLICT (id) DO UPDATE SET last_run = excluded.last_run`,
		at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set last run: %w", err)
	}
	return nil
}
