// Package store persists trading-agent settings and execution logs. It is an
// injected storage interface with explicit lifecycle rather than a hidden
// process-global, so it carries no cross-request coupling and tests in
// isolation.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no settings exist for a wallet.
var ErrNotFound = errors.New("not found")

// Risk levels for agent settings.
const (
	RiskConservative = "conservative"
	RiskModerate     = "moderate"
	RiskAggressive   = "aggressive"
)

// Execution actions and statuses.
const (
	ActionBuy  = "BUY"
	ActionWait = "WAIT"

	StatusPending  = "pending"
	StatusExecuted = "executed"
	StatusSkipped  = "skipped"
	StatusFailed   = "failed"
)

// AgentSettings are the per-wallet autonomous agent settings.
type AgentSettings struct {
	WalletAddress     string    `json:"walletAddress"`
	AutoExecute       bool      `json:"autoExecute"`
	MinConfidence     float64   `json:"minConfidence"`
	RiskLevel         string    `json:"riskLevel"`
	MaxAmountPerTrade string    `json:"maxAmountPerTrade"`
	Enabled           bool      `json:"enabled"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// ExecutionRecord is one agent execution log entry.
type ExecutionRecord struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"walletAddress"`
	Action        string    `json:"action"`
	Confidence    float64   `json:"confidence"`
	Reasoning     string    `json:"reasoning"`
	Amount        string    `json:"amount,omitempty"`
	TxHash        string    `json:"txHash,omitempty"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

// Stats summarizes execution history.
type Stats struct {
	TotalExecutions int `json:"totalExecutions"`
	SuccessfulBuys  int `json:"successfulBuys"`
	Skipped         int `json:"skipped"`
	Failed          int `json:"failed"`
}

// Store is the agent storage interface.
type Store interface {
	// Settings returns the settings for a wallet, or ErrNotFound.
	Settings(ctx context.Context, walletAddress string) (AgentSettings, error)

	// SaveSettings inserts or updates the settings for a wallet.
	SaveSettings(ctx context.Context, settings AgentSettings) error

	// ActiveAgents returns all enabled, auto-executing agents.
	ActiveAgents(ctx context.Context) ([]AgentSettings, error)

	// AppendExecution records an execution log entry, assigning an ID when
	// the record has none.
	AppendExecution(ctx context.Context, record ExecutionRecord) (ExecutionRecord, error)

	// Executions returns recent execution records, newest first, optionally
	// filtered by wallet.
	Executions(ctx context.Context, walletAddress string, limit int) ([]ExecutionRecord, error)

	// Stats summarizes the execution history for a wallet, or all wallets
	// when walletAddress is empty.
	Stats(ctx context.Context, walletAddress string) (Stats, error)

	// LastRun returns the last recorded agent run time, or the zero time.
	LastRun(ctx context.Context) (time.Time, error)

	// SetLastRun records the agent run time.
	SetLastRun(ctx context.Context, at time.Time) error
}
