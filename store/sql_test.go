package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestSettings(t *testing.T) {

	now := time.Now().UTC()

	t.Run("found", func(t *testing.T) {
		store, mock := newMockStore(t)

		rows := sqlmock.NewRows([]string{
			"wallet_address", "auto_execute", "min_confidence", "risk_level",
			"max_amount_per_trade", "enabled", "created_at", "updated_at",
		}).AddRow("0xabc", true, 0.7, RiskModerate, "50000", true, now, now)

		mock.ExpectQuery("SELECT wallet_address, auto_execute, min_confidence, risk_level, max_amount_per_trade, enabled, created_at, updated_at\\s+FROM agent_settings WHERE wallet_address = \\?").
			WithArgs("0xabc").
			WillReturnRows(rows)

		settings, err := store.Settings(context.Background(), "0xABC")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if settings.WalletAddress != "0xabc" || settings.RiskLevel != RiskModerate {
			t.Errorf("unexpected settings: %+v", settings)
		}

		expectationsMet(t, mock)
	})

	t.Run("not found", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery("FROM agent_settings WHERE wallet_address = \\?").
			WithArgs("0xdef").
			WillReturnRows(sqlmock.NewRows([]string{
				"wallet_address", "auto_execute", "min_confidence", "risk_level",
				"max_amount_per_trade", "enabled", "created_at", "updated_at",
			}))

		_, err := store.Settings(context.Background(), "0xDEF")
		if err != ErrNotFound {
			t.Errorf("got %v, want ErrNotFound", err)
		}

		expectationsMet(t, mock)
	})
}

func TestSaveSettings(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO agent_settings").
		WithArgs("0xabc", true, 0.7, RiskConservative, "25000", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SaveSettings(context.Background(), AgentSettings{
		WalletAddress:     "0xABC",
		AutoExecute:       true,
		MinConfidence:     0.7,
		RiskLevel:         RiskConservative,
		MaxAmountPerTrade: "25000",
		Enabled:           true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectationsMet(t, mock)
}

func TestActiveAgents(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"wallet_address", "auto_execute", "min_confidence", "risk_level",
		"max_amount_per_trade", "enabled", "created_at", "updated_at",
	}).
		AddRow("0xaaa", true, 0.6, RiskModerate, "10000", true, now, now).
		AddRow("0xbbb", true, 0.9, RiskAggressive, "100000", true, now, now)

	mock.ExpectQuery("FROM agent_settings WHERE enabled = 1 AND auto_execute = 1").
		WillReturnRows(rows)

	agents, err := store.ActiveAgents(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("got %d agents, want 2", len(agents))
	}
	if agents[1].WalletAddress != "0xbbb" {
		t.Errorf("unexpected agent: %+v", agents[1])
	}

	expectationsMet(t, mock)
}

func TestAppendExecution(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO execution_logs").
		WithArgs(sqlmock.AnyArg(), "0xabc", ActionBuy, 0.8, "spread below mean", "10000", "0xhash", StatusExecuted, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	record, err := store.AppendExecution(context.Background(), ExecutionRecord{
		WalletAddress: "0xABC",
		Action:        ActionBuy,
		Confidence:    0.8,
		Reasoning:     "spread below mean",
		Amount:        "10000",
		TxHash:        "0xhash",
		Status:        StatusExecuted,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.ID == "" {
		t.Error("record ID was not assigned")
	}
	if record.Timestamp.IsZero() {
		t.Error("record timestamp was not assigned")
	}

	expectationsMet(t, mock)
}

func TestExecutions(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "wallet_address", "action", "confidence", "reasoning",
		"amount", "tx_hash", "status", "timestamp",
	}).AddRow("id-1", "0xabc", ActionWait, 0.5, "holding", "", "", StatusSkipped, now)

	mock.ExpectQuery("FROM execution_logs WHERE wallet_address = \\? ORDER BY timestamp DESC LIMIT \\?").
		WithArgs("0xabc", 10).
		WillReturnRows(rows)

	records, err := store.Executions(context.Background(), "0xABC", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].Action != ActionWait {
		t.Errorf("unexpected records: %+v", records)
	}

	expectationsMet(t, mock)
}

func TestStats(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"count", "executed", "skipped", "failed"}).
		AddRow(10, 6, 3, 1)

	mock.ExpectQuery("FROM execution_logs").WillReturnRows(rows)

	stats, err := store.Stats(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalExecutions != 10 || stats.SuccessfulBuys != 6 || stats.Skipped != 3 || stats.Failed != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	expectationsMet(t, mock)
}

func TestLastRun(t *testing.T) {

	t.Run("recorded", func(t *testing.T) {
		store, mock := newMockStore(t)

		at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
		mock.ExpectQuery("SELECT last_run FROM agent_runs WHERE id = 1").
			WillReturnRows(sqlmock.NewRows([]string{"last_run"}).AddRow(at))

		lastRun, err := store.LastRun(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !lastRun.Equal(at) {
			t.Errorf("got %v, want %v", lastRun, at)
		}

		expectationsMet(t, mock)
	})

	t.Run("never run", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery("SELECT last_run FROM agent_runs WHERE id = 1").
			WillReturnRows(sqlmock.NewRows([]string{"last_run"}))

		lastRun, err := store.LastRun(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !lastRun.IsZero() {
			t.Errorf("got %v, want zero time", lastRun)
		}

		expectationsMet(t, mock)
	})
}

func TestSetLastRun(t *testing.T) {
	store, mock := newMockStore(t)

	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO agent_runs").
		WithArgs(at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SetLastRun(context.Background(), at); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectationsMet(t, mock)
}
