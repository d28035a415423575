package database

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.RunMigrations(); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	return db
}

func TestNew_CreatesConnection(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if err := db.Ping(); err != nil {
		t.Errorf("Ping() error = %v, want nil", err)
	}
}

func TestRunMigrations_CreatesAllTables(t *testing.T) {
	db := newTestDB(t)

	expectedTables := []string{
		"credentials",
		"accounts",
		"sync_history",
		"holding_snapshots",
		"quotes",
		"order_journal",
		"audit_log",
	}

	for _, table := range expectedTables {
		var exists int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := db.QueryRow(query, table).Scan(&exists); err != nil {
			t.Errorf("checking table %s: %v", table, err)
			continue
		}
		if exists != 1 {
			t.Errorf("table %s does not exist", table)
		}
	}
}

func TestRunMigrations_CreatesIndexes(t *testing.T) {
	db := newTestDB(t)

	for _, index := range []string{
		"idx_holding_snapshots_account",
		"idx_holding_snapshots_sync",
		"idx_quotes_symbol",
		"idx_order_journal_account",
		"idx_sync_history_started",
	} {
		var exists int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?`
		if err := db.QueryRow(query, index).Scan(&exists); err != nil {
			t.Errorf("checking index %s: %v", index, err)
			continue
		}
		if exists != 1 {
			t.Errorf("index %s does not exist", index)
		}
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := newTestDB(t)

	if err := db.RunMigrations(); err != nil {
		t.Fatalf("second RunMigrations() error = %v, want nil", err)
	}

	var tableCount int
	query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'`
	if err := db.QueryRow(query).Scan(&tableCount); err != nil {
		t.Fatalf("counting tables: %v", err)
	}
	if tableCount != 7 {
		t.Errorf("table count = %d, want 7", tableCount)
	}
}

func TestDB_Close(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
	if err := db.Ping(); err == nil {
		t.Error("Ping() after Close() should return error")
	}
}

func TestDB_ForeignKeyConstraints(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Exec(
		`INSERT INTO holding_snapshots (account_id, kind, symbol, captured_at) VALUES (?, ?, ?, ?)`,
		"missing", "equity", "AAPL", "2024-03-01T00:00:00Z",
	)
	if err == nil {
		t.Error("inserting snapshot for unknown account should fail")
	}
}

func TestDB_CascadeDelete(t *testing.T) {
	db := newTestDB(t)

	if _, err := db.Exec(`INSERT INTO accounts (account_id, mask) VALUES (?, ?)`, "123", "1234"); err != nil {
		t.Fatalf("insert account error = %v", err)
	}
	if _, err := db.Exec(
		`INSERT INTO holding_snapshots (account_id, kind, symbol, captured_at) VALUES (?, ?, ?, ?)`,
		"123", "equity", "AAPL", "2024-03-01T00:00:00Z",
	); err != nil {
		t.Fatalf("insert snapshot error = %v", err)
	}

	if _, err := db.Exec(`DELETE FROM accounts WHERE account_id = ?`, "123"); err != nil {
		t.Fatalf("delete account error = %v", err)
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM holding_snapshots WHERE account_id = ?`, "123").Scan(&count)
	if count != 0 {
		t.Error("snapshots should be deleted with their account")
	}
}

func TestDB_SyncStatusCheck(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Exec(`INSERT INTO sync_history (started_at, status) VALUES (?, ?)`, "2024-03-01T00:00:00Z", "bogus")
	if err == nil {
		t.Error("inserting unknown sync status should fail")
	}
}
