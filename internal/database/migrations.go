package database

// SQL migrations for the local journal.
// All migrations use IF NOT EXISTS to be idempotent.

const migrationCredentials = `
CREATE TABLE IF NOT EXISTS credentials (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    profile TEXT UNIQUE NOT NULL,
    username_encrypted BLOB NOT NULL,
    username_nonce BLOB NOT NULL,
    password_encrypted BLOB NOT NULL,
    password_nonce BLOB NOT NULL,
    last_four TEXT NOT NULL DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

const migrationAccounts = `
CREATE TABLE IF NOT EXISTS accounts (
    account_id TEXT PRIMARY KEY,
    mask TEXT NOT NULL DEFAULT '',
    nickname TEXT NOT NULL DEFAULT '',
    detail_type TEXT NOT NULL DEFAULT '',
    account_value REAL NOT NULL DEFAULT 0,
    is_ira INTEGER NOT NULL DEFAULT 0,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

const migrationSyncHistory = `
CREATE TABLE IF NOT EXISTS sync_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL,
    completed_at DATETIME,
    status TEXT NOT NULL CHECK(status IN ('running', 'success', 'partial', 'failed')),
    accounts_synced INTEGER DEFAULT 0,
    positions_synced INTEGER DEFAULT 0,
    error_message TEXT
);
`

const migrationHoldingSnapshots = `
CREATE TABLE IF NOT EXISTS holding_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id TEXT NOT NULL REFERENCES accounts(account_id) ON DELETE CASCADE,
    sync_id INTEGER REFERENCES sync_history(id) ON DELETE SET NULL,
    kind TEXT NOT NULL,
    symbol TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    quantity REAL NOT NULL DEFAULT 0,
    value REAL NOT NULL DEFAULT 0,
    as_of DATETIME,
    captured_at DATETIME NOT NULL
);
`

const migrationQuotes = `
CREATE TABLE IF NOT EXISTS quotes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    ask_price REAL NOT NULL DEFAULT 0,
    bid_price REAL NOT NULL DEFAULT 0,
    last_trade_price REAL NOT NULL DEFAULT 0,
    change_amount REAL NOT NULL DEFAULT 0,
    change_percent REAL NOT NULL DEFAULT 0,
    as_of DATETIME,
    captured_at DATETIME NOT NULL
);
`

const migrationOrderJournal = `
CREATE TABLE IF NOT EXISTS order_journal (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    price_type TEXT NOT NULL,
    duration TEXT NOT NULL,
    quantity INTEGER NOT NULL,
    limit_price REAL NOT NULL DEFAULT 0,
    stop_price REAL NOT NULL DEFAULT 0,
    dry_run INTEGER NOT NULL DEFAULT 1,
    after_hours INTEGER NOT NULL DEFAULT 0,
    order_invalid TEXT NOT NULL DEFAULT '',
    warning TEXT NOT NULL DEFAULT '',
    order_preview TEXT NOT NULL DEFAULT '',
    after_hours_warning TEXT NOT NULL DEFAULT '',
    order_confirmation TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);
`

const migrationAuditLog = `
CREATE TABLE IF NOT EXISTS audit_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    action TEXT NOT NULL,
    entity_type TEXT NOT NULL DEFAULT '',
    entity_id TEXT NOT NULL DEFAULT '',
    details TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    ip_address TEXT NOT NULL DEFAULT '',
    user_agent TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);
`

const migrationIndexes = `
CREATE INDEX IF NOT EXISTS idx_holding_snapshots_account ON holding_snapshots(account_id, captured_at);
CREATE INDEX IF NOT EXISTS idx_holding_snapshots_sync ON holding_snapshots(sync_id);
CREATE INDEX IF NOT EXISTS idx_quotes_symbol ON quotes(symbol, captured_at);
CREATE INDEX IF NOT EXISTS idx_order_journal_account ON order_journal(account_id, created_at);
CREATE INDEX IF NOT EXISTS idx_sync_history_started ON sync_history(started_at);
CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at);
CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action, created_at);
`
