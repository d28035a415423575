// Package services provides journal services shared by the API and the CLI.
package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"chaseinvest/internal/database"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	// Session actions
	AuditLoginStarted  AuditAction = "session.login_started"
	AuditLoginFailed   AuditAction = "session.login_failed"
	AuditCodeSubmitted AuditAction = "session.code_submitted"
	AuditCodeRejected  AuditAction = "session.code_rejected"

	// Credential vault actions
	AuditCredentialsSaved     AuditAction = "vault.saved"
	AuditCredentialsForgotten AuditAction = "vault.forgotten"

	// Order actions
	AuditOrderPreviewed AuditAction = "order.previewed"
	AuditOrderSubmitted AuditAction = "order.submitted"
	AuditOrderFailed    AuditAction = "order.failed"

	// Sync actions
	AuditSyncRun AuditAction = "sync.run"
)

// OrderAction is the audit action for an order attempt.
func OrderAction(dryRun bool, flowErr error) AuditAction {
	switch {
	case flowErr != nil:
		return AuditOrderFailed
	case dryRun:
		return AuditOrderPreviewed
	default:
		return AuditOrderSubmitted
	}
}

// Audit sources.
const (
	SourceAPI = "api"
	SourceCLI = "cli"
)

// AuditEntry represents an audit log entry.
type AuditEntry struct {
	ID         int64       `json:"id"`
	Action     AuditAction `json:"action"`
	EntityType string      `json:"entity_type"`
	EntityID   string      `json:"entity_id"`
	Details    string      `json:"details,omitempty"` // JSON
	Source     string      `json:"source"`
	IPAddress  string      `json:"ip_address,omitempty"`
	UserAgent  string      `json:"user_agent,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// AuditService handles audit logging.
type AuditService struct {
	db  *database.DB
	log *slog.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(db *database.DB, logger *slog.Logger) *AuditService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditService{db: db, log: logger.With("component", "audit")}
}

// Log records an audit entry.
func (s *AuditService) Log(entry *AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	result, err := s.db.Exec(`
		INSERT INTO audit_log (action, entity_type, entity_id, details, source, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.Action, entry.EntityType, entry.EntityID, entry.Details, entry.Source,
		entry.IPAddress, entry.UserAgent, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("writing audit log: %w", err)
	}
	entry.ID, _ = result.LastInsertId()
	return nil
}

// LogAction records an action with details serialized as JSON. Failures are
// logged and otherwise ignored. A nil service is a no-op.
func (s *AuditService) LogAction(action AuditAction, entityType, entityID string, details any, source, ip, userAgent string) {
	if s == nil {
		return
	}
	entry := &AuditEntry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Source:     source,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}

	if details != nil {
		if data, err := json.Marshal(details); err == nil {
			entry.Details = string(data)
		}
	}

	if err := s.Log(entry); err != nil {
		s.log.Error("audit log failed", "action", action, "error", err)
	}
}

// GetByAction retrieves audit entries by action type, newest first.
func (s *AuditService) GetByAction(action AuditAction, limit, offset int) ([]*AuditEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, action, entity_type, entity_id, details, source, ip_address, user_agent, created_at
		FROM audit_log
		WHERE action = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, action, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// GetRecent retrieves the most recent audit entries.
func (s *AuditService) GetRecent(limit int) ([]*AuditEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, action, entity_type, entity_id, details, source, ip_address, user_agent, created_at
		FROM audit_log
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// DeleteOlderThan removes audit entries created before the given time.
func (s *AuditService) DeleteOlderThan(before time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM audit_log WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]*AuditEntry, error) {
	defer rows.Close()

	entries := []*AuditEntry{}
	for rows.Next() {
		e := &AuditEntry{}
		if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &e.EntityID, &e.Details,
			&e.Source, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// FormatEntry returns a human-readable description of an audit entry.
func FormatEntry(e *AuditEntry) string {
	return fmt.Sprintf("[%s] %s: %s %s %s",
		e.CreatedAt.Format("2006-01-02 15:04:05"),
		e.Source, e.Action, e.EntityType, e.EntityID)
}
