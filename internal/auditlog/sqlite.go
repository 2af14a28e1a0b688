package auditlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/agentward/agentward/pkg/types"
)

// SQLiteRecorder persists audit records in a local SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) a SQLite-backed audit sink.
func OpenSQLite(path string) (*SQLiteRecorder, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRecorder) Close() error { return r.db.Close() }

func (r *SQLiteRecorder) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS audit_records (
			id TEXT PRIMARY KEY,
			ts_unix_ns INTEGER NOT NULL,
			tenant_id TEXT,
			agent_id INTEGER,
			analysis_type TEXT NOT NULL,
			detection_type TEXT,
			input_preview TEXT,
			input_hash TEXT,
			is_threat INTEGER NOT NULL,
			score REAL NOT NULL,
			reason TEXT,
			action TEXT NOT NULL,
			sender_key TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_tenant_ts ON audit_records(tenant_id, ts_unix_ns);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_type_ts ON audit_records(analysis_type, ts_unix_ns);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
	}
	return nil
}

// Record stores one audit record, assigning an id and timestamp when the
// caller left them zero.
func (r *SQLiteRecorder) Record(ctx context.Context, rec types.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_records
			(id, ts_unix_ns, tenant_id, agent_id, analysis_type, detection_type,
			 input_preview, input_hash, is_threat, score, reason, action, sender_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.UnixNano(), rec.TenantID, rec.AgentID, rec.AnalysisType,
		rec.DetectionType, rec.InputPreview, rec.InputHash, boolToInt(rec.IsThreat),
		rec.Score, rec.Reason, rec.Action, rec.SenderKey)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// ListRecent returns up to limit records, newest first.
func (r *SQLiteRecorder) ListRecent(ctx context.Context, limit int) ([]types.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ts_unix_ns, tenant_id, agent_id, analysis_type, detection_type,
		       input_preview, input_hash, is_threat, score, reason, action, sender_key
		FROM audit_records ORDER BY ts_unix_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []types.AuditRecord
	for rows.Next() {
		var rec types.AuditRecord
		var ts int64
		var tenant, detType, preview, hash, reason, sender sql.NullString
		var agent sql.NullInt64
		var threat int
		if err := rows.Scan(&rec.ID, &ts, &tenant, &agent, &rec.AnalysisType, &detType,
			&preview, &hash, &threat, &rec.Score, &reason, &rec.Action, &sender); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Timestamp = time.Unix(0, ts).UTC()
		rec.TenantID = tenant.String
		rec.AgentID = agent.Int64
		rec.DetectionType = detType.String
		rec.InputPreview = preview.String
		rec.InputHash = hash.String
		rec.IsThreat = threat != 0
		rec.Reason = reason.String
		rec.SenderKey = sender.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
