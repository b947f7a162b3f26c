package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/blockrun/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

var _ Store = (*LibSQLStore)(nil)

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	} {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Credentials ---

// StoreCredentials inserts a credential or replaces the ciphertext of an
// existing one. A record never moves between workspaces.
func (s *LibSQLStore) StoreCredentials(ctx context.Context, cred *schema.Credential) error {
	if cred.ID == "" || cred.WorkspaceID == "" {
		return schema.NewError(schema.ErrCodeValidation, "credential id and workspace id are required")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (id, workspace_id, type, name, data, iv, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, data=excluded.data, iv=excluded.iv, rotated_at=CURRENT_TIMESTAMP
		 WHERE credentials.workspace_id = excluded.workspace_id`,
		cred.ID, cred.WorkspaceID, string(cred.Type), cred.Name, cred.Data, cred.IV, timeOrNow(cred.CreatedAt),
	)
	if err != nil {
		return storeFailure("store credential", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return schema.NewErrorf(schema.ErrCodeConflict, "credential %q belongs to another workspace", cred.ID)
	}
	return nil
}

func (s *LibSQLStore) GetCredentials(ctx context.Context, id, workspaceID string) (*schema.Credential, error) {
	c := &schema.Credential{}
	var typ string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workspace_id, type, name, data, iv, created_at
		 FROM credentials WHERE id = ? AND workspace_id = ?`, id, workspaceID,
	).Scan(&c.ID, &c.WorkspaceID, &typ, &c.Name, &c.Data, &c.IV, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("credential", id)
	}
	if err != nil {
		return nil, storeFailure("get credential", err)
	}
	c.Type = schema.BlockType(typ)
	return c, nil
}

func (s *LibSQLStore) DeleteCredentials(ctx context.Context, id, workspaceID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE id = ? AND workspace_id = ?`, id, workspaceID)
	if err != nil {
		return storeFailure("delete credential", err)
	}
	return checkRowsAffected(res, "credential", id)
}

func (s *LibSQLStore) ListCredentials(ctx context.Context, workspaceID string) ([]*schema.Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workspace_id, type, name, data, iv, created_at
		 FROM credentials WHERE workspace_id = ? ORDER BY created_at, id`, workspaceID)
	if err != nil {
		return nil, storeFailure("list credentials", err)
	}
	defer rows.Close()

	var creds []*schema.Credential
	for rows.Next() {
		c := &schema.Credential{}
		var typ string
		if err := rows.Scan(&c.ID, &c.WorkspaceID, &typ, &c.Name, &c.Data, &c.IV, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Type = schema.BlockType(typ)
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

// --- Execution log ---

// AppendExecution appends a record with a monotonically increasing
// per-block sequence.
func (s *LibSQLStore) AppendExecution(ctx context.Context, rec *ExecutionRecord) error {
	logs, err := marshalSliceOrEmpty(rec.Logs)
	if err != nil {
		return fmt.Errorf("marshal logs: %w", err)
	}
	updates, err := marshalSliceOrEmpty(rec.Updates)
	if err != nil {
		return fmt.Errorf("marshal updates: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeFailure("begin append", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM executions WHERE workspace_id = ? AND block_id = ?`,
		rec.WorkspaceID, rec.BlockID,
	).Scan(&seq); err != nil {
		return storeFailure("next sequence", err)
	}
	rec.Sequence = seq
	rec.CreatedAt = timeOrNow(rec.CreatedAt)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO executions (workspace_id, block_id, action, outgoing_edge_id, logs, updates, sequence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.WorkspaceID, rec.BlockID, rec.Action, rec.OutgoingEdgeID, logs, updates, rec.Sequence, rec.CreatedAt,
	)
	if err != nil {
		return storeFailure("append execution", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return tx.Commit()
}

func (s *LibSQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*ExecutionRecord, error) {
	if filter.Since > 0 && filter.BlockID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "since is a per-block sequence and requires a block id")
	}
	var where []string
	var args []any
	if filter.WorkspaceID != "" {
		where = append(where, "workspace_id = ?")
		args = append(args, filter.WorkspaceID)
	}
	if filter.BlockID != "" {
		where = append(where, "block_id = ?")
		args = append(args, filter.BlockID)
	}
	if filter.Since > 0 {
		where = append(where, "sequence > ?")
		args = append(args, filter.Since)
	}

	q := `SELECT id, workspace_id, block_id, action, outgoing_edge_id, logs, updates, sequence, created_at FROM executions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storeFailure("list executions", err)
	}
	defer rows.Close()

	var out []*ExecutionRecord
	for rows.Next() {
		r := &ExecutionRecord{}
		var logs, updates string
		if err := rows.Scan(&r.ID, &r.WorkspaceID, &r.BlockID, &r.Action, &r.OutgoingEdgeID,
			&logs, &updates, &r.Sequence, &r.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(logs), &r.Logs); err != nil {
			return nil, fmt.Errorf("execution %d logs: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(updates), &r.Updates); err != nil {
			return nil, fmt.Errorf("execution %d updates: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func storeFailure(op string, err error) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeStore, "%s failed", op).WithCause(err)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func marshalSliceOrEmpty[T any](s []T) (string, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	return string(b), err
}
