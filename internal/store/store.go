package store

import (
	"context"

	"github.com/rendis/blockrun/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Credentials
	GetCredentials(ctx context.Context, id, workspaceID string) (*schema.Credential, error)
	StoreCredentials(ctx context.Context, cred *schema.Credential) error
	DeleteCredentials(ctx context.Context, id, workspaceID string) error
	ListCredentials(ctx context.Context, workspaceID string) ([]*schema.Credential, error)

	// Execution log (append-only)
	AppendExecution(ctx context.Context, rec *ExecutionRecord) error
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*ExecutionRecord, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
