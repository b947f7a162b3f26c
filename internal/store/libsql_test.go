package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/blockrun/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func seedCredential(t *testing.T, s *LibSQLStore, workspaceID string) *schema.Credential {
	t.Helper()
	c := &schema.Credential{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		Type:        schema.BlockTypeHinova,
		Name:        "sga",
		Data:        "Y2lwaGVydGV4dA==",
		IV:          "aXYtYnl0ZXMtMTI=",
	}
	require.NoError(t, s.StoreCredentials(context.Background(), c))
	return c
}

// --- Credential Tests ---

func TestStoreAndGetCredentials(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := seedCredential(t, s, "ws-1")

	got, err := s.GetCredentials(ctx, c.ID, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, "ws-1", got.WorkspaceID)
	assert.Equal(t, schema.BlockTypeHinova, got.Type)
	assert.Equal(t, "sga", got.Name)
	assert.Equal(t, c.Data, got.Data)
	assert.Equal(t, c.IV, got.IV)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetCredentials_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetCredentials(context.Background(), "missing", "ws-1")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestGetCredentials_ScopedToWorkspace(t *testing.T) {
	s := newTestStore(t)
	c := seedCredential(t, s, "ws-1")

	_, err := s.GetCredentials(context.Background(), c.ID, "ws-2")
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestStoreCredentials_Rotate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := seedCredential(t, s, "ws-1")

	c.Data = "bmV3LWRhdGE="
	c.IV = "bmV3LWl2"
	require.NoError(t, s.StoreCredentials(ctx, c))

	got, err := s.GetCredentials(ctx, c.ID, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, "bmV3LWRhdGE=", got.Data)
	assert.Equal(t, "bmV3LWl2", got.IV)
}

func TestStoreCredentials_OtherWorkspaceConflict(t *testing.T) {
	s := newTestStore(t)
	c := seedCredential(t, s, "ws-1")

	hijack := *c
	hijack.WorkspaceID = "ws-2"
	err := s.StoreCredentials(context.Background(), &hijack)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeConflict))
}

func TestStoreCredentials_RequiresIDs(t *testing.T) {
	s := newTestStore(t)
	err := s.StoreCredentials(context.Background(), &schema.Credential{ID: "x"})
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestDeleteCredentials(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := seedCredential(t, s, "ws-1")

	// Wrong workspace deletes nothing.
	err := s.DeleteCredentials(ctx, c.ID, "ws-2")
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))

	require.NoError(t, s.DeleteCredentials(ctx, c.ID, "ws-1"))
	_, err = s.GetCredentials(ctx, c.ID, "ws-1")
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestListCredentials(t *testing.T) {
	s := newTestStore(t)
	seedCredential(t, s, "ws-1")
	seedCredential(t, s, "ws-1")
	seedCredential(t, s, "ws-2")

	list, err := s.ListCredentials(context.Background(), "ws-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
	for _, c := range list {
		assert.Equal(t, "ws-1", c.WorkspaceID)
	}
}

// --- Execution Log Tests ---

func TestAppendExecution_MonotonicSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := &ExecutionRecord{
			WorkspaceID:    "ws-1",
			BlockID:        "b1",
			Action:         string(schema.ActionVehicleLookup),
			OutgoingEdgeID: "e1",
			Logs:           []schema.LogEntry{{Status: schema.LogSuccess, Description: "ok"}},
		}
		require.NoError(t, s.AppendExecution(ctx, rec))
		assert.Equal(t, int64(i+1), rec.Sequence)
		assert.NotZero(t, rec.ID)
	}

	// Other blocks have their own sequence.
	other := &ExecutionRecord{WorkspaceID: "ws-1", BlockID: "b2"}
	require.NoError(t, s.AppendExecution(ctx, other))
	assert.Equal(t, int64(1), other.Sequence)
}

func TestListExecutions_RoundTripsPayload(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &ExecutionRecord{
		WorkspaceID: "ws-1",
		BlockID:     "b1",
		Action:      string(schema.ActionMemberLookup),
		Logs: []schema.LogEntry{
			{Status: schema.LogError, Description: "boom", Details: "upstream said no"},
		},
		Updates: []schema.SetVariableHistoryItem{
			{Index: 4, BlockID: "b1", VariableID: "v1", Value: "x"},
		},
	}
	require.NoError(t, s.AppendExecution(ctx, rec))

	list, err := s.ListExecutions(ctx, ExecutionFilter{WorkspaceID: "ws-1", BlockID: "b1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rec.Logs, list[0].Logs)
	assert.Equal(t, rec.Updates, list[0].Updates)
	assert.Equal(t, string(schema.ActionMemberLookup), list[0].Action)
}

func TestListExecutions_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, b := range []string{"b1", "b1", "b1", "b2"} {
		require.NoError(t, s.AppendExecution(ctx, &ExecutionRecord{WorkspaceID: "ws-1", BlockID: b}))
	}
	require.NoError(t, s.AppendExecution(ctx, &ExecutionRecord{WorkspaceID: "ws-2", BlockID: "b1"}))

	all, err := s.ListExecutions(ctx, ExecutionFilter{WorkspaceID: "ws-1"})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	since, err := s.ListExecutions(ctx, ExecutionFilter{WorkspaceID: "ws-1", BlockID: "b1", Since: 1})
	require.NoError(t, err)
	require.Len(t, since, 2)
	assert.Equal(t, int64(2), since[0].Sequence)

	limited, err := s.ListExecutions(ctx, ExecutionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestListExecutions_SinceRequiresBlock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, b := range []string{"b1", "b2", "b2", "b2"} {
		require.NoError(t, s.AppendExecution(ctx, &ExecutionRecord{WorkspaceID: "ws-1", BlockID: b}))
	}

	_, err := s.ListExecutions(ctx, ExecutionFilter{WorkspaceID: "ws-1", Since: 1})
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	got, err := s.ListExecutions(ctx, ExecutionFilter{WorkspaceID: "ws-1", BlockID: "b2", Since: 1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, r := range got {
		assert.Equal(t, "b2", r.BlockID)
	}
}

func TestAppendExecution_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AppendExecution(ctx, &ExecutionRecord{WorkspaceID: "ws-1", BlockID: "b1"}))
		}()
	}
	wg.Wait()

	list, err := s.ListExecutions(ctx, ExecutionFilter{BlockID: "b1"})
	require.NoError(t, err)
	require.Len(t, list, 10)
	seen := map[int64]bool{}
	for _, r := range list {
		assert.False(t, seen[r.Sequence], "duplicate sequence %d", r.Sequence)
		seen[r.Sequence] = true
	}
}

func TestNewExecutionRecord(t *testing.T) {
	block := &schema.Block{ID: "b1", Options: schema.MemberLookupOptions{}}
	res := &schema.ExecutionResult{
		OutgoingEdgeID: "e1",
		Logs:           []schema.LogEntry{{Status: schema.LogInfo, Description: "none"}},
	}
	rec := NewExecutionRecord("ws-1", block, res)
	assert.Equal(t, "b1", rec.BlockID)
	assert.Equal(t, string(schema.ActionMemberLookup), rec.Action)
	assert.Equal(t, "e1", rec.OutgoingEdgeID)
	assert.Len(t, rec.Logs, 1)
}

// --- Migration Tests ---

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	// Migrate was already called in newTestStore; calling again should be a no-op.
	require.NoError(t, s.Migrate(context.Background()))
}

func TestLoadMigrations_Ordered(t *testing.T) {
	ms, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, ms)
	assert.Equal(t, 1, ms[0].Version)
	assert.Equal(t, "initial_schema", ms[0].Name)
	for i := 1; i < len(ms); i++ {
		assert.Less(t, ms[i-1].Version, ms[i].Version)
	}
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- header\nCREATE TABLE a (x INT);\n\n-- only a comment;\nCREATE INDEX i ON a(x);")
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a(x)"}, stmts)
}

func TestVacuum(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Vacuum(context.Background()))
}

func TestTimeOrNow(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, fixed, timeOrNow(fixed))
	assert.False(t, timeOrNow(time.Time{}).IsZero())
}
