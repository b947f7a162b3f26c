package secrets

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/blockrun/pkg/schema"
)

// mapStore is a simple in-memory CredentialStore for resolver tests.
type mapStore struct {
	data map[string]*schema.Credential
	err  error
}

func newMapStore() *mapStore {
	return &mapStore{data: make(map[string]*schema.Credential)}
}

func (m *mapStore) GetCredentials(_ context.Context, id, workspaceID string) (*schema.Credential, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.data[id]
	if !ok || c.WorkspaceID != workspaceID {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "credential %q not found", id)
	}
	cp := *c
	return &cp, nil
}

func (m *mapStore) StoreCredentials(_ context.Context, cred *schema.Credential) error {
	cp := *cred
	m.data[cred.ID] = &cp
	return nil
}

func (m *mapStore) DeleteCredentials(_ context.Context, id, workspaceID string) error {
	c, ok := m.data[id]
	if !ok || c.WorkspaceID != workspaceID {
		return schema.NewErrorf(schema.ErrCodeNotFound, "credential %q not found", id)
	}
	delete(m.data, id)
	return nil
}

func (m *mapStore) ListCredentials(_ context.Context, workspaceID string) ([]*schema.Credential, error) {
	var out []*schema.Credential
	for _, c := range m.data {
		if c.WorkspaceID == workspaceID {
			out = append(out, c)
		}
	}
	return out, nil
}

func testResolver(t *testing.T) (*Resolver, *mapStore) {
	t.Helper()
	s := newMapStore()
	return NewResolver(s, testCipher(t)), s
}

func TestResolver_SealAndResolveSecret(t *testing.T) {
	r, s := testResolver(t)
	ctx := context.Background()

	rec, err := r.Seal(ctx, "ws-1", schema.BlockTypeHinova, "SGA", map[string]any{"token": "tk-abc"})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "ws-1", rec.WorkspaceID)
	assert.NotContains(t, s.data[rec.ID].Data, "tk-abc")

	secret, err := r.ResolveSecret(ctx, rec.ID, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"token": "tk-abc"}, secret)
}

func TestResolver_MissingReference(t *testing.T) {
	r, _ := testResolver(t)
	_, err := r.Resolve(context.Background(), "", "ws-1")
	assert.ErrorIs(t, err, ErrMissingCredential)
}

func TestResolver_NotFound(t *testing.T) {
	r, _ := testResolver(t)
	_, err := r.Resolve(context.Background(), "nope", "ws-1")
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestResolver_OtherWorkspaceIsNotFound(t *testing.T) {
	r, _ := testResolver(t)
	ctx := context.Background()

	rec, err := r.Seal(ctx, "ws-1", schema.BlockTypeHinova, "SGA", map[string]any{"token": "t"})
	require.NoError(t, err)

	_, err = r.ResolveSecret(ctx, rec.ID, "ws-2")
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestResolver_StoreFailurePropagates(t *testing.T) {
	r, s := testResolver(t)
	s.err = schema.NewError(schema.ErrCodeStore, "database is locked")

	_, err := r.Resolve(context.Background(), "c1", "ws-1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCredentialNotFound))
	assert.True(t, schema.HasCode(err, schema.ErrCodeStore))
}

func TestResolver_CorruptedPayload(t *testing.T) {
	r, s := testResolver(t)
	ctx := context.Background()

	rec, err := r.Seal(ctx, "ws-1", schema.BlockTypeHinova, "SGA", map[string]any{"token": "t"})
	require.NoError(t, err)

	// Flip one ciphertext byte.
	raw, err := base64.StdEncoding.DecodeString(s.data[rec.ID].Data)
	require.NoError(t, err)
	raw[0] ^= 0xFF
	s.data[rec.ID].Data = base64.StdEncoding.EncodeToString(raw)

	_, err = r.ResolveSecret(ctx, rec.ID, "ws-1")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeCredentialCorrupted))
}

func TestResolver_NonObjectPayload(t *testing.T) {
	r, s := testResolver(t)
	c := testCipher(t)

	data, iv, err := c.Encrypt([]byte(`"just a string"`))
	require.NoError(t, err)
	require.NoError(t, s.StoreCredentials(context.Background(), &schema.Credential{
		ID: "c1", WorkspaceID: "ws-1", Data: data, IV: iv,
	}))

	_, err = r.ResolveSecret(context.Background(), "c1", "ws-1")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeCredentialCorrupted))
}

func TestResolver_DeleteAndList(t *testing.T) {
	r, _ := testResolver(t)
	ctx := context.Background()

	a, err := r.Seal(ctx, "ws-1", schema.BlockTypeHinova, "a", map[string]any{"token": "1"})
	require.NoError(t, err)
	_, err = r.Seal(ctx, "ws-1", schema.BlockTypeHinova, "b", map[string]any{"token": "2"})
	require.NoError(t, err)
	_, err = r.Seal(ctx, "ws-2", schema.BlockTypeHinova, "c", map[string]any{"token": "3"})
	require.NoError(t, err)

	list, err := r.List(ctx, "ws-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, r.Delete(ctx, a.ID, "ws-1"))
	_, err = r.Resolve(ctx, a.ID, "ws-1")
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestResolver_SealRequiresWorkspace(t *testing.T) {
	r, _ := testResolver(t)
	_, err := r.Seal(context.Background(), "", schema.BlockTypeHinova, "x", map[string]any{"token": "t"})
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}
