package store

import (
	"context"
	"time"

	c "github.com/patrickmn/go-cache"

	"github.com/rendis/blockrun/pkg/schema"
)

// CredentialBackend is the subset of Store the credential cache decorates.
type CredentialBackend interface {
	GetCredentials(ctx context.Context, id, workspaceID string) (*schema.Credential, error)
	StoreCredentials(ctx context.Context, cred *schema.Credential) error
	DeleteCredentials(ctx context.Context, id, workspaceID string) error
	ListCredentials(ctx context.Context, workspaceID string) ([]*schema.Credential, error)
}

// CachedCredentialStore keeps recently read credential records in memory.
// Records stay encrypted in the cache. Misses are not cached.
type CachedCredentialStore struct {
	backend CredentialBackend
	cache   *c.Cache
}

// NewCachedCredentialStore wraps backend with a TTL cache. A ttl <= 0 keeps
// entries until they are overwritten or deleted.
func NewCachedCredentialStore(backend CredentialBackend, ttl time.Duration) *CachedCredentialStore {
	if ttl <= 0 {
		ttl = c.NoExpiration
	}
	return &CachedCredentialStore{
		backend: backend,
		cache:   c.New(ttl, 10*time.Minute),
	}
}

func credentialKey(id, workspaceID string) string {
	return workspaceID + "/" + id
}

func (s *CachedCredentialStore) GetCredentials(ctx context.Context, id, workspaceID string) (*schema.Credential, error) {
	key := credentialKey(id, workspaceID)
	if v, found := s.cache.Get(key); found {
		cp := *v.(*schema.Credential)
		return &cp, nil
	}
	cred, err := s.backend.GetCredentials(ctx, id, workspaceID)
	if err != nil {
		return nil, err
	}
	cp := *cred
	s.cache.SetDefault(key, &cp)
	return cred, nil
}

// StoreCredentials writes through and drops the cached record once the write
// has finished, so a read racing the write cannot keep the old ciphertext.
func (s *CachedCredentialStore) StoreCredentials(ctx context.Context, cred *schema.Credential) error {
	defer s.cache.Delete(credentialKey(cred.ID, cred.WorkspaceID))
	return s.backend.StoreCredentials(ctx, cred)
}

func (s *CachedCredentialStore) DeleteCredentials(ctx context.Context, id, workspaceID string) error {
	defer s.cache.Delete(credentialKey(id, workspaceID))
	return s.backend.DeleteCredentials(ctx, id, workspaceID)
}

// ListCredentials always reads through to the backend.
func (s *CachedCredentialStore) ListCredentials(ctx context.Context, workspaceID string) ([]*schema.Credential, error) {
	return s.backend.ListCredentials(ctx, workspaceID)
}

// Flush drops every cached record.
func (s *CachedCredentialStore) Flush() { s.cache.Flush() }

// Len reports the number of cached records.
func (s *CachedCredentialStore) Len() int { return s.cache.ItemCount() }
