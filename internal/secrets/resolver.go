package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/blockrun/pkg/schema"
)

var (
	// ErrMissingCredential is returned when a block names no credential.
	ErrMissingCredential = errors.New("missing credentialsId")
	// ErrCredentialNotFound is returned when the reference does not exist
	// for the workspace.
	ErrCredentialNotFound = errors.New("credentials not found")
)

// CredentialStore is the persistence interface needed by the resolver.
// Satisfied by store.LibSQLStore and store.CachedCredentialStore.
// A missing record is reported as a schema.ErrCodeNotFound error.
type CredentialStore interface {
	GetCredentials(ctx context.Context, id, workspaceID string) (*schema.Credential, error)
	StoreCredentials(ctx context.Context, cred *schema.Credential) error
	DeleteCredentials(ctx context.Context, id, workspaceID string) error
	ListCredentials(ctx context.Context, workspaceID string) ([]*schema.Credential, error)
}

// Resolver fetches workspace credentials and decrypts their secret payload.
type Resolver struct {
	store  CredentialStore
	cipher *Cipher
}

// NewResolver creates a Resolver over the given store and cipher.
func NewResolver(store CredentialStore, c *Cipher) *Resolver {
	return &Resolver{store: store, cipher: c}
}

// Credential is a resolved, still encrypted credential.
type Credential struct {
	Record *schema.Credential
	cipher *Cipher
}

// Decrypt returns the secret fields of the credential. Any failure means the
// stored material is unusable and is reported as ErrCodeCredentialCorrupted.
func (c *Credential) Decrypt() (map[string]any, error) {
	plaintext, err := c.cipher.Decrypt(c.Record.Data, c.Record.IV)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeCredentialCorrupted,
			"credential %q cannot be decrypted", c.Record.ID).WithCause(err)
	}
	var fields map[string]any
	if err := json.Unmarshal(plaintext, &fields); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeCredentialCorrupted,
			"credential %q payload is not a JSON object", c.Record.ID).WithCause(err)
	}
	return fields, nil
}

// Resolve looks up a credential reference within a workspace.
func (r *Resolver) Resolve(ctx context.Context, ref, workspaceID string) (*Credential, error) {
	if ref == "" {
		return nil, ErrMissingCredential
	}
	rec, err := r.store.GetCredentials(ctx, ref, workspaceID)
	if schema.HasCode(err, schema.ErrCodeNotFound) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.WorkspaceID != workspaceID {
		return nil, ErrCredentialNotFound
	}
	return &Credential{Record: rec, cipher: r.cipher}, nil
}

// ResolveSecret resolves and decrypts a credential in one step.
func (r *Resolver) ResolveSecret(ctx context.Context, ref, workspaceID string) (map[string]any, error) {
	cred, err := r.Resolve(ctx, ref, workspaceID)
	if err != nil {
		return nil, err
	}
	return cred.Decrypt()
}

// Seal encrypts secret and persists it as a new credential of the workspace.
func (r *Resolver) Seal(ctx context.Context, workspaceID string, typ schema.BlockType, name string, secret map[string]any) (*schema.Credential, error) {
	if workspaceID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "workspace id is required")
	}
	plaintext, err := json.Marshal(secret)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "secret is not serializable").WithCause(err)
	}
	data, iv, err := r.cipher.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}
	rec := &schema.Credential{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		Type:        typ,
		Name:        name,
		Data:        data,
		IV:          iv,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.store.StoreCredentials(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes a credential of the workspace.
func (r *Resolver) Delete(ctx context.Context, id, workspaceID string) error {
	return r.store.DeleteCredentials(ctx, id, workspaceID)
}

// List returns the credential records of a workspace, without decrypting them.
func (r *Resolver) List(ctx context.Context, workspaceID string) ([]*schema.Credential, error) {
	return r.store.ListCredentials(ctx, workspaceID)
}
