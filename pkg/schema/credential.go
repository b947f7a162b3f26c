package schema

import "time"

// Credential is an encrypted, workspace-scoped secret record.
// Data and IV are base64; Data holds the AES-GCM ciphertext with its tag.
type Credential struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Type        BlockType `json:"type"`
	Name        string    `json:"name"`
	Data        string    `json:"data"`
	IV          string    `json:"iv"`
	CreatedAt   time.Time `json:"createdAt"`
}
