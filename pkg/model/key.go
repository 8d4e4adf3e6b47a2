package model

import "time"

// KeyType is the tier of a search index key.
type KeyType string

const (
	KeyTypeMaster       KeyType = "master"
	KeyTypeProjectOwner KeyType = "project_owner"
	KeyTypeProjectShare KeyType = "project_share"
	KeyTypePublic       KeyType = "public"
)

// IndexKey describes one key known to the search engine. ProjectShare keys
// have no row of their own; they are signed tenant tokens derived from the
// owner key.
type IndexKey struct {
	UID        string     `json:"uid"`
	Type       KeyType    `json:"type"`
	ProjectID  string     `json:"project_id,omitempty"`
	Actions    []string   `json:"actions"`
	Indexes    []string   `json:"indexes"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	UsageCount int64      `json:"usage_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	Active     bool       `json:"active"`
}

// SharePermission grades what a tenant token may see.
type SharePermission string

const (
	ShareRead       SharePermission = "read"
	ShareLimited    SharePermission = "limited"
	ShareRestricted SharePermission = "restricted"
	ShareWrite      SharePermission = "write"
	ShareAdmin      SharePermission = "admin"
)

// Share is a grant of search access to a project's index for a third party.
type Share struct {
	ProjectID  string          `json:"project_id"`
	Permission SharePermission `json:"permission"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
}
