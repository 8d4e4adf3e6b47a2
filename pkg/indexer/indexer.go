// Package indexer declares the search engine boundary: document indexing and
// the key administration API the key manager drives. The meili subpackage
// binds both to Meilisearch.
package indexer

import "context"

// Document is one search record. Identity is the "id" field.
type Document map[string]interface{}

// Indexer pushes processed pages into a full-text index. Unavailability is
// non-fatal to ingestion: callers log and move on.
type Indexer interface {
	Index(ctx context.Context, indexName string, docs []Document) error
	EnsureIndex(ctx context.Context, indexName, primaryKey string) error
	DeleteIndex(ctx context.Context, indexName string) error
	Health(ctx context.Context) error
}

// Noop satisfies Indexer when no search engine is configured.
type Noop struct{}

func (Noop) Index(context.Context, string, []Document) error     { return nil }
func (Noop) EnsureIndex(context.Context, string, string) error   { return nil }
func (Noop) DeleteIndex(context.Context, string) error           { return nil }
func (Noop) Health(context.Context) error                        { return nil }
