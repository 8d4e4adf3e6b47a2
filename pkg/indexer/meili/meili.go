// Package meili binds the indexer and key engine interfaces to Meilisearch.
package meili

import (
	"context"
	"net/http"

	"github.com/meilisearch/meilisearch-go"
	"github.com/pkg/errors"

	"github.com/hindsightlabs/hindsight/pkg/indexer"
)

// Client speaks to one Meilisearch deployment. It satisfies both
// indexer.Indexer and indexer.KeyEngine; the server wires two instances, one
// with the search key for documents and one with the master key for key
// administration.
type Client struct {
	sm meilisearch.ServiceManager
}

var (
	_ indexer.Indexer   = (*Client)(nil)
	_ indexer.KeyEngine = (*Client)(nil)
)

func New(url, apiKey string) *Client {
	return &Client{sm: meilisearch.New(url, meilisearch.WithAPIKey(apiKey))}
}

func (c *Client) Index(ctx context.Context, indexName string, docs []indexer.Document) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := c.sm.Index(indexName).AddDocumentsWithContext(ctx, docs)
	return errors.Wrapf(err, "indexing %d documents into %s", len(docs), indexName)
}

func (c *Client) EnsureIndex(ctx context.Context, indexName, primaryKey string) error {
	_, err := c.sm.GetIndexWithContext(ctx, indexName)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return errors.Wrapf(err, "checking index %s", indexName)
	}

	_, err = c.sm.CreateIndexWithContext(ctx, &meilisearch.IndexConfig{
		Uid:        indexName,
		PrimaryKey: primaryKey,
	})
	return errors.Wrapf(err, "creating index %s", indexName)
}

func (c *Client) DeleteIndex(ctx context.Context, indexName string) error {
	_, err := c.sm.DeleteIndexWithContext(ctx, indexName)
	if err != nil && isNotFound(err) {
		return nil
	}
	return errors.Wrapf(err, "deleting index %s", indexName)
}

func (c *Client) Health(ctx context.Context) error {
	h, err := c.sm.HealthWithContext(ctx)
	if err != nil {
		return errors.Wrap(err, "meilisearch health")
	}
	if h.Status != "available" {
		return errors.Errorf("meilisearch unavailable: %s", h.Status)
	}
	return nil
}

func (c *Client) CreateKey(ctx context.Context, cfg indexer.KeyConfig) (*indexer.Key, error) {
	req := &meilisearch.Key{
		Name:        cfg.Name,
		Description: cfg.Description,
		Actions:     cfg.Actions,
		Indexes:     cfg.Indexes,
	}
	if cfg.ExpiresAt != nil {
		req.ExpiresAt = *cfg.ExpiresAt
	}

	k, err := c.sm.CreateKeyWithContext(ctx, req)
	if err != nil {
		return nil, errors.Wrapf(err, "creating key %s", cfg.Name)
	}
	return fromMeiliKey(k), nil
}

func (c *Client) GetKey(ctx context.Context, uid string) (*indexer.Key, error) {
	k, err := c.sm.GetKeyWithContext(ctx, uid)
	if err != nil {
		if isNotFound(err) {
			return nil, indexer.ErrKeyNotFound
		}
		return nil, errors.Wrapf(err, "fetching key %s", uid)
	}
	return fromMeiliKey(k), nil
}

func (c *Client) DeleteKey(ctx context.Context, uid string) (bool, error) {
	ok, err := c.sm.DeleteKeyWithContext(ctx, uid)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "deleting key %s", uid)
	}
	return ok, nil
}

func (c *Client) ListKeys(ctx context.Context) ([]indexer.Key, error) {
	res, err := c.sm.GetKeysWithContext(ctx, &meilisearch.KeysQuery{Limit: 1000})
	if err != nil {
		return nil, errors.Wrap(err, "listing keys")
	}

	out := make([]indexer.Key, 0, len(res.Results))
	for i := range res.Results {
		out = append(out, *fromMeiliKey(&res.Results[i]))
	}
	return out, nil
}

func fromMeiliKey(k *meilisearch.Key) *indexer.Key {
	out := &indexer.Key{
		UID:         k.UID,
		Key:         k.Key,
		Name:        k.Name,
		Description: k.Description,
		Actions:     k.Actions,
		Indexes:     k.Indexes,
		CreatedAt:   k.CreatedAt,
	}
	if !k.ExpiresAt.IsZero() {
		exp := k.ExpiresAt
		out.ExpiresAt = &exp
	}
	return out
}

func isNotFound(err error) bool {
	var merr *meilisearch.Error
	return errors.As(err, &merr) && merr.StatusCode == http.StatusNotFound
}
