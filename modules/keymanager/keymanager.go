// Package keymanager owns the search index key lifecycle: one owner key per
// project, optional public keys, short-lived JWT tenant tokens for shares,
// and periodic cleanup of expired keys. Data isolation rests on every key
// being scoped to its project's index.
package keymanager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hindsightlabs/hindsight/pkg/indexer"
	"github.com/hindsightlabs/hindsight/pkg/model"
	"github.com/hindsightlabs/hindsight/pkg/store"
)

const (
	ownerKeyNamePrefix  = "hindsight-owner-"
	publicKeyNamePrefix = "hindsight-public-"
)

// Owner keys may search and fetch documents; public keys only search.
var (
	ownerKeyActions  = []string{"search", "documents.get"}
	publicKeyActions = []string{"search"}
)

var (
	metricKeyOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hindsight",
		Name:      "keymanager_operations_total",
		Help:      "Key lifecycle operations by operation and outcome.",
	}, []string{"operation", "outcome"})
	metricExpiredDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hindsight",
		Name:      "keymanager_expired_keys_deleted_total",
		Help:      "Expired keys removed by the cleanup loop.",
	})
)

// Manager drives the key engine. It runs as a timer service whose iteration
// deletes expired keys.
type Manager struct {
	services.Service

	cfg         Config
	engine      indexer.KeyEngine
	store       store.Store
	indexPrefix string
	logger      log.Logger

	now func() time.Time
}

// New wires the manager. indexPrefix is the search config's index prefix so
// key scopes and document indexes always agree.
func New(cfg Config, engine indexer.KeyEngine, st store.Store, indexPrefix string, logger log.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid key manager config")
	}

	m := &Manager{
		cfg:         cfg,
		engine:      engine,
		store:       st,
		indexPrefix: indexPrefix,
		logger:      log.With(logger, "component", "keymanager"),
		now:         time.Now,
	}
	m.Service = services.NewTimerService(cfg.CleanupInterval, nil, m.cleanupIteration, nil)
	return m, nil
}

// IndexName returns the index a project's documents and keys are scoped to.
func (m *Manager) IndexName(projectID string) string {
	return m.indexPrefix + projectID
}

// CreateOwnerKey issues the per-project owner key and records its uid on the
// project row. An existing owner key is left in place; use Rotate to replace
// it.
func (m *Manager) CreateOwnerKey(ctx context.Context, projectID string) (*indexer.Key, error) {
	expires := m.now().Add(time.Duration(m.cfg.KeyRotationDays) * 24 * time.Hour)

	key, err := m.engine.CreateKey(ctx, indexer.KeyConfig{
		Name:        ownerKeyNamePrefix + projectID,
		Description: fmt.Sprintf("owner key for project %s", projectID),
		Actions:     ownerKeyActions,
		Indexes:     []string{m.IndexName(projectID)},
		ExpiresAt:   &expires,
	})
	if err != nil {
		metricKeyOps.WithLabelValues("create", "error").Inc()
		return nil, errors.Wrap(err, "creating owner key")
	}

	if err := m.store.UpdateProject(ctx, projectID, func(p *model.Project) error {
		p.IndexKeyUID = key.UID
		return nil
	}); err != nil {
		// the engine key exists but the project row does not reference it;
		// the caller retries and cleanup removes the orphan at expiry.
		metricKeyOps.WithLabelValues("create", "error").Inc()
		return nil, errors.Wrap(err, "recording owner key uid")
	}

	metricKeyOps.WithLabelValues("create", "success").Inc()
	level.Info(m.logger).Log("msg", "owner key created", "project", projectID, "uid", key.UID)
	return key, nil
}

// RotateOwnerKey revokes the project's owner key and issues a fresh one.
func (m *Manager) RotateOwnerKey(ctx context.Context, projectID string) (*indexer.Key, error) {
	if _, err := m.RevokeOwnerKey(ctx, projectID); err != nil {
		return nil, errors.Wrap(err, "revoking before rotate")
	}

	key, err := m.CreateOwnerKey(ctx, projectID)
	if err != nil {
		return nil, err
	}

	metricKeyOps.WithLabelValues("rotate", "success").Inc()
	return key, nil
}

// RevokeOwnerKey deletes the project's owner key. Revoking a project without
// one reports false and no error: the operation is idempotent.
func (m *Manager) RevokeOwnerKey(ctx context.Context, projectID string) (bool, error) {
	project, err := m.store.GetProject(ctx, projectID)
	if err != nil {
		return false, err
	}
	if project.IndexKeyUID == "" {
		return false, nil
	}

	deleted, err := m.engine.DeleteKey(ctx, project.IndexKeyUID)
	if err != nil {
		metricKeyOps.WithLabelValues("revoke", "error").Inc()
		return false, errors.Wrap(err, "deleting owner key")
	}

	if err := m.store.UpdateProject(ctx, projectID, func(p *model.Project) error {
		p.IndexKeyUID = ""
		return nil
	}); err != nil {
		return deleted, errors.Wrap(err, "clearing owner key uid")
	}

	metricKeyOps.WithLabelValues("revoke", "success").Inc()
	level.Info(m.logger).Log("msg", "owner key revoked", "project", projectID, "deleted", deleted)
	return deleted, nil
}

// CreatePublicKey issues a search-only key for the project's index with no
// expiry. Rate limiting is enforced outside the engine; the configured limit
// is recorded on the key description for operators.
func (m *Manager) CreatePublicKey(ctx context.Context, projectID string) (*indexer.Key, error) {
	key, err := m.engine.CreateKey(ctx, indexer.KeyConfig{
		Name:        publicKeyNamePrefix + projectID,
		Description: fmt.Sprintf("public search key for project %s (rate limit %d/h)", projectID, m.cfg.PublicKeyRateLimit),
		Actions:     publicKeyActions,
		Indexes:     []string{m.IndexName(projectID)},
	})
	if err != nil {
		metricKeyOps.WithLabelValues("create_public", "error").Inc()
		return nil, errors.Wrap(err, "creating public key")
	}

	if err := m.store.UpdateProject(ctx, projectID, func(p *model.Project) error {
		p.PublicKeyUID = key.UID
		return nil
	}); err != nil {
		metricKeyOps.WithLabelValues("create_public", "error").Inc()
		return nil, errors.Wrap(err, "recording public key uid")
	}

	metricKeyOps.WithLabelValues("create_public", "success").Inc()
	return key, nil
}

// CleanupExpired removes every key whose expiry has passed and reports how
// many were deleted.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	keys, err := m.engine.ListKeys(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "listing keys")
	}

	deleted := 0
	now := m.now()
	for _, k := range keys {
		if !k.Expired(now) {
			continue
		}
		ok, err := m.engine.DeleteKey(ctx, k.UID)
		if err != nil {
			level.Warn(m.logger).Log("msg", "failed to delete expired key", "uid", k.UID, "err", err)
			continue
		}
		if ok {
			deleted++
		}
	}

	metricExpiredDeleted.Add(float64(deleted))
	return deleted, nil
}

// GetKeyStatus reports one key as the engine sees it.
func (m *Manager) GetKeyStatus(ctx context.Context, uid string) (*model.IndexKey, error) {
	k, err := m.engine.GetKey(ctx, uid)
	if err != nil {
		return nil, err
	}
	ik := m.toIndexKey(*k)
	return &ik, nil
}

// ListProjectKeys enumerates the keys scoped to a project's index.
func (m *Manager) ListProjectKeys(ctx context.Context, projectID string) ([]model.IndexKey, error) {
	keys, err := m.engine.ListKeys(ctx)
	if err != nil {
		return nil, err
	}

	index := m.IndexName(projectID)
	var out []model.IndexKey
	for _, k := range keys {
		if !scopedTo(k, index) {
			continue
		}
		out = append(out, m.toIndexKey(k))
	}
	return out, nil
}

func scopedTo(k indexer.Key, index string) bool {
	for _, idx := range k.Indexes {
		if idx == index {
			return true
		}
	}
	return false
}

func (m *Manager) toIndexKey(k indexer.Key) model.IndexKey {
	ik := model.IndexKey{
		UID:       k.UID,
		Type:      keyTypeFromName(k.Name),
		ProjectID: projectIDFromName(k.Name),
		Actions:   k.Actions,
		Indexes:   k.Indexes,
		CreatedAt: k.CreatedAt,
		ExpiresAt: k.ExpiresAt,
		Active:    !k.Expired(m.now()),
	}
	return ik
}

func keyTypeFromName(name string) model.KeyType {
	switch {
	case strings.HasPrefix(name, ownerKeyNamePrefix):
		return model.KeyTypeProjectOwner
	case strings.HasPrefix(name, publicKeyNamePrefix):
		return model.KeyTypePublic
	default:
		return model.KeyTypeMaster
	}
}

func projectIDFromName(name string) string {
	for _, prefix := range []string{ownerKeyNamePrefix, publicKeyNamePrefix} {
		if strings.HasPrefix(name, prefix) {
			return strings.TrimPrefix(name, prefix)
		}
	}
	return ""
}

func (m *Manager) cleanupIteration(ctx context.Context) error {
	deleted, err := m.CleanupExpired(ctx)
	if err != nil {
		// transient engine failures must not kill the service
		level.Warn(m.logger).Log("msg", "key cleanup failed", "err", err)
		return nil
	}
	if deleted > 0 {
		level.Info(m.logger).Log("msg", "expired keys deleted", "count", deleted)
	}
	return nil
}
