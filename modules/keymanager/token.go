package keymanager

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/hindsightlabs/hindsight/pkg/model"
)

// ErrNoOwnerKey rejects tenant token minting for a project that has no owner
// key: tokens delegate the owner key's rights, so there must be one.
var ErrNoOwnerKey = errors.New("project has no owner key")

// SearchRules restricts what a tenant token may search: one rule per index
// the token can reach.
type SearchRules map[string]SearchRule

// SearchRule optionally narrows an index with a filter expression. An empty
// rule grants unfiltered search.
type SearchRule struct {
	Filter string `json:"filter,omitempty"`
}

// filterForPermission derives the search filter a share's permission allows.
// Write and admin shares carry non-search capabilities enforced elsewhere;
// for search they are unfiltered like read.
func filterForPermission(p model.SharePermission) (string, error) {
	switch p {
	case model.ShareRead, model.ShareWrite, model.ShareAdmin:
		return "", nil
	case model.ShareLimited:
		return "review_status != 'irrelevant'", nil
	case model.ShareRestricted:
		return "review_status = 'relevant'", nil
	default:
		return "", errors.Errorf("unknown share permission %q", p)
	}
}

// MintTenantToken signs a short-lived JWT that delegates a slice of the
// project owner key's search rights. The token expires at the share's expiry
// or after the configured TTL, whichever comes first, and is verified by the
// search engine against the master key.
func (m *Manager) MintTenantToken(ctx context.Context, projectID string, share model.Share) (string, error) {
	project, err := m.store.GetProject(ctx, projectID)
	if err != nil {
		return "", err
	}
	if project.IndexKeyUID == "" {
		return "", ErrNoOwnerKey
	}

	filter, err := filterForPermission(share.Permission)
	if err != nil {
		return "", err
	}

	exp := m.now().Add(m.cfg.TenantTokenExpiry)
	if share.ExpiresAt != nil && share.ExpiresAt.Before(exp) {
		exp = *share.ExpiresAt
	}

	claims := jwt.MapClaims{
		"searchRules": SearchRules{
			m.IndexName(projectID): {Filter: filter},
		},
		"apiKeyUid": project.IndexKeyUID,
		"exp":       exp.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.cfg.MasterKey.String()))
	if err != nil {
		metricKeyOps.WithLabelValues("mint_token", "error").Inc()
		return "", errors.Wrap(err, "signing tenant token")
	}

	metricKeyOps.WithLabelValues("mint_token", "success").Inc()
	return signed, nil
}
