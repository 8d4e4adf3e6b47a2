package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/hindsightlabs/hindsight/modules/keymanager"
	"github.com/hindsightlabs/hindsight/pkg/indexer"
	"github.com/hindsightlabs/hindsight/pkg/indexer/meili"
	"github.com/hindsightlabs/hindsight/pkg/model"
	"github.com/hindsightlabs/hindsight/pkg/store/memstore"
)

// newKeyManager builds a key manager against the configured engine with a
// transient store. Project rows only carry key uids here, so each command
// seeds the project it operates on and recovers the uids from the engine.
func newKeyManager(opts *globalOptions) (*keymanager.Manager, *memstore.Store, error) {
	logger, cfg, err := opts.setup()
	if err != nil {
		return nil, nil, err
	}

	if cfg.Keys.URL == "" {
		return nil, nil, errors.New("keys.url is not configured; pass a config file with a keys block")
	}

	engine := meili.New(cfg.Keys.URL, cfg.Keys.MasterKey.String())
	st := memstore.New()

	mgr, err := keymanager.New(cfg.Keys, engine, st, cfg.Search.IndexPrefix, logger)
	if err != nil {
		return nil, nil, err
	}
	return mgr, st, nil
}

func seedProject(ctx context.Context, mgr *keymanager.Manager, st *memstore.Store, projectID string) error {
	st.PutProject(model.Project{ID: projectID, Name: projectID})

	keys, err := mgr.ListProjectKeys(ctx, projectID)
	if err != nil {
		return errors.Wrap(err, "listing project keys")
	}

	return st.UpdateProject(ctx, projectID, func(p *model.Project) error {
		for _, k := range keys {
			switch k.Type {
			case model.KeyTypeProjectOwner:
				p.IndexKeyUID = k.UID
			case model.KeyTypePublic:
				p.PublicKeyUID = k.UID
			}
		}
		return nil
	})
}

func printKey(k *indexer.Key) {
	fmt.Println("UID         : ", k.UID)
	fmt.Println("Key         : ", k.Key)
	fmt.Println("Name        : ", k.Name)
	fmt.Println("Description : ", k.Description)
	fmt.Println("Actions     : ", strings.Join(k.Actions, ", "))
	fmt.Println("Indexes     : ", strings.Join(k.Indexes, ", "))
	fmt.Println("Expires     : ", expiresString(k.ExpiresAt))
}

func expiresString(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return fmt.Sprintf("%s (%s)", t.UTC().Format(time.RFC3339), humanize.Time(*t))
}

type keysCreateCmd struct {
	ProjectID string `arg:"" help:"project to issue the key for"`

	Public bool `help:"issue the public search key instead of the owner key"`
}

func (cmd *keysCreateCmd) Run(opts *globalOptions) error {
	mgr, st, err := newKeyManager(opts)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := seedProject(ctx, mgr, st, cmd.ProjectID); err != nil {
		return err
	}

	var key *indexer.Key
	if cmd.Public {
		key, err = mgr.CreatePublicKey(ctx, cmd.ProjectID)
	} else {
		key, err = mgr.CreateOwnerKey(ctx, cmd.ProjectID)
	}
	if err != nil {
		return err
	}

	printKey(key)
	return nil
}

type keysRotateCmd struct {
	ProjectID string `arg:"" help:"project whose owner key to rotate"`
}

func (cmd *keysRotateCmd) Run(opts *globalOptions) error {
	mgr, st, err := newKeyManager(opts)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := seedProject(ctx, mgr, st, cmd.ProjectID); err != nil {
		return err
	}

	key, err := mgr.RotateOwnerKey(ctx, cmd.ProjectID)
	if err != nil {
		return err
	}

	printKey(key)
	return nil
}

type keysRevokeCmd struct {
	ProjectID string `arg:"" help:"project whose owner key to revoke"`
}

func (cmd *keysRevokeCmd) Run(opts *globalOptions) error {
	mgr, st, err := newKeyManager(opts)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := seedProject(ctx, mgr, st, cmd.ProjectID); err != nil {
		return err
	}

	deleted, err := mgr.RevokeOwnerKey(ctx, cmd.ProjectID)
	if err != nil {
		return err
	}

	if !deleted {
		fmt.Printf("project %s has no owner key\n", cmd.ProjectID)
		return nil
	}
	fmt.Printf("owner key for project %s revoked\n", cmd.ProjectID)
	return nil
}

type keysListCmd struct {
	ProjectID string `arg:"" help:"project whose keys to list"`
}

func (cmd *keysListCmd) Run(opts *globalOptions) error {
	mgr, _, err := newKeyManager(opts)
	if err != nil {
		return err
	}

	keys, err := mgr.ListProjectKeys(context.Background(), cmd.ProjectID)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{
			k.UID,
			string(k.Type),
			fmt.Sprintf("%t", k.Active),
			k.CreatedAt.UTC().Format(time.RFC3339),
			expiresString(k.ExpiresAt),
		})
	}
	renderTable([]string{"uid", "type", "active", "created", "expires"}, rows)
	return nil
}

type keysStatusCmd struct {
	UID string `arg:"" help:"key uid to inspect"`
}

func (cmd *keysStatusCmd) Run(opts *globalOptions) error {
	mgr, _, err := newKeyManager(opts)
	if err != nil {
		return err
	}

	k, err := mgr.GetKeyStatus(context.Background(), cmd.UID)
	if err != nil {
		return err
	}

	fmt.Println("UID         : ", k.UID)
	fmt.Println("Type        : ", k.Type)
	fmt.Println("Project     : ", k.ProjectID)
	fmt.Println("Active      : ", k.Active)
	fmt.Println("Actions     : ", strings.Join(k.Actions, ", "))
	fmt.Println("Indexes     : ", strings.Join(k.Indexes, ", "))
	fmt.Println("Created     : ", k.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Println("Expires     : ", expiresString(k.ExpiresAt))
	return nil
}

type keysMintTokenCmd struct {
	ProjectID string `arg:"" help:"project to mint a token for"`

	Permission string        `default:"read" enum:"read,limited,restricted,write,admin" help:"share permission the token carries"`
	ExpiresIn  time.Duration `help:"token lifetime; the configured tenant token expiry when zero"`
}

func (cmd *keysMintTokenCmd) Run(opts *globalOptions) error {
	mgr, st, err := newKeyManager(opts)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := seedProject(ctx, mgr, st, cmd.ProjectID); err != nil {
		return err
	}

	share := model.Share{
		ProjectID:  cmd.ProjectID,
		Permission: model.SharePermission(cmd.Permission),
	}
	if cmd.ExpiresIn > 0 {
		exp := time.Now().Add(cmd.ExpiresIn)
		share.ExpiresAt = &exp
	}

	token, err := mgr.MintTenantToken(ctx, cmd.ProjectID, share)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}

type keysCleanupCmd struct{}

func (cmd *keysCleanupCmd) Run(opts *globalOptions) error {
	mgr, _, err := newKeyManager(opts)
	if err != nil {
		return err
	}

	deleted, err := mgr.CleanupExpired(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("%d expired keys deleted\n", deleted)
	return nil
}
