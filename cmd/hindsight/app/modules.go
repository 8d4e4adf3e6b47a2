package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hindsightlabs/hindsight/archive/router"
	cachemod "github.com/hindsightlabs/hindsight/modules/cache"
	"github.com/hindsightlabs/hindsight/modules/keymanager"
	"github.com/hindsightlabs/hindsight/modules/orchestrator"
	"github.com/hindsightlabs/hindsight/pkg/extraction"
	"github.com/hindsightlabs/hindsight/pkg/indexer"
	"github.com/hindsightlabs/hindsight/pkg/indexer/meili"
	"github.com/hindsightlabs/hindsight/pkg/store/memstore"
	"github.com/hindsightlabs/hindsight/pkg/util/log"
)

// The various modules that make up hindsight.
const (
	Server        string = "server"
	Cache         string = "cache"
	Store         string = "store"
	Indexer       string = "indexer"
	KeyManager    string = "key-manager"
	ArchiveRouter string = "archive-router"
	Extractor     string = "extractor"
	Orchestrator  string = "orchestrator"
	All           string = "all"
)

func (t *App) initServer() (services.Service, error) {
	t.httpRouter = newAPIRouter(t)

	t.httpServer = &http.Server{
		Addr:         net.JoinHostPort(t.cfg.Server.HTTPListenAddress, strconv.Itoa(t.cfg.Server.HTTPListenPort)),
		Handler:      t.httpRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // scrape triggers can take a while to accept
	}

	t.httpRouter.Path("/metrics").Handler(promhttp.Handler())

	serverDone := make(chan error, 1)
	starting := func(_ context.Context) error {
		listener, err := net.Listen("tcp", t.httpServer.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s %w", t.httpServer.Addr, err)
		}
		level.Info(log.Logger).Log("msg", "server listening", "addr", listener.Addr())

		go func() {
			serverDone <- t.httpServer.Serve(listener)
		}()
		return nil
	}
	running := func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return nil
		case err := <-serverDone:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
			return fmt.Errorf("server stopped unexpectedly")
		}
	}
	stopping := func(_ error) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return t.httpServer.Shutdown(ctx)
	}

	return services.NewBasicService(starting, running, stopping), nil
}

func (t *App) initCache() (services.Service, error) {
	provider, err := cachemod.NewProvider(&t.cfg.Cache, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache provider %w", err)
	}

	t.cacheProvider = provider
	return provider, nil
}

func (t *App) initStore() (services.Service, error) {
	t.store = memstore.New()
	return nil, nil
}

func (t *App) initIndexer() (services.Service, error) {
	if t.cfg.Search.URL == "" {
		level.Warn(log.Logger).Log("msg", "no search engine configured, documents will not be indexed")
		t.indexer = indexer.Noop{}
		return nil, nil
	}

	t.indexer = meili.New(t.cfg.Search.URL, t.cfg.Search.APIKey.String())
	return nil, nil
}

func (t *App) initKeyManager() (services.Service, error) {
	if t.cfg.Keys.URL == "" {
		level.Warn(log.Logger).Log("msg", "no key engine configured, key management is off")
		return nil, nil
	}

	engine := meili.New(t.cfg.Keys.URL, t.cfg.Keys.MasterKey.String())
	manager, err := keymanager.New(t.cfg.Keys, engine, t.store, t.cfg.Search.IndexPrefix, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create key manager %w", err)
	}

	t.keyManager = manager
	return manager, nil
}

func (t *App) initArchiveRouter() (services.Service, error) {
	archiveRouter, err := router.New(t.cfg.Archive, t.cacheProvider, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive router %w", err)
	}

	t.archiveRouter = archiveRouter
	return nil, nil
}

func (t *App) initExtractor() (services.Service, error) {
	extractor, err := extraction.NewHybridExtractor(t.cfg.Extraction, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor %w", err)
	}

	t.extractor = extractor
	return nil, nil
}

func (t *App) initOrchestrator() (services.Service, error) {
	orch, err := orchestrator.New(t.cfg.Orchestrator, t.store, t.archiveRouter, t.extractor, t.indexer,
		t.cfg.Search.IndexPrefix, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator %w", err)
	}

	t.orchestrator = orch
	return orch, nil
}

func (t *App) setupModuleManager() error {
	mm := modules.NewManager(log.Logger)

	mm.RegisterModule(Server, t.initServer, modules.UserInvisibleModule)
	mm.RegisterModule(Cache, t.initCache, modules.UserInvisibleModule)
	mm.RegisterModule(Store, t.initStore, modules.UserInvisibleModule)
	mm.RegisterModule(Indexer, t.initIndexer, modules.UserInvisibleModule)
	mm.RegisterModule(KeyManager, t.initKeyManager)
	mm.RegisterModule(ArchiveRouter, t.initArchiveRouter, modules.UserInvisibleModule)
	mm.RegisterModule(Extractor, t.initExtractor, modules.UserInvisibleModule)
	mm.RegisterModule(Orchestrator, t.initOrchestrator)
	mm.RegisterModule(All, nil)

	deps := map[string][]string{
		Cache:         {Server},
		Store:         {Server},
		Indexer:       {Server},
		KeyManager:    {Server, Store, Indexer},
		ArchiveRouter: {Server, Cache},
		Extractor:     {Server},
		Orchestrator:  {Server, Store, Indexer, ArchiveRouter, Extractor},
		All:           {KeyManager, Orchestrator},
	}

	for mod, targets := range deps {
		if err := mm.AddDependency(mod, targets...); err != nil {
			return err
		}
	}

	t.ModuleManager = mm
	t.deps = deps

	return nil
}
