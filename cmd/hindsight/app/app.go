package app

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/services"
	"github.com/grafana/dskit/signals"
	"gopkg.in/yaml.v3"

	"github.com/hindsightlabs/hindsight/archive/router"
	"github.com/hindsightlabs/hindsight/modules/keymanager"
	"github.com/hindsightlabs/hindsight/modules/orchestrator"
	"github.com/hindsightlabs/hindsight/pkg/cache"
	"github.com/hindsightlabs/hindsight/pkg/extraction"
	"github.com/hindsightlabs/hindsight/pkg/indexer"
	"github.com/hindsightlabs/hindsight/pkg/store"
	"github.com/hindsightlabs/hindsight/pkg/util/log"
)

// App wires the ingestion pipeline together and runs it as a tree of
// services.
type App struct {
	cfg Config

	store         store.Store
	cacheProvider cache.Provider
	indexer       indexer.Indexer
	keyManager    *keymanager.Manager
	archiveRouter *router.Router
	extractor     *extraction.HybridExtractor
	orchestrator  *orchestrator.Orchestrator

	httpRouter *mux.Router
	httpServer *http.Server

	ModuleManager  *modules.Manager
	serviceMap     map[string]services.Service
	serviceManager *services.Manager
	deps           map[string][]string
}

func New(cfg Config) (*App, error) {
	app := &App{
		cfg: cfg,
	}

	if err := app.setupModuleManager(); err != nil {
		return nil, fmt.Errorf("failed to setup module manager %w", err)
	}

	return app, nil
}

// Run starts, and blocks until a signal is received.
func (t *App) Run() error {
	if !t.ModuleManager.IsUserVisibleModule(t.cfg.Target) {
		level.Warn(log.Logger).Log("msg", "selected target is an internal module, is this intended?", "target", t.cfg.Target)
	}

	serviceMap, err := t.ModuleManager.InitModuleServices(t.cfg.Target)
	if err != nil {
		return fmt.Errorf("failed to init module services %w", err)
	}
	t.serviceMap = serviceMap

	servs := []services.Service(nil)
	for _, s := range serviceMap {
		servs = append(servs, s)
	}

	sm, err := services.NewManager(servs...)
	if err != nil {
		return fmt.Errorf("failed to start service manager %w", err)
	}
	t.serviceManager = sm

	// before starting the server, register the handlers that need the
	// service manager or the full config
	t.httpRouter.Path("/ready").Handler(t.readyHandler(sm))
	t.httpRouter.Path("/config").Handler(t.configHandler())

	// Let's listen for events from this manager, and log them.
	healthy := func() { level.Info(log.Logger).Log("msg", "hindsight started") }
	stopped := func() { level.Info(log.Logger).Log("msg", "hindsight stopped") }
	serviceFailed := func(service services.Service) {
		// if any service fails, stop everything
		sm.StopAsync()

		// let's find out which module failed
		for m, s := range serviceMap {
			if s == service {
				level.Error(log.Logger).Log("msg", "module failed", "module", m, "err", service.FailureCase())
				return
			}
		}

		level.Error(log.Logger).Log("msg", "module failed", "module", "unknown", "err", service.FailureCase())
	}
	sm.AddListener(services.NewManagerListener(healthy, stopped, serviceFailed))

	// Setup signal handler. If signal arrives, we stop the manager, which stops all the services.
	handler := signals.NewHandler(log.Logger)
	go func() {
		handler.Loop()
		sm.StopAsync()
	}()

	// Start all services. This can really only fail if some service is already
	// in other state than New, which should not be the case.
	err = sm.StartAsync(context.Background())
	if err != nil {
		return fmt.Errorf("failed to start service manager %w", err)
	}

	return sm.AwaitStopped(context.Background())
}

// Stop shuts the running app down from outside Run's goroutine.
func (t *App) Stop() {
	if t.serviceManager != nil {
		t.serviceManager.StopAsync()
	}
}

func (t *App) configHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			out []byte
			err error
		)
		switch r.URL.Query().Get("mode") {
		case "diff":
			out, err = configDiff(&t.cfg)
		case "defaults":
			out, err = yaml.Marshal(NewDefaultConfig())
		default:
			out, err = yaml.Marshal(t.cfg)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/yaml")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(out); err != nil {
			level.Error(log.Logger).Log("msg", "error writing response", "err", err)
		}
	}
}

func (t *App) readyHandler(sm *services.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if !sm.IsHealthy() {
			msg := bytes.Buffer{}
			msg.WriteString("Some services are not Running:\n")

			byState := sm.ServicesByState()
			for st, ls := range byState {
				msg.WriteString(fmt.Sprintf("%v: %d\n", st, len(ls)))
			}

			http.Error(w, msg.String(), http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ready")
	}
}
