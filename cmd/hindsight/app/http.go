package app

import (
	"context"
	"net/http"

	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzhttp"
	"github.com/pkg/errors"
	"github.com/prometheus/common/version"

	"github.com/hindsightlabs/hindsight/archive/router"
	"github.com/hindsightlabs/hindsight/pkg/store"
	"github.com/hindsightlabs/hindsight/pkg/util/log"
)

func newAPIRouter(t *App) *mux.Router {
	r := mux.NewRouter()
	r.Use(gzhttp.GzipHandler)

	r.Path("/status/version").Handler(versionHandler())
	r.Path("/status/sources").Handler(t.statusSourcesHandler())
	r.Path("/ops/scrape/{projectID}").Methods(http.MethodPost).Handler(t.scrapeHandler())

	return r
}

func versionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version.Version,
			"revision":   version.Revision,
			"branch":     version.Branch,
			"go_version": version.GoVersion,
		})
	}
}

type sourcesStatus struct {
	Health  router.Health            `json:"health"`
	Sources []router.MetricsSnapshot `json:"sources"`
}

func (t *App) statusSourcesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if t.archiveRouter == nil {
			http.Error(w, "archive router not running", http.StatusServiceUnavailable)
			return
		}

		writeJSON(w, http.StatusOK, sourcesStatus{
			Health:  t.archiveRouter.Healthy(),
			Sources: t.archiveRouter.Status(),
		})
	}
}

// scrapeHandler kicks off a scrape session for a project. The session runs
// in the background; the response only confirms it was accepted.
func (t *App) scrapeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if t.orchestrator == nil {
			http.Error(w, "orchestrator not running", http.StatusServiceUnavailable)
			return
		}

		projectID := mux.Vars(r)["projectID"]
		if _, err := t.store.GetProject(r.Context(), projectID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "project not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if err := t.indexer.EnsureIndex(r.Context(), t.cfg.Search.IndexPrefix+projectID, "id"); err != nil {
			level.Warn(log.Logger).Log("msg", "failed to ensure index", "project", projectID, "err", err)
		}

		go func() {
			// the session outlives the request on purpose
			sess, err := t.orchestrator.StartProjectScrape(context.Background(), projectID)
			if err != nil {
				level.Error(log.Logger).Log("msg", "scrape session did not run", "project", projectID, "err", err)
				return
			}
			level.Info(log.Logger).Log("msg", "scrape session done", "project", projectID,
				"session", sess.ID, "status", sess.Status)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"project_id": projectID,
			"status":     "accepted",
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := jsoniter.NewEncoder(w).Encode(v); err != nil {
		level.Error(log.Logger).Log("msg", "error writing response", "err", err)
	}
}
