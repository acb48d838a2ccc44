package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tourneyreel/studio/internal/cloud"
	"github.com/tourneyreel/studio/internal/jobs"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(LoopbackGuard())
		r.Get("/assets/{name}", assetHandler(cfg))
		r.Head("/assets/{name}", assetHandler(cfg))
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Settings, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Route("/campaigns/{id}", func(r chi.Router) {
			r.Get("/session", getSessionHandler(cfg))
			r.Delete("/session", discardSessionHandler(cfg))
			r.Post("/actions", dispatchHandler(cfg))
			r.Post("/clips", addClipHandler(cfg))
			r.Post("/audio", addAudioHandler(cfg))
			r.Post("/drag/begin", dragBeginHandler(cfg))
			r.Post("/drag/update", dragUpdateHandler(cfg))
			r.Post("/drag/end", dragEndHandler(cfg))
			r.Get("/preview", previewHandler(cfg))
			r.Post("/exports", createExportHandler(cfg))
			r.Get("/exports", listCampaignExportsHandler(cfg))
			r.Get("/assets", listAssetsHandler(cfg))
		})

		r.Get("/exports/{id}", getExportHandler(cfg))

		r.Get("/posts", listPostsHandler(cfg))
		r.Post("/posts", createPostHandler(cfg))
		r.Put("/posts/{id}", updatePostHandler(cfg))
		r.Delete("/posts/{id}", deletePostHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		version := cfg.Version
		if version == "" {
			version = "dev"
		}
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		resp := StatusResponse{State: "idle", Sessions: []string{}}
		if cfg.Sessions != nil {
			resp.Sessions = cfg.Sessions.Campaigns()
		}

		if cfg.Jobs != nil {
			recent, _ := cfg.Jobs.List(ctx, 10)
			for _, j := range recent {
				switch j.Status {
				case jobs.StatusRunning:
					if resp.ActiveJob == nil {
						jr := JobToResponse(j)
						resp.ActiveJob = &jr
					}
				case jobs.StatusFailed:
					if resp.LastError == "" {
						resp.LastError = j.Error
					}
				}
			}
			pending, _ := cfg.Jobs.ListPending(ctx)
			resp.PendingJobs = len(pending)
		}

		switch {
		case resp.ActiveJob != nil:
			resp.State = "exporting"
		case cfg.Runner != nil && cfg.Runner.IsPaused():
			resp.State = "paused"
		case resp.LastError != "":
			resp.State = "error"
		}

		if cfg.Doctor != nil {
			resp.Tools, _ = cfg.Doctor.Recent(ctx)
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func assetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Assets == nil {
			WriteError(w, http.StatusNotFound, "asset not found", "NOT_FOUND")
			return
		}
		name := chi.URLParam(r, "name")
		if err := cfg.Assets.ServeAsset(w, r, name); err != nil {
			if errors.Is(err, cloud.ErrAssetNotFound) {
				WriteError(w, http.StatusNotFound, "asset not found", "NOT_FOUND")
				return
			}
			cfg.Logger.Error("asset serve error", "error", err, "name", name)
			WriteError(w, http.StatusInternalServerError, "failed to serve asset", "INTERNAL_ERROR")
		}
	}
}
