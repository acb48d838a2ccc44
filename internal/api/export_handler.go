package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tourneyreel/studio/internal/export"
	"github.com/tourneyreel/studio/internal/jobs"
)

// createExportHandler snapshots the campaign's timeline into a merge
// request and queues it. Rendering happens in the job runner.
func createExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateExportRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}

		s, _, ok := openSession(cfg, w, r)
		if !ok {
			return
		}

		st, edits := s.Current()
		merge, err := export.BuildRequest(st, req.RemoveSilence)
		if err == nil {
			err = merge.Validate()
		}
		if err != nil {
			if errors.Is(err, export.ErrEmptyTimeline) {
				WriteError(w, http.StatusBadRequest, "add at least one clip before exporting", "BAD_REQUEST")
				return
			}
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		title := export.SanitizeName(req.Title, 120)
		job := jobs.NewJob(s.CampaignID(), title, merge)
		job.SessionVersion = edits
		if err := cfg.Jobs.Create(r.Context(), job); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to queue export", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusAccepted, JobToResponse(job))
	}
}

func getExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "job id required", "BAD_REQUEST")
			return
		}

		job, err := cfg.Jobs.Get(r.Context(), id)
		if errors.Is(err, jobs.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "export not found", "NOT_FOUND")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func listCampaignExportsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := cfg.Jobs.ListByCampaign(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list exports", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(list))}
		for i, j := range list {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func listAssetsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assets, err := cfg.Gallery.ListByCampaign(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list assets", "INTERNAL_ERROR")
			return
		}

		resp := AssetsResponse{Assets: make([]AssetResponse, len(assets))}
		for i, a := range assets {
			resp.Assets[i] = AssetToResponse(a)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
