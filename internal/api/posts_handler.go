package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tourneyreel/studio/internal/posts"
)

type PostsResponse struct {
	Posts []*posts.Post `json:"posts"`
}

func writePostError(w http.ResponseWriter, err error) {
	var ve *posts.ValidationError
	switch {
	case errors.As(err, &ve):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	case errors.Is(err, posts.ErrNotFound):
		WriteError(w, http.StatusNotFound, "post not found", "NOT_FOUND")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required", "BAD_REQUEST")
		return "", false
	}
	return userID, true
}

func listPostsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUserID(w, r)
		if !ok {
			return
		}
		q := r.URL.Query()
		f := posts.Filter{Status: q.Get("status")}
		for _, p := range []struct {
			name string
			dst  *time.Time
		}{{"from", &f.From}, {"to", &f.To}} {
			raw := q.Get(p.name)
			if raw == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				WriteError(w, http.StatusBadRequest, p.name+" must be an RFC3339 timestamp", "BAD_REQUEST")
				return
			}
			*p.dst = t
		}

		list, err := cfg.Posts.List(r.Context(), userID, f)
		if err != nil {
			writePostError(w, err)
			return
		}
		if list == nil {
			list = []*posts.Post{}
		}
		WriteJSON(w, http.StatusOK, PostsResponse{Posts: list})
	}
}

func createPostHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in posts.CreateInput
		if !decodeBody(w, r, &in) {
			return
		}
		p, err := cfg.Posts.Create(r.Context(), in)
		if err != nil {
			writePostError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, p)
	}
}

func updatePostHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUserID(w, r)
		if !ok {
			return
		}
		var in posts.UpdateInput
		if !decodeBody(w, r, &in) {
			return
		}
		p, err := cfg.Posts.Update(r.Context(), userID, chi.URLParam(r, "id"), in)
		if err != nil {
			writePostError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, p)
	}
}

func deletePostHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUserID(w, r)
		if !ok {
			return
		}
		if err := cfg.Posts.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
			writePostError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
