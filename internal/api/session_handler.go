package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tourneyreel/studio/internal/editor"
	"github.com/tourneyreel/studio/internal/timeline"
	"github.com/tourneyreel/studio/internal/transition"
)

const maxActionBody = 1 << 20

func openSession(cfg ServerConfig, w http.ResponseWriter, r *http.Request) (*editor.Session, bool, bool) {
	campaignID := chi.URLParam(r, "id")
	if campaignID == "" {
		WriteError(w, http.StatusBadRequest, "campaign id required", "BAD_REQUEST")
		return nil, false, false
	}
	s, restored, err := cfg.Sessions.Open(r.Context(), campaignID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		return nil, false, false
	}
	return s, restored, true
}

func sessionResponse(cfg ServerConfig, s *editor.Session, st editor.State, restored bool) SessionResponse {
	resp := SessionResponse{
		CampaignID: s.CampaignID(),
		Restored:   restored,
		Version:    s.Version(),
		State:      st,
		Drag:       s.Dragging(),
	}
	if cfg.Playback != nil {
		if ps, ok := cfg.Playback(s.CampaignID()); ok {
			resp.Playback = &ps
		}
	}
	return resp
}

// writeEditorError maps a rejected gesture to a response. The state in the
// session is unchanged in every case.
func writeEditorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, editor.ErrSplitTooClose):
		WriteError(w, http.StatusConflict, "Cannot split this close to the edge of a clip", "CONFLICT")
	case errors.Is(err, editor.ErrSessionClosed), errors.Is(err, editor.ErrNoDrag):
		WriteError(w, http.StatusConflict, err.Error(), "CONFLICT")
	case errors.Is(err, editor.ErrTargetNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	default:
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxActionBody)).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return false
	}
	return true
}

func getSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, restored, ok := openSession(cfg, w, r)
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, sessionResponse(cfg, s, s.State(), restored))
	}
}

func discardSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Sessions.Discard(r.Context(), chi.URLParam(r, "id")); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func dispatchHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxActionBody))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		action, err := editor.DecodeAction(body)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		s, _, ok := openSession(cfg, w, r)
		if !ok {
			return
		}
		st, err := s.Dispatch(action)
		if err != nil {
			writeEditorError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, sessionResponse(cfg, s, st, false))
	}
}

func addClipHandler(cfg ServerConfig) http.HandlerFunc {
	return addMediaHandler(cfg, (*editor.Session).AddClip)
}

func addAudioHandler(cfg ServerConfig) http.HandlerFunc {
	return addMediaHandler(cfg, (*editor.Session).AddAudio)
}

// addMediaHandler starts the out-of-band duration lookup and answers right
// away with the id the entity will get. With ?wait=true it answers once
// the entity is on the timeline.
func addMediaHandler(cfg ServerConfig, add func(*editor.Session, context.Context, string) (string, <-chan struct{})) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddMediaRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.URL == "" {
			WriteError(w, http.StatusBadRequest, "url is required", "BAD_REQUEST")
			return
		}

		s, _, ok := openSession(cfg, w, r)
		if !ok {
			return
		}
		// The lookup outlives the request.
		id, done := add(s, context.WithoutCancel(r.Context()), req.URL)

		if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
			select {
			case <-done:
				st := s.State()
				WriteJSON(w, http.StatusOK, AddMediaResponse{ID: id, State: &st})
			case <-r.Context().Done():
			}
			return
		}
		WriteJSON(w, http.StatusAccepted, AddMediaResponse{ID: id, Pending: true})
	}
}

func dragBeginHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DragBeginRequest
		if !decodeBody(w, r, &req) {
			return
		}
		s, _, ok := openSession(cfg, w, r)
		if !ok {
			return
		}
		st, err := s.BeginDrag(req.Kind, req.TargetID, req.X)
		if err != nil {
			writeEditorError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, sessionResponse(cfg, s, st, false))
	}
}

func dragUpdateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DragUpdateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		s, _, ok := openSession(cfg, w, r)
		if !ok {
			return
		}
		st, err := s.UpdateDrag(req.X)
		if err != nil {
			writeEditorError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, sessionResponse(cfg, s, st, false))
	}
}

func dragEndHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, _, ok := openSession(cfg, w, r)
		if !ok {
			return
		}
		st := s.EndDrag()
		WriteJSON(w, http.StatusOK, sessionResponse(cfg, s, st, false))
	}
}

// previewHandler reports which frame is under timeline time t (default:
// the playhead) and, inside a transition window, how both layers are drawn.
func previewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, _, ok := openSession(cfg, w, r)
		if !ok {
			return
		}
		st := s.State()

		t := st.CurrentTime
		if raw := r.URL.Query().Get("t"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				WriteError(w, http.StatusBadRequest, "t must be a number of seconds", "BAD_REQUEST")
				return
			}
			t = timeline.Clamp(v, 0, st.TotalDuration)
		}

		resp := PreviewResponse{Time: t}
		i, local := timeline.ClipAt(st.Clips, t)
		if i < 0 {
			WriteJSON(w, http.StatusOK, resp)
			return
		}
		c := st.Clips[i]
		resp.ClipID = c.ID
		resp.SourceURL = c.SourceURL
		resp.SourceTime = c.TrimStart + local
		resp.Muted = c.Muted

		if i+1 < len(st.Clips) {
			if p, inWindow := transition.Progress(st.Clips, i, resp.SourceTime); inWindow {
				out, in := transition.Preview(c.TransitionOut.Type, p)
				resp.Transition = &TransitionPreview{
					Type:       string(c.TransitionOut.Type),
					Progress:   p,
					NextClipID: st.Clips[i+1].ID,
					Outgoing:   out,
					Incoming:   in,
				}
			}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
