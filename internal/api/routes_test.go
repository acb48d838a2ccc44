package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tourneyreel/studio/internal/cloud"
	"github.com/tourneyreel/studio/internal/db"
	"github.com/tourneyreel/studio/internal/drafts"
	"github.com/tourneyreel/studio/internal/editor"
	"github.com/tourneyreel/studio/internal/gallery"
	"github.com/tourneyreel/studio/internal/jobs"
	"github.com/tourneyreel/studio/internal/media"
	"github.com/tourneyreel/studio/internal/playback"
	"github.com/tourneyreel/studio/internal/posts"
)

const testToken = "test-token"

type fixedResolver struct{}

func (fixedResolver) ResolveVideo(ctx context.Context, url string) float64 { return 10 }
func (fixedResolver) ResolveAudio(ctx context.Context, url string) float64 { return 20 }

type testEnv struct {
	cfg     ServerConfig
	router  http.Handler
	gallery *gallery.SQLiteRepository
	jobs    *jobs.SQLiteRepository
	assets  *cloud.LocalStore
	drafts  *drafts.Store
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	database, err := db.New(filepath.Join(dir, "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.SetSetting(context.Background(), AuthTokenKey, testToken); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := drafts.NewStore(database.Conn())
	manager := editor.NewManager(editor.ManagerConfig{Resolver: fixedResolver{}, Drafts: store, Logger: logger})
	t.Cleanup(manager.Close)

	assets, err := cloud.NewLocalStore(filepath.Join(dir, "assets"), "http://127.0.0.1:8787", logger)
	if err != nil {
		t.Fatal(err)
	}

	env := &testEnv{
		gallery: gallery.NewRepository(database.Conn()),
		jobs:    jobs.NewRepository(database.Conn()),
		assets:  assets,
		drafts:  store,
	}
	env.cfg = ServerConfig{
		Version:  "test",
		Settings: database,
		Sessions: manager,
		Jobs:     env.jobs,
		Runner:   jobs.NewRunner(jobs.RunnerConfig{Repo: env.jobs, Logger: logger}),
		Gallery:  env.gallery,
		Posts:    posts.NewRepository(database.Conn()),
		Assets:   assets,
		Doctor: media.NewDoctorWithCheck(func(ctx context.Context) (*media.Capabilities, error) {
			return &media.Capabilities{FFmpeg: media.Tool{Name: "ffmpeg", Available: true}, ProbedAt: time.Now()}, nil
		}, logger),
		Playback: func(campaignID string) (playback.Status, bool) {
			return playback.Status{Mode: editor.PlayNone}, true
		},
		Logger:    logger,
		StartTime: time.Now().Add(-10 * time.Second),
	}
	env.router = NewRouter(env.cfg)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}

	return body
}

func decodeInto[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response body %q: %v", rr.Body.String(), err)
	}
	return v
}

func action(typ string, payload any) map[string]any {
	m := map[string]any{"type": typ}
	if payload != nil {
		m["payload"] = payload
	}
	return m
}

func TestHealth_NoAuth(t *testing.T) {
	env := setupEnv(t)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := setupEnv(t)
	for _, path := range []string{"/status", "/campaigns/c1/session", "/posts?user_id=u1"} {
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", path, rr.Code)
		}
	}
}

func TestStatus(t *testing.T) {
	env := setupEnv(t)
	env.cfg.Doctor.Check(context.Background())
	env.do(t, http.MethodGet, "/campaigns/c1/session", nil)

	rr := env.do(t, http.MethodGet, "/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	resp := decodeInto[StatusResponse](t, rr)
	if resp.State != "idle" || len(resp.Sessions) != 1 || resp.Sessions[0] != "c1" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Tools == nil || !resp.Tools.CanExport() {
		t.Errorf("tools = %+v", resp.Tools)
	}

	env.cfg.Runner.Pause()
	resp = decodeInto[StatusResponse](t, env.do(t, http.MethodGet, "/status", nil))
	if resp.State != "paused" {
		t.Errorf("state = %q, want paused", resp.State)
	}
}

func TestSession_EditFlow(t *testing.T) {
	env := setupEnv(t)

	rr := env.do(t, http.MethodPost, "/campaigns/c1/clips?wait=true", AddMediaRequest{URL: "https://cdn.example.com/hand1.mp4"})
	if rr.Code != http.StatusOK {
		t.Fatalf("add clip status = %d: %s", rr.Code, rr.Body.String())
	}
	added := decodeInto[AddMediaResponse](t, rr)
	if added.State == nil || len(added.State.Clips) != 1 || added.State.Clips[0].ID != added.ID || added.State.TotalDuration != 10 {
		t.Fatalf("added = %+v", added)
	}

	rr = env.do(t, http.MethodPost, "/campaigns/c1/actions", action("seek", map[string]any{"time": 4}))
	if rr.Code != http.StatusOK {
		t.Fatalf("seek status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodPost, "/campaigns/c1/actions", action("split_at_playhead", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("split status = %d: %s", rr.Code, rr.Body.String())
	}
	sess := decodeInto[SessionResponse](t, rr)
	if len(sess.State.Clips) != 2 || sess.State.TotalDuration != 10 || sess.Playback == nil {
		t.Fatalf("after split = %+v", sess)
	}

	env.do(t, http.MethodPost, "/campaigns/c1/actions", action("seek", map[string]any{"time": 4.2}))
	rr = env.do(t, http.MethodPost, "/campaigns/c1/actions", action("split_at_playhead", nil))
	if rr.Code != http.StatusConflict {
		t.Fatalf("split too close status = %d, want 409", rr.Code)
	}
	if body := decodeJSONBody(t, rr); body["code"] != "CONFLICT" {
		t.Errorf("body = %v", body)
	}

	got := decodeInto[SessionResponse](t, env.do(t, http.MethodGet, "/campaigns/c1/session", nil))
	if len(got.State.Clips) != 2 {
		t.Errorf("rejected split changed state: %d clips", len(got.State.Clips))
	}
}

func TestSession_BadActions(t *testing.T) {
	env := setupEnv(t)
	tests := []struct {
		name string
		body any
	}{
		{"unknown type", action("explode", nil)},
		{"driver only", action("advance", map[string]any{"time": 1})},
		{"unknown field", action("seek", map[string]any{"when": 1})},
		{"bad play mode", action("play", map[string]any{"mode": "sideways"})},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/campaigns/c1/actions", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestSession_AddMediaAsync(t *testing.T) {
	env := setupEnv(t)
	rr := env.do(t, http.MethodPost, "/campaigns/c1/audio", AddMediaRequest{URL: "https://cdn.example.com/bed.mp3"})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rr.Code)
	}
	resp := decodeInto[AddMediaResponse](t, rr)
	if resp.ID == "" || !resp.Pending {
		t.Fatalf("resp = %+v", resp)
	}

	s, _ := env.cfg.Sessions.Get("c1")
	s.Wait()
	st := s.State()
	if len(st.AudioTracks) != 1 || st.AudioTracks[0].ID != resp.ID || st.TotalDuration != 20 {
		t.Errorf("state = %+v", st)
	}

	if rr := env.do(t, http.MethodPost, "/campaigns/c1/clips", AddMediaRequest{}); rr.Code != http.StatusBadRequest {
		t.Errorf("empty url status = %d", rr.Code)
	}
}

func TestSession_Drag(t *testing.T) {
	env := setupEnv(t)
	added := decodeInto[AddMediaResponse](t, env.do(t, http.MethodPost, "/campaigns/c1/clips?wait=1", AddMediaRequest{URL: "https://cdn.example.com/a.mp4"}))

	rr := env.do(t, http.MethodPost, "/campaigns/c1/drag/update", DragUpdateRequest{X: 10})
	if rr.Code != http.StatusConflict {
		t.Errorf("update without drag status = %d, want 409", rr.Code)
	}
	rr = env.do(t, http.MethodPost, "/campaigns/c1/drag/begin", DragBeginRequest{Kind: editor.DragTrimEnd, TargetID: "nope", X: 400})
	if rr.Code != http.StatusNotFound {
		t.Errorf("begin on missing clip status = %d, want 404", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/campaigns/c1/drag/begin", DragBeginRequest{Kind: editor.DragTrimEnd, TargetID: added.ID, X: 400})
	if rr.Code != http.StatusOK {
		t.Fatalf("begin status = %d: %s", rr.Code, rr.Body.String())
	}
	if sess := decodeInto[SessionResponse](t, rr); sess.Drag == nil || sess.Drag.Kind != editor.DragTrimEnd {
		t.Fatalf("drag = %+v", sess.Drag)
	}

	// 80px to the left is two seconds.
	sess := decodeInto[SessionResponse](t, env.do(t, http.MethodPost, "/campaigns/c1/drag/update", DragUpdateRequest{X: 320}))
	if c := sess.State.Clips[0]; c.TrimEnd != 8 || sess.State.TotalDuration != 8 {
		t.Errorf("after drag clip = %+v total = %v", c, sess.State.TotalDuration)
	}

	sess = decodeInto[SessionResponse](t, env.do(t, http.MethodPost, "/campaigns/c1/drag/end", nil))
	if sess.Drag != nil {
		t.Errorf("drag still active: %+v", sess.Drag)
	}
}

func TestPreview_Transition(t *testing.T) {
	env := setupEnv(t)
	first := decodeInto[AddMediaResponse](t, env.do(t, http.MethodPost, "/campaigns/c1/clips?wait=true", AddMediaRequest{URL: "https://cdn.example.com/a.mp4"}))
	second := decodeInto[AddMediaResponse](t, env.do(t, http.MethodPost, "/campaigns/c1/clips?wait=true", AddMediaRequest{URL: "https://cdn.example.com/b.mp4"}))
	rr := env.do(t, http.MethodPost, "/campaigns/c1/actions", action("set_transition", map[string]any{
		"clip_id": first.ID, "transition_type": "fade", "duration": 2,
	}))
	if rr.Code != http.StatusOK {
		t.Fatalf("set_transition status = %d: %s", rr.Code, rr.Body.String())
	}

	resp := decodeInto[PreviewResponse](t, env.do(t, http.MethodGet, "/campaigns/c1/preview?t=9", nil))
	if resp.ClipID != first.ID || resp.SourceTime != 9 || resp.Transition == nil {
		t.Fatalf("preview = %+v", resp)
	}
	tr := resp.Transition
	if tr.Type != "fade" || tr.Progress != 0.5 || tr.NextClipID != second.ID {
		t.Errorf("transition = %+v", tr)
	}
	if tr.Outgoing.Opacity == nil || *tr.Outgoing.Opacity != 0.5 || tr.Incoming.Opacity == nil || *tr.Incoming.Opacity != 0.5 {
		t.Errorf("styles = %+v / %+v", tr.Outgoing, tr.Incoming)
	}

	resp = decodeInto[PreviewResponse](t, env.do(t, http.MethodGet, "/campaigns/c1/preview?t=3", nil))
	if resp.Transition != nil {
		t.Errorf("transition outside window: %+v", resp.Transition)
	}

	for _, raw := range []string{"abc", "NaN", "Inf", "-Inf", "1e999"} {
		if rr := env.do(t, http.MethodGet, "/campaigns/c1/preview?t="+raw, nil); rr.Code != http.StatusBadRequest {
			t.Errorf("t=%s status = %d, want 400", raw, rr.Code)
		}
	}
}

func TestExports(t *testing.T) {
	env := setupEnv(t)

	rr := env.do(t, http.MethodPost, "/campaigns/c1/exports", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty timeline export status = %d, want 400", rr.Code)
	}

	env.do(t, http.MethodPost, "/campaigns/c1/clips?wait=true", AddMediaRequest{URL: "https://cdn.example.com/a.mp4"})
	env.do(t, http.MethodPost, "/campaigns/c1/audio?wait=true", AddMediaRequest{URL: "https://cdn.example.com/bed.mp3"})

	rr = env.do(t, http.MethodPost, "/campaigns/c1/exports", CreateExportRequest{Title: "Main Event", RemoveSilence: true})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("export status = %d: %s", rr.Code, rr.Body.String())
	}
	job := decodeInto[JobResponse](t, rr)
	if job.Status != jobs.StatusPending || job.ClipCount != 1 || job.Title != "Main Event" {
		t.Errorf("job = %+v", job)
	}

	stored, err := env.jobs.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Request.RemoveSilence || stored.Request.Audio == nil || stored.Request.Audio.Volume != 1 {
		t.Errorf("stored request = %+v", stored.Request)
	}

	got := decodeInto[JobResponse](t, env.do(t, http.MethodGet, "/exports/"+job.ID, nil))
	if got.ID != job.ID {
		t.Errorf("get = %+v", got)
	}
	if rr := env.do(t, http.MethodGet, "/exports/missing", nil); rr.Code != http.StatusNotFound {
		t.Errorf("missing export status = %d", rr.Code)
	}

	list := decodeInto[JobsResponse](t, env.do(t, http.MethodGet, "/campaigns/c1/exports", nil))
	if len(list.Jobs) != 1 {
		t.Errorf("campaign exports = %+v", list)
	}
}

func TestAssets(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "render.mp4")
	os.WriteFile(src, []byte("0123456789"), 0o644)
	url, err := env.assets.UploadFile(ctx, src, "finals.mp4")
	if err != nil {
		t.Fatal(err)
	}
	env.gallery.Create(ctx, &gallery.Asset{CampaignID: "c1", Kind: gallery.KindVideo, URL: url, Filename: "finals.mp4", SizeBytes: 10})

	list := decodeInto[AssetsResponse](t, env.do(t, http.MethodGet, "/campaigns/c1/assets", nil))
	if len(list.Assets) != 1 || list.Assets[0].URL != url {
		t.Fatalf("assets = %+v", list)
	}

	server := httptest.NewServer(env.router)
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/assets/finals.mp4", nil)
	req.Header.Set("Range", "bytes=2-5")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent || string(body) != "2345" {
		t.Errorf("range response = %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get(server.URL + "/assets/missing.mp4")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing asset status = %d", resp.StatusCode)
	}
}

func TestDiscardSession(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	env.do(t, http.MethodPost, "/campaigns/c1/clips?wait=true", AddMediaRequest{URL: "https://cdn.example.com/a.mp4"})
	s, _ := env.cfg.Sessions.Get("c1")
	env.drafts.Save(ctx, "c1", s.Snapshot())

	rr := env.do(t, http.MethodDelete, "/campaigns/c1/session", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
	if snap, _ := env.drafts.Load(ctx, "c1"); snap != nil {
		t.Error("draft survived discard")
	}

	sess := decodeInto[SessionResponse](t, env.do(t, http.MethodGet, "/campaigns/c1/session", nil))
	if sess.Restored || len(sess.State.Clips) != 0 {
		t.Errorf("session after discard = %+v", sess)
	}
}

func TestPosts_CRUD(t *testing.T) {
	env := setupEnv(t)
	at := time.Date(2026, 5, 1, 17, 0, 0, 0, time.UTC)

	rr := env.do(t, http.MethodPost, "/posts", map[string]any{
		"user_id": "u1", "content_type": "video", "platform": "instagram",
		"content_url": "https://assets.example.com/finals.mp4", "scheduled_at": at,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rr.Code, rr.Body.String())
	}
	created := decodeInto[posts.Post](t, rr)

	if rr := env.do(t, http.MethodPost, "/posts", map[string]any{"user_id": "u1", "platform": "myspace"}); rr.Code != http.StatusBadRequest {
		t.Errorf("invalid create status = %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/posts", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("list without user_id status = %d", rr.Code)
	}

	list := decodeInto[PostsResponse](t, env.do(t, http.MethodGet, "/posts?user_id=u1&status=scheduled&from=2026-05-01T00:00:00Z", nil))
	if len(list.Posts) != 1 || list.Posts[0].ID != created.ID {
		t.Fatalf("list = %+v", list)
	}
	if rr := env.do(t, http.MethodGet, "/posts?user_id=u1&to=yesterday", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad to status = %d", rr.Code)
	}

	rr = env.do(t, http.MethodPut, "/posts/"+created.ID+"?user_id=u1", map[string]any{"caption": "See you at the final table"})
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rr.Code, rr.Body.String())
	}
	updated := decodeInto[posts.Post](t, rr)
	if updated.Caption != "See you at the final table" || updated.Platform != "instagram" {
		t.Errorf("updated = %+v", updated)
	}

	if rr := env.do(t, http.MethodPut, "/posts/"+created.ID+"?user_id=u2", map[string]any{"caption": "x"}); rr.Code != http.StatusNotFound {
		t.Errorf("foreign update status = %d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/posts/"+created.ID+"?user_id=u1", nil); rr.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/posts/"+created.ID+"?user_id=u1", nil); rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d", rr.Code)
	}
}

func TestCORS_Integration(t *testing.T) {
	env := setupEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q", got)
	}
	if !strings.Contains(rr.Header().Get("Access-Control-Expose-Headers"), "X-Request-ID") {
		t.Errorf("expose headers = %q", rr.Header().Get("Access-Control-Expose-Headers"))
	}
}
