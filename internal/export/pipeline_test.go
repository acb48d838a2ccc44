package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/tourneyreel/studio/internal/cloud"
	"github.com/tourneyreel/studio/internal/db"
	"github.com/tourneyreel/studio/internal/gallery"
)

type fakeConcat struct {
	err   error
	steps []float64
}

func (f *fakeConcat) Concat(ctx context.Context, req MergeRequest, outPath string, onProgress func(float64)) error {
	for _, s := range f.steps {
		onProgress(s)
	}
	if f.err != nil {
		// a failed render may leave a partial file behind
		os.WriteFile(outPath, []byte("partial"), 0o644)
		return f.err
	}
	return os.WriteFile(outPath, []byte("rendered-video"), 0o644)
}

type fakeUploader struct {
	mu      sync.Mutex
	names   []string
	removed []string
	failOn  string
}

func (f *fakeUploader) UploadFile(ctx context.Context, path, filename string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	if f.failOn != "" && strings.HasSuffix(filename, f.failOn) {
		return "", errors.New("bucket unavailable")
	}
	f.names = append(f.names, filename)
	return "https://assets.example.com/" + filename, nil
}

func (f *fakeUploader) Remove(ctx context.Context, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, filename)
	return nil
}

type failingRecorder struct {
	failKind string
	created  []*gallery.Asset
}

func (r *failingRecorder) Create(ctx context.Context, a *gallery.Asset) error {
	if r.failKind == "" || a.Kind == r.failKind {
		return errors.New("db locked")
	}
	r.created = append(r.created, a)
	return nil
}

func setupGallery(t *testing.T) *gallery.SQLiteRepository {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return gallery.NewRepository(database.Conn())
}

type progressLog struct {
	mu  sync.Mutex
	all []Progress
}

func (p *progressLog) report(pr Progress) {
	p.mu.Lock()
	p.all = append(p.all, pr)
	p.mu.Unlock()
}

func (p *progressLog) phases() []Phase {
	var out []Phase
	for _, pr := range p.all {
		if len(out) == 0 || out[len(out)-1] != pr.Phase {
			out = append(out, pr.Phase)
		}
	}
	return out
}

func TestPipeline_Success(t *testing.T) {
	repo := setupGallery(t)
	work := t.TempDir()
	up := &fakeUploader{}
	p := NewPipeline(PipelineConfig{
		Concat:    &fakeConcat{steps: []float64{2, 4}},
		Uploader:  up,
		Recorder:  repo,
		WorkDir:   work,
		FrameRate: 30,
	})
	req, _ := BuildRequest(editedState(), false)

	var log progressLog
	res, err := p.Run(context.Background(), Target{CampaignID: "camp-1", JobID: "job-1", Title: "Main Event"}, req, log.report)
	if err != nil {
		t.Fatalf("Run error = %v", err)
	}

	want := []Phase{PhaseLoading, PhaseProcessing, PhaseFinalizing, PhaseDone}
	if got := log.phases(); len(got) != len(want) {
		t.Fatalf("phases = %v, want %v", got, want)
	} else {
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("phases = %v, want %v", got, want)
			}
		}
	}
	last := 0
	for _, pr := range log.all {
		if pr.Percent < last {
			t.Errorf("progress went backwards: %+v", log.all)
			break
		}
		last = pr.Percent
	}

	if !strings.HasPrefix(res.Filename, "Main-Event-") || !strings.HasSuffix(res.Filename, ".mp4") {
		t.Errorf("Filename = %q", res.Filename)
	}
	if res.URL != "https://assets.example.com/"+res.Filename || res.SizeBytes != int64(len("rendered-video")) {
		t.Errorf("Result = %+v", res)
	}
	if !strings.HasSuffix(res.EDLURL, ".edl") {
		t.Errorf("EDLURL = %q", res.EDLURL)
	}

	assets, err := repo.ListByJob(context.Background(), "job-1")
	if err != nil || len(assets) != 2 {
		t.Fatalf("assets = %+v, %v", assets, err)
	}
	if assets[0].Kind != gallery.KindVideo || assets[0].CampaignID != "camp-1" {
		t.Errorf("video asset = %+v", assets[0])
	}

	entries, _ := os.ReadDir(work)
	if len(entries) != 0 {
		t.Errorf("work dir not cleaned: %v", entries)
	}
}

func TestPipeline_RenderFailure(t *testing.T) {
	repo := setupGallery(t)
	work := t.TempDir()
	up := &fakeUploader{}
	p := NewPipeline(PipelineConfig{
		Concat:   &fakeConcat{err: &RenderError{ExitCode: 1, StderrTail: "moov atom not found"}, steps: []float64{1}},
		Uploader: up,
		Recorder: repo,
		WorkDir:  work,
	})
	req, _ := BuildRequest(editedState(), false)

	var log progressLog
	_, err := p.Run(context.Background(), Target{CampaignID: "camp-1", JobID: "job-1"}, req, log.report)
	if err == nil {
		t.Fatal("expected error")
	}
	final := log.all[len(log.all)-1]
	if final.Phase != PhaseError || !strings.Contains(final.Message, "moov atom") {
		t.Errorf("final progress = %+v", final)
	}
	if len(up.names) != 0 {
		t.Errorf("uploaded after failure: %v", up.names)
	}
	if assets, _ := repo.ListByCampaign(context.Background(), "camp-1"); len(assets) != 0 {
		t.Errorf("asset recorded after failure: %+v", assets)
	}
	if entries, _ := os.ReadDir(work); len(entries) != 0 {
		t.Errorf("partial output left behind: %v", entries)
	}
}

func TestPipeline_UploadFailure(t *testing.T) {
	repo := setupGallery(t)
	p := NewPipeline(PipelineConfig{
		Concat:   &fakeConcat{},
		Uploader: &fakeUploader{failOn: ".mp4"},
		Recorder: repo,
		WorkDir:  t.TempDir(),
	})
	req, _ := BuildRequest(editedState(), false)

	var log progressLog
	if _, err := p.Run(context.Background(), Target{CampaignID: "camp-1"}, req, log.report); err == nil {
		t.Fatal("expected error")
	}
	if final := log.all[len(log.all)-1]; final.Phase != PhaseError || final.Percent != 90 {
		t.Errorf("final progress = %+v", final)
	}
	if assets, _ := repo.ListByCampaign(context.Background(), "camp-1"); len(assets) != 0 {
		t.Errorf("asset recorded after failed upload: %+v", assets)
	}
}

func TestPipeline_EDLFailureIsNotFatal(t *testing.T) {
	repo := setupGallery(t)
	p := NewPipeline(PipelineConfig{
		Concat:    &fakeConcat{},
		Uploader:  &fakeUploader{failOn: ".edl"},
		Recorder:  repo,
		WorkDir:   t.TempDir(),
		FrameRate: 30,
	})
	req, _ := BuildRequest(editedState(), false)

	res, err := p.Run(context.Background(), Target{CampaignID: "camp-1", JobID: "j"}, req, nil)
	if err != nil {
		t.Fatalf("Run error = %v", err)
	}
	if res.EDLURL != "" {
		t.Errorf("EDLURL = %q", res.EDLURL)
	}
	if assets, _ := repo.ListByJob(context.Background(), "j"); len(assets) != 1 {
		t.Errorf("assets = %+v", assets)
	}
}

func TestPipeline_InvalidRequest(t *testing.T) {
	p := NewPipeline(PipelineConfig{Concat: &fakeConcat{}, Uploader: &fakeUploader{}, WorkDir: t.TempDir()})
	var log progressLog
	_, err := p.Run(context.Background(), Target{CampaignID: "c"}, MergeRequest{}, log.report)
	if !errors.Is(err, ErrEmptyTimeline) {
		t.Fatalf("err = %v", err)
	}
	if got := log.phases(); len(got) != 2 || got[1] != PhaseError {
		t.Errorf("phases = %v", got)
	}
}

func TestPipeline_RecordFailureRemovesUploads(t *testing.T) {
	store, err := cloud.NewLocalStore(filepath.Join(t.TempDir(), "outputs"), "http://127.0.0.1:8790", nil)
	if err != nil {
		t.Fatalf("NewLocalStore error = %v", err)
	}
	p := NewPipeline(PipelineConfig{
		Concat:    &fakeConcat{},
		Uploader:  store,
		Recorder:  &failingRecorder{},
		WorkDir:   t.TempDir(),
		FrameRate: 30,
	})
	req, _ := BuildRequest(editedState(), false)

	var log progressLog
	_, err = p.Run(context.Background(), Target{CampaignID: "camp-1", JobID: "job-1"}, req, log.report)
	if err == nil || !strings.Contains(err.Error(), "db locked") {
		t.Fatalf("Run error = %v", err)
	}
	if final := log.all[len(log.all)-1]; final.Phase != PhaseError || final.Percent != 95 {
		t.Errorf("final progress = %+v", final)
	}
	entries, err := os.ReadDir(store.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("stored files left after failed record: %v", names)
	}
}

func TestPipeline_CancelledRecordStillRemovesUploads(t *testing.T) {
	up := &fakeUploader{}
	ctx, cancel := context.WithCancel(context.Background())
	rec := recorderFunc(func(ctx context.Context, a *gallery.Asset) error {
		cancel()
		return ctx.Err()
	})
	p := NewPipeline(PipelineConfig{Concat: &fakeConcat{}, Uploader: up, Recorder: rec, WorkDir: t.TempDir()})
	req, _ := BuildRequest(editedState(), false)

	if _, err := p.Run(ctx, Target{CampaignID: "camp-1"}, req, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v", err)
	}
	if len(up.removed) != 1 || up.removed[0] != up.names[0] {
		t.Errorf("removed = %v, uploaded = %v", up.removed, up.names)
	}
}

func TestPipeline_EDLRecordFailureRemovesEDLOnly(t *testing.T) {
	up := &fakeUploader{}
	rec := &failingRecorder{failKind: gallery.KindEDL}
	p := NewPipeline(PipelineConfig{Concat: &fakeConcat{}, Uploader: up, Recorder: rec, WorkDir: t.TempDir(), FrameRate: 30})
	req, _ := BuildRequest(editedState(), false)

	res, err := p.Run(context.Background(), Target{CampaignID: "camp-1", JobID: "j"}, req, nil)
	if err != nil {
		t.Fatalf("Run error = %v", err)
	}
	if res.EDLURL != "" {
		t.Errorf("EDLURL = %q", res.EDLURL)
	}
	if len(up.removed) != 1 || !strings.HasSuffix(up.removed[0], ".edl") {
		t.Errorf("removed = %v", up.removed)
	}
	if len(rec.created) != 1 || rec.created[0].Kind != gallery.KindVideo {
		t.Errorf("recorded = %+v", rec.created)
	}
}

type recorderFunc func(ctx context.Context, a *gallery.Asset) error

func (f recorderFunc) Create(ctx context.Context, a *gallery.Asset) error { return f(ctx, a) }

func TestPipeline_CopiesToLocalDir(t *testing.T) {
	copyDir := t.TempDir()
	p := NewPipeline(PipelineConfig{Concat: &fakeConcat{}, Uploader: &fakeUploader{}, WorkDir: t.TempDir()})
	req, _ := BuildRequest(editedState(), false)

	res, err := p.Run(context.Background(), Target{CampaignID: "camp-1", Title: "Finals", CopyDir: copyDir}, req, nil)
	if err != nil {
		t.Fatalf("Run error = %v", err)
	}
	if res.LocalPath != filepath.Join(copyDir, res.Filename) {
		t.Fatalf("LocalPath = %q", res.LocalPath)
	}
	data, err := os.ReadFile(res.LocalPath)
	if err != nil || string(data) != "rendered-video" {
		t.Errorf("copy = %q, %v", data, err)
	}
	entries, _ := os.ReadDir(copyDir)
	if len(entries) != 1 {
		t.Errorf("copy dir entries = %d, want 1", len(entries))
	}
}
