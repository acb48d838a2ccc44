package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tourneyreel/studio/internal/cloud"
	"github.com/tourneyreel/studio/internal/gallery"
	"github.com/tourneyreel/studio/internal/logging"
)

// Target identifies what an export belongs to.
type Target struct {
	CampaignID string
	JobID      string
	Title      string
	// CopyDir, if set, receives a copy of the rendered video. Resolve it
	// with ResolveCopyDir first.
	CopyDir string
}

// Recorder stores gallery entries for finished exports.
type Recorder interface {
	Create(ctx context.Context, a *gallery.Asset) error
}

type PipelineConfig struct {
	Concat    Concatenator
	Uploader  cloud.AssetUploader
	Recorder  Recorder
	WorkDir   string
	FrameRate float64 // for the EDL written next to each export; 0 disables it
	Logger    *slog.Logger
}

const rollbackTimeout = 30 * time.Second

// Pipeline renders a merge request, uploads the result and records it. A
// failed run reports PhaseError and leaves nothing behind, in the work dir
// or in asset storage; it is never retried here.
type Pipeline struct {
	cfg    PipelineConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Pipeline{cfg: cfg, logger: logging.WithComponent(logger, "export"), now: time.Now}
}

func (p *Pipeline) Run(ctx context.Context, target Target, req MergeRequest, report ProgressFunc) (*Result, error) {
	if report == nil {
		report = func(Progress) {}
	}
	logger := logging.WithCampaignID(p.logger, target.CampaignID)
	if target.JobID != "" {
		logger = logging.WithJobID(logger, target.JobID)
	}

	res, pct, err := p.run(ctx, target, req, report, logger)
	if err != nil {
		report(Progress{Phase: PhaseError, Percent: pct, Message: err.Error()})
		logger.Warn("export failed", "error", err)
		return nil, err
	}
	report(Progress{Phase: PhaseDone, Percent: 100, Message: "export complete"})
	logger.Info("export complete", "url", logging.SanitizeURL(res.URL), "elapsed", res.Elapsed)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, target Target, req MergeRequest, report ProgressFunc, logger *slog.Logger) (_ *Result, _ int, err error) {
	start := p.now()

	var stored []string
	defer func() {
		if err != nil {
			p.rollback(ctx, stored, logger)
		}
	}()

	report(Progress{Phase: PhaseLoading, Percent: 0, Message: fmt.Sprintf("loading %d clips", len(req.Clips))})
	if err := req.Validate(); err != nil {
		return nil, 0, err
	}
	if p.cfg.Concat == nil || p.cfg.Uploader == nil {
		return nil, 0, errors.New("export pipeline not configured")
	}

	work, err := os.MkdirTemp(p.cfg.WorkDir, "export-*")
	if err != nil {
		return nil, 0, fmt.Errorf("cannot create work dir: %w", err)
	}
	defer os.RemoveAll(work)

	title := target.Title
	if title == "" {
		title = target.CampaignID
	}
	filename := OutputFilename(title, start, ".mp4")
	outPath := filepath.Join(work, filename)
	total := req.Duration()

	report(Progress{Phase: PhaseProcessing, Percent: 5, Message: "rendering"})
	pct := 5
	err = p.cfg.Concat.Concat(ctx, req, outPath, func(sec float64) {
		pct = percent(sec, total, 5, 90)
		report(Progress{Phase: PhaseProcessing, Percent: pct, Message: "rendering"})
	})
	if err != nil {
		return nil, pct, fmt.Errorf("render failed: %w", err)
	}
	info, err := os.Stat(outPath)
	if err != nil {
		return nil, pct, fmt.Errorf("render produced no output: %w", err)
	}

	report(Progress{Phase: PhaseFinalizing, Percent: 90, Message: "uploading"})
	url, err := p.cfg.Uploader.UploadFile(ctx, outPath, filename)
	if err != nil {
		return nil, 90, fmt.Errorf("upload failed: %w", err)
	}
	stored = append(stored, filename)

	res := &Result{
		URL:             url,
		Filename:        filename,
		DurationSeconds: total,
		SizeBytes:       info.Size(),
	}

	edlName := OutputFilename(title, start, ".edl")
	if p.cfg.FrameRate > 0 {
		res.EDLURL = p.uploadEDL(ctx, work, edlName, title, req, logger)
		if res.EDLURL != "" {
			stored = append(stored, edlName)
		}
	}

	report(Progress{Phase: PhaseFinalizing, Percent: 95, Message: "saving to gallery"})
	if p.cfg.Recorder != nil {
		asset := &gallery.Asset{
			CampaignID:      target.CampaignID,
			JobID:           target.JobID,
			Kind:            gallery.KindVideo,
			URL:             res.URL,
			Filename:        res.Filename,
			DurationSeconds: res.DurationSeconds,
			SizeBytes:       res.SizeBytes,
		}
		if err := p.cfg.Recorder.Create(ctx, asset); err != nil {
			return nil, 95, fmt.Errorf("failed to record asset: %w", err)
		}
		if res.EDLURL != "" {
			edl := &gallery.Asset{
				CampaignID: target.CampaignID,
				JobID:      target.JobID,
				Kind:       gallery.KindEDL,
				URL:        res.EDLURL,
				Filename:   edlName,
			}
			if err := p.cfg.Recorder.Create(ctx, edl); err != nil {
				logger.Warn("failed to record edl", "error", err)
				p.rollback(ctx, []string{edlName}, logger)
				res.EDLURL = ""
			}
		}
	}

	if target.CopyDir != "" {
		dst := filepath.Join(target.CopyDir, filename)
		if err := copyFile(outPath, dst); err != nil {
			logger.Warn("failed to copy export", "dir", target.CopyDir, "error", err)
		} else {
			res.LocalPath = dst
		}
	}

	res.Elapsed = p.now().Sub(start)
	return res, 100, nil
}

// copyFile writes src to dst through a temp file in dst's directory.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".copy-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// rollback removes uploads that no gallery entry will point at. It ignores
// cancellation of ctx.
func (p *Pipeline) rollback(ctx context.Context, filenames []string, logger *slog.Logger) {
	if len(filenames) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	for _, name := range filenames {
		if err := p.cfg.Uploader.Remove(ctx, name); err != nil {
			logger.Warn("failed to remove orphaned upload", "filename", name, "error", err)
		}
	}
}

// uploadEDL is best effort; the video is the deliverable.
func (p *Pipeline) uploadEDL(ctx context.Context, work, name, title string, req MergeRequest, logger *slog.Logger) string {
	path := filepath.Join(work, name)
	if err := os.WriteFile(path, []byte(GenerateEDL(req.Timeline(), title, p.cfg.FrameRate)), 0644); err != nil {
		logger.Warn("failed to write edl", "error", err)
		return ""
	}
	url, err := p.cfg.Uploader.UploadFile(ctx, path, name)
	if err != nil {
		logger.Warn("failed to upload edl", "error", err)
		return ""
	}
	return url
}
