package jobs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tourneyreel/studio/internal/export"
	"github.com/tourneyreel/studio/internal/logging"
)

const DefaultPollInterval = 2 * time.Second

// Exporter renders one merge request.
type Exporter interface {
	Run(ctx context.Context, target export.Target, req export.MergeRequest, report export.ProgressFunc) (*export.Result, error)
}

// Sessions is told when a campaign's export succeeded so its draft and
// editing session can be dropped. Nothing is dropped if the timeline was
// edited after the job was queued.
type Sessions interface {
	DiscardIfUnchanged(ctx context.Context, campaignID string, edits uint64, queuedAt time.Time) (bool, error)
}

type RunnerConfig struct {
	Repo         Repository
	Exporter     Exporter
	Sessions     Sessions
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Runner polls for pending export jobs and executes them one at a time. A
// failed job is never retried; the user submits a new one.
type Runner struct {
	repo         Repository
	exporter     Exporter
	sessions     Sessions
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool

	mu     sync.Mutex
	active string
}

func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Runner{
		repo:         cfg.Repo,
		exporter:     cfg.Exporter,
		sessions:     cfg.Sessions,
		logger:       logging.WithComponent(logger, "jobs"),
		pollInterval: poll,
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("export runner started", "poll_interval", r.pollInterval)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("export runner stopping")
			r.running.Store(false)
			return
		case <-ticker.C:
			if !r.paused.Load() {
				r.processNextJob(ctx)
			}
		}
	}
}

// Pause stops new jobs from being picked up. A job already rendering runs
// to completion.
func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("export runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("export runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// ActiveJob returns the id of the job being rendered, if any.
func (r *Runner) ActiveJob() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// PendingCount is the number of jobs waiting to run.
func (r *Runner) PendingCount(ctx context.Context) int {
	jobs, err := r.repo.ListPending(ctx)
	if err != nil {
		return 0
	}
	return len(jobs)
}

func (r *Runner) processNextJob(ctx context.Context) {
	jobs, err := r.repo.ListPending(ctx)
	if err != nil {
		r.logger.Error("failed to list pending jobs", "error", err)
		return
	}
	if len(jobs) == 0 {
		return
	}
	r.process(ctx, jobs[0])
}

func (r *Runner) process(ctx context.Context, job *Job) {
	logger := logging.WithCampaignID(logging.WithJobID(r.logger, job.ID), job.CampaignID)

	claimed, err := r.repo.Claim(ctx, job.ID)
	if err != nil {
		logger.Error("failed to claim job", "error", err)
		return
	}
	if !claimed {
		return
	}

	if r.exporter == nil {
		r.fail(ctx, logger, job.ID, "export pipeline not configured")
		return
	}

	r.mu.Lock()
	r.active = job.ID
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.active = ""
		r.mu.Unlock()
	}()

	logger.Info("processing export job", "clips", len(job.Request.Clips))

	var last export.Progress
	report := func(p export.Progress) {
		if p == last || p.Phase == export.PhaseError || p.Phase == export.PhaseDone {
			return
		}
		last = p
		if err := r.repo.UpdateProgress(ctx, job.ID, p); err != nil {
			logger.Warn("failed to persist progress", "error", err)
		}
	}

	target := export.Target{CampaignID: job.CampaignID, JobID: job.ID, Title: job.Title}
	res, err := r.exporter.Run(ctx, target, job.Request, report)
	if err != nil {
		r.fail(ctx, logger, job.ID, err.Error())
		return
	}

	if err := r.repo.Complete(ctx, job.ID, res.URL); err != nil {
		logger.Error("failed to mark job completed", "error", err)
		return
	}
	logger.Info("export job completed", "url", logging.SanitizeURL(res.URL), "elapsed", res.Elapsed)

	if r.sessions != nil {
		dropped, err := r.sessions.DiscardIfUnchanged(ctx, job.CampaignID, job.SessionVersion, job.CreatedAt)
		switch {
		case err != nil:
			logger.Warn("failed to discard session after export", "error", err)
		case !dropped:
			logger.Info("draft kept, edited after export was queued")
		}
	}
}

func (r *Runner) fail(ctx context.Context, logger *slog.Logger, id, msg string) {
	if err := r.repo.Fail(ctx, id, truncate(msg, 1024)); err != nil {
		logger.Error("failed to mark job failed", "error", err)
	}
	logger.Warn("export job failed", "error", msg)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[len(s)-maxLen:]
}
