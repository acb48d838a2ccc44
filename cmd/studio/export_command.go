package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tourneyreel/studio/internal/cloud"
	"github.com/tourneyreel/studio/internal/db"
	"github.com/tourneyreel/studio/internal/drafts"
	"github.com/tourneyreel/studio/internal/editor"
	"github.com/tourneyreel/studio/internal/export"
	"github.com/tourneyreel/studio/internal/gallery"
	"github.com/tourneyreel/studio/internal/jobs"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var title string
	var removeSilence bool
	var keepDraft bool
	var copyTo string

	cmd := &cobra.Command{
		Use:   "export <campaign-id>",
		Short: "Render a campaign's saved draft in the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			campaignID := args[0]
			if title == "" {
				title = campaignID
			}
			var copyDir string
			if copyTo != "" {
				dir, err := export.ResolveCopyDir(copyTo)
				if err != nil {
					return err
				}
				copyDir = dir
			}
			return ctx.withDB(func(database *db.DB) error {
				return runExport(cmd, ctx, database, exportOptions{
					campaignID:    campaignID,
					title:         title,
					removeSilence: removeSilence,
					keepDraft:     keepDraft,
					copyDir:       copyDir,
				})
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Export title (defaults to the campaign id)")
	cmd.Flags().BoolVar(&removeSilence, "remove-silence", false, "Trim silent stretches from audio tracks")
	cmd.Flags().BoolVar(&keepDraft, "keep-draft", false, "Keep the draft after a successful export")
	cmd.Flags().StringVar(&copyTo, "copy-to", "", "Also copy the rendered video into this existing directory")
	return cmd
}

type exportOptions struct {
	campaignID    string
	title         string
	removeSilence bool
	keepDraft     bool
	copyDir       string
}

func runExport(cmd *cobra.Command, cctx *commandContext, database *db.DB, opts exportOptions) error {
	campaignID, title := opts.campaignID, opts.title
	cfg, err := cctx.ensureConfig()
	if err != nil {
		return err
	}
	logger := cctx.logger()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	store := drafts.NewStore(database.Conn())
	snap, err := store.Load(ctx, campaignID)
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("campaign %s has no saved draft", campaignID)
	}

	req, err := export.BuildRequest(editor.FromSnapshot(*snap), opts.removeSilence)
	if err == nil {
		err = req.Validate()
	}
	if err != nil {
		return fmt.Errorf("draft cannot be exported: %w", err)
	}

	local, err := cloud.NewLocalStore(cfg.OutputDir(), cfg.PublicBaseURL(), logger)
	if err != nil {
		return err
	}
	var uploader cloud.AssetUploader = local
	if cfg.UploadBaseURL() != "" {
		uploader = cloud.NewHTTPClient(cfg.UploadBaseURL(), cfg.UploadToken(), logger)
	}
	workDir := filepath.Join(cfg.DataDir(), "work")
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return err
	}
	pipeline := newPipeline(cfg, workDir, uploader, gallery.NewRepository(database.Conn()), logger)

	repo := jobs.NewRepository(database.Conn())
	job := jobs.NewJob(campaignID, export.SanitizeName(title, 120), req)
	if err := repo.Create(ctx, job); err != nil {
		return err
	}
	if ok, err := repo.Claim(ctx, job.ID); err != nil || !ok {
		return errors.Join(errors.New("failed to claim export job"), err)
	}

	fmt.Fprintf(out, "Exporting %d clips (%s of video) for campaign %s\n",
		len(req.Clips), formatSeconds(req.VideoDuration()), campaignID)

	last := -1
	res, err := pipeline.Run(ctx, export.Target{CampaignID: campaignID, JobID: job.ID, Title: job.Title, CopyDir: opts.copyDir}, req, func(p export.Progress) {
		if p.Percent == last || p.Phase == export.PhaseError {
			return
		}
		last = p.Percent
		fmt.Fprintf(out, "  %3d%%  %-10s %s\n", p.Percent, p.Phase, p.Message)
		_ = repo.UpdateProgress(context.WithoutCancel(ctx), job.ID, p)
	})
	if err != nil {
		if ferr := repo.Fail(context.WithoutCancel(ctx), job.ID, err.Error()); ferr != nil {
			logger.Warn("failed to record export failure", "job_id", job.ID, "error", ferr)
		}
		return fmt.Errorf("export failed: %w", err)
	}
	if err := repo.Complete(ctx, job.ID, res.URL); err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Export:   %s\n", res.URL)
	fmt.Fprintf(out, "File:     %s (%s)\n", res.Filename, humanize.Bytes(uint64(max(res.SizeBytes, 0))))
	fmt.Fprintf(out, "Duration: %s, rendered in %s\n", formatSeconds(res.DurationSeconds), res.Elapsed.Round(time.Second))
	if res.EDLURL != "" {
		fmt.Fprintf(out, "EDL:      %s\n", res.EDLURL)
	}
	switch {
	case res.LocalPath != "":
		fmt.Fprintf(out, "Copy:     %s\n", res.LocalPath)
	case opts.copyDir != "":
		fmt.Fprintf(out, "Copy:     failed, see log\n")
	}

	if !opts.keepDraft {
		if err := store.Delete(ctx, campaignID); err != nil {
			return fmt.Errorf("export succeeded but the draft could not be removed: %w", err)
		}
	}
	return nil
}

func formatSeconds(sec float64) string {
	return (time.Duration(sec * float64(time.Second))).Round(100 * time.Millisecond).String()
}
