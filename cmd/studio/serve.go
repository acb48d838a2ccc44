package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/tourneyreel/studio/internal/api"
	"github.com/tourneyreel/studio/internal/cloud"
	"github.com/tourneyreel/studio/internal/config"
	"github.com/tourneyreel/studio/internal/db"
	"github.com/tourneyreel/studio/internal/drafts"
	"github.com/tourneyreel/studio/internal/editor"
	"github.com/tourneyreel/studio/internal/export"
	"github.com/tourneyreel/studio/internal/gallery"
	"github.com/tourneyreel/studio/internal/jobs"
	"github.com/tourneyreel/studio/internal/media"
	"github.com/tourneyreel/studio/internal/playback"
	"github.com/tourneyreel/studio/internal/posts"
	"github.com/tourneyreel/studio/internal/ui"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var headless bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the editing agent and its local API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, ctx.logger(), headless || cfg.Headless())
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "Run without the system tray")
	return cmd
}

func serve(parent context.Context, cfg *config.EnvConfig, logger *slog.Logger, headless bool) error {
	if parent == nil {
		parent = context.Background()
	}
	startTime := time.Now()

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another studio agent is already running on this data dir")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release lock", "error", err)
		}
	}()

	logger.Info("starting studio agent", "version", Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	authToken, err := ensureAuthToken(parent, database)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}
	printBanner(cfg.Port(), authToken)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	doctor := media.NewDoctor(cfg.FFmpegPath(), cfg.FFprobePath(), logger)
	initCtx, initCancel := context.WithTimeout(ctx, cfg.ProbeTimeout())
	if caps, err := doctor.Check(initCtx); err != nil {
		logger.Warn("initial media tool check failed", "error", err)
	} else {
		logger.Info("media tools detected", "tools", caps.String())
		if !caps.CanExport() {
			logger.Warn("ffmpeg not found, exports will fail until it is installed")
		}
	}
	initCancel()

	resolver := media.NewResolver(media.NewFFprobeProber(cfg.ProbeTimeout()), logger)

	draftStore := drafts.NewStore(database.Conn())
	saver := drafts.NewSaver(draftStore, cfg.DraftDebounce(), logger)

	players := playback.NewRegistry(ctx, nil, cfg.FrameInterval(), logger)

	sessions := editor.NewManager(editor.ManagerConfig{
		Resolver: resolver,
		Drafts:   draftStore,
		Saver:    saver,
		Attach:   players.Attach,
		Logger:   logger,
	})

	local, err := cloud.NewLocalStore(cfg.OutputDir(), cfg.PublicBaseURL(), logger)
	if err != nil {
		return fmt.Errorf("failed to prepare output dir: %w", err)
	}
	var uploader cloud.AssetUploader = local
	if cfg.UploadBaseURL() != "" {
		uploader = cloud.NewHTTPClient(cfg.UploadBaseURL(), cfg.UploadToken(), logger)
		logger.Info("remote asset upload enabled", "base_url", cfg.UploadBaseURL())
	}

	workDir := filepath.Join(cfg.DataDir(), "work")
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}

	galleryRepo := gallery.NewRepository(database.Conn())
	pipeline := newPipeline(cfg, workDir, uploader, galleryRepo, logger)

	jobRepo := jobs.NewRepository(database.Conn())
	runner := jobs.NewRunner(jobs.RunnerConfig{
		Repo:         jobRepo,
		Exporter:     pipeline,
		Sessions:     sessions,
		PollInterval: cfg.ExportPollInterval(),
		Logger:       logger,
	})
	go runner.Start(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:      cfg.Port(),
		Version:   Version,
		Settings:  database,
		Sessions:  sessions,
		Jobs:      jobRepo,
		Runner:    runner,
		Gallery:   galleryRepo,
		Posts:     posts.NewRepository(database.Conn()),
		Assets:    local,
		Doctor:    doctor,
		Playback:  players.Status,
		Logger:    logger,
		StartTime: startTime,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	quitCh := make(chan struct{})
	quit := sync.OnceFunc(func() { close(quitCh) })
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
		case err := <-serverErr:
			if err != nil {
				logger.Error("HTTP server error", "error", err)
			}
		case <-ctx.Done():
		case <-quitCh:
			return
		}
		quit()
	}()

	var tray *ui.Tray
	if headless {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray = ui.NewTray(ui.TrayConfig{
			Queue:  runner,
			Logger: logger,
			OnQuit: quit,
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	sessions.Close()
	saver.Flush(shutdownCtx)
	if tray != nil {
		tray.Quit()
	}

	logger.Info("shutdown complete")
	return nil
}

func newPipeline(cfg *config.EnvConfig, workDir string, uploader cloud.AssetUploader, recorder export.Recorder, logger *slog.Logger) *export.Pipeline {
	render := export.DefaultRenderConfig(logger)
	render.FFmpegPath = cfg.FFmpegPath()
	render.Timeout = cfg.ExportTimeout()

	return export.NewPipeline(export.PipelineConfig{
		Concat:    export.NewFFmpegConcatenator(render),
		Uploader:  uploader,
		Recorder:  recorder,
		WorkDir:   workDir,
		FrameRate: cfg.EDLFrameRate(),
		Logger:    logger,
	})
}

func ensureAuthToken(ctx context.Context, database *db.DB) (string, error) {
	existing, ok, err := database.GetSetting(ctx, api.AuthTokenKey)
	if err != nil {
		return "", err
	}
	if ok && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := database.SetSetting(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}
	return token, nil
}

func printBanner(port int, token string) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════════════════╗")
	fmt.Printf("║  TOURNEY REEL STUDIO v%-56s║\n", Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-48d║\n", port)
	fmt.Printf("║  Auth Token: %-65s║\n", token)
	fmt.Println("╚═══════════════════════════════════════════════════════════════════════════════╝")
	fmt.Println()
}
