package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/tourneyreel/studio/internal/logging"
	"github.com/tourneyreel/studio/internal/transition"
)

const (
	maxStderrBytes = 8 * 1024 // tail of ffmpeg stderr kept for error messages
)

// Concatenator renders a merge request into a single file at outPath.
// onProgress receives the rendered output position in seconds.
type Concatenator interface {
	Concat(ctx context.Context, req MergeRequest, outPath string, onProgress func(seconds float64)) error
}

// RenderConfig holds the output format of the ffmpeg concatenator.
type RenderConfig struct {
	FFmpegPath string // empty = "ffmpeg" from PATH
	Width      int
	Height     int
	FPS        int
	Timeout    time.Duration
	Logger     *slog.Logger
}

// DefaultRenderConfig renders vertical 1080x1920 at 30 fps, the format the
// social platforms expect for short promo clips.
func DefaultRenderConfig(logger *slog.Logger) RenderConfig {
	return RenderConfig{
		FFmpegPath: "ffmpeg",
		Width:      1080,
		Height:     1920,
		FPS:        30,
		Timeout:    30 * time.Minute,
		Logger:     logger,
	}
}

// RenderError carries the exit status and stderr tail of a failed render.
type RenderError struct {
	ExitCode   int
	StderrTail string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("ffmpeg exited %d: %s", e.ExitCode, truncate(e.StderrTail, 512))
}

// FFmpegConcatenator builds an ffmpeg filter graph with ffmpeg-go and runs
// it as a subprocess.
type FFmpegConcatenator struct {
	cfg    RenderConfig
	logger *slog.Logger
}

func NewFFmpegConcatenator(cfg RenderConfig) *FFmpegConcatenator {
	def := DefaultRenderConfig(cfg.Logger)
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = def.FFmpegPath
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	if cfg.FPS <= 0 {
		cfg.FPS = def.FPS
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &FFmpegConcatenator{cfg: cfg, logger: logging.WithComponent(logger, "render")}
}

// Args returns the ffmpeg command line for req, without the binary.
func (c *FFmpegConcatenator) Args(req MergeRequest, outPath string) ([]string, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	out := c.graph(req, outPath)
	args := append([]string{"-hide_banner", "-nostats", "-progress", "pipe:2"}, out.GetArgs()...)
	return args, nil
}

func (c *FFmpegConcatenator) Concat(ctx context.Context, req MergeRequest, outPath string, onProgress func(seconds float64)) error {
	args, err := c.Args(req, outPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fmt.Errorf("cannot create output dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, c.cfg.FFmpegPath, args...)

	var stderrBuf bytes.Buffer
	progress := newProgressWriter(onProgress)
	cmd.Stderr = io.MultiWriter(&limitedWriter{w: &stderrBuf, limit: maxStderrBytes}, progress)
	cmd.Stdout = io.Discard

	c.logger.Info("executing render",
		"clips", len(req.Clips),
		"audio", req.Audio != nil,
		"remove_silence", req.RemoveSilence,
		"expected_seconds", req.Duration(),
	)

	err = cmd.Run()
	progress.Flush()
	elapsed := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("render aborted: %w", ctxErr)
		}
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		rerr := &RenderError{ExitCode: exitCode, StderrTail: stderrBuf.String()}
		c.logger.Warn("render failed",
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(rerr.StderrTail, 512),
		)
		return rerr
	}

	c.logger.Info("render succeeded", "duration_ms", elapsed.Milliseconds())
	return nil
}

// graph folds the clips left to right. A clip with an outgoing transition
// is blended into its successor with xfade/acrossfade; otherwise the two
// are concatenated.
func (c *FFmpegConcatenator) graph(req MergeRequest, outPath string) *ffmpeg.Stream {
	var video, audio *ffmpeg.Stream
	var length float64
	w, h := strconv.Itoa(c.cfg.Width), strconv.Itoa(c.cfg.Height)

	for i, clip := range req.Clips {
		in := ffmpeg.Input(clip.URL)
		v := in.Video().
			Filter("trim", ffmpeg.Args{}, ffmpeg.KwArgs{"start": seconds(clip.TrimStart), "end": seconds(clip.TrimEnd)}).
			Filter("setpts", ffmpeg.Args{"PTS-STARTPTS"}).
			Filter("scale", ffmpeg.Args{w, h}, ffmpeg.KwArgs{"force_original_aspect_ratio": "decrease"}).
			Filter("pad", ffmpeg.Args{w, h, "(ow-iw)/2", "(oh-ih)/2"}).
			Filter("setsar", ffmpeg.Args{"1"}).
			Filter("fps", ffmpeg.Args{strconv.Itoa(c.cfg.FPS)})
		a := in.Audio().
			Filter("atrim", ffmpeg.Args{}, ffmpeg.KwArgs{"start": seconds(clip.TrimStart), "end": seconds(clip.TrimEnd)}).
			Filter("asetpts", ffmpeg.Args{"PTS-STARTPTS"}).
			Filter("aformat", ffmpeg.Args{}, ffmpeg.KwArgs{"sample_rates": "48000", "channel_layouts": "stereo"})
		if clip.Mute {
			a = a.Filter("volume", ffmpeg.Args{"0"})
		}

		d := clip.TrimEnd - clip.TrimStart
		if i == 0 {
			video, audio, length = v, a, d
			continue
		}

		if t := req.Clips[i-1].TransitionOut; t != nil && t.Duration > 0 {
			video = ffmpeg.Filter([]*ffmpeg.Stream{video, v}, "xfade", ffmpeg.Args{}, ffmpeg.KwArgs{
				"transition": transition.XfadeName(t.Type),
				"duration":   seconds(t.Duration),
				"offset":     seconds(length - t.Duration),
			})
			audio = ffmpeg.Filter([]*ffmpeg.Stream{audio, a}, "acrossfade", ffmpeg.Args{}, ffmpeg.KwArgs{"d": seconds(t.Duration)})
			length += d - t.Duration
		} else {
			video = ffmpeg.Concat([]*ffmpeg.Stream{video, v}, ffmpeg.KwArgs{"v": 1, "a": 0})
			audio = ffmpeg.Concat([]*ffmpeg.Stream{audio, a}, ffmpeg.KwArgs{"v": 0, "a": 1})
			length += d
		}
	}

	if m := req.Audio; m != nil {
		music := ffmpeg.Input(m.URL).Audio()
		if m.TrimEnd > m.TrimStart {
			music = music.
				Filter("atrim", ffmpeg.Args{}, ffmpeg.KwArgs{"start": seconds(m.TrimStart), "end": seconds(m.TrimEnd)}).
				Filter("asetpts", ffmpeg.Args{"PTS-STARTPTS"})
		}
		music = music.
			Filter("aformat", ffmpeg.Args{}, ffmpeg.KwArgs{"sample_rates": "48000", "channel_layouts": "stereo"}).
			Filter("volume", ffmpeg.Args{strconv.FormatFloat(m.Volume, 'f', 3, 64)})
		// Only the overlay loses its gaps; clip audio stays aligned with video.
		if req.RemoveSilence {
			music = music.Filter("silenceremove", ffmpeg.Args{}, ffmpeg.KwArgs{
				"stop_periods":   "-1",
				"stop_duration":  "1",
				"stop_threshold": "-50dB",
			})
		}
		if m.OffsetMs > 0 {
			music = music.Filter("adelay", ffmpeg.Args{fmt.Sprintf("%d|%d", m.OffsetMs, m.OffsetMs)})
		}
		audio = ffmpeg.Filter([]*ffmpeg.Stream{audio, music}, "amix", ffmpeg.Args{}, ffmpeg.KwArgs{
			"inputs":   2,
			"duration": "longest",
		})
	}

	return ffmpeg.Output([]*ffmpeg.Stream{video, audio}, outPath, ffmpeg.KwArgs{
		"c:v":      "libx264",
		"preset":   "veryfast",
		"crf":      "23",
		"pix_fmt":  "yuv420p",
		"c:a":      "aac",
		"b:a":      "192k",
		"movflags": "+faststart",
	}).OverWriteOutput()
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
