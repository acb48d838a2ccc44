package media

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tourneyreel/studio/internal/logging"
)

const defaultCacheTTL = 5 * time.Minute

// Tool describes one external binary.
type Tool struct {
	Name      string `json:"name"`
	Path      string `json:"path,omitempty"`
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
}

// Capabilities is a snapshot of the media tools found on this machine.
type Capabilities struct {
	FFmpeg   Tool      `json:"ffmpeg"`
	FFprobe  Tool      `json:"ffprobe"`
	ProbedAt time.Time `json:"probed_at"`
	// Stale is set on a result handed out because a newer check failed.
	Stale bool `json:"stale,omitempty"`
}

// CanExport reports whether renders can run.
func (c *Capabilities) CanExport() bool {
	return c != nil && c.FFmpeg.Available
}

// CheckFunc inspects the machine and returns its capabilities.
type CheckFunc func(ctx context.Context) (*Capabilities, error)

// Doctor remembers the last tool check. Concurrent checks share one run.
type Doctor struct {
	check  CheckFunc
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group

	mu   sync.RWMutex
	last *Capabilities
}

// NewDoctor checks the given ffmpeg and ffprobe binaries.
func NewDoctor(ffmpegPath, ffprobePath string, logger *slog.Logger) *Doctor {
	return NewDoctorWithCheck(ToolCheck(ffmpegPath, ffprobePath), logger)
}

func NewDoctorWithCheck(check CheckFunc, logger *slog.Logger) *Doctor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Doctor{
		check:  check,
		ttl:    defaultCacheTTL,
		logger: logging.WithComponent(logger, "doctor"),
	}
}

// Last is the most recent result, or nil before the first check. It never
// runs a check.
func (d *Doctor) Last() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}

// Recent is Last while it is younger than the TTL, and a new Check after.
func (d *Doctor) Recent(ctx context.Context) (*Capabilities, error) {
	if last := d.Last(); last != nil && time.Since(last.ProbedAt) < d.ttl {
		return last, nil
	}
	return d.Check(ctx)
}

// Check runs the tool check now. If it fails after an earlier success the
// earlier result comes back marked Stale instead of the error.
func (d *Doctor) Check(ctx context.Context) (*Capabilities, error) {
	v, err, _ := d.group.Do("check", func() (any, error) {
		caps, err := d.check(ctx)
		if err != nil {
			return nil, err
		}
		d.mu.Lock()
		d.last = caps
		d.mu.Unlock()
		return caps, nil
	})
	if err == nil {
		return v.(*Capabilities), nil
	}

	d.logger.Warn("tool check failed", "error", err)
	last := d.Last()
	if last == nil {
		return nil, err
	}
	stale := *last
	stale.Stale = true
	return &stale, nil
}

// ToolCheck returns a CheckFunc that looks both binaries up on PATH and
// records the first line of their -version output.
func ToolCheck(ffmpegPath, ffprobePath string) CheckFunc {
	return func(ctx context.Context) (*Capabilities, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &Capabilities{
			FFmpeg:   lookTool(ctx, "ffmpeg", ffmpegPath),
			FFprobe:  lookTool(ctx, "ffprobe", ffprobePath),
			ProbedAt: time.Now(),
		}, nil
	}
}

func lookTool(ctx context.Context, name, bin string) Tool {
	t := Tool{Name: name}
	path, err := exec.LookPath(bin)
	if err != nil {
		return t
	}
	t.Path = path
	t.Available = true

	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err == nil {
		t.Version = firstLine(out)
	}
	return t
}

func firstLine(b []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(b))
	if sc.Scan() {
		return sc.Text()
	}
	return ""
}

// String renders a one-line summary for logs and the CLI.
func (c *Capabilities) String() string {
	if c == nil {
		return "unknown"
	}
	return fmt.Sprintf("ffmpeg=%t ffprobe=%t", c.FFmpeg.Available, c.FFprobe.Available)
}
