package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const defaultProbeTimeout = 10 * time.Second

// JSON output from ffprobe
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

// FFprobeProber probes local paths and HTTP URLs with ffprobe.
type FFprobeProber struct {
	timeout time.Duration
	probe   func(url string, timeout time.Duration) (string, error)
}

func NewFFprobeProber(timeout time.Duration) *FFprobeProber {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &FFprobeProber{
		timeout: timeout,
		probe: func(url string, timeout time.Duration) (string, error) {
			return ffmpeg.ProbeWithTimeout(url, timeout, ffmpeg.KwArgs{"v": "quiet"})
		},
	}
}

// Probe returns the container duration, falling back to the longest
// stream duration when the container does not report one.
func (p *FFprobeProber) Probe(ctx context.Context, url string) (float64, error) {
	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return 0, context.DeadlineExceeded
	}

	out, err := p.probe(url, timeout)
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseDuration(out)
}

func parseDuration(out string) (float64, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal([]byte(out), &probe); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil && d > 0 {
		return d, nil
	}

	best := 0.0
	for _, s := range probe.Streams {
		if d, err := strconv.ParseFloat(s.Duration, 64); err == nil && d > best {
			best = d
		}
	}
	if best > 0 {
		return best, nil
	}
	return 0, errors.New("ffprobe reported no duration")
}
