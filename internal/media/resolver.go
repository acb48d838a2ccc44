// Package media resolves playable durations of source assets and reports
// which media tools are available on this machine.
package media

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/tourneyreel/studio/internal/logging"
	"github.com/tourneyreel/studio/internal/timeline"
)

// Kind selects the fallback used when a source cannot be probed.
type Kind int

const (
	KindVideo Kind = iota
	KindAudio
)

func (k Kind) String() string {
	if k == KindAudio {
		return "audio"
	}
	return "video"
}

// Fallback is the duration assumed for an unprobeable source of kind k.
func Fallback(k Kind) float64 {
	if k == KindAudio {
		return timeline.FallbackAudioDuration
	}
	return timeline.FallbackVideoDuration
}

// Prober measures the duration of a media URL in seconds.
type Prober interface {
	Probe(ctx context.Context, url string) (float64, error)
}

// Resolver turns media URLs into durations. Concurrent lookups of the same
// URL share one probe, successful results are cached, and failures resolve
// to the per-kind fallback instead of an error.
type Resolver struct {
	prober Prober
	logger *slog.Logger

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]float64
}

func NewResolver(prober Prober, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Resolver{
		prober: prober,
		logger: logging.WithComponent(logger, "media"),
		cache:  make(map[string]float64),
	}
}

// Resolve returns the duration of url. It never fails.
func (r *Resolver) Resolve(ctx context.Context, url string, kind Kind) float64 {
	r.mu.RLock()
	d, ok := r.cache[url]
	r.mu.RUnlock()
	if ok {
		return d
	}

	v, err, shared := r.group.Do(url, func() (any, error) {
		d, err := r.prober.Probe(ctx, url)
		if err != nil {
			return 0.0, err
		}
		if d > 0 {
			r.mu.Lock()
			r.cache[url] = d
			r.mu.Unlock()
		}
		return d, nil
	})

	d, _ = v.(float64)
	if err != nil || d <= 0 {
		fb := Fallback(kind)
		r.logger.Warn("duration probe failed, using fallback",
			"url", logging.SanitizeURL(url), "kind", kind.String(), "fallback", fb, "error", err)
		return fb
	}
	if shared {
		r.logger.Debug("duration probe shared", "url", logging.SanitizeURL(url))
	}
	return d
}

// ResolveAsync resolves url off the caller's goroutine and hands the result
// to fn.
func (r *Resolver) ResolveAsync(ctx context.Context, url string, kind Kind, fn func(float64)) {
	go func() {
		fn(r.Resolve(ctx, url, kind))
	}()
}

// ResolveVideo and ResolveAudio adapt the resolver to callers that only
// deal in one kind.
func (r *Resolver) ResolveVideo(ctx context.Context, url string) float64 {
	return r.Resolve(ctx, url, KindVideo)
}

func (r *Resolver) ResolveAudio(ctx context.Context, url string) float64 {
	return r.Resolve(ctx, url, KindAudio)
}

// Forget drops a cached duration, e.g. after a local file was replaced.
func (r *Resolver) Forget(url string) {
	r.mu.Lock()
	delete(r.cache, url)
	r.mu.Unlock()
}
