package export

import (
	"bytes"
	"strconv"
	"strings"
	"sync"
)

// progressWriter parses the key=value stream ffmpeg writes for
// "-progress pipe:2" and reports out_time in seconds. Other stderr lines
// are ignored.
type progressWriter struct {
	fn func(seconds float64)

	mu   sync.Mutex
	buf  []byte
	last float64
}

func newProgressWriter(fn func(seconds float64)) *progressWriter {
	return &progressWriter{fn: fn, last: -1}
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf = append(p.buf, b...)
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		p.line(string(p.buf[:i]))
		p.buf = p.buf[i+1:]
	}
	return len(b), nil
}

// Flush handles a trailing line without newline.
func (p *progressWriter) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) > 0 {
		p.line(string(p.buf))
		p.buf = nil
	}
}

func (p *progressWriter) line(s string) {
	key, value, ok := strings.Cut(strings.TrimSpace(s), "=")
	if !ok {
		return
	}
	var sec float64
	switch key {
	// out_time_ms is in microseconds despite its name.
	case "out_time_us", "out_time_ms":
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			return
		}
		sec = float64(us) / 1e6
	default:
		return
	}
	if sec <= p.last {
		return
	}
	p.last = sec
	if p.fn != nil {
		p.fn(sec)
	}
}

// percent maps rendered seconds onto lo..hi of the overall progress bar.
func percent(sec, total float64, lo, hi int) int {
	if total <= 0 {
		return lo
	}
	f := sec / total
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return lo + int(f*float64(hi-lo))
}
