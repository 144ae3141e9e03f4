// Package ratelimit throttles data connection throughput.
//
// It wraps golang.org/x/time/rate with io.Reader and io.Writer adapters so
// transfers can be paced without the copy loop knowing about it.
package ratelimit

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxChunk bounds a single wait so pacing stays smooth for large buffers.
const maxChunk = 8 * 1024

// Limiter limits the rate of data transfer to a number of bytes per second.
// The bucket holds one second worth of data, allowing short bursts while
// keeping the average rate.
type Limiter struct {
	lim   *rate.Limiter
	chunk int
}

// New returns a limiter for bytesPerSecond, or nil when the rate is not
// positive (unlimited). A nil *Limiter is valid and does nothing.
func New(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	burst := int(min(bytesPerSecond, int64(1<<30)))
	return &Limiter{
		lim:   rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
		chunk: min(burst, maxChunk),
	}
}

// Rate returns the configured rate in bytes per second.
func (l *Limiter) Rate() int64 {
	if l == nil {
		return 0
	}
	return int64(l.lim.Limit())
}

func (l *Limiter) wait(ctx context.Context, n int) error {
	return l.lim.WaitN(ctx, n)
}

type reader struct {
	ctx context.Context
	r   io.Reader
	l   *Limiter
}

// NewReader returns r paced by l. If l is nil, r is returned unchanged.
func NewReader(ctx context.Context, r io.Reader, l *Limiter) io.Reader {
	if l == nil {
		return r
	}
	return &reader{ctx: ctx, r: r, l: l}
}

func (r *reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) > r.l.chunk {
		p = p[:r.l.chunk]
	}
	n, err := r.r.Read(p)
	if n > 0 {
		if werr := r.l.wait(r.ctx, n); werr != nil && err == nil {
			err = werr
		}
	}
	return n, err
}

type writer struct {
	ctx context.Context
	w   io.Writer
	l   *Limiter
}

// NewWriter returns w paced by l. If l is nil, w is returned unchanged.
func NewWriter(ctx context.Context, w io.Writer, l *Limiter) io.Writer {
	if l == nil {
		return w
	}
	return &writer{ctx: ctx, w: w, l: l}
}

// Write takes tokens before every chunk so backpressure applies before the
// bytes leave.
func (w *writer) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		chunk := min(len(p)-written, w.l.chunk)
		if err := w.l.wait(w.ctx, chunk); err != nil {
			return written, err
		}
		n, err := w.w.Write(p[written : written+chunk])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
