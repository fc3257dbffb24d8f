// Package ratelimit throttles a Worker's data-byte throughput against a
// configured ceiling, mirroring the batch-then-report cadence the teacher
// uses around its upload counters in pkg/backup/upload.go, but backed by
// a real token bucket instead of a manual sleep calculation.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps a token bucket over bytes. Each Worker owns exactly one;
// there is no cross-worker coordination, so job-wide throughput is
// bytesPerSecond * number of active Workers at saturation.
type Limiter struct {
	bucket *rate.Limiter
}

// Unlimited returns a Limiter that never blocks, used when a job sets no
// throughput ceiling.
func Unlimited() *Limiter {
	return &Limiter{bucket: rate.NewLimiter(rate.Inf, 0)}
}

// New builds a Limiter capped at bytesPerSecond with the given burst; a
// burst <= 0 defaults to bytesPerSecond, and a bytesPerSecond <= 0 returns
// Unlimited().
func New(bytesPerSecond int64, burst int) *Limiter {
	if bytesPerSecond <= 0 {
		return Unlimited()
	}
	if burst <= 0 {
		burst = int(bytesPerSecond)
	}
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(bytesPerSecond), burst)}
}

// Report accounts for n data bytes just written and blocks the calling
// Worker until the rolling rate is back at or below the configured limit.
func (l *Limiter) Report(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if n > l.bucket.Burst() {
		return l.reportOversized(ctx, n)
	}
	return l.bucket.WaitN(ctx, n)
}

// reportOversized spends a batch larger than the bucket's burst size in
// burst-sized slices, since rate.Limiter.WaitN rejects any n exceeding it.
func (l *Limiter) reportOversized(ctx context.Context, n int) error {
	burst := l.bucket.Burst()
	for n > 0 {
		take := burst
		if take > n {
			take = n
		}
		if err := l.bucket.WaitN(ctx, take); err != nil {
			return err
		}
		n -= take
	}
	return nil
}
