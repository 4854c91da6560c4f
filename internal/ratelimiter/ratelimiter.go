package ratelimiter

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// RateLimiter paces a byte stream using the token bucket algorithm.
//
// One token is one byte. Server-side range copies call WaitN before each
// chunk so that bulk copies cannot saturate the disk that also serves
// interactive reads and writes.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing bytesPerSecond sustained throughput
// with a bucket of burst bytes.
//
// Special cases:
//   - bytesPerSecond = 0: no limit
//   - burst = 0: burst defaults to one second worth of bytes
//
// Example:
//
//	// 64 MiB/s, up to 16 MiB at once
//	limiter := New(64<<20, 16<<20)
func New(bytesPerSecond, burst uint64) *RateLimiter {
	if bytesPerSecond == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = bytesPerSecond
	}
	if burst > math.MaxInt32 {
		burst = math.MaxInt32
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), int(burst)),
	}
}

// Unlimited reports whether the limiter never blocks.
func (r *RateLimiter) Unlimited() bool {
	return r.limiter.Limit() == rate.Inf
}

// WaitN blocks until n bytes may be transferred or ctx is done.
//
// Requests larger than the burst are split into burst-sized waits, so a
// chunk size above the bucket capacity slows down instead of failing.
//
// Returns the context error if ctx is cancelled while waiting.
func (r *RateLimiter) WaitN(ctx context.Context, n int) error {
	if n <= 0 || r.Unlimited() {
		return ctx.Err()
	}

	burst := r.limiter.Burst()
	for n > 0 {
		step := min(n, burst)
		if err := r.limiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

// SetLimit updates the sustained rate. Zero removes the limit.
func (r *RateLimiter) SetLimit(bytesPerSecond uint64) {
	if bytesPerSecond == 0 {
		r.limiter.SetLimit(rate.Inf)
		return
	}
	if r.limiter.Burst() == 0 {
		r.limiter.SetBurst(int(min(bytesPerSecond, math.MaxInt32)))
	}
	r.limiter.SetLimit(rate.Limit(bytesPerSecond))
}

// Tokens returns the number of bytes currently available without waiting.
// Primarily useful for tests and debugging.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
