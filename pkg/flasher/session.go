package flasher

import (
	"context"
	"sync/atomic"
	"time"
)

// session is the per-WriteImage state shared between the write engine, the
// progress monitor and the cancellation path. The bytes-written counter is
// monotonically non-decreasing and only the write engine advances it; the
// monitor may observe stale values, never torn ones.
type session struct {
	target    string
	imageSize int64
	start     time.Time

	written   atomic.Int64
	cancelled atomic.Bool

	cancel context.CancelFunc
}

func newSession(target string, imageSize int64, cancel context.CancelFunc) *session {
	return &session{
		target:    target,
		imageSize: imageSize,
		start:     time.Now(),
		cancel:    cancel,
	}
}

// bytesWritten is the monitor-safe read of the counter.
func (s *session) bytesWritten() int64 {
	return s.written.Load()
}

// advance records n more bytes written to the device.
func (s *session) advance(n int64) {
	s.written.Add(n)
}

// setWritten replaces the counter with an externally observed total. Used
// by the subprocess strategy, which learns progress by polling. Never
// moves the counter backwards.
func (s *session) setWritten(n int64) {
	for {
		cur := s.written.Load()
		if n <= cur {
			return
		}
		if s.written.CompareAndSwap(cur, n) {
			return
		}
	}
}

// requestCancel flags the session and unblocks anything waiting on its
// context. Safe to call repeatedly.
func (s *session) requestCancel() {
	s.cancelled.Store(true)
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *session) isCancelled() bool {
	return s.cancelled.Load()
}
