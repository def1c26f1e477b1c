package flasher

import "sync/atomic"

// Status is the write pipeline state. Transitions are strictly linear on
// the success path:
//
//	Idle → Validating → Unmounting → Flashing → Verifying → Completed
//
// Any failure moves to StatusError; a cancellation request moves to
// StatusCancelled and wins races with StatusError. Completed, Error and
// Cancelled are terminal.
type Status int32

const (
	StatusIdle Status = iota
	StatusValidating
	StatusUnmounting
	StatusFlashing
	StatusVerifying
	StatusCompleted
	StatusError
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusValidating:
		return "validating"
	case StatusUnmounting:
		return "unmounting"
	case StatusFlashing:
		return "flashing"
	case StatusVerifying:
		return "verifying"
	case StatusCompleted:
		return "completed"
	case StatusError:
		return "error"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled
}

// statusCell is a lock-free state holder. Readers (the progress monitor,
// CurrentStatus callers) never block the writer.
type statusCell struct {
	v atomic.Int32
}

func (c *statusCell) get() Status {
	return Status(c.v.Load())
}

// transition applies the state machine rules: terminal states are final,
// except that Cancelled may replace Error when both raced for the same
// failure. Returns the state actually in effect afterwards.
func (c *statusCell) transition(to Status) Status {
	for {
		cur := Status(c.v.Load())
		if cur.Terminal() {
			// Cancellation takes priority over a racing error.
			if !(cur == StatusError && to == StatusCancelled) {
				return cur
			}
		}
		if c.v.CompareAndSwap(int32(cur), int32(to)) {
			return to
		}
	}
}

// reset forces the cell back to Idle for a new session.
func (c *statusCell) reset() {
	c.v.Store(int32(StatusIdle))
}
