package flasher

import (
	"context"
	"fmt"
	"time"
)

// Progress band boundaries. Pre-flight occupies 0-10, the copy 10-90,
// the post-copy flush 90-95, verification 95-100.
const (
	progressPreflight = 5
	progressCopyStart = 10
	progressCopyEnd   = 90
	progressSynced    = 95
	progressComplete  = 100
	progressScale     = 100
)

// stallSamples is how many unchanged monitor samples count as a stall.
const stallSamples = 20

// monitor samples the session's byte counter on a fixed interval to drive
// progress callbacks and detect stalls. It only ever reads session state.
type monitor struct {
	interval time.Duration
	progress func(current, max int)
	status   func(string)
}

// run samples until ctx is done. Intended to run as a goroutine alongside
// the flashing phase only.
func (m *monitor) run(ctx context.Context, sess *session) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var lastSeen int64 = -1
	unchanged := 0
	stallReported := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		written := sess.bytesWritten()
		m.report(written, sess.imageSize)

		if written == lastSeen {
			unchanged++
			if unchanged >= stallSamples && !stallReported {
				stallReported = true
				if m.status != nil {
					m.status(fmt.Sprintf("write appears stalled at %d bytes", written))
				}
			}
		} else {
			lastSeen = written
			unchanged = 0
			stallReported = false
		}
	}
}

func (m *monitor) report(written, size int64) {
	if m.progress != nil {
		m.progress(copyProgress(written, size), progressScale)
	}
}

// copyProgress maps bytes written into the copy band, linearly
// interpolated from written/size.
func copyProgress(written, size int64) int {
	if size <= 0 {
		return progressCopyStart
	}
	if written > size {
		written = size
	}
	span := int64(progressCopyEnd - progressCopyStart)
	p := progressCopyStart + int(written*span/size)
	if p > progressCopyEnd {
		p = progressCopyEnd
	}
	return p
}

// verifyProgress maps bytes verified into the verification band.
func verifyProgress(done, total int64) int {
	if total <= 0 {
		return progressSynced
	}
	if done > total {
		done = total
	}
	span := int64(progressComplete - progressSynced)
	p := progressSynced + int(done*span/total)
	if p > progressComplete {
		p = progressComplete
	}
	return p
}
