package flasher

import (
	"context"
	goerrors "errors"
	"io"
	"log/slog"
	"os"
	"strconv"
	"syscall"

	"usbflash/pkg/errors"
)

// copyRequest describes one block-level copy.
type copyRequest struct {
	source    string
	target    string
	blockSize int64
	imageSize int64
	syncAfter bool
}

// copier is the write engine strategy: either an in-process block copy or
// delegation to a privileged copy utility. The guard, monitor and verifier
// are strategy-agnostic.
type copier interface {
	name() string
	copy(ctx context.Context, req copyRequest, sess *session) error
}

// directCopier copies the image in-process in bounded blocks, advancing
// the session counter after every block and syncing the device at
// end-of-stream.
type directCopier struct{}

func (directCopier) name() string { return "direct" }

func (directCopier) copy(ctx context.Context, req copyRequest, sess *session) error {
	src, err := os.Open(req.source)
	if err != nil {
		return errors.WrapKind(err, errors.WriteFailed, "failed to open image")
	}
	defer src.Close()

	dst, err := os.OpenFile(req.target, os.O_WRONLY, 0)
	if err != nil {
		return errors.WrapKind(err, errors.WriteFailed, "failed to open device "+req.target)
	}
	defer dst.Close()

	buf := make([]byte, req.blockSize)
	for {
		// Cancellation is cooperative, observed at block granularity.
		if sess.isCancelled() || ctx.Err() != nil {
			return errors.New(errors.Cancelled, "flash cancelled")
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				if isNoSpace(werr) {
					return errors.WrapKind(werr, errors.WriteFailed,
						"device out of space at byte "+strconv.FormatInt(sess.bytesWritten(), 10))
				}
				return errors.WrapKind(werr, errors.WriteFailed, "device write error")
			}
			sess.advance(int64(n))
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return errors.WrapKind(rerr, errors.WriteFailed, "image read error")
		}
	}

	if err := dst.Sync(); err != nil {
		return errors.WrapKind(err, errors.WriteFailed, "device sync failed")
	}
	if req.syncAfter {
		syncDevice()
	}

	slog.Info("copy_complete", "strategy", "direct", "bytes", sess.bytesWritten())
	return nil
}

// isNoSpace reports whether an error is an out-of-space condition, which
// is surfaced distinctly from generic I/O failure.
func isNoSpace(err error) bool {
	return goerrors.Is(err, syscall.ENOSPC)
}
