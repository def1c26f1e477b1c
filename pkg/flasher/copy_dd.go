package flasher

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"usbflash/pkg/errors"
)

// ddCopier delegates the block copy to a privileged dd subprocess and
// learns progress by polling the subprocess's read cursor on the source
// file.
type ddCopier struct {
	ddPath    string
	poll      time.Duration
	killGrace time.Duration
}

func (ddCopier) name() string { return "dd" }

func (c ddCopier) copy(ctx context.Context, req copyRequest, sess *session) error {
	args := []string{
		"if=" + req.source,
		"of=" + req.target,
		fmt.Sprintf("bs=%d", req.blockSize),
		"conv=fsync",
	}
	var stderr bytes.Buffer
	cmd := exec.Command(c.ddPath, args...)
	cmd.Stderr = &stderr

	slog.Info("copy_subprocess_start", "dd", c.ddPath, "source", req.source, "target", req.target)
	if err := cmd.Start(); err != nil {
		return errors.WrapKind(err, errors.WriteFailed, "failed to start "+c.ddPath)
	}

	absSource, _ := filepath.Abs(req.source)
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	for {
		select {
		case err := <-done:
			if err != nil {
				msg := strings.TrimSpace(stderr.String())
				if msg == "" {
					msg = err.Error()
				}
				return errors.Newf(errors.WriteFailed, "dd failed: %s", msg)
			}
			sess.setWritten(req.imageSize)
			if req.syncAfter {
				syncDevice()
			}
			slog.Info("copy_complete", "strategy", "dd", "bytes", sess.bytesWritten())
			return nil

		case <-time.After(c.poll):
			if sess.isCancelled() || ctx.Err() != nil {
				c.terminate(cmd, done)
				return errors.New(errors.Cancelled, "flash cancelled")
			}
			if pos, ok := readCursor(cmd.Process.Pid, absSource); ok {
				sess.setWritten(pos)
			}
		}
	}
}

// terminate stops the subprocess gracefully, then forcibly after the grace
// period.
func (c ddCopier) terminate(cmd *exec.Cmd, done <-chan error) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
	case <-time.After(c.killGrace):
		slog.Warn("copy_subprocess_kill", "pid", cmd.Process.Pid)
		_ = cmd.Process.Kill()
		<-done
	}
}

// readCursor finds the subprocess file descriptor open on path and returns
// its read offset, a proxy for bytes written so far. ok is false when the
// fd table or fdinfo is unavailable (non-Linux, process exited, permission).
func readCursor(pid int, path string) (int64, bool) {
	fdDir := fmt.Sprintf("/proc/%d/fd", pid)
	fds, err := os.ReadDir(fdDir)
	if err != nil {
		return 0, false
	}
	for _, fd := range fds {
		target, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
		if err != nil || target != path {
			continue
		}
		return fdinfoPos(pid, fd.Name())
	}
	return 0, false
}

func fdinfoPos(pid int, fd string) (int64, bool) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/fdinfo/%s", pid, fd))
	if err != nil {
		return 0, false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "pos:") {
			continue
		}
		v, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, "pos:")), 10, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}
