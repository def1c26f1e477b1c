//go:build linux

package flasher

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"usbflash/pkg/errors"
)

// writeScript creates an executable shell script standing in for dd.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dd")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// ddCopyScript parses if=/of= arguments and copies the file, like dd does.
const ddCopyScript = `src=""; dst=""
for a in "$@"; do
  case "$a" in
    if=*) src="${a#if=}" ;;
    of=*) dst="${a#of=}" ;;
  esac
done
cat "$src" > "$dst"
`

func TestDDCopierCopiesAndReportsSize(t *testing.T) {
	data := patternData(1 << 14)
	src := writeTempFile(t, "src.img", data)
	dst := writeTempFile(t, "dst.img", nil)

	c := ddCopier{
		ddPath:    writeScript(t, ddCopyScript),
		poll:      time.Millisecond,
		killGrace: time.Second,
	}
	sess := newSession(dst, int64(len(data)), nil)
	req := copyRequest{source: src, target: dst, blockSize: 4096, imageSize: int64(len(data))}

	if err := c.copy(context.Background(), req, sess); err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if got := sess.bytesWritten(); got != int64(len(data)) {
		t.Errorf("bytesWritten = %d, want %d", got, len(data))
	}
	out, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Error("target differs from source after subprocess copy")
	}
}

func TestDDCopierCancelTerminatesSubprocess(t *testing.T) {
	data := patternData(4096)
	src := writeTempFile(t, "src.img", data)
	dst := writeTempFile(t, "dst.img", nil)

	// A subprocess that never finishes on its own; only termination can
	// end the copy.
	c := ddCopier{
		ddPath:    writeScript(t, "exec sleep 60\n"),
		poll:      5 * time.Millisecond,
		killGrace: time.Second,
	}
	sess := newSession(dst, 4096, nil)
	go func() {
		time.Sleep(20 * time.Millisecond)
		sess.requestCancel()
	}()

	start := time.Now()
	err := c.copy(context.Background(), copyRequest{source: src, target: dst, blockSize: 4096, imageSize: 4096}, sess)
	if !errors.IsKind(err, errors.Cancelled) {
		t.Fatalf("expected Cancelled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took %s, child was not terminated promptly", elapsed)
	}
}

func TestDDCopierReportsSubprocessFailure(t *testing.T) {
	data := patternData(4096)
	src := writeTempFile(t, "src.img", data)
	dst := writeTempFile(t, "dst.img", nil)

	c := ddCopier{
		ddPath:    writeScript(t, "echo 'no space left on device' >&2\nexit 1\n"),
		poll:      time.Millisecond,
		killGrace: time.Second,
	}
	sess := newSession(dst, 4096, nil)

	err := c.copy(context.Background(), copyRequest{source: src, target: dst, blockSize: 4096, imageSize: 4096}, sess)
	if !errors.IsKind(err, errors.WriteFailed) {
		t.Fatalf("expected WriteFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "no space left on device") {
		t.Errorf("stderr should surface in the error: %v", err)
	}
}
