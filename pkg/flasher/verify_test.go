package flasher

import (
	"context"
	"strings"
	"testing"

	"usbflash/pkg/errors"
)

func newTestVerifier(blockSize int64) *verifier {
	return &verifier{blockSize: blockSize, ddPath: "dd"}
}

func TestVerifyMatch(t *testing.T) {
	data := patternData(1 << 15)
	src := writeTempFile(t, "src.img", data)
	dst := writeTempFile(t, "dst.img", data)

	sess := newSession(dst, int64(len(data)), nil)
	v := newTestVerifier(4096)
	if err := v.verifyWrite(context.Background(), sess, src, dst, int64(len(data)), ""); err != nil {
		t.Fatalf("expected match: %v", err)
	}
}

func TestVerifyIgnoresDeviceTail(t *testing.T) {
	// Devices are bigger than images; only the image-sized prefix counts.
	data := patternData(8192)
	tail := append(append([]byte{}, data...), patternData(4096)...)
	src := writeTempFile(t, "src.img", data)
	dst := writeTempFile(t, "dst.img", tail)

	sess := newSession(dst, int64(len(data)), nil)
	if err := newTestVerifier(4096).verifyWrite(context.Background(), sess, src, dst, int64(len(data)), ""); err != nil {
		t.Fatalf("prefix match should verify: %v", err)
	}
}

func TestVerifyMismatchReportsOffset(t *testing.T) {
	data := patternData(1 << 15)
	corrupted := append([]byte{}, data...)
	corrupted[10000] ^= 0xFF
	src := writeTempFile(t, "src.img", data)
	dst := writeTempFile(t, "dst.img", corrupted)

	sess := newSession(dst, int64(len(data)), nil)
	err := newTestVerifier(4096).verifyWrite(context.Background(), sess, src, dst, int64(len(data)), "")
	if !errors.IsKind(err, errors.VerificationFailed) {
		t.Fatalf("expected VerificationFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "byte 10000") {
		t.Errorf("mismatch should report the absolute offset: %v", err)
	}
}

func TestVerifyDeviceTooSmall(t *testing.T) {
	data := patternData(8192)
	src := writeTempFile(t, "src.img", data)
	dst := writeTempFile(t, "dst.img", data[:4096])

	sess := newSession(dst, int64(len(data)), nil)
	err := newTestVerifier(4096).verifyWrite(context.Background(), sess, src, dst, int64(len(data)), "")
	if !errors.IsKind(err, errors.VerificationFailed) {
		t.Fatalf("expected VerificationFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "smaller than image") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestVerifyCancelled(t *testing.T) {
	data := patternData(1 << 15)
	src := writeTempFile(t, "src.img", data)
	dst := writeTempFile(t, "dst.img", data)

	sess := newSession(dst, int64(len(data)), nil)
	sess.requestCancel()
	err := newTestVerifier(4096).verifyWrite(context.Background(), sess, src, dst, int64(len(data)), "")
	if !errors.IsKind(err, errors.Cancelled) {
		t.Fatalf("expected Cancelled, got %v", err)
	}
}

func TestVerifyProgressReachesTop(t *testing.T) {
	data := patternData(1 << 14)
	src := writeTempFile(t, "src.img", data)
	dst := writeTempFile(t, "dst.img", data)

	var last int
	v := newTestVerifier(4096)
	v.progress = func(cur, max int) { last = cur }
	sess := newSession(dst, int64(len(data)), nil)
	if err := v.verifyWrite(context.Background(), sess, src, dst, int64(len(data)), ""); err != nil {
		t.Fatal(err)
	}
	if last != progressComplete {
		t.Errorf("final verify progress = %d, want %d", last, progressComplete)
	}
}
