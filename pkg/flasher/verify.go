package flasher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"usbflash/pkg/errors"
	"usbflash/pkg/image"
)

// verifier confirms the written device matches the source image, either by
// a lockstep byte compare or, without direct read access to the device, by
// delegating the target read to a privileged dd and comparing digests.
type verifier struct {
	blockSize int64
	ddPath    string
	progress  func(current, max int)
	status    func(string)

	// targetSize probes the device capacity on the delegated path, where
	// the node cannot be opened directly. nil means probeTargetSize.
	targetSize func(path string) (int64, bool)
}

func (v *verifier) emitProgress(done, total int64) {
	if v.progress != nil {
		v.progress(verifyProgress(done, total), progressScale)
	}
}

// verifyWrite checks the first imageSize bytes of target against source.
// expected is the digest recorded at validation time, used for the
// three-way comparison on the delegated path.
func (v *verifier) verifyWrite(ctx context.Context, sess *session, source, target string, imageSize int64, expected string) error {
	tf, err := os.Open(target)
	if err != nil {
		slog.Info("verify_fallback_subprocess", "target", target, "reason", err)
		return v.verifyByChecksum(ctx, sess, source, target, imageSize, expected)
	}
	defer tf.Close()

	targetSize, err := tf.Seek(0, io.SeekEnd)
	if err != nil {
		return errors.WrapKind(err, errors.VerificationFailed, "cannot determine device size")
	}
	if targetSize < imageSize {
		return errors.Newf(errors.VerificationFailed,
			"device size %d is smaller than image size %d", targetSize, imageSize)
	}
	if _, err := tf.Seek(0, io.SeekStart); err != nil {
		return errors.WrapKind(err, errors.VerificationFailed, "cannot rewind device")
	}

	return v.compareStreams(ctx, sess, source, tf, imageSize)
}

// compareStreams reads equal-sized blocks from source and target in
// lockstep and stops at the first mismatch.
func (v *verifier) compareStreams(ctx context.Context, sess *session, source string, tf io.Reader, imageSize int64) error {
	sf, err := os.Open(source)
	if err != nil {
		return errors.WrapKind(err, errors.VerificationFailed, "cannot reopen image")
	}
	defer sf.Close()

	srcBuf := make([]byte, v.blockSize)
	dstBuf := make([]byte, v.blockSize)
	var compared int64

	for compared < imageSize {
		if sess.isCancelled() || ctx.Err() != nil {
			return errors.New(errors.Cancelled, "verification cancelled")
		}

		want := v.blockSize
		if remaining := imageSize - compared; remaining < want {
			want = remaining
		}

		n, err := io.ReadFull(sf, srcBuf[:want])
		if err != nil && err != io.ErrUnexpectedEOF {
			return errors.WrapKind(err, errors.VerificationFailed, "image read error during verify")
		}
		if n == 0 {
			break
		}
		if _, err := io.ReadFull(tf, dstBuf[:n]); err != nil {
			return errors.WrapKind(err, errors.VerificationFailed, "device read error during verify")
		}

		if !bytes.Equal(srcBuf[:n], dstBuf[:n]) {
			for i := 0; i < n; i++ {
				if srcBuf[i] != dstBuf[i] {
					return errors.Newf(errors.VerificationFailed,
						"mismatch at byte %d: image 0x%02x, device 0x%02x",
						compared+int64(i), srcBuf[i], dstBuf[i])
				}
			}
		}

		compared += int64(n)
		v.emitProgress(compared, imageSize)
	}

	if compared < imageSize {
		return errors.Newf(errors.VerificationFailed,
			"image ended early: compared %d of %d bytes", compared, imageSize)
	}

	slog.Info("verify_complete", "method", "byte_compare", "bytes", compared)
	return nil
}

// verifyByChecksum delegates the device read to dd and compares three
// digests: the freshly computed source digest, the device digest, and the
// digest recorded at validation time. The full image length is hashed on
// both sides.
func (v *verifier) verifyByChecksum(ctx context.Context, sess *session, source, target string, imageSize int64, expected string) error {
	sizeFn := v.targetSize
	if sizeFn == nil {
		sizeFn = probeTargetSize
	}
	if size, ok := sizeFn(target); ok && size < imageSize {
		return errors.Newf(errors.VerificationFailed,
			"device size %d is smaller than image size %d", size, imageSize)
	}

	srcSum, err := image.Checksum(source)
	if err != nil {
		return errors.WrapKind(err, errors.VerificationFailed, "cannot checksum image")
	}
	if expected != "" && srcSum != expected {
		return errors.Newf(errors.VerificationFailed,
			"image changed since validation: checksum %s, expected %s", srcSum, expected)
	}

	dstSum, read, err := v.targetChecksum(ctx, target, imageSize)
	if err != nil {
		if sess.isCancelled() {
			return errors.New(errors.Cancelled, "verification cancelled")
		}
		return err
	}
	if read < imageSize {
		return errors.Newf(errors.VerificationFailed,
			"device produced %d of %d bytes during checksum read", read, imageSize)
	}
	if dstSum != srcSum {
		return errors.Newf(errors.VerificationFailed,
			"checksum mismatch: device %s, image %s", dstSum, srcSum)
	}

	slog.Info("verify_complete", "method", "checksum", "sha256", dstSum)
	return nil
}

// probeTargetSize determines the device capacity without opening the node.
// ok is false when no probe source is available; the caller then relies on
// the read-count check after streaming.
func probeTargetSize(path string) (int64, bool) {
	if out, err := exec.Command("blockdev", "--getsize64", path).Output(); err == nil {
		if v, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64); err == nil && v > 0 {
			return v, true
		}
	}
	if st, err := os.Stat(path); err == nil && st.Mode().IsRegular() {
		return st.Size(), true
	}
	return 0, false
}

// targetChecksum streams the first imageSize bytes of the device through
// a privileged dd into a digest.
func (v *verifier) targetChecksum(ctx context.Context, target string, imageSize int64) (string, int64, error) {
	cmd := exec.CommandContext(ctx, v.ddPath,
		"if="+target,
		fmt.Sprintf("bs=%d", v.blockSize),
		fmt.Sprintf("count=%d", imageSize),
		"iflag=count_bytes",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", 0, errors.WrapKind(err, errors.VerificationFailed, "cannot pipe dd output")
	}
	if err := cmd.Start(); err != nil {
		return "", 0, errors.WrapKind(err, errors.VerificationFailed, "cannot start dd for verify read")
	}

	h := sha256.New()
	var read int64
	buf := make([]byte, v.blockSize)
	for {
		n, rerr := stdout.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			read += int64(n)
			v.emitProgress(read, imageSize)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			_ = cmd.Wait()
			return "", read, errors.WrapKind(rerr, errors.VerificationFailed, "dd read error during verify")
		}
	}
	if err := cmd.Wait(); err != nil {
		return "", read, errors.WrapKind(err, errors.VerificationFailed, "dd verify read failed")
	}

	return hex.EncodeToString(h.Sum(nil)), read, nil
}
