// Package flasher implements the device-safe image write pipeline:
// validation, target approval, unmount, block copy with live progress and
// cancellation, and byte-exact verification.
package flasher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"usbflash/pkg/device"
	"usbflash/pkg/errors"
	"usbflash/pkg/image"
)

// Options configures a Flasher. Zero fields take defaults.
type Options struct {
	// BlockSize is the default copy block size in bytes.
	BlockSize int64
	// MaxImageSize is the validation ceiling in bytes.
	MaxImageSize int64
	// UseDD selects the privileged subprocess copy strategy.
	UseDD bool
	// DDPath locates the copy utility for the subprocess strategy and the
	// delegated verification read.
	DDPath string
	// PollInterval paces the progress monitor and the subprocess liveness
	// poll.
	PollInterval time.Duration
	// SettleInterval is the wait between issuing unmounts and re-scanning
	// the mount table.
	SettleInterval time.Duration
	// KillGrace is how long a cancelled subprocess gets to exit before it
	// is killed.
	KillGrace time.Duration

	// Catalog overrides the device catalog, for tests.
	Catalog deviceLister
}

func (o *Options) applyDefaults() {
	if o.BlockSize <= 0 {
		o.BlockSize = 4 * 1024 * 1024
	}
	if o.MaxImageSize <= 0 {
		o.MaxImageSize = image.DefaultMaxSize
	}
	if o.DDPath == "" {
		o.DDPath = "dd"
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.SettleInterval <= 0 {
		o.SettleInterval = time.Second
	}
	if o.KillGrace <= 0 {
		o.KillGrace = 5 * time.Second
	}
	if o.Catalog == nil {
		o.Catalog = device.NewCatalog()
	}
}

// WriteOptions are the per-invocation knobs of WriteImage.
type WriteOptions struct {
	// BlockSize overrides the flasher default when positive.
	BlockSize int64
	// Verify re-reads the device after the copy and compares it against
	// the source.
	Verify bool
	// SyncAfter forces a global device sync once the copy finishes.
	SyncAfter bool
}

// Result is the outcome of one WriteImage invocation.
type Result struct {
	Success          bool
	Message          string
	ChecksumVerified bool
	Duration         time.Duration
	BytesWritten     int64

	// Err carries the Kind-tagged failure, nil on success.
	Err error
}

// deviceReleaser is the unmount coordinator's contract.
type deviceReleaser interface {
	releaseDevice(devicePath string) error
}

// Flasher is the core write engine. Exactly one write session may be
// active per instance; a second WriteImage while one is running is
// rejected. Status is observable concurrently without blocking the writer.
type Flasher struct {
	opts      Options
	validator *image.Validator
	releaser  deviceReleaser

	mu         sync.Mutex
	progressFn func(current, max int)
	statusFn   func(message string)

	status statusCell
	active atomic.Pointer[session]
}

// New creates a Flasher with the given options.
func New(opts Options) *Flasher {
	opts.applyDefaults()
	return &Flasher{
		opts:      opts,
		validator: image.NewValidator(opts.MaxImageSize),
		releaser:  newUnmountCoordinator(opts.SettleInterval),
	}
}

// SetProgressCallback registers the outbound progress signal
// (currentValue, maxValue). Pass nil to unregister.
func (f *Flasher) SetProgressCallback(fn func(current, max int)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progressFn = fn
}

// SetStatusCallback registers the outbound status message signal. Pass
// nil to unregister.
func (f *Flasher) SetStatusCallback(fn func(message string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusFn = fn
}

func (f *Flasher) emitProgress(current int) {
	f.liveProgress(current, progressScale)
}

// liveProgress resolves the registered progress callback at emit time, so
// an observer registered mid-write still receives samples.
func (f *Flasher) liveProgress(current, max int) {
	f.mu.Lock()
	fn := f.progressFn
	f.mu.Unlock()
	if fn != nil {
		fn(current, max)
	}
}

func (f *Flasher) emitStatus(message string) {
	slog.Info("status", "message", message)
	f.mu.Lock()
	fn := f.statusFn
	f.mu.Unlock()
	if fn != nil {
		fn(message)
	}
}

// ListDevices enumerates candidate target devices. Fresh on every call.
func (f *Flasher) ListDevices() ([]device.Device, error) {
	return f.opts.Catalog.ListDevices()
}

// ValidateImage inspects a candidate source image.
func (f *Flasher) ValidateImage(path string) image.Descriptor {
	return f.validator.Validate(path)
}

// ReleaseDevice unmounts every mounted filesystem backed by the device.
// A device with no mounts is a no-op.
func (f *Flasher) ReleaseDevice(devicePath string) error {
	return f.releaser.releaseDevice(devicePath)
}

// CurrentStatus returns the pipeline state. Safe to call from any
// goroutine at any time.
func (f *Flasher) CurrentStatus() Status {
	return f.status.get()
}

// CancelWrite signals the active session to abort. Idempotent; returns
// false when no write is in progress.
func (f *Flasher) CancelWrite() bool {
	sess := f.active.Load()
	if sess == nil {
		return false
	}
	sess.requestCancel()
	f.emitStatus("cancellation requested")
	return true
}

// WriteImage runs the full pipeline: validate → approve target → unmount
// → copy → verify. It blocks until the pipeline finishes; progress and
// status flow through the registered callbacks.
func (f *Flasher) WriteImage(ctx context.Context, imagePath, targetPath string, w WriteOptions) Result {
	blockSize := w.BlockSize
	if blockSize <= 0 {
		blockSize = f.opts.BlockSize
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sess := newSession(targetPath, 0, cancel)

	if !f.active.CompareAndSwap(nil, sess) {
		err := errors.New(errors.WriteFailed, "another write is already in progress")
		return Result{Success: false, Message: err.Error(), Err: err}
	}
	defer f.active.CompareAndSwap(sess, nil)

	f.status.reset()
	slog.Info("flash_start", "image", imagePath, "target", targetPath,
		"block_size", blockSize, "verify", w.Verify)

	// Validate.
	f.status.transition(StatusValidating)
	f.emitStatus("validating image " + imagePath)
	f.emitProgress(0)

	desc := f.validator.Validate(imagePath)
	if !desc.Valid {
		return f.fail(sess, errors.New(errors.Validation, desc.Err))
	}
	sess.imageSize = desc.Size

	// Approve target.
	g := &guard{catalog: f.opts.Catalog, warn: f.emitStatus}
	target, err := g.approveTarget(targetPath, desc.Size)
	if err != nil {
		return f.fail(sess, err)
	}
	f.emitProgress(progressPreflight)
	slog.Info("target_approved", "device", target.Path, "size", target.Size,
		"removable", target.Removable.String())

	// Unmount.
	f.status.transition(StatusUnmounting)
	f.emitStatus("unmounting " + targetPath)
	if err := f.releaser.releaseDevice(targetPath); err != nil {
		return f.fail(sess, err)
	}
	f.emitProgress(progressCopyStart)

	// Copy, with the monitor running alongside.
	f.status.transition(StatusFlashing)
	f.emitStatus(fmt.Sprintf("writing %s to %s", desc.Name, targetPath))

	monCtx, stopMonitor := context.WithCancel(context.Background())
	mon := &monitor{
		interval: f.opts.PollInterval,
		progress: f.liveProgress,
		status:   f.emitStatus,
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		mon.run(monCtx, sess)
	}()

	req := copyRequest{
		source:    imagePath,
		target:    targetPath,
		blockSize: blockSize,
		imageSize: desc.Size,
		syncAfter: w.SyncAfter,
	}
	copyErr := f.copier().copy(ctx, req, sess)
	stopMonitor()
	wg.Wait()

	if copyErr != nil {
		return f.fail(sess, copyErr)
	}
	f.emitProgress(progressSynced)

	// Verify.
	checksumVerified := false
	if w.Verify {
		f.status.transition(StatusVerifying)
		f.emitStatus("verifying written device")
		v := &verifier{
			blockSize: blockSize,
			ddPath:    f.opts.DDPath,
			progress:  f.liveProgress,
			status:    f.emitStatus,
		}
		if err := v.verifyWrite(ctx, sess, imagePath, targetPath, desc.Size, desc.SHA256); err != nil {
			return f.fail(sess, err)
		}
		checksumVerified = true
	}

	f.emitProgress(progressComplete)
	f.status.transition(StatusCompleted)
	f.emitStatus("flash completed successfully")
	slog.Info("flash_complete", "target", targetPath,
		"bytes", sess.bytesWritten(), "verified", checksumVerified,
		"duration", time.Since(sess.start))

	return Result{
		Success:          true,
		Message:          "flash completed successfully",
		ChecksumVerified: checksumVerified,
		Duration:         time.Since(sess.start),
		BytesWritten:     sess.bytesWritten(),
	}
}

// copier selects the write strategy from configuration.
func (f *Flasher) copier() copier {
	if f.opts.UseDD {
		return ddCopier{
			ddPath:    f.opts.DDPath,
			poll:      f.opts.PollInterval,
			killGrace: f.opts.KillGrace,
		}
	}
	return directCopier{}
}

// fail closes the session: Status and Result are settled together before
// control returns. A cancellation observed here wins over the error it
// interrupted.
func (f *Flasher) fail(sess *session, err error) Result {
	if sess.isCancelled() || errors.IsKind(err, errors.Cancelled) {
		if !errors.IsKind(err, errors.Cancelled) {
			err = errors.WrapKind(err, errors.Cancelled, "flash cancelled")
		}
		f.status.transition(StatusCancelled)
	} else {
		f.status.transition(StatusError)
	}

	f.emitStatus(err.Error())
	slog.Error("flash_failed", "target", sess.target, "error", err,
		"status", f.status.get().String(), "bytes", sess.bytesWritten())

	return Result{
		Success:      false,
		Message:      err.Error(),
		Duration:     time.Since(sess.start),
		BytesWritten: sess.bytesWritten(),
		Err:          err,
	}
}
