//go:build !linux

package flasher

import (
	"runtime"
	"time"

	"usbflash/pkg/errors"
)

// unmountCoordinator is a no-op placeholder on non-Linux systems.
type unmountCoordinator struct {
	mountsPath string
	settle     time.Duration
	unmountFn  func(mountpoint string, force bool) error
}

func newUnmountCoordinator(settle time.Duration) *unmountCoordinator {
	return &unmountCoordinator{settle: settle}
}

func (u *unmountCoordinator) releaseDevice(devicePath string) error {
	return errors.Newf(errors.UnmountFailed,
		"unmounting not supported on %s", runtime.GOOS)
}

func syncDevice() {}
