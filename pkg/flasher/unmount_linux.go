//go:build linux

package flasher

import (
	"log/slog"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"

	"usbflash/pkg/device"
	"usbflash/pkg/errors"
)

// unmountCoordinator forcibly releases every mount under a target device
// and confirms the release. Idempotent: releasing an unmounted device is a
// no-op success.
type unmountCoordinator struct {
	mountsPath string
	settle     time.Duration

	// unmountFn detaches one mountpoint; force selects the forced retry
	// variant. Injectable for tests.
	unmountFn func(mountpoint string, force bool) error
}

func newUnmountCoordinator(settle time.Duration) *unmountCoordinator {
	return &unmountCoordinator{
		settle:    settle,
		unmountFn: unmountMountpoint,
	}
}

// releaseDevice unmounts everything whose source device is prefixed by
// devicePath, waits for the kernel to settle, and re-scans. Returns an
// UnmountFailed error when mounts remain.
func (u *unmountCoordinator) releaseDevice(devicePath string) error {
	mounted := device.MountsForDevice(device.ReadMountTable(u.mountsPath), devicePath)
	if len(mounted) == 0 {
		slog.Debug("unmount_noop", "device", devicePath)
		return nil
	}

	for _, m := range mounted {
		slog.Info("unmount_partition", "source", m.Source, "mountpoint", m.Mountpoint)
		if err := u.unmountFn(m.Mountpoint, false); err != nil {
			slog.Warn("unmount_retry_forced", "mountpoint", m.Mountpoint, "error", err)
			if err := u.unmountFn(m.Mountpoint, true); err != nil {
				slog.Error("unmount_failed", "mountpoint", m.Mountpoint, "error", err)
			}
		}
	}

	if u.settle > 0 {
		time.Sleep(u.settle)
	}

	remaining := device.MountsForDevice(device.ReadMountTable(u.mountsPath), devicePath)
	if len(remaining) > 0 {
		return errors.Newf(errors.UnmountFailed,
			"%d mount(s) still present under %s after release (first: %s on %s)",
			len(remaining), devicePath, remaining[0].Source, remaining[0].Mountpoint)
	}
	return nil
}

// unmountMountpoint detaches a mountpoint with the unmount syscall, falling
// back to the umount command, which handles busy-mount helpers and
// namespace quirks the raw syscall does not.
func unmountMountpoint(mountpoint string, force bool) error {
	var flags int
	if force {
		flags = unix.MNT_FORCE
	}
	if err := unix.Unmount(mountpoint, flags); err == nil {
		return nil
	}

	args := []string{mountpoint}
	if force {
		args = []string{"-f", mountpoint}
	}
	return exec.Command("umount", args...).Run()
}

// syncDevice forces dirty pages out to all devices.
func syncDevice() {
	unix.Sync()
}
