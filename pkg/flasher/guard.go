package flasher

import (
	"log/slog"
	"os"

	"usbflash/pkg/device"
	"usbflash/pkg/errors"
)

// deviceLister is the slice of the device catalog the guard consumes.
type deviceLister interface {
	ListDevices() ([]device.Device, error)
}

// guard vetoes write targets before any destructive action. The catalog it
// consults never contains the system disk, so absence from the catalog is
// itself a rejection.
type guard struct {
	catalog deviceLister
	// warn surfaces non-fatal concerns to the caller's status stream.
	warn func(string)
}

// approveTarget returns the catalog entry for targetPath when the write
// may proceed, or a TargetRejected error explaining the veto.
func (g *guard) approveTarget(targetPath string, imageSize int64) (device.Device, error) {
	if _, err := os.Stat(targetPath); err != nil {
		return device.Device{}, errors.Newf(errors.TargetRejected,
			"device not found: %s", targetPath)
	}

	devices, err := g.catalog.ListDevices()
	if err != nil {
		return device.Device{}, errors.WrapKind(err, errors.TargetRejected,
			"cannot enumerate block devices")
	}

	var target device.Device
	found := false
	for _, d := range devices {
		if d.Path == targetPath {
			target = d
			found = true
			break
		}
	}
	if !found {
		// Either not a disk device at all, or the system disk, which the
		// catalog refuses to expose.
		return device.Device{}, errors.Newf(errors.TargetRejected,
			"refusing to write to %s: not an eligible block device (system disks are never eligible)", targetPath)
	}

	if target.ReadOnly {
		return device.Device{}, errors.Newf(errors.TargetRejected,
			"device %s is read-only", targetPath)
	}

	if imageSize > 0 && uint64(imageSize) > target.Size {
		return device.Device{}, errors.Newf(errors.TargetRejected,
			"device %s (%d bytes) is smaller than the image (%d bytes)",
			targetPath, target.Size, imageSize)
	}

	switch target.Removable {
	case device.Fixed:
		return device.Device{}, errors.Newf(errors.TargetRejected,
			"refusing to write to %s: device is not removable", targetPath)
	case device.Unknown:
		if target.Mounted() {
			// Cannot confirm the device is removable and something is
			// using it right now. Fail closed.
			return device.Device{}, errors.Newf(errors.TargetRejected,
				"refusing to write to %s: removability unconfirmed and device is mounted at %s",
				targetPath, target.Mountpoint)
		}
		slog.Warn("guard_ambiguous_target", "device", targetPath)
		if g.warn != nil {
			g.warn("warning: could not confirm " + targetPath + " is removable; proceeding because it is unmounted")
		}
	}

	return target, nil
}
