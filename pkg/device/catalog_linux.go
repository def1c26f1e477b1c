//go:build linux

package device

import (
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unsafe"

	"github.com/jaypipes/ghw"
	"github.com/jaypipes/ghw/pkg/block"
	"golang.org/x/sys/unix"

	"usbflash/pkg/errors"
)

// Catalog enumerates block devices on Linux. The zero value is not usable;
// construct with NewCatalog.
type Catalog struct {
	sysfs      sysfsTree
	mountsPath string
	devRoot    string
}

// NewCatalog returns a catalog probing the real OS.
func NewCatalog() *Catalog {
	return &Catalog{
		sysfs:      newSysfs("/sys"),
		mountsPath: procMounts,
		devRoot:    "/dev",
	}
}

// ListDevices implements the catalog contract: all disk-type block devices
// except the system disk, ordered by path, freshly probed. Per-device
// probe failures skip the device rather than failing the call.
func (c *Catalog) ListDevices() ([]Device, error) {
	info, err := block.New(ghw.WithDisableTools())
	if err != nil {
		return nil, errors.Wrap(err, "block device enumeration failed")
	}

	rootMajor, haveRootMajor := rootDeviceMajor()
	mounts := ReadMountTable(c.mountsPath)

	var devices []Device
	for _, disk := range info.Disks {
		if disk.Name == "" {
			continue
		}
		dev, ok := c.probeDisk(disk, mounts, rootMajor, haveRootMajor)
		if !ok {
			continue
		}
		devices = append(devices, dev)
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Path < devices[j].Path })
	return devices, nil
}

// probeDisk builds a Device for one ghw disk. ok is false when the disk
// must be skipped: system disk, zero size, or a probe failure.
func (c *Catalog) probeDisk(disk *block.Disk, mounts []MountEntry, rootMajor uint32, haveRootMajor bool) (Device, bool) {
	path := filepath.Join(c.devRoot, disk.Name)

	if haveRootMajor {
		if major, ok := deviceMajor(path); ok && major == rootMajor {
			slog.Debug("catalog_skip_system_disk", "device", path)
			return Device{}, false
		}
	}

	size := c.deviceSize(path, disk.Name, disk.SizeBytes)
	if size == 0 {
		return Device{}, false
	}

	dev := Device{
		Path:       path,
		Model:      strings.TrimSpace(disk.Model),
		Vendor:     strings.TrimSpace(disk.Vendor),
		Serial:     strings.TrimSpace(disk.SerialNumber),
		Size:       size,
		Mountpoint: NotMounted,
		ReadOnly:   c.sysfs.readOnly(disk.Name),
		Removable:  Classify(c.sysfs, disk.Name),
	}
	if dev.Model == "" || dev.Model == "unknown" {
		model, vendor := c.sysfs.ModelVendor(disk.Name)
		if model != "" {
			dev.Model = model
		}
		if vendor != "" {
			dev.Vendor = vendor
		}
	}
	if dev.Serial == "" || dev.Serial == "unknown" {
		dev.Serial = c.sysfs.serial(disk.Name)
	}

	for _, part := range disk.Partitions {
		if dev.Label == "" && part.Label != "" && part.Label != "unknown" {
			dev.Label = part.Label
		}
	}

	if mounted := MountsForDevice(mounts, path); len(mounted) > 0 {
		dev.Mountpoint = mounted[0].Mountpoint
		dev.Filesystem = mounted[0].Filesystem
		var sfs unix.Statfs_t
		if err := unix.Statfs(dev.Mountpoint, &sfs); err == nil {
			bsize := uint64(sfs.Bsize)
			dev.Used = (sfs.Blocks - sfs.Bfree) * bsize
			dev.Free = sfs.Bavail * bsize
		}
	}

	return dev, true
}

// deviceSize probes capacity through a chain of sources: the blockdev
// query tool, the BLKGETSIZE64 ioctl, the sysfs sector count, and finally
// the size ghw reported.
func (c *Catalog) deviceSize(path, name string, ghwSize uint64) uint64 {
	if out, err := exec.Command("blockdev", "--getsize64", path).Output(); err == nil {
		if v, err := strconv.ParseUint(strings.TrimSpace(string(out)), 10, 64); err == nil && v > 0 {
			return v
		}
	}
	if v, err := sizeFromIoctl(path); err == nil && v > 0 {
		return v
	}
	if v, ok := c.sysfs.sizeBytes(name); ok && v > 0 {
		return v
	}
	return ghwSize
}

// sizeFromIoctl asks the kernel for the device size directly. Needs read
// access to the node, so it typically only succeeds when running as root.
func sizeFromIoctl(path string) (uint64, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer unix.Close(fd)

	// Pointer form: the ioctl fills a uint64, so the full size survives
	// on platforms where int is 32 bits.
	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		return 0, fmt.Errorf("BLKGETSIZE64 on %s: %w", path, errno)
	}
	return size, nil
}

// rootDeviceMajor returns the major number of the device backing "/".
func rootDeviceMajor() (uint32, bool) {
	var st unix.Stat_t
	if err := unix.Stat("/", &st); err != nil {
		return 0, false
	}
	return unix.Major(uint64(st.Dev)), true
}

// deviceMajor returns the major number of a block device node.
func deviceMajor(path string) (uint32, bool) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, false
	}
	if st.Mode&unix.S_IFMT != unix.S_IFBLK {
		return 0, false
	}
	return unix.Major(uint64(st.Rdev)), true
}

// ListDevices enumerates using a default catalog.
func ListDevices() ([]Device, error) {
	return NewCatalog().ListDevices()
}
