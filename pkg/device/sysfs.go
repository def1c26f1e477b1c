package device

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// sysfsTree reads device attributes from a sysfs-shaped directory tree.
// The root is parameterised so tests can point it at synthetic trees.
type sysfsTree struct {
	root string
}

func newSysfs(root string) sysfsTree {
	if root == "" {
		root = "/sys"
	}
	return sysfsTree{root: root}
}

func (s sysfsTree) blockDir(name string) string {
	return filepath.Join(s.root, "block", name)
}

func (s sysfsTree) attr(name, attr string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(s.blockDir(name), attr))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

func (s sysfsTree) deviceAttr(name, attr string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(s.blockDir(name), "device", attr))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// RemovableAttr implements Topology.
func (s sysfsTree) RemovableAttr(name string) (bool, bool) {
	v, ok := s.attr(name, "removable")
	if !ok {
		return false, false
	}
	return v == "1", true
}

// OnUSBBus implements Topology. It resolves the device's sysfs entry into
// the topology tree and walks ancestor directories looking at their
// subsystem links for a usb bus.
func (s sysfsTree) OnUSBBus(name string) bool {
	resolved, err := filepath.EvalSymlinks(s.blockDir(name))
	if err != nil {
		return false
	}

	for dir := resolved; strings.HasPrefix(dir, s.root); dir = filepath.Dir(dir) {
		target, err := os.Readlink(filepath.Join(dir, "subsystem"))
		if err != nil {
			continue
		}
		if filepath.Base(target) == "usb" {
			return true
		}
	}

	// Some trees expose the bus only in the resolved path itself
	// (.../usb3/3-1/...).
	for _, part := range strings.Split(resolved, string(filepath.Separator)) {
		if strings.HasPrefix(part, "usb") {
			return true
		}
	}
	return false
}

// ModelVendor implements Topology.
func (s sysfsTree) ModelVendor(name string) (string, string) {
	model, _ := s.deviceAttr(name, "model")
	vendor, _ := s.deviceAttr(name, "vendor")
	return model, vendor
}

func (s sysfsTree) serial(name string) string {
	serial, _ := s.deviceAttr(name, "serial")
	return serial
}

func (s sysfsTree) readOnly(name string) bool {
	v, ok := s.attr(name, "ro")
	return ok && v == "1"
}

// sizeBytes returns the device capacity from the sysfs sector count.
// The size attribute is always in 512-byte units regardless of the
// device's logical block size.
func (s sysfsTree) sizeBytes(name string) (uint64, bool) {
	v, ok := s.attr(name, "size")
	if !ok {
		return 0, false
	}
	sectors, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return sectors * 512, true
}
