package device

import (
	"os"
	"path/filepath"
	"testing"
)

// writeSysfsAttr creates an attribute file under a synthetic sysfs tree.
func writeSysfsAttr(t *testing.T, root, dev, attr, value string) {
	t.Helper()
	path := filepath.Join(root, "block", dev, attr)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(value+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSysfsRemovableAttr(t *testing.T) {
	root := t.TempDir()
	writeSysfsAttr(t, root, "sdb", "removable", "1")
	writeSysfsAttr(t, root, "sda", "removable", "0")
	s := newSysfs(root)

	if removable, ok := s.RemovableAttr("sdb"); !ok || !removable {
		t.Errorf("sdb: got (%v, %v), want (true, true)", removable, ok)
	}
	if removable, ok := s.RemovableAttr("sda"); !ok || removable {
		t.Errorf("sda: got (%v, %v), want (false, true)", removable, ok)
	}
	if _, ok := s.RemovableAttr("sdz"); ok {
		t.Error("missing device should report ok=false")
	}
}

func TestSysfsModelVendorSerial(t *testing.T) {
	root := t.TempDir()
	writeSysfsAttr(t, root, "sdb", "device/model", "DataTraveler 3.0")
	writeSysfsAttr(t, root, "sdb", "device/vendor", "Kingston")
	writeSysfsAttr(t, root, "sdb", "device/serial", "0019E06B")
	s := newSysfs(root)

	model, vendor := s.ModelVendor("sdb")
	if model != "DataTraveler 3.0" || vendor != "Kingston" {
		t.Errorf("got model=%q vendor=%q", model, vendor)
	}
	if got := s.serial("sdb"); got != "0019E06B" {
		t.Errorf("serial = %q", got)
	}

	model, vendor = s.ModelVendor("missing")
	if model != "" || vendor != "" {
		t.Errorf("missing device should have empty strings, got %q/%q", model, vendor)
	}
}

func TestSysfsReadOnlyAndSize(t *testing.T) {
	root := t.TempDir()
	writeSysfsAttr(t, root, "sdb", "ro", "1")
	writeSysfsAttr(t, root, "sdb", "size", "30253056") // sectors
	s := newSysfs(root)

	if !s.readOnly("sdb") {
		t.Error("ro=1 should report read-only")
	}
	if s.readOnly("missing") {
		t.Error("missing ro attr should report writable")
	}

	size, ok := s.sizeBytes("sdb")
	if !ok || size != 30253056*512 {
		t.Errorf("sizeBytes = (%d, %v)", size, ok)
	}
	if _, ok := s.sizeBytes("missing"); ok {
		t.Error("missing size attr should report ok=false")
	}
}

func TestSysfsOnUSBBus(t *testing.T) {
	root := t.TempDir()

	// Build a topology tree with a usb subsystem ancestor:
	//   devices/pci0/usb3/3-1/host4/target/block/sdb
	devDir := filepath.Join(root, "devices", "pci0", "usb3", "3-1", "host4", "target", "block", "sdb")
	if err := os.MkdirAll(devDir, 0o755); err != nil {
		t.Fatal(err)
	}
	busDir := filepath.Join(root, "bus", "usb")
	if err := os.MkdirAll(busDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(busDir, filepath.Join(root, "devices", "pci0", "usb3", "3-1", "subsystem")); err != nil {
		t.Fatal(err)
	}

	// /sys/block/sdb is a symlink into the topology tree.
	if err := os.MkdirAll(filepath.Join(root, "block"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(devDir, filepath.Join(root, "block", "sdb")); err != nil {
		t.Fatal(err)
	}

	// A SATA-ish disk with no usb anywhere.
	sataDir := filepath.Join(root, "devices", "pci0", "ata1", "host0", "block", "sda")
	if err := os.MkdirAll(sataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(sataDir, filepath.Join(root, "block", "sda")); err != nil {
		t.Fatal(err)
	}

	s := newSysfs(root)
	if !s.OnUSBBus("sdb") {
		t.Error("sdb should be on the usb bus")
	}
	if s.OnUSBBus("sda") {
		t.Error("sda should not be on the usb bus")
	}
	if s.OnUSBBus("missing") {
		t.Error("missing device should not be on the usb bus")
	}
}
