// Package device discovers and classifies candidate block devices for
// flashing. Enumeration is stateless: every call re-probes the OS, nothing
// is cached across calls, and the disk backing the running system is never
// returned.
package device

// Removability is a tri-state classification. The safety guard treats
// Unknown differently from Fixed: an Unknown device that is currently
// mounted is refused, an Unknown device that is unmounted is allowed with
// a warning.
type Removability int

const (
	// Unknown means no classification signal fired either way.
	Unknown Removability = iota
	// Removable means at least one signal identified the device as
	// removable or USB-attached.
	Removable
	// Fixed means the device is internal, non-removable storage.
	Fixed
)

func (r Removability) String() string {
	switch r {
	case Removable:
		return "removable"
	case Fixed:
		return "fixed"
	}
	return "unknown"
}

// NotMounted is the Mountpoint sentinel for devices with no live mounts.
const NotMounted = "not mounted"

// Device describes one disk-type block device at enumeration time. Values
// are a snapshot; devices can appear and disappear between calls, so
// callers re-resolve by Path rather than holding on to a Device.
type Device struct {
	// Path is the block device node, e.g. /dev/sdb.
	Path string

	Model  string
	Vendor string
	Serial string

	// Label is the filesystem label of the first labelled partition, if any.
	Label string
	// Filesystem is the filesystem type of the first mounted partition.
	Filesystem string

	// Size is the device capacity in bytes.
	Size uint64
	// Used and Free are filesystem usage figures, valid only when the
	// device (or one of its partitions) is mounted.
	Used uint64
	Free uint64

	// Mountpoint is the mount path of the device or its first mounted
	// partition, or NotMounted.
	Mountpoint string

	ReadOnly  bool
	Removable Removability
}

// Mounted reports whether the device had any live mount at enumeration time.
func (d Device) Mounted() bool {
	return d.Mountpoint != "" && d.Mountpoint != NotMounted
}

// Topology exposes the per-device attributes the removability classifier
// reads. The production implementation is backed by sysfs; tests supply
// synthetic trees.
type Topology interface {
	// RemovableAttr returns the device's explicit removable attribute.
	// ok is false when the attribute is absent or unreadable.
	RemovableAttr(name string) (removable, ok bool)
	// OnUSBBus reports whether the device topology has a USB bus ancestor.
	OnUSBBus(name string) bool
	// ModelVendor returns the device's model and vendor strings, empty
	// when unavailable.
	ModelVendor(name string) (model, vendor string)
}

// classifySignal is one independent removability check. Signals are
// evaluated in order; the first decisive one wins.
type classifySignal struct {
	name  string
	check func(t Topology, dev string) (verdict Removability, decisive bool)
}

var classifySignals = []classifySignal{
	{
		// Explicit sysfs attribute. The only signal that can declare a
		// device Fixed.
		name: "removable_attr",
		check: func(t Topology, dev string) (Removability, bool) {
			removable, ok := t.RemovableAttr(dev)
			if !ok {
				return Unknown, false
			}
			if removable {
				return Removable, true
			}
			// A zero attribute is not decisive: USB disks frequently
			// report removable=0, so let the bus check run.
			return Fixed, false
		},
	},
	{
		name: "usb_topology",
		check: func(t Topology, dev string) (Removability, bool) {
			if t.OnUSBBus(dev) {
				return Removable, true
			}
			return Unknown, false
		},
	},
	{
		// Last-resort string heuristic over model/vendor.
		name: "model_heuristic",
		check: func(t Topology, dev string) (Removability, bool) {
			model, vendor := t.ModelVendor(dev)
			if matchesRemovableHint(model) || matchesRemovableHint(vendor) {
				return Removable, true
			}
			return Unknown, false
		},
	},
}

// Classify runs the ordered removability signals for the named device
// (short name, e.g. "sdb"). A device is Removable if any signal says so;
// Fixed only when the explicit attribute said so and nothing later
// contradicted it; otherwise Unknown.
func Classify(t Topology, name string) Removability {
	verdict := Unknown
	for _, sig := range classifySignals {
		v, decisive := sig.check(t, name)
		if decisive {
			return v
		}
		if v != Unknown && verdict == Unknown {
			verdict = v
		}
	}
	return verdict
}
