package device

import "testing"

// fakeTopology is a synthetic device descriptor for classifier tests.
type fakeTopology struct {
	removable   bool
	removableOK bool
	usb         bool
	model       string
	vendor      string
}

func (f fakeTopology) RemovableAttr(string) (bool, bool) { return f.removable, f.removableOK }
func (f fakeTopology) OnUSBBus(string) bool              { return f.usb }
func (f fakeTopology) ModelVendor(string) (string, string) {
	return f.model, f.vendor
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		topo fakeTopology
		want Removability
	}{
		{
			name: "explicit removable attribute",
			topo: fakeTopology{removable: true, removableOK: true},
			want: Removable,
		},
		{
			name: "usb bus ancestor wins over removable=0",
			topo: fakeTopology{removable: false, removableOK: true, usb: true},
			want: Removable,
		},
		{
			name: "removable=0 and no other signal means fixed",
			topo: fakeTopology{removable: false, removableOK: true, model: "WDC WD40EZRZ"},
			want: Fixed,
		},
		{
			name: "model heuristic",
			topo: fakeTopology{model: "USB Flash Disk"},
			want: Removable,
		},
		{
			name: "vendor heuristic",
			topo: fakeTopology{vendor: "SanDisk USB"},
			want: Removable,
		},
		{
			name: "no signals at all",
			topo: fakeTopology{},
			want: Unknown,
		},
		{
			name: "removable=0 but model hints removable",
			topo: fakeTopology{removable: false, removableOK: true, model: "Cruzer Drive"},
			want: Removable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.topo, "sdx"); got != tt.want {
				t.Errorf("Classify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchesRemovableHint(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"USB Flash Disk", true},
		{"  SanDisk  ", false},
		{"Kingston DataTraveler drive", true},
		{"WDC WD40EZRZ", false},
		{"", false},
		{"FLASH", true},
	}
	for _, tt := range tests {
		if got := matchesRemovableHint(tt.in); got != tt.want {
			t.Errorf("matchesRemovableHint(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRemovabilityString(t *testing.T) {
	if Removable.String() != "removable" || Fixed.String() != "fixed" || Unknown.String() != "unknown" {
		t.Error("unexpected Removability string values")
	}
}

func TestDeviceMounted(t *testing.T) {
	if (Device{Mountpoint: NotMounted}).Mounted() {
		t.Error("NotMounted sentinel should not count as mounted")
	}
	if (Device{}).Mounted() {
		t.Error("empty mountpoint should not count as mounted")
	}
	if !(Device{Mountpoint: "/media/usb"}).Mounted() {
		t.Error("real mountpoint should count as mounted")
	}
}
