package device

import (
	"bufio"
	"os"
	"strings"
)

// MountEntry is one line of the kernel mount table.
type MountEntry struct {
	Source     string
	Mountpoint string
	Filesystem string
}

const procMounts = "/proc/self/mounts"

// ReadMountTable returns the live mount table. On restricted or non-Linux
// environments it returns an empty table rather than failing.
func ReadMountTable(path string) []MountEntry {
	if path == "" {
		path = procMounts
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return parseMountTable(string(data))
}

func parseMountTable(content string) []MountEntry {
	var entries []MountEntry
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		entries = append(entries, MountEntry{
			Source:     fields[0],
			Mountpoint: unescapeMountPath(fields[1]),
			Filesystem: fields[2],
		})
	}
	return entries
}

// MountsForDevice returns the mount entries whose source is the device
// itself or one of its partitions (path-prefix match, e.g. /dev/sdb and
// /dev/sdb1 for /dev/sdb).
func MountsForDevice(entries []MountEntry, devicePath string) []MountEntry {
	var matched []MountEntry
	for _, e := range entries {
		if strings.HasPrefix(e.Source, devicePath) {
			matched = append(matched, e)
		}
	}
	return matched
}

// unescapeMountPath decodes the octal escapes the kernel uses for spaces
// and other specials in mount paths (e.g. "\040").
func unescapeMountPath(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if v, ok := octalByte(s[i+1 : i+4]); ok {
				b.WriteByte(v)
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func octalByte(s string) (byte, bool) {
	var v int
	for i := 0; i < 3; i++ {
		c := s[i]
		if c < '0' || c > '7' {
			return 0, false
		}
		v = v*8 + int(c-'0')
	}
	return byte(v), true
}
