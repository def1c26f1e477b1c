package device

import "strings"

// removableHints are the model/vendor fragments that suggest a removable
// device when topology information is missing.
var removableHints = []string{"usb", "flash", "drive"}

func matchesRemovableHint(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return false
	}
	for _, hint := range removableHints {
		if strings.Contains(s, hint) {
			return true
		}
	}
	return false
}
