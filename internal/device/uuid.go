package device

import "strings"

// SerialPortUUID is the Serial Port Profile service class.
const SerialPortUUID = "00001101-0000-1000-8000-00805f9b34fb"

const sigBaseSuffix = "-0000-1000-8000-00805f9b34fb"

// NormalizeUUID converts a UUID to the lower-case dashed 128-bit form.
// 16-bit and 32-bit short forms (with or without 0x) are expanded on the Bluetooth SIG base.
// Returns "" for malformed input.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "0x")
	if !isHex(strings.ReplaceAll(u, "-", "")) {
		return ""
	}

	switch len(u) {
	case 4:
		return "0000" + u + sigBaseSuffix
	case 8:
		return u + sigBaseSuffix
	case 32:
		return u[0:8] + "-" + u[8:12] + "-" + u[12:16] + "-" + u[16:20] + "-" + u[20:32]
	case 36:
		if u[8] != '-' || u[13] != '-' || u[18] != '-' || u[23] != '-' {
			return ""
		}
		return u
	default:
		return ""
	}
}

// HasService reports whether the UUID list contains target, comparing normalized forms.
func HasService(uuids []string, target string) bool {
	want := NormalizeUUID(target)
	if want == "" {
		return false
	}
	for _, u := range uuids {
		if NormalizeUUID(u) == want {
			return true
		}
	}
	return false
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}
