package tracking

import "strings"

// Device class constants for the snapshot dimension maps.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
	UnknownDevice = "__unknown_device__"
)

// ClassifyDevice maps client-supplied device info (preferred) or the raw
// user agent to a device class. The client SDK sends deviceInfo when it can
// determine it; the UA fallback only needs coarse buckets.
func ClassifyDevice(deviceInfo, userAgent string) string {
	switch strings.ToLower(strings.TrimSpace(deviceInfo)) {
	case DeviceMobile, "phone":
		return DeviceMobile
	case DeviceTablet:
		return DeviceTablet
	case DeviceDesktop:
		return DeviceDesktop
	}

	ua := strings.ToLower(userAgent)
	switch {
	case ua == "":
		return UnknownDevice
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return DeviceTablet
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") ||
		strings.Contains(ua, "android"):
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}
