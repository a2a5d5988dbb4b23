package tracking_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/tracking"
)

func TestClassifyDevice(t *testing.T) {
	cases := []struct {
		name       string
		deviceInfo string
		userAgent  string
		want       string
	}{
		{"client-supplied mobile", "mobile", "", tracking.DeviceMobile},
		{"client-supplied phone alias", "Phone", "", tracking.DeviceMobile},
		{"client-supplied tablet", "tablet", "", tracking.DeviceTablet},
		{"client info wins over ua", "desktop", "Mozilla/5.0 (iPhone)", tracking.DeviceDesktop},
		{"iphone ua", "", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile", tracking.DeviceMobile},
		{"android ua", "", "Mozilla/5.0 (Linux; Android 14)", tracking.DeviceMobile},
		{"ipad ua", "", "Mozilla/5.0 (iPad; CPU OS 17_0)", tracking.DeviceTablet},
		{"desktop ua", "", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)", tracking.DeviceDesktop},
		{"nothing known", "", "", tracking.UnknownDevice},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tracking.ClassifyDevice(tc.deviceInfo, tc.userAgent))
		})
	}
}
