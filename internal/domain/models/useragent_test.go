package models_test

import (
	"testing"

	"github.com/sentineliq/riskd/internal/domain/models"
	"github.com/sentineliq/riskd/pkg/constants"
	"github.com/stretchr/testify/assert"
)

const (
	chromeWindowsUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	firefoxMacUA    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7; rv:120.0) Gecko/20100101 Firefox/120.0"
	safariIPhoneUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"
	edgeWindowsUA   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91"
	googlebotUA     = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name       string
		ua         string
		browser    string
		os         string
		deviceType constants.DeviceType
		isBot      bool
	}{
		{"chrome on windows", chromeWindowsUA, "Chrome", "Windows", constants.DeviceTypeDesktop, false},
		{"firefox on mac", firefoxMacUA, "Firefox", "macOS", constants.DeviceTypeDesktop, false},
		{"safari on iphone", safariIPhoneUA, "Safari", "iOS", constants.DeviceTypeMobile, false},
		{"edge on windows", edgeWindowsUA, "Edge", "Windows", constants.DeviceTypeDesktop, false},
		{"googlebot", googlebotUA, "", "", constants.DeviceTypeBot, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := models.ParseUserAgent(tt.ua)
			assert.Equal(t, tt.browser, parsed.BrowserFamily)
			assert.Equal(t, tt.os, parsed.OSFamily)
			assert.Equal(t, tt.deviceType, parsed.DeviceType)
			assert.Equal(t, tt.isBot, parsed.IsBot)
		})
	}
}

func TestParseUserAgentVersions(t *testing.T) {
	chrome := models.ParseUserAgent(chromeWindowsUA)
	assert.Equal(t, "120.0", chrome.BrowserVersion)
	assert.Equal(t, "10", chrome.OSVersion)

	edge := models.ParseUserAgent(edgeWindowsUA)
	assert.Equal(t, "120.0", edge.BrowserVersion)
}

func TestMajorVersion(t *testing.T) {
	assert.Equal(t, 120, models.ParseUserAgent(chromeWindowsUA).MajorVersion())
	assert.Equal(t, -1, models.ParsedUserAgent{}.MajorVersion())
	assert.Equal(t, -1, models.ParsedUserAgent{BrowserVersion: "x.y"}.MajorVersion())
}
