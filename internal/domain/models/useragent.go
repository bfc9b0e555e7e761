package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/sentineliq/riskd/pkg/constants"
)

// ParsedUserAgent holds the structural components of a User-Agent string.
type ParsedUserAgent struct {
	Raw            string               `json:"raw"`
	BrowserFamily  string               `json:"browser_family,omitempty"`
	BrowserVersion string               `json:"browser_version,omitempty"`
	OSFamily       string               `json:"os_family,omitempty"`
	OSVersion      string               `json:"os_version,omitempty"`
	DeviceType     constants.DeviceType `json:"device_type,omitempty"`
	IsBot          bool                 `json:"is_bot,omitempty"`
}

var (
	chromeVersionRe  = regexp.MustCompile(`chrome/(\d+\.?\d*)`)
	firefoxVersionRe = regexp.MustCompile(`firefox/(\d+\.?\d*)`)
	safariVersionRe  = regexp.MustCompile(`version/(\d+\.?\d*)`)
	edgeVersionRe    = regexp.MustCompile(`edg/(\d+\.?\d*)`)
	macOSVersionRe   = regexp.MustCompile(`mac os x (\d+[._]\d+)`)
	androidVersionRe = regexp.MustCompile(`android (\d+\.?\d*)`)
	iosVersionRe     = regexp.MustCompile(`os (\d+[._]\d+)`)
)

var botTokens = []string{"bot", "crawler", "spider", "crawl"}

// ParseUserAgent parses a User-Agent string into structural components using
// keyword heuristics. Ordering matters: Chrome claims "safari" in its UA, and
// Edge claims "chrome", so the more specific families are tested first.
func ParseUserAgent(userAgent string) ParsedUserAgent {
	ua := strings.ToLower(userAgent)
	parsed := ParsedUserAgent{Raw: userAgent}

	switch {
	case strings.Contains(ua, "edg"):
		parsed.BrowserFamily = "Edge"
		if m := edgeVersionRe.FindStringSubmatch(ua); m != nil {
			parsed.BrowserVersion = m[1]
		}
	case strings.Contains(ua, "chrome"):
		parsed.BrowserFamily = "Chrome"
		if m := chromeVersionRe.FindStringSubmatch(ua); m != nil {
			parsed.BrowserVersion = m[1]
		}
	case strings.Contains(ua, "firefox"):
		parsed.BrowserFamily = "Firefox"
		if m := firefoxVersionRe.FindStringSubmatch(ua); m != nil {
			parsed.BrowserVersion = m[1]
		}
	case strings.Contains(ua, "safari"):
		parsed.BrowserFamily = "Safari"
		if m := safariVersionRe.FindStringSubmatch(ua); m != nil {
			parsed.BrowserVersion = m[1]
		}
	case strings.Contains(ua, "msie"), strings.Contains(ua, "trident"):
		parsed.BrowserFamily = "Internet Explorer"
	}

	switch {
	case strings.Contains(ua, "windows nt"):
		parsed.OSFamily = "Windows"
		switch {
		case strings.Contains(ua, "windows nt 10"):
			parsed.OSVersion = "10"
		case strings.Contains(ua, "windows nt 6.3"):
			parsed.OSVersion = "8.1"
		case strings.Contains(ua, "windows nt 6.1"):
			parsed.OSVersion = "7"
		}
	// iPhone and iPad agents carry "like Mac OS X", so iOS is tested first.
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		parsed.OSFamily = "iOS"
		if m := iosVersionRe.FindStringSubmatch(ua); m != nil {
			parsed.OSVersion = strings.ReplaceAll(m[1], "_", ".")
		}
	case strings.Contains(ua, "mac os x"):
		parsed.OSFamily = "macOS"
		if m := macOSVersionRe.FindStringSubmatch(ua); m != nil {
			parsed.OSVersion = strings.ReplaceAll(m[1], "_", ".")
		}
	case strings.Contains(ua, "android"):
		parsed.OSFamily = "Android"
		if m := androidVersionRe.FindStringSubmatch(ua); m != nil {
			parsed.OSVersion = m[1]
		}
	case strings.Contains(ua, "linux"):
		parsed.OSFamily = "Linux"
	}

	switch {
	case containsAny(ua, botTokens):
		parsed.DeviceType = constants.DeviceTypeBot
		parsed.IsBot = true
	case strings.Contains(ua, "tablet"), strings.Contains(ua, "ipad"):
		parsed.DeviceType = constants.DeviceTypeTablet
	case strings.Contains(ua, "mobile"), strings.Contains(ua, "android"), strings.Contains(ua, "iphone"):
		parsed.DeviceType = constants.DeviceTypeMobile
	default:
		parsed.DeviceType = constants.DeviceTypeDesktop
	}

	return parsed
}

// MajorVersion returns the numeric major version of the browser, or -1 when
// the version is absent or unparseable.
func (p ParsedUserAgent) MajorVersion() int {
	if p.BrowserVersion == "" {
		return -1
	}
	major := p.BrowserVersion
	if idx := strings.IndexByte(major, '.'); idx >= 0 {
		major = major[:idx]
	}
	n := 0
	for _, r := range major {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	if major == "" {
		return -1
	}
	return n
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// UAHistoryEntry is one previously accepted User-Agent for a user. Owned
// exclusively by the UA detector; bounded per user and pruned by a rolling
// time window.
type UAHistoryEntry struct {
	UserAgent string          `json:"user_agent"`
	Parsed    ParsedUserAgent `json:"parsed"`
	FirstSeen time.Time       `json:"first_seen"`
	LastSeen  time.Time       `json:"last_seen"`
	Count     int             `json:"count"`
}

// UAAnalysis is the result of comparing a User-Agent against a user's history.
type UAAnalysis struct {
	IsAnomaly    bool     `json:"is_anomaly"`
	AnomalyScore float64  `json:"anomaly_score"`
	Similarity   float64  `json:"similarity"`
	Distance     int      `json:"distance"`
	Reasons      []string `json:"reasons,omitempty"`
	BrowserMatch bool     `json:"browser_match"`
	OSMatch      bool     `json:"os_match"`
	DeviceMatch  bool     `json:"device_match"`
}

// UAProfile is the read-only introspection view of a user's UA history,
// exposed to security review tooling.
type UAProfile struct {
	UserID           string    `json:"user_id"`
	HasHistory       bool      `json:"has_history"`
	EntryCount       int       `json:"entry_count,omitempty"`
	Browsers         []string  `json:"browsers,omitempty"`
	OperatingSystems []string  `json:"operating_systems,omitempty"`
	Devices          []string  `json:"devices,omitempty"`
	FirstSeen        time.Time `json:"first_seen,omitempty"`
	LastSeen         time.Time `json:"last_seen,omitempty"`
}
