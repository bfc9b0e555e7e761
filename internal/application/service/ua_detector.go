package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sentineliq/riskd/internal/config"
	"github.com/sentineliq/riskd/internal/domain/models"
	domainService "github.com/sentineliq/riskd/internal/domain/service"
	"github.com/sentineliq/riskd/pkg/constants"
	"github.com/sentineliq/riskd/pkg/logger"
	"github.com/sentineliq/riskd/pkg/textdist"
)

var automationTokens = []string{
	"headless", "phantom", "selenium", "puppeteer",
	"webdriver", "cypress", "playwright",
}

var desktopOSTokens = []string{"windows nt", "macintosh", "x11"}

var browserFamilyTokens = []string{"chrome", "firefox", "safari", "edge"}

// UADetector compares a User-Agent against the user's accepted history using
// edit distance and structural comparison. Anomalous agents are flagged but
// never folded into history, so a spoofed UA cannot poison the baseline.
type UADetector struct {
	history domainService.UAHistoryStore
	engCfg  config.EngineConfig
	logger  logger.Logger
}

// NewUADetector creates a new UADetector.
func NewUADetector(history domainService.UAHistoryStore, engCfg config.EngineConfig, log logger.Logger) *UADetector {
	return &UADetector{
		history: history,
		engCfg:  engCfg,
		logger:  log.WithComponent("ua_detector"),
	}
}

// Analyze scores a User-Agent against the user's history. A user with no
// history records the agent and passes: cold start is not an anomaly.
func (d *UADetector) Analyze(ctx context.Context, userID, userAgent string) (*models.UAAnalysis, error) {
	if userAgent == "" || userID == "" {
		return &models.UAAnalysis{Similarity: 1.0, BrowserMatch: true, OSMatch: true, DeviceMatch: true}, nil
	}

	parsed := models.ParseUserAgent(userAgent)
	shortAgent := len(userAgent) < constants.UAMinPlausibleLength

	history, err := d.history.History(ctx, userID)
	if err != nil {
		return nil, err
	}

	if len(history) == 0 {
		// Agents below the plausible minimum length are anomalous outright
		// and never seed the history.
		if shortAgent {
			analysis := &models.UAAnalysis{
				IsAnomaly:    true,
				AnomalyScore: constants.UAAnomalyThreshold,
				Reasons:      []string{"suspicious_pattern"},
			}
			d.logger.Warn(ctx, "user agent anomaly detected",
				logger.String("user_id", userID),
				logger.Float64("anomaly_score", analysis.AnomalyScore),
				logger.Strings("reasons", analysis.Reasons))
			return analysis, nil
		}
		if err := d.record(ctx, userID, userAgent, parsed); err != nil {
			return nil, err
		}
		return &models.UAAnalysis{
			Similarity:   1.0,
			Reasons:      []string{"first_user_agent"},
			BrowserMatch: true,
			OSMatch:      true,
			DeviceMatch:  true,
		}, nil
	}

	var best models.UAHistoryEntry
	bestSimilarity := -1.0
	for _, entry := range history {
		if sim := textdist.Similarity(userAgent, entry.UserAgent); sim > bestSimilarity {
			bestSimilarity = sim
			best = entry
		}
	}

	distance := textdist.Levenshtein(userAgent, best.UserAgent)

	browserMatch := d.compareBrowser(parsed, best.Parsed)
	osMatch := parsed.OSFamily == best.Parsed.OSFamily
	deviceMatch := parsed.DeviceType == best.Parsed.DeviceType

	var reasons []string
	if !browserMatch {
		reasons = append(reasons, fmt.Sprintf("browser_changed: %s -> %s", best.Parsed.BrowserFamily, parsed.BrowserFamily))
	}
	if !osMatch {
		reasons = append(reasons, fmt.Sprintf("os_changed: %s -> %s", best.Parsed.OSFamily, parsed.OSFamily))
	}
	if !deviceMatch {
		reasons = append(reasons, fmt.Sprintf("device_changed: %s -> %s", best.Parsed.DeviceType, parsed.DeviceType))
	}
	if bestSimilarity < d.engCfg.UASimilarityThreshold {
		reasons = append(reasons, fmt.Sprintf("low_similarity: %.0f%%", bestSimilarity*100))
	}
	if isSuspiciousUA(userAgent, parsed) {
		reasons = append(reasons, "suspicious_pattern")
	}

	score := d.anomalyScore(bestSimilarity, browserMatch, osMatch, deviceMatch, len(reasons))
	isAnomaly := score >= constants.UAAnomalyThreshold

	// A short agent is anomalous regardless of how well it matches history.
	if shortAgent {
		isAnomaly = true
		if score < constants.UAAnomalyThreshold {
			score = constants.UAAnomalyThreshold
		}
	}

	analysis := &models.UAAnalysis{
		IsAnomaly:    isAnomaly,
		AnomalyScore: score,
		Similarity:   bestSimilarity,
		Distance:     distance,
		Reasons:      reasons,
		BrowserMatch: browserMatch,
		OSMatch:      osMatch,
		DeviceMatch:  deviceMatch,
	}

	if isAnomaly {
		d.logger.Warn(ctx, "user agent anomaly detected",
			logger.String("user_id", userID),
			logger.Float64("anomaly_score", score),
			logger.Strings("reasons", reasons))
		return analysis, nil
	}

	if err := d.record(ctx, userID, userAgent, parsed); err != nil {
		return nil, err
	}
	return analysis, nil
}

// Profile returns the read-only UA history view for security review tooling.
func (d *UADetector) Profile(ctx context.Context, userID string) (*models.UAProfile, error) {
	history, err := d.history.History(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile := &models.UAProfile{UserID: userID}
	if len(history) == 0 {
		return profile, nil
	}

	profile.HasHistory = true
	profile.EntryCount = len(history)

	browsers := make(map[string]struct{})
	oses := make(map[string]struct{})
	devices := make(map[string]struct{})

	for i, entry := range history {
		if entry.Parsed.BrowserFamily != "" {
			browsers[entry.Parsed.BrowserFamily] = struct{}{}
		}
		if entry.Parsed.OSFamily != "" {
			oses[entry.Parsed.OSFamily] = struct{}{}
		}
		if entry.Parsed.DeviceType != "" {
			devices[string(entry.Parsed.DeviceType)] = struct{}{}
		}
		if i == 0 || entry.FirstSeen.Before(profile.FirstSeen) {
			profile.FirstSeen = entry.FirstSeen
		}
		if entry.LastSeen.After(profile.LastSeen) {
			profile.LastSeen = entry.LastSeen
		}
	}

	profile.Browsers = sortedKeys(browsers)
	profile.OperatingSystems = sortedKeys(oses)
	profile.Devices = sortedKeys(devices)
	return profile, nil
}

func (d *UADetector) record(ctx context.Context, userID, userAgent string, parsed models.ParsedUserAgent) error {
	return d.history.Record(ctx, userID, models.UAHistoryEntry{
		UserAgent: userAgent,
		Parsed:    parsed,
	})
}

// compareBrowser matches browser family, tolerating a bounded major-version
// drift. Unparseable versions are not held against the agent.
func (d *UADetector) compareBrowser(current, historical models.ParsedUserAgent) bool {
	if current.BrowserFamily != historical.BrowserFamily {
		return false
	}

	currentMajor := current.MajorVersion()
	historicalMajor := historical.MajorVersion()
	if currentMajor < 0 || historicalMajor < 0 {
		return true
	}

	drift := currentMajor - historicalMajor
	if drift < 0 {
		drift = -drift
	}
	return drift <= d.engCfg.UAVersionDrift
}

// anomalyScore combines the similarity deficit with structural mismatches.
// Weights follow the documented detector: similarity deficit up to 0.4,
// browser 0.2, OS 0.15, device 0.25, plus 0.05 per reason capped at four.
func (d *UADetector) anomalyScore(similarity float64, browserMatch, osMatch, deviceMatch bool, reasonCount int) float64 {
	score := 0.0

	if similarity < d.engCfg.UASimilarityThreshold {
		score += 0.4 * (1 - similarity/d.engCfg.UASimilarityThreshold)
	}
	if !browserMatch {
		score += 0.2
	}
	if !osMatch {
		score += 0.15
	}
	if !deviceMatch {
		score += 0.25
	}

	if reasonCount > 4 {
		reasonCount = 4
	}
	score += 0.05 * float64(reasonCount)

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// isSuspiciousUA checks for structurally implausible agents regardless of
// history: too short, automation tooling, a mobile claim carrying a desktop OS
// token, or more than two browser families in one string.
func isSuspiciousUA(userAgent string, parsed models.ParsedUserAgent) bool {
	if len(userAgent) < constants.UAMinPlausibleLength {
		return true
	}

	ua := strings.ToLower(userAgent)
	for _, token := range automationTokens {
		if strings.Contains(ua, token) {
			return true
		}
	}

	if parsed.DeviceType == constants.DeviceTypeMobile {
		for _, token := range desktopOSTokens {
			if strings.Contains(ua, token) {
				return true
			}
		}
	}

	// Chrome and Safari legitimately co-occur; three or more families do not.
	families := 0
	for _, token := range browserFamilyTokens {
		if strings.Contains(ua, token) {
			families++
		}
	}
	return families > 2
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
