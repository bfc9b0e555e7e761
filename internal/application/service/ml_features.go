package service

import (
	"context"
	"strings"

	"github.com/sentineliq/riskd/internal/domain/models"
	domainService "github.com/sentineliq/riskd/internal/domain/service"
)

var highRiskCountries = map[string]struct{}{
	"KP": {}, "IR": {}, "SY": {}, "CU": {}, "VE": {},
	"MM": {}, "YE": {}, "LY": {}, "SO": {}, "SD": {},
}

var mediumRiskCountries = map[string]struct{}{
	"RU": {}, "CN": {}, "NG": {}, "PK": {}, "BD": {},
	"VN": {}, "UA": {}, "BY": {}, "KZ": {},
}

// CountryRisk returns the static risk weight of a country code. Unknown
// origin scores worse than a recognized low-risk country.
func CountryRisk(countryCode string) float64 {
	if countryCode == "" {
		return 0.3
	}

	code := strings.ToUpper(countryCode)
	if _, ok := highRiskCountries[code]; ok {
		return 0.9
	}
	if _, ok := mediumRiskCountries[code]; ok {
		return 0.5
	}
	return 0.1
}

// BuildMLFeatures assembles the numeric feature map handed to the external ML
// ensemble. Velocity context is read best-effort and read-only: the rapid
// transaction check owns the counter, feature assembly only observes it.
func BuildMLFeatures(ctx context.Context, event *models.Event, velocity domainService.VelocityStore) map[string]float64 {
	features := map[string]float64{
		"amount":       event.Context.Amount,
		"hour":         float64(event.Context.Hour),
		"country_risk": CountryRisk(event.Context.CountryCode),
	}

	if event.Context.NewDevice {
		features["new_device"] = 1
	}
	if event.Context.NewIP {
		features["new_ip"] = 1
	}
	if event.Context.ProxyDetected {
		features["vpn_detected"] = 1
	}

	if velocity != nil {
		count, err := velocity.Counter(ctx, event.Actor.UserID, rapidTxnCounterName)
		if err == nil && count > 0 {
			features["events_1h"] = float64(count)
		}
	}

	return features
}
