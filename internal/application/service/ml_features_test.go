package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/sentineliq/riskd/internal/application/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountryRisk(t *testing.T) {
	assert.InDelta(t, 0.9, service.CountryRisk("KP"), 1e-9)
	assert.InDelta(t, 0.5, service.CountryRisk("ru"), 1e-9)
	assert.InDelta(t, 0.1, service.CountryRisk("US"), 1e-9)
	assert.InDelta(t, 0.3, service.CountryRisk(""), 1e-9)
}

func TestBuildMLFeatures(t *testing.T) {
	_, velocity := newTestVelocityStore(t)
	ctx := context.Background()

	event := transactionEvent("evt_1", "user_1", 1500)
	event.Context.Hour = 3
	event.Context.NewDevice = true
	event.Context.ProxyDetected = true
	event.Context.CountryCode = "NG"

	for i := 0; i < 3; i++ {
		_, err := velocity.IncrementCounter(ctx, "user_1", "transactions:hourly", time.Hour)
		require.NoError(t, err)
	}

	features := service.BuildMLFeatures(ctx, event, velocity)
	assert.InDelta(t, 1500.0, features["amount"], 1e-9)
	assert.InDelta(t, 3.0, features["hour"], 1e-9)
	assert.InDelta(t, 0.5, features["country_risk"], 1e-9)
	assert.InDelta(t, 1.0, features["new_device"], 1e-9)
	assert.InDelta(t, 1.0, features["vpn_detected"], 1e-9)
	assert.NotContains(t, features, "new_ip")
	assert.InDelta(t, 3.0, features["events_1h"], 1e-9)

	// feature assembly observes the counter, it does not advance it
	features = service.BuildMLFeatures(ctx, event, velocity)
	assert.InDelta(t, 3.0, features["events_1h"], 1e-9)

	count, err := velocity.Counter(ctx, "user_1", "transactions:hourly")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
