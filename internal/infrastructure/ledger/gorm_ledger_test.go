package ledger_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sentineliq/riskd/internal/config"
	"github.com/sentineliq/riskd/internal/domain/models"
	domainService "github.com/sentineliq/riskd/internal/domain/service"
	"github.com/sentineliq/riskd/internal/infrastructure/ledger"
	"github.com/sentineliq/riskd/internal/infrastructure/monitoring"
	"github.com/sentineliq/riskd/pkg/constants"
	"github.com/sentineliq/riskd/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testMetrics = monitoring.NewMetrics()

func newTestLedger(t *testing.T) (domainService.LedgerStore, string) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "ledger.db")
	store, err := ledger.NewGormLedgerStore(
		config.LedgerConfig{Driver: "sqlite", DSN: dsn},
		logger.NewNoopLogger(), testMetrics)
	require.NoError(t, err)
	return store, dsn
}

func payloadFor(eventID string) models.LedgerPayload {
	return models.LedgerPayload{
		EventID:        eventID,
		EventType:      constants.EventTypeLogin,
		UserID:         "user_1",
		Action:         "risk_score_calculated",
		Decision:       constants.ActionAllow,
		RiskScore:      0.1,
		RiskLevel:      constants.RiskLevelLow,
		Confidence:     0.5,
		TriggeredRules: []string{},
	}
}

func TestLedgerAppendBuildsChain(t *testing.T) {
	store, _ := newTestLedger(t)
	ctx := context.Background()

	h1, err := store.Append(ctx, payloadFor("evt_1"))
	require.NoError(t, err)
	h2, err := store.Append(ctx, payloadFor("evt_2"))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	entries, err := store.Entries(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, uint64(1), entries[0].Sequence)
	assert.Equal(t, "", entries[0].PreviousHash)
	assert.Equal(t, h1, entries[0].CurrentHash)

	assert.Equal(t, uint64(2), entries[1].Sequence)
	assert.Equal(t, h1, entries[1].PreviousHash)
	assert.Equal(t, h2, entries[1].CurrentHash)

	assert.Equal(t, "evt_1", entries[0].Payload.EventID)
}

func TestLedgerHead(t *testing.T) {
	store, _ := newTestLedger(t)
	ctx := context.Background()

	head, err := store.Head(ctx)
	require.NoError(t, err)
	assert.Nil(t, head)

	_, err = store.Append(ctx, payloadFor("evt_1"))
	require.NoError(t, err)
	h2, err := store.Append(ctx, payloadFor("evt_2"))
	require.NoError(t, err)

	head, err = store.Head(ctx)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, uint64(2), head.Sequence)
	assert.Equal(t, h2, head.CurrentHash)
}

func TestLedgerVerifyCleanChain(t *testing.T) {
	store, _ := newTestLedger(t)
	ctx := context.Background()

	for _, id := range []string{"evt_1", "evt_2", "evt_3"} {
		_, err := store.Append(ctx, payloadFor(id))
		require.NoError(t, err)
	}

	result, err := store.Verify(ctx, 0, 0)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 3, result.Checked)
	assert.Zero(t, result.FirstBreak)
}

func TestLedgerVerifyDetectsTampering(t *testing.T) {
	store, dsn := newTestLedger(t)
	ctx := context.Background()

	for _, id := range []string{"evt_1", "evt_2", "evt_3"} {
		_, err := store.Append(ctx, payloadFor(id))
		require.NoError(t, err)
	}

	// rewrite the second payload behind the store's back
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.LedgerEntry{}).
		Where("sequence = ?", 2).
		Update("payload", []byte(`{"event_id":"evt_forged"}`)).Error)

	result, err := store.Verify(ctx, 0, 0)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, uint64(2), result.FirstBreak)
}

func TestLedgerVerifySubrange(t *testing.T) {
	store, _ := newTestLedger(t)
	ctx := context.Background()

	for _, id := range []string{"evt_1", "evt_2", "evt_3", "evt_4"} {
		_, err := store.Append(ctx, payloadFor(id))
		require.NoError(t, err)
	}

	result, err := store.Verify(ctx, 2, 3)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 2, result.Checked)
}
