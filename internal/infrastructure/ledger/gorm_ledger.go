// Package ledger implements the hash-chained append-only audit ledger on a
// relational store via gorm. SQLite serves single-node deployments; the same
// code runs against Postgres by swapping the dialector.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sentineliq/riskd/internal/config"
	"github.com/sentineliq/riskd/internal/domain/models"
	"github.com/sentineliq/riskd/internal/domain/service"
	"github.com/sentineliq/riskd/internal/infrastructure/monitoring"
	apperrors "github.com/sentineliq/riskd/pkg/errors"
	"github.com/sentineliq/riskd/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// gormLedgerStore is a gorm-backed implementation of the LedgerStore
// interface.
//
// Append serializes through a process-local mutex; the unique primary key on
// sequence is the cross-process backstop. A lost race surfaces as a duplicate
// key error and is retried once against the new head.
type gormLedgerStore struct {
	db      *gorm.DB
	mu      sync.Mutex
	log     logger.Logger
	metrics *monitoring.Metrics
}

// NewGormLedgerStore opens the configured backend, migrates the schema, and
// returns the store.
func NewGormLedgerStore(cfg config.LedgerConfig, log logger.Logger, metrics *monitoring.Metrics) (service.LedgerStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported ledger driver: %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	if err := db.AutoMigrate(&models.LedgerEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger schema: %w", err)
	}

	return &gormLedgerStore{
		db:      db,
		log:     log.WithComponent("audit_ledger"),
		metrics: metrics,
	}, nil
}

// Append links the payload to the current chain head and persists it. Errors
// are hard failures: a decision that cannot be recorded must not be served.
func (s *gormLedgerStore) Append(ctx context.Context, payload models.LedgerPayload) (string, error) {
	canonical, err := payload.Canonical()
	if err != nil {
		s.metrics.RecordLedgerAppend("error", 0)
		return "", apperrors.ErrLedgerAppend(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hash, seq, err := s.appendOnce(ctx, payload, canonical)
	if err != nil && isDuplicateSequence(err) {
		// Another writer advanced the head. Re-read it and try once more.
		hash, seq, err = s.appendOnce(ctx, payload, canonical)
	}
	if err != nil {
		s.metrics.RecordLedgerAppend("error", 0)
		return "", apperrors.ErrLedgerAppend(err)
	}

	s.metrics.RecordLedgerAppend("success", seq)
	s.log.Debug(ctx, "ledger entry appended",
		logger.Uint64("sequence", seq),
		logger.String("event_id", payload.EventID))
	return hash, nil
}

func (s *gormLedgerStore) appendOnce(ctx context.Context, payload models.LedgerPayload, canonical []byte) (string, uint64, error) {
	head, err := s.Head(ctx)
	if err != nil {
		return "", 0, err
	}

	previousHash := ""
	sequence := uint64(1)
	if head != nil {
		previousHash = head.CurrentHash
		sequence = head.Sequence + 1
	}

	entry := models.LedgerEntry{
		Sequence:     sequence,
		EntryID:      uuid.NewString(),
		Payload:      payload,
		PayloadJSON:  canonical,
		PreviousHash: previousHash,
		CurrentHash:  models.ChainHash(previousHash, canonical),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return "", 0, err
	}
	return entry.CurrentHash, entry.Sequence, nil
}

// Verify re-walks the requested range recomputing every hash and checking the
// previous-hash linkage. A zero bound means open-ended.
func (s *gormLedgerStore) Verify(ctx context.Context, fromSeq, toSeq uint64) (*models.VerifyResult, error) {
	entries, err := s.Entries(ctx, fromSeq, toSeq)
	if err != nil {
		return nil, err
	}

	result := &models.VerifyResult{Valid: true}

	var previousHash string
	if len(entries) > 0 && entries[0].Sequence > 1 {
		var predecessor models.LedgerEntry
		err := s.db.WithContext(ctx).
			Where("sequence = ?", entries[0].Sequence-1).
			First(&predecessor).Error
		if err != nil {
			return nil, apperrors.ErrLedgerIntegrity(entries[0].Sequence - 1).WithCause(err)
		}
		previousHash = predecessor.CurrentHash
	}

	for i, entry := range entries {
		result.Checked++

		if entry.PreviousHash != previousHash {
			result.Valid = false
			result.FirstBreak = entry.Sequence
			return result, nil
		}
		if models.ChainHash(entry.PreviousHash, entry.PayloadJSON) != entry.CurrentHash {
			result.Valid = false
			result.FirstBreak = entry.Sequence
			return result, nil
		}
		if i > 0 && entry.Sequence != entries[i-1].Sequence+1 {
			result.Valid = false
			result.FirstBreak = entry.Sequence
			return result, nil
		}

		previousHash = entry.CurrentHash
	}

	return result, nil
}

// Head returns the most recent entry, or nil for an empty ledger.
func (s *gormLedgerStore) Head(ctx context.Context) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := s.db.WithContext(ctx).Order("sequence DESC").First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read ledger head: %w", err)
	}

	if err := hydrate(&entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Entries returns the entries in [fromSeq, toSeq] in sequence order. A zero
// bound means open-ended.
func (s *gormLedgerStore) Entries(ctx context.Context, fromSeq, toSeq uint64) ([]models.LedgerEntry, error) {
	query := s.db.WithContext(ctx).Order("sequence ASC")
	if fromSeq > 0 {
		query = query.Where("sequence >= ?", fromSeq)
	}
	if toSeq > 0 {
		query = query.Where("sequence <= ?", toSeq)
	}

	var entries []models.LedgerEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to read ledger entries: %w", err)
	}

	for i := range entries {
		if err := hydrate(&entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func hydrate(entry *models.LedgerEntry) error {
	if len(entry.PayloadJSON) == 0 {
		return nil
	}
	if err := json.Unmarshal(entry.PayloadJSON, &entry.Payload); err != nil {
		return fmt.Errorf("failed to unmarshal ledger payload at sequence %d: %w", entry.Sequence, err)
	}
	return nil
}

func isDuplicateSequence(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
