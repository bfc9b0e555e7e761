package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/sentineliq/riskd/pkg/constants"
)

// LedgerPayload is the canonical content hashed into the audit chain. It is a
// flat struct rather than a map so json.Marshal emits fields in a fixed order
// and the hash is reproducible byte for byte.
type LedgerPayload struct {
	EventID        string              `json:"event_id"`
	EventType      constants.EventType `json:"event_type"`
	UserID         string              `json:"user_id"`
	Action         string              `json:"action"`
	Decision       constants.Action    `json:"decision"`
	RiskScore      float64             `json:"risk_score"`
	RiskLevel      constants.RiskLevel `json:"risk_level"`
	Confidence     float64             `json:"confidence"`
	TriggeredRules []string            `json:"triggered_rules"`
	ActorIP        string              `json:"actor_ip,omitempty"`
	ActorUserAgent string              `json:"actor_user_agent,omitempty"`
}

// Canonical returns the deterministic serialized form of the payload.
func (p LedgerPayload) Canonical() ([]byte, error) {
	return json.Marshal(p)
}

// LedgerEntry is one record of the hash-chained audit ledger. Append-only;
// CurrentHash is never recomputed or mutated after write.
type LedgerEntry struct {
	Sequence     uint64        `json:"sequence" gorm:"primaryKey;autoIncrement:false;column:sequence"`
	EntryID      string        `json:"entry_id" gorm:"column:entry_id;uniqueIndex"`
	Payload      LedgerPayload `json:"payload" gorm:"-"`
	PayloadJSON  []byte        `json:"-" gorm:"column:payload;type:blob"`
	PreviousHash string        `json:"previous_hash" gorm:"column:previous_hash"`
	CurrentHash  string        `json:"current_hash" gorm:"column:current_hash"`
	CreatedAt    time.Time     `json:"created_at" gorm:"column:created_at"`
}

// TableName sets the gorm table name for ledger entries.
func (LedgerEntry) TableName() string {
	return "audit_ledger"
}

// ChainHash computes SHA256(previousHash || canonicalPayload) as a hex string.
// This is the only hash function of the ledger: every verification re-walk
// must reproduce stored hashes through this exact construction.
func ChainHash(previousHash string, canonicalPayload []byte) string {
	h := sha256.New()
	h.Write([]byte(previousHash))
	h.Write(canonicalPayload)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyResult reports the outcome of an integrity walk over the ledger.
type VerifyResult struct {
	Valid      bool   `json:"valid"`
	Checked    int    `json:"checked"`
	FirstBreak uint64 `json:"first_break,omitempty"`
}
