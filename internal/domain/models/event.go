package models

import (
	"time"

	"github.com/sentineliq/riskd/pkg/constants"
)

// Actor identifies who (and from where) an event originated.
type Actor struct {
	UserID            string `json:"user_id"`
	DeviceFingerprint string `json:"device_fingerprint,omitempty"`
	IPAddress         string `json:"ip_address,omitempty"`
	UserAgent         string `json:"user_agent,omitempty"`
}

// EventContext carries the situational attributes of an event. Geo coordinates
// are ephemeral runtime inputs; the engine never persists them outside the
// last-location velocity cache.
type EventContext struct {
	CountryCode   string  `json:"country_code,omitempty"`
	GeoLat        float64 `json:"geo_lat,omitempty"`
	GeoLon        float64 `json:"geo_lon,omitempty"`
	HasGeo        bool    `json:"has_geo,omitempty"`
	SessionID     string  `json:"session_id,omitempty"`
	Amount        float64 `json:"amount,omitempty"`
	NewDevice     bool    `json:"new_device,omitempty"`
	NewIP         bool    `json:"new_ip,omitempty"`
	ProxyDetected bool    `json:"proxy_detected,omitempty"`
	Hour          int     `json:"hour,omitempty"`
	MerchantID    string  `json:"merchant_id,omitempty"`
}

// Event is an immutable fact describing something that happened upstream.
// Created by ingestion; read-only to the engine.
type Event struct {
	EventID   string              `json:"event_id"`
	EventType constants.EventType `json:"event_type"`
	Actor     Actor               `json:"actor"`
	Context   EventContext        `json:"context"`
	Timestamp time.Time           `json:"timestamp"`
}

// Validate checks the fields the engine requires before any side effects occur.
func (e *Event) Validate() []string {
	var missing []string
	if e.EventID == "" {
		missing = append(missing, "event_id")
	}
	if e.Actor.UserID == "" {
		missing = append(missing, "actor.user_id")
	}
	return missing
}
