package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// RawItem is a single item as returned by a source boundary, before it is
// wrapped into an envelope. UpstreamID is empty when the source does not
// carry its own identifier.
type RawItem struct {
	UpstreamID string
	Payload    map[string]any
}

// RawEnvelope is the write-once record persisted to the raw store. It is
// created once per fetched item and never mutated.
type RawEnvelope struct {
	ID         string         `json:"id"`
	Source     string         `json:"source"`
	IngestedAt time.Time      `json:"ingestedAt"`
	IngestDate string         `json:"ingestDate"` // YYYY-MM-DD, derived from IngestedAt
	Payload    map[string]any `json:"payload"`
}

// QueueMessage is the lightweight reference carried on the queue. It points
// at a raw envelope rather than embedding the payload, and may be delivered
// more than once.
type QueueMessage struct {
	ID            string    `json:"id"`
	Source        string    `json:"source"`
	RawRef        string    `json:"rawRef"`
	IngestedAt    time.Time `json:"ingestedAt"`
	PayloadDigest string    `json:"payloadDigest"`
}

// Delivery is one received queue message together with the broker
// bookkeeping needed to settle it. DeliveryCount is advisory: the broker
// reports how many times the message has been handed to a consumer.
type Delivery struct {
	Message       QueueMessage
	Receipt       uint64
	DeliveryCount int
}

// PayloadDigest returns a hex digest of the payload's JSON form. It is
// advisory only; map keys are marshalled in sorted order so the digest is
// stable for a given payload.
func PayloadDigest(payload map[string]any) string {
	body, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
