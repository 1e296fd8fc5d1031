package process

import (
	"crypto/sha256"
	"encoding/hex"

	"data_pipeline/internal/domain"
)

// fieldSeparator keeps adjacent fields from colliding ("ab"+"c" vs "a"+"bc").
const fieldSeparator = "\x1f"

// Fingerprint derives the dedup key from the normalized identity fields.
// Volatile fields (timestamps, raw refs) are excluded so the same logical
// content from the same source always produces the same fingerprint, no
// matter when or how often it was ingested.
func Fingerprint(sourceID string, n domain.NormalizedFields) string {
	h := sha256.New()
	for i, field := range []string{sourceID, n.Title, n.Content, n.Author} {
		if i > 0 {
			h.Write([]byte(fieldSeparator))
		}
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}
