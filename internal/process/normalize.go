package process

import (
	"strconv"

	"data_pipeline/internal/domain"
)

// NormalizeFunc maps a raw envelope into the uniform normalized shape.
type NormalizeFunc func(env domain.RawEnvelope) domain.NormalizedFields

// Normalizers resolves per-source normalization. The table is populated once
// at startup; sources without a dedicated mapping fall back to the generic
// chain, so this layer stays source-agnostic at processing time.
type Normalizers struct {
	bySource map[string]NormalizeFunc
}

func NewNormalizers() *Normalizers {
	return &Normalizers{bySource: make(map[string]NormalizeFunc)}
}

func (n *Normalizers) Register(sourceID string, fn NormalizeFunc) {
	n.bySource[sourceID] = fn
}

func (n *Normalizers) Resolve(sourceID string) NormalizeFunc {
	if fn, ok := n.bySource[sourceID]; ok {
		return fn
	}
	return NormalizeGeneric
}

// NormalizeGeneric applies the fallback chain per field.
func NormalizeGeneric(env domain.RawEnvelope) domain.NormalizedFields {
	title, ok := firstString(env.Payload, "title", "name")
	if !ok {
		title = "Untitled"
	}

	content, _ := firstString(env.Payload, "body", "content", "description")

	author, ok := firstString(env.Payload, "userId", "email", "author")
	if !ok {
		author = "unknown"
	}

	return domain.NormalizedFields{
		Title:   title,
		Content: content,
		Author:  author,
		Metadata: map[string]string{
			"sourceType": env.Source,
			"ingestDate": env.IngestDate,
		},
	}
}

// firstString walks the keys in order and returns the first non-empty value,
// stringifying JSON numbers along the way (e.g. numeric user ids).
func firstString(payload map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		switch v := payload[key].(type) {
		case string:
			if v != "" {
				return v, true
			}
		case float64:
			if v == float64(int64(v)) {
				return strconv.FormatInt(int64(v), 10), true
			}
			return strconv.FormatFloat(v, 'f', -1, 64), true
		}
	}
	return "", false
}
