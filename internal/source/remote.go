package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"data_pipeline/internal/domain"
)

// RemoteConfig holds the HTTP fetch settings shared by all remote sources.
type RemoteConfig struct {
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Remote fetches items from HTTP sources. Each source's response shape is
// normalized to a flat item list at this boundary, so downstream stages stay
// source-agnostic.
type Remote struct {
	httpClient     *http.Client
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	limiters       map[string]*rate.Limiter
	logger         *slog.Logger
}

func NewRemote(cfg RemoteConfig, sources []domain.DataSource, logger *slog.Logger) *Remote {
	limiters := make(map[string]*rate.Limiter)
	for _, src := range sources {
		if src.Kind == domain.SourceKindRemote && src.RateLimit > 0 {
			// RateLimit is requests per minute.
			limiters[src.ID] = rate.NewLimiter(rate.Limit(float64(src.RateLimit)/60.0), 1)
		}
	}

	return &Remote{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		limiters:       limiters,
		logger:         logger,
	}
}

func (f *Remote) Fetch(ctx context.Context, src domain.DataSource) ([]domain.RawItem, error) {
	if limiter, ok := f.limiters[src.ID]; ok {
		if err := limiter.Wait(ctx); err != nil {
			return nil, &FetchError{SourceID: src.ID, Err: err}
		}
	}

	body, err := f.fetchWithRetry(ctx, src)
	if err != nil {
		return nil, &FetchError{SourceID: src.ID, Err: err}
	}

	payloads, err := extractItems(src.ID, body)
	if err != nil {
		return nil, &FetchError{SourceID: src.ID, Err: err}
	}

	items := make([]domain.RawItem, 0, len(payloads))
	for _, p := range payloads {
		items = append(items, domain.RawItem{
			UpstreamID: upstreamID(p),
			Payload:    p,
		})
	}

	f.logger.Debug("fetched items", "source", src.ID, "count", len(items))

	return items, nil
}

func (f *Remote) fetchWithRetry(ctx context.Context, src domain.DataSource) ([]byte, error) {
	var body []byte
	var err error

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		body, err = f.doRequest(ctx, src.Endpoint)
		if err == nil {
			return body, nil
		}

		if attempt == f.maxAttempts {
			break
		}

		backoff := f.calculateBackoff(attempt)
		f.logger.Warn("request failed, retrying",
			"source", src.ID,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", f.maxAttempts, err)
}

func (f *Remote) doRequest(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "DataPipeline/1.0")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var buf json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&buf); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return buf, nil
}

func (f *Remote) calculateBackoff(attempt int) time.Duration {
	backoff := f.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > f.maxBackoff {
		backoff = f.maxBackoff
	}
	return backoff
}

// extractor maps one source's response body to a flat list of item payloads.
type extractor func(body []byte) ([]map[string]any, error)

// extractors resolves source-specific response shapes. Sources not listed
// here fall through to the generic array-or-object handling.
var extractors = map[string]extractor{
	"jsonplaceholder": extractArray,
	"reqres":          extractDataField,
}

func extractItems(sourceID string, body []byte) ([]map[string]any, error) {
	if extract, ok := extractors[sourceID]; ok {
		return extract(body)
	}
	return extractGeneric(body)
}

func extractArray(body []byte) ([]map[string]any, error) {
	var items []map[string]any
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("malformed item list: %w", err)
	}
	return items, nil
}

func extractDataField(body []byte) ([]map[string]any, error) {
	var wrapper struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("malformed data wrapper: %w", err)
	}
	return wrapper.Data, nil
}

func extractGeneric(body []byte) ([]map[string]any, error) {
	items, err := extractArray(body)
	if err == nil {
		return items, nil
	}

	var single map[string]any
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, fmt.Errorf("malformed body: %w", err)
	}
	return []map[string]any{single}, nil
}

// upstreamID pulls the source's own item identifier out of a payload when
// one exists. Sources with absent or non-unique ids are tolerated; the
// orchestrator appends a random disambiguator either way.
func upstreamID(payload map[string]any) string {
	switch v := payload["id"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
}
