package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campus-insight/campus-insight-hub/internal/analysis/report"
	"github.com/campus-insight/campus-insight-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ARTIFACT CACHE
// ══════════════════════════════════════════════════════════════════════════════

// ArtifactCache implements pipeline.ArtifactStore on Redis. Reports are
// written once when a run finishes and expire after TTLReportArtifact;
// the job record keeps only the artifact key.
type ArtifactCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewArtifactCache creates an artifact cache over an existing cache
// connection.
func NewArtifactCache(cache *Cache) *ArtifactCache {
	return &ArtifactCache{cache: cache, ttl: TTLReportArtifact}
}

func reportKey(key string) string {
	return PrefixReport + key
}

// Put stores a composed report and returns its generated key.
func (a *ArtifactCache) Put(ctx context.Context, rep *report.Report) (string, error) {
	key := uuid.NewString()
	if err := a.cache.set(ctx, reportKey(key), rep, a.ttl); err != nil {
		return "", fmt.Errorf("failed to store report artifact: %w", err)
	}
	return key, nil
}

// Get returns a stored report. Expired or unknown keys surface as a
// not-found error so clients can distinguish "gone" from "broken".
func (a *ArtifactCache) Get(ctx context.Context, key string) (*report.Report, error) {
	var rep report.Report
	if err := a.cache.get(ctx, reportKey(key), &rep); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.WrapError("report", "Get", shared.ErrNotFound, "report artifact not found or expired", nil)
		}
		return nil, fmt.Errorf("failed to get report artifact: %w", err)
	}
	return &rep, nil
}
