package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yuhis0727/sumaslo-analyzer/pkg/models"
)

// RecommendationCache keeps rendered recommendation reports in Redis so
// repeated dashboard polls between aggregation runs skip the scoring work.
// A miss is never an error; callers fall through to the engine.
type RecommendationCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRecommendationCache creates a cache with the given entry TTL
func NewRecommendationCache(client *redis.Client, ttl time.Duration) *RecommendationCache {
	return &RecommendationCache{client: client, ttl: ttl}
}

// Get returns the cached report for the key, or nil on a miss
func (c *RecommendationCache) Get(ctx context.Context, storeID int64, date string, windowDays, topN int) (*models.RecommendationReport, error) {
	data, err := c.client.Get(ctx, c.key(storeID, date, windowDays, topN)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached report: %w", err)
	}

	var report models.RecommendationReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("unmarshal cached report: %w", err)
	}

	return &report, nil
}

// Set stores the report under its request key
func (c *RecommendationCache) Set(ctx context.Context, storeID int64, date string, windowDays, topN int, report *models.RecommendationReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	if err := c.client.Set(ctx, c.key(storeID, date, windowDays, topN), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached report: %w", err)
	}

	return nil
}

// Invalidate drops every cached report for a store. Called after ingestion
// so stale rankings never outlive new data.
func (c *RecommendationCache) Invalidate(ctx context.Context, storeID int64) error {
	pattern := fmt.Sprintf("recommendations:%d:*", storeID)

	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("delete cached report: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cached reports: %w", err)
	}

	return nil
}

func (c *RecommendationCache) key(storeID int64, date string, windowDays, topN int) string {
	return fmt.Sprintf("recommendations:%d:%s:%d:%d", storeID, date, windowDays, topN)
}
