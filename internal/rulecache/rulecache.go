// Package rulecache is a Redis read-through cache in front of the
// scheduling rule store. Rules change rarely and are read on every
// booking mutation, so a short TTL absorbs most of the load.
package rulecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tablio/internal/availability"
	"tablio/internal/models"
)

// DefaultTTL bounds rule staleness after a staff edit.
const DefaultTTL = 5 * time.Minute

// envelope distinguishes a cached "no rule" answer from a cache miss.
type envelope struct {
	Found bool            `json:"found"`
	Rule  json.RawMessage `json:"rule,omitempty"`
}

// Store is the persistent rule storage behind the cache. Writes go through
// the cache so every edit invalidates the restaurant's cached rules.
type Store interface {
	availability.RuleStore
	SetOpeningHours(ctx context.Context, r *models.OpeningHoursRule) error
	SetCutOffRule(ctx context.Context, r *models.CutOffRule) error
	CreateSpecialPeriod(ctx context.Context, p *models.SpecialPeriod) error
}

// Cache wraps a rule Store with optional Redis caching. A nil client makes
// every call a passthrough, so Redis stays an availability optimisation
// rather than a dependency.
type Cache struct {
	store  Store
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// New creates the cache. ttl <= 0 falls back to DefaultTTL.
func New(store Store, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		store:  store,
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "rulecache").Logger(),
	}
}

// GetOpeningHours returns the weekly rule for the restaurant and day.
func (c *Cache) GetOpeningHours(ctx context.Context, restaurantID int64, dayOfWeek int) (*models.OpeningHoursRule, error) {
	key := fmt.Sprintf("rules:hours:%d:%d", restaurantID, dayOfWeek)
	var rule models.OpeningHoursRule
	if found, hit := c.read(ctx, key, &rule); hit {
		if !found {
			return nil, nil
		}
		return &rule, nil
	}

	got, err := c.store.GetOpeningHours(ctx, restaurantID, dayOfWeek)
	if err != nil {
		return nil, err
	}
	c.write(ctx, key, got)
	return got, nil
}

// GetCutOffRule returns the cut-off rule for the restaurant and day.
func (c *Cache) GetCutOffRule(ctx context.Context, restaurantID int64, dayOfWeek int) (*models.CutOffRule, error) {
	key := fmt.Sprintf("rules:cutoff:%d:%d", restaurantID, dayOfWeek)
	var rule models.CutOffRule
	if found, hit := c.read(ctx, key, &rule); hit {
		if !found {
			return nil, nil
		}
		return &rule, nil
	}

	got, err := c.store.GetCutOffRule(ctx, restaurantID, dayOfWeek)
	if err != nil {
		return nil, err
	}
	c.write(ctx, key, got)
	return got, nil
}

// GetSpecialPeriod returns the special period covering the date, if any.
func (c *Cache) GetSpecialPeriod(ctx context.Context, restaurantID int64, date time.Time) (*models.SpecialPeriod, error) {
	key := fmt.Sprintf("rules:special:%d:%s", restaurantID, date.Format("2006-01-02"))
	var period models.SpecialPeriod
	if found, hit := c.read(ctx, key, &period); hit {
		if !found {
			return nil, nil
		}
		return &period, nil
	}

	got, err := c.store.GetSpecialPeriod(ctx, restaurantID, date)
	if err != nil {
		return nil, err
	}
	c.write(ctx, key, got)
	return got, nil
}

// SetOpeningHours writes the weekly rule and invalidates the restaurant's
// cached rules so the edit is visible immediately.
func (c *Cache) SetOpeningHours(ctx context.Context, r *models.OpeningHoursRule) error {
	if err := c.store.SetOpeningHours(ctx, r); err != nil {
		return err
	}
	return c.Invalidate(ctx, r.RestaurantID)
}

// SetCutOffRule writes the cut-off rule and invalidates the restaurant's
// cached rules.
func (c *Cache) SetCutOffRule(ctx context.Context, r *models.CutOffRule) error {
	if err := c.store.SetCutOffRule(ctx, r); err != nil {
		return err
	}
	return c.Invalidate(ctx, r.RestaurantID)
}

// CreateSpecialPeriod inserts an override period and invalidates the
// restaurant's cached rules.
func (c *Cache) CreateSpecialPeriod(ctx context.Context, p *models.SpecialPeriod) error {
	if err := c.store.CreateSpecialPeriod(ctx, p); err != nil {
		return err
	}
	return c.Invalidate(ctx, p.RestaurantID)
}

// Invalidate drops every cached rule for a restaurant.
func (c *Cache) Invalidate(ctx context.Context, restaurantID int64) error {
	if c.client == nil {
		return nil
	}
	for _, pattern := range []string{
		fmt.Sprintf("rules:hours:%d:*", restaurantID),
		fmt.Sprintf("rules:cutoff:%d:*", restaurantID),
		fmt.Sprintf("rules:special:%d:*", restaurantID),
	} {
		iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
				return fmt.Errorf("invalidate %s: %w", iter.Val(), err)
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}
	}
	return nil
}

// read reports (found, hit). hit is false on a cache miss or any Redis
// problem; found carries the cached presence answer when hit is true.
func (c *Cache) read(ctx context.Context, key string, out any) (bool, bool) {
	if c.client == nil {
		return false, false
	}
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false, false
	}
	var env envelope
	if err := json.Unmarshal(val, &env); err != nil {
		return false, false
	}
	if !env.Found {
		return false, true
	}
	if err := json.Unmarshal(env.Rule, out); err != nil {
		return false, false
	}
	return true, true
}

func (c *Cache) write(ctx context.Context, key string, rule any) {
	if c.client == nil {
		return
	}
	env := envelope{}
	if rule != nil && !isNilPointer(rule) {
		data, err := json.Marshal(rule)
		if err != nil {
			return
		}
		env.Found = true
		env.Rule = data
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("rule cache write failed")
	}
}

func isNilPointer(v any) bool {
	switch r := v.(type) {
	case *models.OpeningHoursRule:
		return r == nil
	case *models.CutOffRule:
		return r == nil
	case *models.SpecialPeriod:
		return r == nil
	}
	return false
}
