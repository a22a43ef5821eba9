// Package namecache maps sanitized show names, including scene exception
// aliases, to show identifiers. Lookups are served from memory; a Store
// keeps the entries across restarts.
package namecache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog"

	"github.com/sceneward/sceneward/internal/library/tv"
	"github.com/sceneward/sceneward/internal/metrics"
	"github.com/sceneward/sceneward/internal/scenename"
)

// DefaultCooldown is the minimum time between two rebuilds of the same show.
const DefaultCooldown = 10 * time.Minute

// ExceptionSource provides alternate release names for shows.
type ExceptionSource interface {
	RefreshAll(ctx context.Context) error
	// Seasons returns the seasons that have their own exceptions, never -1.
	Seasons(ctx context.Context, showID int64) ([]int, error)
	// Exceptions returns the names for a season; -1 means show-wide.
	Exceptions(ctx context.Context, showID int64, season int) ([]string, error)
}

// ShowLister returns the shows currently in the library.
type ShowLister interface {
	ListShows(ctx context.Context) ([]*tv.Show, error)
}

// Option configures a Cache.
type Option func(*Cache)

func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

func WithCooldown(d time.Duration) Option {
	return func(c *Cache) { c.cooldown = d }
}

func WithMetrics(m *metrics.Service) Option {
	return func(c *Cache) { c.metrics = m }
}

// Cache is the name resolution cache.
type Cache struct {
	store      Store
	exceptions ExceptionSource
	shows      ShowLister
	clock      clockwork.Clock
	cooldown   time.Duration
	metrics    *metrics.Service
	logger     zerolog.Logger

	mu    sync.RWMutex
	names map[string]int64

	// Guards lastUpdate so the cooldown check and set are atomic per show.
	updateMu   sync.Mutex
	lastUpdate map[string]time.Time
}

// New creates an empty cache. Call Load to fill it from the store.
func New(store Store, exceptions ExceptionSource, shows ShowLister, logger zerolog.Logger, opts ...Option) *Cache {
	c := &Cache{
		store:      store,
		exceptions: exceptions,
		shows:      shows,
		clock:      clockwork.NewRealClock(),
		cooldown:   DefaultCooldown,
		logger:     logger.With().Str("component", "namecache").Logger(),
		names:      make(map[string]int64),
		lastUpdate: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Put maps name to showID. A name that sanitizes to nothing is stored
// under the empty key. Store failures are logged; the memory entry is kept
// either way.
func (c *Cache) Put(ctx context.Context, name string, showID int64) {
	key := scenename.FullSanitize(name)

	c.mu.Lock()
	c.names[key] = showID
	size := len(c.names)
	c.mu.Unlock()
	c.metrics.SetNameCacheSize(size)

	if err := c.store.Insert(ctx, key, showID); err != nil {
		c.logger.Warn().Err(err).Str("name", key).Int64("showId", showID).Msg("Failed to persist name cache entry")
	}
}

// Get returns the identifier cached for name. Zero is a valid identifier;
// use the boolean to detect a miss.
func (c *Cache) Get(name string) (int64, bool) {
	key := scenename.FullSanitize(name)

	c.mu.RLock()
	id, ok := c.names[key]
	c.mu.RUnlock()

	c.metrics.NameLookup(ok)
	return id, ok
}

// Clear removes every entry whose identifier is showID or whose key is the
// sanitized name. A zero showID or empty name matches nothing, so calling
// with both is a no-op.
func (c *Cache) Clear(ctx context.Context, showID int64, name string) error {
	key := scenename.FullSanitize(name)
	if showID == 0 && key == "" {
		return nil
	}

	err := c.store.Delete(ctx, showID, key)

	c.mu.Lock()
	for k, v := range c.names {
		if (showID != 0 && v == showID) || (key != "" && k == key) {
			delete(c.names, k)
		}
	}
	size := len(c.names)
	c.mu.Unlock()
	c.metrics.SetNameCacheSize(size)

	return err
}

// Load replaces the in-memory entries with the store's contents.
func (c *Cache) Load(ctx context.Context) error {
	names, err := c.store.All(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.names = names
	c.mu.Unlock()
	c.metrics.SetNameCacheSize(len(names))

	c.logger.Info().Int("entries", len(names)).Msg("Loaded name cache")
	return nil
}

// Save writes every in-memory entry to the store, marking each as the
// latest write for its name.
func (c *Cache) Save(ctx context.Context) error {
	c.mu.RLock()
	snapshot := make(map[string]int64, len(c.names))
	for k, v := range c.names {
		snapshot[k] = v
	}
	c.mu.RUnlock()

	for name, id := range snapshot {
		if err := c.store.Insert(ctx, name, id); err != nil {
			return err
		}
	}

	c.logger.Debug().Int("entries", len(snapshot)).Msg("Saved name cache")
	return nil
}

// Rebuild repopulates the entries for one show from its name and scene
// exceptions. It does nothing if the show was rebuilt within the cooldown.
func (c *Cache) Rebuild(ctx context.Context, show *tv.Show) error {
	if err := c.exceptions.RefreshAll(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to refresh scene exceptions, using stored exceptions")
	}

	if !c.claimUpdate(show.Name) {
		c.logger.Debug().Str("show", show.Name).Msg("Name cache rebuilt recently, skipping")
		return nil
	}

	if err := c.Clear(ctx, show.ID, ""); err != nil {
		c.logger.Warn().Err(err).Int64("showId", show.ID).Msg("Failed to clear name cache entries")
	}

	candidates, err := c.candidates(ctx, show)
	if err != nil {
		return fmt.Errorf("failed to collect names for %s: %w", show.Name, err)
	}

	for _, name := range candidates {
		if err := c.Clear(ctx, 0, name); err != nil {
			c.logger.Warn().Err(err).Str("name", name).Msg("Failed to clear name cache entry")
		}
		c.Put(ctx, name, show.ID)
	}

	c.logger.Debug().
		Str("show", show.Name).
		Int64("showId", show.ID).
		Int("names", len(candidates)).
		Msg("Rebuilt name cache")
	return nil
}

// RebuildAll rebuilds every show in the library, one at a time.
func (c *Cache) RebuildAll(ctx context.Context) error {
	shows, err := c.shows.ListShows(ctx)
	if err != nil {
		return fmt.Errorf("failed to list shows: %w", err)
	}

	var failed int
	for _, show := range shows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.Rebuild(ctx, show); err != nil {
			failed++
			c.logger.Error().Err(err).Int64("showId", show.ID).Msg("Failed to rebuild name cache")
		}
	}

	c.logger.Info().Int("shows", len(shows)).Int("failed", failed).Int("entries", c.Len()).Msg("Name cache rebuild complete")
	if failed > 0 {
		return fmt.Errorf("name cache rebuild failed for %d of %d shows", failed, len(shows))
	}
	return nil
}

// Len returns the number of in-memory entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names)
}

// Closest returns the cached key with the smallest edit distance to the
// sanitized name. Ties go to the lexically smaller key.
func (c *Cache) Closest(name string) (string, int64, bool) {
	query := scenename.FullSanitize(name)

	c.mu.RLock()
	keys := make([]string, 0, len(c.names))
	for k := range c.names {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	if len(keys) == 0 {
		return "", 0, false
	}
	sort.Strings(keys)

	best, bestDist := "", -1
	for _, k := range keys {
		d := fuzzy.LevenshteinDistance(query, k)
		if bestDist < 0 || d < bestDist {
			best, bestDist = k, d
		}
	}

	c.mu.RLock()
	id, ok := c.names[best]
	c.mu.RUnlock()
	return best, id, ok
}

// claimUpdate records a rebuild of the named show unless one happened
// within the cooldown. A show never rebuilt counts as last rebuilt at the
// start of the current day. Last-update times never move backwards.
func (c *Cache) claimUpdate(showName string) bool {
	now := c.clock.Now()

	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	last, ok := c.lastUpdate[showName]
	if !ok {
		y, m, d := now.Date()
		last = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	}
	if now.Sub(last) < c.cooldown {
		return false
	}
	if now.After(last) {
		c.lastUpdate[showName] = now
	}
	return true
}

// candidates returns the show name and its exceptions, each with accent
// folded variants, deduplicated in first-seen order.
func (c *Cache) candidates(ctx context.Context, show *tv.Show) ([]string, error) {
	seasons, err := c.exceptions.Seasons(ctx, show.ID)
	if err != nil {
		return nil, err
	}

	names := []string{show.Name}
	for _, season := range append([]int{-1}, seasons...) {
		exceptions, err := c.exceptions.Exceptions(ctx, show.ID, season)
		if err != nil {
			return nil, err
		}
		names = append(names, exceptions...)
	}

	seen := make(map[string]struct{})
	var out []string
	for _, name := range names {
		stripped := scenename.StripAccents(name)
		for _, variant := range []string{name, stripped, strings.ReplaceAll(stripped, "'", " ")} {
			if _, dup := seen[variant]; dup {
				continue
			}
			seen[variant] = struct{}{}
			out = append(out, variant)
		}
	}
	return out, nil
}
