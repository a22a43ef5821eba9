// Package failedsnatch finds episodes that were snatched but never finished
// downloading and queues them for a forced retry search.
package failedsnatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/sceneward/sceneward/internal/config"
	"github.com/sceneward/sceneward/internal/history"
	"github.com/sceneward/sceneward/internal/library/tv"
	"github.com/sceneward/sceneward/internal/metrics"
	"github.com/sceneward/sceneward/internal/searchqueue"
)

// MaxAgeHours is the oldest snatch, in whole hours, that is still retried.
const MaxAgeHours = 24

// HistoryStore is the slice of download history the reconciler reads.
type HistoryStore interface {
	TrimFailed(ctx context.Context) error
	Snatched(ctx context.Context, since time.Time) ([]*history.Entry, error)
	DownloadedKeys(ctx context.Context) (map[history.EpisodeKey]struct{}, error)
}

// Library resolves shows and episodes.
type Library interface {
	FindShow(ctx context.Context, id int64) (*tv.Show, error)
	GetEpisode(ctx context.Context, showID int64, season, episode int) (*tv.Episode, error)
}

// Queue accepts retry work without blocking.
type Queue interface {
	Put(item searchqueue.RetryItem) bool
}

// Settings supplies the current failed snatch configuration.
type Settings interface {
	FailedSnatchSettings() config.FailedSnatchConfig
}

// Status holds the result of the last reconciliation pass.
type Status struct {
	Running    bool      `json:"running"`
	LastRun    time.Time `json:"lastRun,omitzero"`
	Candidates int       `json:"candidates"`
	Enqueued   int       `json:"enqueued"`
	ElapsedMs  int       `json:"elapsed"`
	Error      string    `json:"error,omitempty"`
}

// Reconciler runs failed snatch passes. At most one pass runs at a time.
type Reconciler struct {
	history  HistoryStore
	library  Library
	queue    Queue
	settings Settings
	clock    clockwork.Clock
	metrics  *metrics.Service
	logger   zerolog.Logger

	running atomic.Bool
	mu      sync.RWMutex
	status  Status
}

// NewReconciler creates a reconciler. clock and m may be nil.
func NewReconciler(
	historyStore HistoryStore,
	library Library,
	queue Queue,
	settings Settings,
	clock clockwork.Clock,
	m *metrics.Service,
	logger zerolog.Logger,
) *Reconciler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Reconciler{
		history:  historyStore,
		library:  library,
		queue:    queue,
		settings: settings,
		clock:    clock,
		metrics:  m,
		logger:   logger.With().Str("component", "failedsnatch").Logger(),
	}
}

// IsRunning returns whether a pass is currently running.
func (r *Reconciler) IsRunning() bool {
	return r.running.Load()
}

// LastStatus returns the last pass status.
func (r *Reconciler) LastStatus() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := r.status
	st.Running = r.running.Load()
	return st
}

// RunScheduled runs an unforced pass.
func (r *Reconciler) RunScheduled(ctx context.Context) error {
	return r.Run(ctx, false)
}

// Run executes one pass. Unless force is set it does nothing while the
// feature is disabled. A call made while another pass is running returns
// nil immediately.
func (r *Reconciler) Run(ctx context.Context, force bool) (err error) {
	settings := r.settings.FailedSnatchSettings()
	if !settings.Enabled && !force {
		r.metrics.ReconcileRun("disabled", 0)
		return nil
	}

	if !r.running.CompareAndSwap(false, true) {
		r.logger.Debug().Msg("Failed snatch search already running")
		r.metrics.ReconcileRun("skipped", 0)
		return nil
	}
	defer r.running.Store(false)

	start := r.clock.Now()
	st := Status{LastRun: start}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("Failed snatch search panicked")
			err = fmt.Errorf("failed snatch search panicked: %v", rec)
		}

		elapsed := r.clock.Since(start)
		st.ElapsedMs = int(elapsed.Milliseconds())
		outcome := "completed"
		if err != nil {
			st.Error = err.Error()
			outcome = "failed"
		}
		r.setStatus(st)
		r.metrics.ReconcileRun(outcome, elapsed)
	}()

	if settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.Timeout)
		defer cancel()
	}

	err = r.reconcile(ctx, settings, &st)
	if errors.Is(err, context.DeadlineExceeded) {
		r.logger.Error().Dur("timeout", settings.Timeout).Msg("Failed snatch search timed out")
	} else if err != nil {
		r.logger.Error().Err(err).Msg("Failed snatch search failed")
	}
	return err
}

func (r *Reconciler) reconcile(ctx context.Context, settings config.FailedSnatchConfig, st *Status) error {
	if err := r.history.TrimFailed(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to trim failed download history")
	}

	r.logger.Info().Msg("Searching for failed snatches")

	candidates, err := r.candidates(ctx, settings.AgeHours)
	if err != nil {
		return err
	}
	st.Candidates = len(candidates)

	found := false
	for _, key := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}

		item, ok := r.retryItem(ctx, key)
		if !ok {
			continue
		}

		found = true
		if r.queue.Put(item) {
			st.Enqueued++
			r.metrics.RetryEnqueued()
			r.logger.Info().
				Int64("showId", key.ShowID).
				Int("season", key.Season).
				Int("episode", key.Episode).
				Msg("Queued failed snatch for retry")
		}
	}

	if !found {
		r.logger.Info().Msg("No failed snatches found")
	}
	return nil
}

// candidates returns the episodes snatched between ageHours and
// MaxAgeHours ago that have no download record, oldest snatch first.
func (r *Reconciler) candidates(ctx context.Context, ageHours int) ([]history.EpisodeKey, error) {
	now := r.clock.Now()

	snatched, err := r.history.Snatched(ctx, now.Add(-(MaxAgeHours+1)*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to load snatched history: %w", err)
	}

	downloaded, err := r.history.DownloadedKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load downloaded history: %w", err)
	}

	seen := make(map[history.EpisodeKey]struct{})
	var keys []history.EpisodeKey
	for _, entry := range snatched {
		age := int(now.Sub(entry.Date).Hours())
		if age < ageHours || age > MaxAgeHours {
			continue
		}

		key := entry.Key()
		if _, ok := downloaded[key]; ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys, nil
}

// retryItem checks that the candidate's show is active and the episode is
// still in a snatched state.
func (r *Reconciler) retryItem(ctx context.Context, key history.EpisodeKey) (searchqueue.RetryItem, bool) {
	log := r.logger.With().
		Int64("showId", key.ShowID).
		Int("season", key.Season).
		Int("episode", key.Episode).
		Logger()

	show, err := r.library.FindShow(ctx, key.ShowID)
	if err != nil {
		log.Warn().Err(err).Msg("Skipping failed snatch, show lookup failed")
		return searchqueue.RetryItem{}, false
	}
	if show.Paused {
		log.Debug().Msg("Skipping failed snatch, show is paused")
		return searchqueue.RetryItem{}, false
	}

	ep, err := r.library.GetEpisode(ctx, key.ShowID, key.Season, key.Episode)
	if err != nil {
		log.Warn().Err(err).Msg("Skipping failed snatch, episode lookup failed")
		return searchqueue.RetryItem{}, false
	}

	status, _ := ep.SplitStatus()
	if !status.IsSnatched() {
		log.Debug().Str("status", status.String()).Msg("Skipping failed snatch, episode no longer snatched")
		return searchqueue.RetryItem{}, false
	}

	return searchqueue.RetryItem{
		ShowID:  key.ShowID,
		Season:  key.Season,
		Episode: key.Episode,
		Forced:  true,
	}, true
}

func (r *Reconciler) setStatus(st Status) {
	r.mu.Lock()
	r.status = st
	r.mu.Unlock()
}
