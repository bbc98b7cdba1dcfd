package burndrop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "burndrop_sweep_runs_total",
		Help: "Sweeper passes run.",
	})

	sweepTombstonedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "burndrop_sweep_tombstoned_total",
		Help: "Dead shares tombstoned by the sweeper.",
	})

	sweepBlobsReclaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "burndrop_sweep_blobs_reclaimed_total",
		Help: "Blobs deleted for tombstoned shares.",
	})

	sweepPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "burndrop_sweep_purged_total",
		Help: "Cleaned-up tombstones removed for good.",
	})

	sweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "burndrop_sweep_errors_total",
		Help: "Per-share failures during sweeper passes.",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "burndrop_sweep_duration_seconds",
		Help:    "Duration of sweeper passes.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

const (
	DefaultSweepInterval      = time.Minute
	DefaultSweepBatchSize     = 100
	DefaultTombstoneRetention = 7 * 24 * time.Hour
)

// SweeperConfig configures a Sweeper. Zero values select the defaults.
type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
	// TombstoneRetention is how long cleaned-up tombstones are kept before
	// they are purged. A negative value disables purging.
	TombstoneRetention time.Duration
	Clock              func() time.Time
	Logger             *slog.Logger
}

// SweepResult summarises one sweeper pass.
type SweepResult struct {
	Tombstoned     int
	BlobsReclaimed int
	Purged         int64
	Errors         int
	Duration       time.Duration
}

// Sweeper reclaims storage held by dead shares.
//
// A pass runs three phases:
//  1. Tombstone live shares that are expired or exhausted
//  2. Delete the blob of every tombstoned share and mark it cleaned up
//  3. Purge cleaned-up tombstones older than the retention window
//
// Metadata is always tombstoned before its blob is deleted, so a crash at
// any point never leaves a grantable share pointing at a missing blob.
// Every phase is idempotent.
type Sweeper struct {
	repo      ShareRepo
	storage   BlobStorage
	interval  time.Duration
	batchSize int
	retention time.Duration
	clock     func() time.Time
	logger    *slog.Logger

	mu sync.Mutex
}

func NewSweeper(repo ShareRepo, storage BlobStorage, cfg SweeperConfig) *Sweeper {
	s := &Sweeper{
		repo:      repo,
		storage:   storage,
		interval:  orDefault(cfg.Interval, DefaultSweepInterval),
		batchSize: orDefault(cfg.BatchSize, DefaultSweepBatchSize),
		retention: cfg.TombstoneRetention,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
	if s.retention == 0 {
		s.retention = DefaultTombstoneRetention
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With(slog.String("component", "sweeper"))
	return s
}

// Start runs a pass immediately and then on every tick until ctx is
// cancelled or the returned cancel func is called.
func (s *Sweeper) Start(ctx context.Context) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("sweep failed", slog.String("error", err.Error()))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	s.logger.Info("sweeper started", slog.Duration("interval", s.interval))
	return cancel
}

// RunOnce performs one full pass. Concurrent calls are serialised.
// Failures on individual shares are counted and left for the next pass;
// only listing failures abort the pass.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	now := s.clock().UTC()
	var result SweepResult

	defer func() {
		result.Duration = time.Since(start)
		sweepRunsTotal.Inc()
		sweepTombstonedTotal.Add(float64(result.Tombstoned))
		sweepBlobsReclaimedTotal.Add(float64(result.BlobsReclaimed))
		sweepPurgedTotal.Add(float64(result.Purged))
		sweepErrorsTotal.Add(float64(result.Errors))
		sweepDurationSeconds.Observe(result.Duration.Seconds())
	}()

	if err := s.tombstoneDead(ctx, now, &result); err != nil {
		return result, fmt.Errorf("sweep: %w", err)
	}

	if err := s.reclaimBlobs(ctx, now, &result); err != nil {
		return result, fmt.Errorf("sweep: %w", err)
	}

	if s.retention >= 0 {
		purged, err := s.repo.PurgeCleanedUp(ctx, now.Add(-s.retention))
		if err != nil {
			return result, fmt.Errorf("sweep: purge: %w", err)
		}
		result.Purged = purged
	}

	if result.Tombstoned > 0 || result.BlobsReclaimed > 0 || result.Purged > 0 || result.Errors > 0 {
		s.logger.Info("sweep finished",
			slog.Int("tombstoned", result.Tombstoned),
			slog.Int("blobs_reclaimed", result.BlobsReclaimed),
			slog.Int64("purged", result.Purged),
			slog.Int("errors", result.Errors),
			slog.Duration("duration", time.Since(start)),
		)
	}

	return result, nil
}

func (s *Sweeper) tombstoneDead(ctx context.Context, now time.Time, result *SweepResult) error {
	return s.eachPage(ctx, func(q ListQuery) (ListResult, error) {
		return s.repo.ListExpiredOrExhausted(ctx, now, q)
	}, func(rec ShareRecord) {
		err := s.repo.Delete(ctx, rec.ID, now)
		switch {
		case err == nil:
			result.Tombstoned++
		case errors.Is(err, ErrNotFound):
		default:
			result.Errors++
			s.logger.Warn("tombstone failed", slog.String("share", shortID(rec.ID)), slog.String("error", err.Error()))
		}
	})
}

func (s *Sweeper) reclaimBlobs(ctx context.Context, now time.Time, result *SweepResult) error {
	return s.eachPage(ctx, func(q ListQuery) (ListResult, error) {
		return s.repo.ListPendingCleanup(ctx, q)
	}, func(rec ShareRecord) {
		if err := releaseBlob(ctx, s.repo, s.storage, rec, now); err != nil {
			result.Errors++
			s.logger.Warn("blob reclaim failed", slog.String("share", shortID(rec.ID)), slog.String("error", err.Error()))
			return
		}
		result.BlobsReclaimed++
	})
}

func (s *Sweeper) eachPage(ctx context.Context, list func(ListQuery) (ListResult, error), fn func(ShareRecord)) error {
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := list(ListQuery{Limit: s.batchSize, Cursor: cursor})
		if err != nil {
			return err
		}

		for _, rec := range page.Items {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(rec)
		}

		if len(page.Items) == 0 || page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}
}

// reclaimShare tombstones rec and releases its blob. Each step tolerates
// having been done already.
func reclaimShare(ctx context.Context, repo ShareRepo, storage BlobStorage, rec ShareRecord, now time.Time) error {
	if err := repo.Delete(ctx, rec.ID, now); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("reclaim share: tombstone: %w", err)
	}
	if err := releaseBlob(ctx, repo, storage, rec, now); err != nil {
		return fmt.Errorf("reclaim share: %w", err)
	}
	return nil
}

func releaseBlob(ctx context.Context, repo ShareRepo, storage BlobStorage, rec ShareRecord, now time.Time) error {
	if err := storage.Delete(ctx, rec.BlobPath); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete blob: %w", err)
	}
	if err := repo.MarkCleanedUp(ctx, rec.ID, now); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("mark cleaned up: %w", err)
	}
	return nil
}
