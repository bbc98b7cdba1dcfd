package burndrop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "burndrop_uploads_total",
		Help: "Uploads by outcome.",
	}, []string{"status"})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "burndrop_upload_bytes_total",
		Help: "Bytes accepted by successful uploads.",
	})

	idCollisionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "burndrop_id_collisions_total",
		Help: "Share ids regenerated after a conflict on create.",
	})

	resolvesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "burndrop_resolves_total",
		Help: "Download resolutions by decision.",
	}, []string{"decision"})

	admissionsLostTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "burndrop_admissions_lost_total",
		Help: "Resolutions allowed by evaluation but refused by the atomic admission.",
	})

	lazyReclaimsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "burndrop_lazy_reclaims_total",
		Help: "Dead shares reclaimed on access.",
	})
)

const (
	DefaultTTL               = 24 * time.Hour
	DefaultMaxTTL            = 7 * 24 * time.Hour
	DefaultMaxDownloadsLimit = 100
	DefaultIDAttempts        = 3
	DefaultStoreRetries      = 3
	DefaultRetryInterval     = 50 * time.Millisecond
	DefaultCleanupTimeout    = 30 * time.Second
)

// NoStoreRetries as ServiceConfig.StoreRetries makes every store call run once.
const NoStoreRetries = -1

// ServiceConfig holds configuration options for Service. Zero values select
// the package defaults.
type ServiceConfig struct {
	DefaultTTL        time.Duration
	MaxTTL            time.Duration
	MaxDownloadsLimit int
	// MaxUploadBytes caps the blob size; 0 disables the cap.
	MaxUploadBytes int64
	// IDAttempts bounds how many ids are tried when create reports a conflict.
	IDAttempts int
	// StoreRetries bounds retries of transient store failures. Zero selects
	// DefaultStoreRetries; NoStoreRetries (or any negative value) disables
	// retrying.
	StoreRetries   int
	RetryInterval  time.Duration
	CleanupTimeout time.Duration
	// ReclaimOnAccess tombstones and reclaims dead shares as soon as a
	// request observes them instead of waiting for the sweeper.
	ReclaimOnAccess bool

	Clock     func() time.Time
	IDs       IDGenerator
	Passwords *PasswordGuard
	Logger    *slog.Logger
}

// Service implements uploading and resolving shares on top of a ShareRepo
// and a BlobStorage.
type Service struct {
	repo    ShareRepo
	storage BlobStorage

	guard     *Guard
	passwords *PasswordGuard
	ids       IDGenerator
	clock     func() time.Time
	retry     retryPolicy
	logger    *slog.Logger

	defaultTTL        time.Duration
	maxTTL            time.Duration
	maxDownloadsLimit int
	maxUploadBytes    int64
	idAttempts        int
	cleanupTimeout    time.Duration
	reclaimOnAccess   bool
}

func NewService(repo ShareRepo, storage BlobStorage, cfg ServiceConfig) (*Service, error) {
	if repo == nil || storage == nil {
		return nil, errors.New("new service: repo and storage are required")
	}
	if cfg.MaxUploadBytes < 0 {
		return nil, fmt.Errorf("new service: %w: max upload bytes cannot be negative", ErrInvalidInput)
	}

	s := &Service{
		repo:              repo,
		storage:           storage,
		passwords:         cfg.Passwords,
		ids:               cfg.IDs,
		clock:             cfg.Clock,
		logger:            cfg.Logger,
		defaultTTL:        orDefault(cfg.DefaultTTL, DefaultTTL),
		maxTTL:            orDefault(cfg.MaxTTL, DefaultMaxTTL),
		maxDownloadsLimit: orDefault(cfg.MaxDownloadsLimit, DefaultMaxDownloadsLimit),
		maxUploadBytes:    cfg.MaxUploadBytes,
		idAttempts:        orDefault(cfg.IDAttempts, DefaultIDAttempts),
		cleanupTimeout:    orDefault(cfg.CleanupTimeout, DefaultCleanupTimeout),
		reclaimOnAccess:   cfg.ReclaimOnAccess,
		retry: retryPolicy{
			retries:  storeRetries(cfg.StoreRetries),
			interval: orDefault(cfg.RetryInterval, DefaultRetryInterval),
		},
	}

	if s.defaultTTL > s.maxTTL {
		return nil, fmt.Errorf("new service: %w: default ttl %s exceeds max ttl %s", ErrInvalidInput, s.defaultTTL, s.maxTTL)
	}

	if s.passwords == nil {
		pg, err := NewPasswordGuard(0)
		if err != nil {
			return nil, fmt.Errorf("new service: %w", err)
		}
		s.passwords = pg
	}
	if s.ids == nil {
		s.ids = RandomIDGenerator{}
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With(slog.String("component", "service"))
	s.guard = NewGuard(s.passwords)

	return s, nil
}

func storeRetries(n int) int {
	switch {
	case n < 0:
		return 0
	case n == 0:
		return DefaultStoreRetries
	}
	return n
}

func orDefault[T int | int64 | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// Upload stores content and creates a share for it.
//
// The steps are:
//  1. Validate the request (TTL, download limit, password length)
//  2. Generate the share id
//  3. Write the blob under a fresh blob path
//  4. Reject empty or oversized payloads
//  5. Hash the password, if any
//  6. Create the record, regenerating the id on ErrConflict up to IDAttempts times
//
// If anything fails after the blob was written, the blob is deleted using a
// detached context with the configured cleanup timeout.
func (s *Service) Upload(ctx context.Context, req UploadRequest, content io.Reader) (UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return UploadResult{}, fmt.Errorf("upload: %w", err)
	}

	req, err := s.normalizeUpload(req)
	if err != nil {
		uploadsTotal.WithLabelValues("invalid").Inc()
		return UploadResult{}, fmt.Errorf("upload: %w", err)
	}

	id := s.ids.Generate()
	blobPath := NewBlobPath()

	reader := content
	if s.maxUploadBytes > 0 {
		reader = io.LimitReader(content, s.maxUploadBytes+1)
	}

	saved, err := s.storage.Write(ctx, blobPath, reader)
	if err != nil {
		uploadsTotal.WithLabelValues("error").Inc()
		return UploadResult{}, fmt.Errorf("upload: write blob: %w", err)
	}

	fail := func(err error) (UploadResult, error) {
		if delErr := s.discardBlob(blobPath); delErr != nil {
			return UploadResult{}, fmt.Errorf("upload: %w (and blob cleanup failed: %w)", err, delErr)
		}
		return UploadResult{}, fmt.Errorf("upload: %w", err)
	}

	if saved.BytesWritten == 0 {
		uploadsTotal.WithLabelValues("invalid").Inc()
		return fail(fmt.Errorf("%w: file is empty", ErrInvalidInput))
	}
	if s.maxUploadBytes > 0 && saved.BytesWritten > s.maxUploadBytes {
		uploadsTotal.WithLabelValues("invalid").Inc()
		return fail(fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidInput, s.maxUploadBytes))
	}

	var hash string
	if req.Password != "" {
		hash, err = s.passwords.Hash(req.Password)
		if err != nil {
			uploadsTotal.WithLabelValues("error").Inc()
			return fail(err)
		}
	}

	now := s.now()
	rec := ShareRecord{
		ID:           id,
		BlobPath:     blobPath,
		OriginalName: req.Name,
		SizeBytes:    saved.BytesWritten,
		ContentType:  req.ContentType,
		PasswordHash: hash,
		CreatedAt:    now,
		ExpiresAt:    now.Add(req.TTL),
		MaxDownloads: req.MaxDownloads,
	}

	for attempt := 1; ; attempt++ {
		// after an unavailable store the write may have landed anyway
		uncertain := false
		err = retryStoreErr(ctx, s.retry, func() error {
			err := s.repo.Create(ctx, rec)
			if uncertain && errors.Is(err, ErrConflict) && s.stored(ctx, rec) {
				return nil
			}
			uncertain = errors.Is(err, ErrStoreUnavailable)
			return err
		})
		if err == nil {
			break
		}
		if errors.Is(err, ErrConflict) && attempt < s.idAttempts {
			idCollisionsTotal.Inc()
			s.logger.Warn("share id collision, regenerating", slog.Int("attempt", attempt))
			rec.ID = s.ids.Generate()
			continue
		}
		uploadsTotal.WithLabelValues("error").Inc()
		return fail(fmt.Errorf("create share: %w", err))
	}

	uploadsTotal.WithLabelValues("ok").Inc()
	uploadBytesTotal.Add(float64(rec.SizeBytes))

	return UploadResult{
		ID:           rec.ID,
		Name:         rec.OriginalName,
		SizeBytes:    rec.SizeBytes,
		ContentType:  rec.ContentType,
		ExpiresAt:    rec.ExpiresAt,
		HasPassword:  rec.HasPassword(),
		MaxDownloads: rec.MaxDownloads,
	}, nil
}

// stored reports whether rec is already persisted with its blob path.
func (s *Service) stored(ctx context.Context, rec ShareRecord) bool {
	existing, err := s.repo.Get(ctx, rec.ID)
	return err == nil && existing.BlobPath == rec.BlobPath
}

func (s *Service) normalizeUpload(req UploadRequest) (UploadRequest, error) {
	req.Name = SanitizeName(req.Name)
	if req.ContentType == "" {
		req.ContentType = DetectContentType(req.Name)
	}

	switch {
	case req.TTL == 0:
		req.TTL = s.defaultTTL
	case req.TTL < 0:
		return req, fmt.Errorf("%w: ttl must be positive", ErrInvalidInput)
	case req.TTL > s.maxTTL:
		return req, fmt.Errorf("%w: ttl must be at most %s", ErrInvalidInput, s.maxTTL)
	}

	if req.MaxDownloads != nil {
		if *req.MaxDownloads < 1 || *req.MaxDownloads > s.maxDownloadsLimit {
			return req, fmt.Errorf("%w: max downloads must be between 1 and %d", ErrInvalidInput, s.maxDownloadsLimit)
		}
		limit := *req.MaxDownloads
		req.MaxDownloads = &limit
	}

	if req.Password != "" {
		if err := ValidatePassword(req.Password); err != nil {
			return req, err
		}
	}

	return req, nil
}

func (s *Service) discardBlob(blobPath string) error {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), s.cleanupTimeout)
	defer cancel()

	if err := s.storage.Delete(cleanupCtx, blobPath); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// Resolve grants one download of a share. On success the caller must close
// ResolveResult.Content.
//
// Refusals are returned as *DeniedError. A share that is missing, expired,
// exhausted or that lost the admission race is always reported as
// ReasonNotFound. Store failures that outlive the retry budget are returned
// as plain errors and never turn into a grant.
func (s *Service) Resolve(ctx context.Context, id, password string) (ResolveResult, error) {
	if err := ctx.Err(); err != nil {
		return ResolveResult{}, fmt.Errorf("resolve: %w", err)
	}

	rec, err := s.lookup(ctx, id, password)
	if err != nil {
		return ResolveResult{}, err
	}

	content, err := s.storage.Get(ctx, rec.BlobPath)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Error("share has no blob, reclaiming", slog.String("share", shortID(rec.ID)))
			s.reclaim(ctx, rec)
			resolvesTotal.WithLabelValues(DecisionNotFound.String()).Inc()
			return ResolveResult{}, denied(ReasonNotFound, err)
		}
		return ResolveResult{}, fmt.Errorf("resolve: open blob: %w", err)
	}

	now := s.now()
	count, err := retryStore(ctx, s.retry, func() (int, error) {
		return s.repo.Admit(ctx, rec.ID, now)
	})
	if err != nil {
		if closeErr := content.Close(); closeErr != nil {
			s.logger.Warn("failed to close blob", slog.String("error", closeErr.Error()))
		}
		if errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrNotFound) {
			admissionsLostTotal.Inc()
			resolvesTotal.WithLabelValues(DecisionNotFound.String()).Inc()
			return ResolveResult{}, denied(ReasonNotFound, err)
		}
		return ResolveResult{}, fmt.Errorf("resolve: admit: %w", err)
	}

	rec.CurrentDownloads = count
	rec.LastAccessedAt = &now
	resolvesTotal.WithLabelValues(DecisionAllowed.String()).Inc()

	return ResolveResult{Share: rec.Info(), Content: content}, nil
}

// Info evaluates access to a share without consuming a download.
func (s *Service) Info(ctx context.Context, id, password string) (ShareInfo, error) {
	if err := ctx.Err(); err != nil {
		return ShareInfo{}, fmt.Errorf("info: %w", err)
	}

	rec, err := s.lookup(ctx, id, password)
	if err != nil {
		return ShareInfo{}, err
	}
	return rec.Info(), nil
}

// Revoke tombstones a share so it grants nothing more, whatever its state,
// and then releases its blob. A blob that cannot be released now is left to
// the sweeper.
func (s *Service) Revoke(ctx context.Context, id string) error {
	if !IsValidID(id) {
		return fmt.Errorf("revoke: %w", ErrNotFound)
	}

	rec, err := retryStore(ctx, s.retry, func() (ShareRecord, error) {
		return s.repo.Get(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("revoke: %w", err)
	}

	now := s.now()
	err = retryStoreErr(ctx, s.retry, func() error {
		return s.repo.Delete(ctx, id, now)
	})
	if err != nil {
		return fmt.Errorf("revoke: %w", err)
	}

	if err := releaseBlob(ctx, s.repo, s.storage, rec, now); err != nil {
		s.logger.Warn("revoked share keeps its blob until the next sweep",
			slog.String("share", shortID(id)),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// lookup fetches the share and runs it through the guard. Anything but
// DecisionAllowed comes back as a *DeniedError.
func (s *Service) lookup(ctx context.Context, id, password string) (ShareRecord, error) {
	if !IsValidID(id) {
		resolvesTotal.WithLabelValues(DecisionNotFound.String()).Inc()
		return ShareRecord{}, denied(ReasonNotFound, nil)
	}

	rec, err := retryStore(ctx, s.retry, func() (ShareRecord, error) {
		return s.repo.Get(ctx, id)
	})

	var found *ShareRecord
	switch {
	case err == nil:
		found = &rec
	case errors.Is(err, ErrNotFound):
	default:
		return ShareRecord{}, fmt.Errorf("lookup share: %w", err)
	}

	ev := s.guard.Evaluate(found, s.now(), password)
	if ev.Reclaimable() && s.reclaimOnAccess {
		s.reclaim(ctx, rec)
	}

	if ev.Decision != DecisionAllowed {
		resolvesTotal.WithLabelValues(ev.Decision.String()).Inc()
		return ShareRecord{}, denied(ev.Decision.reason(), nil)
	}

	return rec, nil
}

// reclaim tombstones a dead share and releases its blob. Failures are only
// logged: the sweeper retries whatever is left behind.
func (s *Service) reclaim(ctx context.Context, rec ShareRecord) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cleanupTimeout)
	defer cancel()

	if err := reclaimShare(cleanupCtx, s.repo, s.storage, rec, s.now()); err != nil {
		s.logger.Warn("reclaim on access failed",
			slog.String("share", shortID(rec.ID)),
			slog.String("error", err.Error()),
		)
		return
	}
	lazyReclaimsTotal.Inc()
}

// Stats aggregates the share table at the current time.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}

	now := s.now()
	st, err := retryStore(ctx, s.retry, func() (Stats, error) {
		return s.repo.Stats(ctx, now)
	})
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// shortID keeps log lines from carrying a usable capability.
func shortID(id string) string {
	if len(id) <= 6 {
		return id
	}
	return id[:6] + "…"
}
