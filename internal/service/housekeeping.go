package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/halikara/tokend/internal/store"
	"github.com/halikara/tokend/pkg/httpx"
)

// HousekeepingService periodically drops CSRF bindings whose refresh
// record is revoked or expired, and prunes idle login rate-limit buckets.
// Refresh token records themselves are never deleted: an absent record is
// how rotation tells a forged token from a replayed one.
type HousekeepingService struct {
	Store    store.Store
	Limiter  *httpx.LoginLimiter
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service with the given
// interval. If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(st store.Store, limiter *httpx.LoginLimiter, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    st,
		Limiter:  limiter,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop() to shut
// it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop gracefully shuts down the background worker. Blocks until any
// in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup performs the actual work. Each task is independent; a failure in
// one does not stop the others.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()

	purged, err := s.Store.CsrfMappings().PurgeOrphaned(ctx)
	if err != nil {
		s.Logger.Error("failed to purge orphaned csrf mappings", "error", err)
	} else if purged > 0 {
		s.Logger.Debug("purged orphaned csrf mappings", "count", purged)
	}

	if s.Limiter != nil {
		if pruned := s.Limiter.Prune(s.Interval); pruned > 0 {
			s.Logger.Debug("pruned idle login limiter buckets", "count", pruned)
		}
	}
}
