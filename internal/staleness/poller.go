// Package staleness runs the background poll that asks the remote store
// which projects changed, and tracks which of those changes the client
// caused itself so they are not re-flagged as externally dirty.
package staleness

import (
	"context"
	"sync"
	"time"

	"github.com/postline/postline-backend/internal/metrics"
	"github.com/postline/postline-backend/internal/remote"
	"go.uber.org/zap"
)

type Poller struct {
	store   remote.Store
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
	config  PollerConfig

	mu            sync.RWMutex
	dirty         map[string]struct{}
	selfRefreshed map[string]time.Time
	cancelCtx     context.CancelFunc

	// now is swappable for tests.
	now func() time.Time
}

type PollerConfig struct {
	Interval time.Duration // Background poll tick
	// SuppressionWindow is how long after a self-triggered refresh a
	// project's own updates are ignored by the poll.
	SuppressionWindow time.Duration
	// PruneAge is when suppression entries are dropped opportunistically.
	PruneAge time.Duration
}

func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:          30 * time.Second,
		SuppressionWindow: 10 * time.Second,
		PruneAge:          60 * time.Second,
	}
}

func NewPoller(store remote.Store, logger *zap.SugaredLogger, m *metrics.Metrics, config PollerConfig) *Poller {
	return &Poller{
		store:         store,
		logger:        logger,
		metrics:       m,
		config:        config,
		dirty:         make(map[string]struct{}),
		selfRefreshed: make(map[string]time.Time),
		now:           time.Now,
	}
}

// Start runs the poll loop until the context is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancelCtx = cancel
	p.mu.Unlock()

	p.logger.Infow("Starting staleness poller",
		"interval", p.config.Interval,
		"suppression", p.config.SuppressionWindow,
	)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Infow("Staleness poller stopping")
			return ctx.Err()
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Stop cancels a running poll loop.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancelCtx
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Tick performs one poll cycle. Exposed so tests and on-demand refreshes can
// drive the poller without the ticker.
func (p *Poller) Tick(ctx context.Context) {
	if p.metrics != nil {
		p.metrics.RecordPollTick(ctx)
	}

	ids, err := p.store.UpdatedProjectIDs(ctx)
	if err != nil {
		p.logger.Warnw("Updated-projects poll failed", "error", err)
		return
	}

	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.pruneLocked(now)

	for _, id := range ids {
		if at, ok := p.selfRefreshed[id]; ok && now.Sub(at) < p.config.SuppressionWindow {
			p.logger.Debugw("Suppressing self-triggered update", "project", id)
			continue
		}
		p.dirty[id] = struct{}{}
	}
}

// MarkSelfRefreshed records that the client itself just refreshed the
// project, so the next polls do not re-flag it.
func (p *Poller) MarkSelfRefreshed(projectID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selfRefreshed[projectID] = p.now()
}

// Dirty reports whether a background poll flagged the project as changed
// externally.
func (p *Poller) Dirty(projectID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.dirty[projectID]
	return ok
}

// ClearDirty acknowledges a flagged project after it has been resynced.
func (p *Poller) ClearDirty(projectID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.dirty, projectID)
}

// DirtyProjects returns the currently flagged project ids.
func (p *Poller) DirtyProjects() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.dirty))
	for id := range p.dirty {
		ids = append(ids, id)
	}
	return ids
}

func (p *Poller) pruneLocked(now time.Time) {
	for id, at := range p.selfRefreshed {
		if now.Sub(at) > p.config.PruneAge {
			delete(p.selfRefreshed, id)
		}
	}
}
