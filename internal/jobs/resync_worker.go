package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/postline/postline-backend/internal/engine"
	"github.com/postline/postline-backend/internal/staleness"
)

// ResyncWorker drains the staleness poller's dirty set on a fixed cadence and
// hands the flagged projects to the engine for a full resync. Keeping this
// outside the poller means a slow remote fetch never delays the poll ticks.
type ResyncWorker struct {
	engine *engine.Engine
	poller *staleness.Poller
	logger *zap.SugaredLogger
	config ResyncWorkerConfig

	mu        sync.Mutex
	cancelCtx context.CancelFunc
}

type ResyncWorkerConfig struct {
	Interval time.Duration // How often the dirty set is drained
}

func DefaultResyncWorkerConfig() ResyncWorkerConfig {
	return ResyncWorkerConfig{
		Interval: 30 * time.Second,
	}
}

func NewResyncWorker(eng *engine.Engine, poller *staleness.Poller, logger *zap.SugaredLogger, config ResyncWorkerConfig) *ResyncWorker {
	return &ResyncWorker{
		engine: eng,
		poller: poller,
		logger: logger,
		config: config,
	}
}

func (w *ResyncWorker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancelCtx = cancel
	w.mu.Unlock()

	w.logger.Infow("Starting resync worker", "interval", w.config.Interval)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Infow("Resync worker stopping due to context cancellation")
			return ctx.Err()
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *ResyncWorker) Stop() {
	w.mu.Lock()
	cancel := w.cancelCtx
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// drain performs one resync pass. Exposed through Tick for tests.
func (w *ResyncWorker) drain(ctx context.Context) {
	dirty := w.poller.DirtyProjects()
	if len(dirty) == 0 {
		return
	}

	w.logger.Infow("Resyncing externally changed projects", "count", len(dirty))
	w.engine.RefreshProjects(ctx, dirty)
}

// Tick runs a single drain pass without the ticker.
func (w *ResyncWorker) Tick(ctx context.Context) {
	w.drain(ctx)
}
