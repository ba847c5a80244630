package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/worker"

	"github.com/lingopad/lexsync/pkg/core"
)

// tickWorker drives the periodic flush. It also reacts to the engine's
// kick channel so sign-in and reconnect drain the queue immediately.
type tickWorker struct {
	*worker.BaseWorker
	engine *Engine
	cancel context.CancelFunc
}

func newTickWorker(e *Engine) *tickWorker {
	return &tickWorker{
		BaseWorker: worker.NewBaseWorker("sync-tick"),
		engine:     e,
	}
}

func (w *tickWorker) Start(ctx context.Context) error {
	status := w.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("sync tick already started (status: %s)", status)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.SetStatus(worker.StatusRunning)
	return w.StartFunc(runCtx, w.run)
}

func (w *tickWorker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.StopRequested = true
		w.cancel()
	}
	return w.BaseWorker.Stop(ctx)
}

func (w *tickWorker) State() worker.State {
	return w.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
		}
	})
}

func (w *tickWorker) run(ctx context.Context) error {
	ticker := time.NewTicker(w.engine.policy.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if w.StopRequested {
				return nil
			}
			w.sweep(ctx)
		case <-w.engine.kick:
			if w.StopRequested {
				return nil
			}
			w.sweep(ctx)
		}
	}
}

// sweep flushes every kind, logging instead of failing: the next tick is
// always coming.
func (w *tickWorker) sweep(ctx context.Context) {
	for _, kind := range core.Kinds {
		err := w.engine.FlushPending(ctx, kind)
		switch {
		case err == nil:
		case errors.Is(err, core.ErrOffline):
			// Quietly wait for connectivity.
			return
		default:
			w.engine.logWarn("background flush failed", "kind", kind, "error", err)
		}
	}
}
