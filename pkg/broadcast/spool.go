package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/lingopad/lexsync/pkg/core"
)

// spoolEnvelope is the on-disk shape of one published event.
type spoolEnvelope struct {
	Origin string     `json:"origin"`
	Event  core.Event `json:"event"`
}

// SpoolConfig configures the cross-context channel.
type SpoolConfig struct {
	// Dir is the spool directory shared by all contexts of one profile.
	Dir string
	// Broker receives events published by other contexts.
	Broker *Broker
	Logger *slog.Logger
	// Retention bounds how long event files linger (default 1 minute).
	Retention time.Duration
}

// Spool carries events between contexts through a shared directory: each
// publish writes one JSON file, every other context observes it via
// fsnotify and feeds its local broker. Events from this context are skipped
// by origin id; the broker's duplicate suppression covers replays.
type Spool struct {
	*worker.BaseWorker
	dir       string
	contextID string
	broker    *Broker
	logger    *slog.Logger
	retention time.Duration

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc

	mu    sync.Mutex
	seq   int
	start time.Time
}

// NewSpool creates the channel and its spool directory.
func NewSpool(cfg SpoolConfig) (*Spool, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("broadcast: spool dir is required")
	}
	if cfg.Broker == nil {
		return nil, fmt.Errorf("broadcast: broker is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("broadcast: create spool dir: %w", err)
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = time.Minute
	}
	return &Spool{
		BaseWorker: worker.NewBaseWorker("broadcast-spool"),
		dir:        cfg.Dir,
		contextID:  uuid.NewString(),
		broker:     cfg.Broker,
		logger:     cfg.Logger,
		retention:  retention,
	}, nil
}

// ContextID identifies this running context; events it publishes are not
// redelivered to itself.
func (s *Spool) ContextID() string { return s.contextID }

// Publish writes the event to the spool for other contexts to pick up, then
// prunes expired files. Write is atomic (temp + rename) so watchers never
// observe a torn file.
func (s *Spool) Publish(event core.Event) error {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	envelope := spoolEnvelope{Origin: s.contextID, Event: event}
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("%d-%06d-%s.json", time.Now().UnixNano(), seq, event.EventID)
	tmp := filepath.Join(s.dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("broadcast: write spool file: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("broadcast: publish spool file: %w", err)
	}

	s.prune()
	return nil
}

// Start begins watching the spool directory. Events already present are not
// replayed: only changes after start reach the broker.
func (s *Spool) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := s.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("spool already started (status: %s)", status)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch spool dir: %w", err)
	}

	s.watcher = watcher
	s.start = time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.SetStatus(worker.StatusRunning)
	return s.StartFunc(runCtx, s.run)
}

// Stop cancels the watch loop.
func (s *Spool) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.StopRequested = true
		s.cancel()
	}
	return s.BaseWorker.Stop(ctx)
}

// State implements the lifecycle worker contract.
func (s *Spool) State() worker.State {
	return s.ExportState(func(st *worker.State) {
		st.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
		}
	})
}

func (s *Spool) run(ctx context.Context) error {
	defer s.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-s.watcher.Events:
			if !ok {
				if s.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("spool events channel closed")
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			s.deliver(event.Name)

		case wErr, ok := <-s.watcher.Errors:
			if !ok {
				if s.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("spool errors channel closed")
			}
			if s.logger != nil {
				s.logger.Error("spool watcher error", "error", wErr)
			}
		}
	}
}

func (s *Spool) deliver(path string) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return // Pruned by another context between notify and read.
	}
	var envelope spoolEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		if s.logger != nil {
			s.logger.Debug("skipping malformed spool file", "file", name, "error", err)
		}
		return
	}
	if envelope.Origin == s.contextID {
		return
	}
	s.broker.Publish(envelope.Event)
}

// prune removes event files older than the retention window.
func (s *Spool) prune() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-s.retention)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(s.dir, entry.Name()))
		}
	}
}
