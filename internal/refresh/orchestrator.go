// Package refresh coordinates when subscription ingestion runs: on startup,
// on a timer, when the app becomes active and on explicit request.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/pders01/unwatched/internal/config"
	"github.com/pders01/unwatched/internal/debuglog"
	"github.com/pders01/unwatched/internal/feed"
	"github.com/pders01/unwatched/internal/storage"
)

// Ingester runs the ingestion pipeline. nil ids means every subscription.
type Ingester interface {
	Ingest(ctx context.Context, ids []string) (*feed.IngestReport, error)
}

// Result describes one refresh request. Skipped is set when another run was
// already in progress or the startup policy decided no refresh was due.
type Result struct {
	Skipped bool
	Report  *feed.IngestReport
}

// Orchestrator is the single entry point for refresh triggers. At most one
// run is in flight per process, and per machine when a lock path is set.
type Orchestrator struct {
	store    *storage.Store
	config   *config.Config
	ingester Ingester
	now      func() time.Time

	running atomic.Bool
	lock    *flock.Flock

	mu         sync.Mutex
	cancelWait context.CancelFunc
}

func New(store *storage.Store, cfg *config.Config, ingester Ingester) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		config:   cfg,
		ingester: ingester,
		now:      time.Now,
	}
	if cfg.Refresh.LockPath != "" {
		o.lock = flock.New(cfg.Refresh.LockPath)
	}
	return o
}

// IsLoading reports whether a refresh is running in this process.
func (o *Orchestrator) IsLoading() bool {
	return o.running.Load()
}

// RefreshAll ingests every subscription and records the completion time,
// whether or not the run succeeded. A skipped run records nothing but still
// returns the error that made it skip, if any.
func (o *Orchestrator) RefreshAll(ctx context.Context) (*Result, error) {
	result, err := o.run(ctx, nil)
	if result.Skipped {
		return result, err
	}

	state, stateErr := o.store.GetRefreshState()
	if stateErr == nil {
		state.LastAutoRefresh = storage.Time(o.now())
		stateErr = o.store.SaveRefreshState(state)
	}
	if stateErr != nil {
		stateErr = fmt.Errorf("recording refresh time: %w", stateErr)
	}
	return result, errors.Join(err, stateErr)
}

// RefreshOne ingests a single subscription. It leaves the auto-refresh
// timestamp alone.
func (o *Orchestrator) RefreshOne(ctx context.Context, subscriptionID string) (*Result, error) {
	return o.run(ctx, []string{subscriptionID})
}

// RefreshOnStartup runs RefreshAll when startup refresh is enabled and the
// last automatic refresh is older than the auto interval.
func (o *Orchestrator) RefreshOnStartup(ctx context.Context) (*Result, error) {
	if !o.config.Refresh.OnStartup {
		debuglog.Debugf("refresh: startup refresh disabled")
		return &Result{Skipped: true}, nil
	}

	state, err := o.store.GetRefreshState()
	if err != nil {
		return &Result{Skipped: true}, fmt.Errorf("reading refresh state: %w", err)
	}
	if last := state.LastAutoRefresh; last != nil {
		if elapsed := o.now().Sub(*last); elapsed <= o.config.Refresh.AutoInterval {
			debuglog.Debugf("refresh: last refresh %s ago, not due", elapsed.Round(time.Second))
			return &Result{Skipped: true}, nil
		}
	}
	return o.RefreshAll(ctx)
}

// HandleBecameActive runs RefreshOnStartup when the app returns to the
// foreground. With sync enabled it first waits for syncSettled or the
// settle timeout, whichever comes first. A later call cancels a pending
// wait, and the cancelled call reports Skipped.
func (o *Orchestrator) HandleBecameActive(ctx context.Context, syncSettled <-chan struct{}) (*Result, error) {
	if !o.config.Sync.Enabled {
		return o.RefreshOnStartup(ctx)
	}

	waitCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	if o.cancelWait != nil {
		o.cancelWait()
	}
	o.cancelWait = cancel
	o.mu.Unlock()
	defer cancel()

	timer := time.NewTimer(o.config.Sync.SettleTimeout)
	defer timer.Stop()

	select {
	case <-syncSettled:
	case <-timer.C:
		debuglog.Debugf("refresh: sync did not settle within %s", o.config.Sync.SettleTimeout)
	case <-waitCtx.Done():
		if err := ctx.Err(); err != nil {
			return &Result{Skipped: true}, err
		}
		debuglog.Debugf("refresh: pending activation superseded")
		return &Result{Skipped: true}, nil
	}
	return o.RefreshOnStartup(ctx)
}

// HandleAutoBackup writes a store snapshot once per calendar day when
// automatic backups are enabled. It returns the snapshot path, or "" when no
// backup was due.
func (o *Orchestrator) HandleAutoBackup(_ context.Context) (string, error) {
	if !o.config.Backup.Automatic {
		return "", nil
	}

	state, err := o.store.GetRefreshState()
	if err != nil {
		return "", fmt.Errorf("reading refresh state: %w", err)
	}
	now := o.now()
	if state.LastAutoBackup != nil && sameDay(*state.LastAutoBackup, now) {
		return "", nil
	}

	path, err := o.store.BackupToFile(o.config.Backup.Dir, now)
	if err != nil {
		return "", err
	}
	state.LastAutoBackup = storage.Time(now)
	if err := o.store.SaveRefreshState(state); err != nil {
		return path, fmt.Errorf("recording backup time: %w", err)
	}
	debuglog.Infof("refresh: wrote backup %s", path)
	return path, nil
}

// Run refreshes on startup and then every auto interval until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	if _, err := o.RefreshOnStartup(ctx); err != nil {
		debuglog.Warnf("refresh: startup refresh: %v", err)
	}
	if _, err := o.HandleAutoBackup(ctx); err != nil {
		debuglog.Warnf("refresh: auto backup: %v", err)
	}

	ticker := time.NewTicker(o.config.Refresh.AutoInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			result, err := o.RefreshAll(ctx)
			if err != nil {
				debuglog.Warnf("refresh: scheduled refresh: %v", err)
			} else if result.Skipped {
				debuglog.Debugf("refresh: scheduled refresh skipped, run in progress")
			}
			if _, err := o.HandleAutoBackup(ctx); err != nil {
				debuglog.Warnf("refresh: auto backup: %v", err)
			}
		}
	}
}

// run holds the in-process flag and the file lock for the duration of one
// ingestion. A request that finds either taken is a no-op.
func (o *Orchestrator) run(ctx context.Context, ids []string) (*Result, error) {
	if !o.running.CompareAndSwap(false, true) {
		debuglog.Debugf("refresh: already running, request dropped")
		return &Result{Skipped: true}, nil
	}
	defer o.running.Store(false)

	if o.lock != nil {
		locked, err := o.lock.TryLock()
		if err != nil {
			return &Result{Skipped: true}, fmt.Errorf("acquiring refresh lock: %w", err)
		}
		if !locked {
			debuglog.Debugf("refresh: another process holds %s", o.lock.Path())
			return &Result{Skipped: true}, nil
		}
		defer func() {
			if err := o.lock.Unlock(); err != nil {
				debuglog.Warnf("refresh: releasing lock: %v", err)
			}
		}()
	}

	start := o.now()
	report, err := o.ingester.Ingest(ctx, ids)
	if report != nil {
		debuglog.WithFields(map[string]interface{}{
			"subscriptions": report.Subscriptions,
			"new":           report.NewVideos,
			"failed":        len(report.Failed),
		}).Infof("refresh finished in %s", o.now().Sub(start).Round(time.Millisecond))
	}
	return &Result{Report: report}, err
}

func sameDay(a, b time.Time) bool {
	a, b = a.Local(), b.Local()
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
