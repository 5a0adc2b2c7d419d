package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/simehr/simehr/internal/store"
	"github.com/simehr/simehr/sim"
)

// autosaver snapshots the simulator into the store on a wall-time interval.
// Every store failure is logged and swallowed; a nil autosaver does nothing.
type autosaver struct {
	db    *store.Store
	every time.Duration
	since time.Duration
}

// openState opens the snapshot store and restores the latest snapshot into s.
// It returns nil when persistence is off or the store cannot be opened.
func openState(ctx context.Context, opts runOptions, s *sim.Simulator) *autosaver {
	if opts.State == "" {
		return nil
	}
	db, err := store.Open(opts.State)
	if err != nil {
		logrus.Warnf("state store unavailable, continuing without persistence: %v", err)
		return nil
	}
	if opts.Fresh {
		if err := db.Clear(ctx); err != nil {
			logrus.Warnf("clearing saved state: %v", err)
		}
		logrus.Info("Saved state discarded (--fresh)")
	}
	restoreLatest(ctx, db, s)
	return &autosaver{db: db, every: opts.Autosave}
}

// restoreLatest loads the newest snapshot. Anything unusable means "no prior
// state"; snapshots from another schema version are deleted.
func restoreLatest(ctx context.Context, db *store.Store, s *sim.Simulator) {
	snap, err := db.Latest(ctx)
	switch {
	case errors.Is(err, store.ErrNoSnapshot):
		logrus.Info("No saved state; starting fresh")
		return
	case errors.Is(err, sim.ErrSchemaMismatch):
		logrus.Warnf("Discarding saved state: %v", err)
		if err := db.Clear(ctx); err != nil {
			logrus.Warnf("clearing saved state: %v", err)
		}
		return
	case err != nil:
		logrus.Warnf("reading saved state, starting fresh: %v", err)
		return
	}
	if err := s.Restore(snap); err != nil {
		logrus.Warnf("restoring saved state, starting fresh: %v", err)
		return
	}
	logrus.Infof("Restored state saved at %s", snap.SavedAt.Format(time.RFC3339))
}

func (a *autosaver) tick(ctx context.Context, s *sim.Simulator, wall time.Duration) {
	if a == nil {
		return
	}
	a.since += wall
	if a.since < a.every {
		return
	}
	a.since = 0
	a.save(ctx, s)
}

func (a *autosaver) save(ctx context.Context, s *sim.Simulator) {
	if a == nil {
		return
	}
	if err := a.db.Save(ctx, s.Snapshot()); err != nil {
		logrus.Warnf("autosave failed: %v", err)
	}
}

func (a *autosaver) close() {
	if a == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		logrus.Warnf("closing state store: %v", err)
	}
}
