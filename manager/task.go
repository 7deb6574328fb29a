package manager

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/registry"
	"github.com/arloliu/deltapack/stats"
)

// statsTask is the state of the background statistics task.
type statsTask struct {
	// mu serializes drains and saves.
	mu      sync.Mutex
	session map[string]*stats.Snapshot
	dirty   map[string]struct{}

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (t *statsTask) init() {
	t.session = make(map[string]*stats.Snapshot)
	t.dirty = make(map[string]struct{})
}

// Start runs the statistics task in the background until Stop is called or
// ctx is done. Every interval it drains the error statistics gathered by the
// registry's error-distribution policies and persists this session's totals.
func (m *Manager) Start(ctx context.Context) error {
	if m.store == nil {
		return errs.ErrNoStore
	}

	m.task.runMu.Lock()
	defer m.task.runMu.Unlock()

	if m.task.cancel != nil {
		return errs.ErrTaskRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	m.task.cancel = cancel
	m.task.wg.Add(1)
	go func() {
		defer m.task.wg.Done()
		m.run(ctx)
	}()

	m.logger.Info("statistics task started", "session", m.session, "interval", m.interval)

	return nil
}

// Stop ends the statistics task, waits for it to exit and flushes once more
// with ctx. Stop without a running task only flushes.
func (m *Manager) Stop(ctx context.Context) error {
	m.task.runMu.Lock()
	cancel := m.task.cancel
	m.task.cancel = nil
	m.task.runMu.Unlock()

	if cancel != nil {
		cancel()
		m.task.wg.Wait()
		m.logger.Info("statistics task stopped", "session", m.session)
	}

	return m.Flush(ctx)
}

func (m *Manager) run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Flush(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warn("statistics flush failed, retrying next interval", "error", err)
			}
		}
	}
}

// Flush drains every error-distribution model into this session's totals
// and saves the totals that changed. Totals that fail to save stay pending
// and are saved by the next flush.
func (m *Manager) Flush(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	t := &m.task
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, em := range m.registry.ErrorModels() {
		snap, ok := em.Model.DrainCounts(em.Key, em.Channel)
		if !ok {
			continue
		}

		id := snap.ID()
		if acc, found := t.session[id]; found {
			acc.Accumulate(snap)
		} else {
			snap.Session = m.session
			t.session[id] = snap
		}
		t.dirty[id] = struct{}{}
	}

	var errList []error
	for _, id := range slices.Sorted(maps.Keys(t.dirty)) {
		if err := m.store.Save(ctx, t.session[id].Clone()); err != nil {
			errList = append(errList, fmt.Errorf("save %q: %w", id, err))
			continue
		}
		delete(t.dirty, id)
		m.logger.Debug("statistics saved", "id", id, "session", m.session, "observations", t.session[id].Total())
	}

	return errors.Join(errList...)
}

// Pending returns a copy of this session's totals for key and channel, or
// nil when nothing was drained for them yet.
func (m *Manager) Pending(key, channel string) *stats.Snapshot {
	m.task.mu.Lock()
	defer m.task.mu.Unlock()

	if snap, ok := m.task.session[stats.ID(key, channel)]; ok {
		return snap.Clone()
	}

	return nil
}

// Seed loads the seed statistics of every error-distribution model: the
// write side from the write source, the read side from the read source.
// Sides without statistics keep raw coding. It returns the number of seeded
// write and read sides.
func (m *Manager) Seed(ctx context.Context) (write, read int, err error) {
	if m.seedWrite == nil && m.seedRead == nil {
		return 0, 0, errs.ErrNoSeedSource
	}

	var errList []error
	for _, em := range m.registry.ErrorModels() {
		if snap, ok, loadErr := m.loadSeed(ctx, m.seedWrite, em); loadErr != nil {
			errList = append(errList, loadErr)
		} else if ok {
			em.Model.SeedWrite(snap)
			write++
			m.logger.Info("seeded error distribution", "side", "write", "key", em.Key, "channel", em.Channel, "observations", snap.Total())
		}

		if snap, ok, loadErr := m.loadSeed(ctx, m.seedRead, em); loadErr != nil {
			errList = append(errList, loadErr)
		} else if ok {
			em.Model.SeedRead(snap)
			read++
			m.logger.Info("seeded error distribution", "side", "read", "key", em.Key, "channel", em.Channel, "observations", snap.Total())
		}
	}

	return write, read, errors.Join(errList...)
}

func (m *Manager) loadSeed(ctx context.Context, src stats.Source, em registry.ErrorModel) (*stats.Snapshot, bool, error) {
	if src == nil {
		return nil, false, nil
	}

	snap, err := src.Load(ctx, em.Key, em.Channel)
	if errors.Is(err, errs.ErrStatsNotFound) {
		m.logger.Debug("no seed statistics", "key", em.Key, "channel", em.Channel)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %q: %w", stats.ID(em.Key, em.Channel), err)
	}

	return snap, true, nil
}
