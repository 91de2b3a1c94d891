package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/kpiforecast/internal/domain/model"
	"github.com/okian/kpiforecast/pkg/metrics"
)

type key struct {
	userID string
	kpiID  string
}

// slot guards one row. The row lock is held for the whole of an Update so
// the read-modify-write of a pair is atomic.
type slot struct {
	mu    sync.Mutex
	state model.CalibrationState
	set   bool
}

// MemoryStore is an in-process CalibrationStore. Rows do not survive a
// restart.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[key]*slot

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopChan              chan struct{}
	stopOnce              sync.Once
}

// NewMemoryStore constructs an empty store and starts its metrics updater,
// which runs until ctx is done or Close is called.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		slots:                 make(map[key]*slot),
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the metrics updater.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, userID, kpiID string) (model.CalibrationState, error) {
	if err := ctx.Err(); err != nil {
		return model.CalibrationState{}, err
	}
	s.mu.RLock()
	sl, ok := s.slots[key{userID, kpiID}]
	s.mu.RUnlock()
	if !ok {
		return model.CalibrationState{}, s.notFound(userID, kpiID)
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if !sl.set {
		return model.CalibrationState{}, s.notFound(userID, kpiID)
	}
	return sl.state, nil
}

func (s *MemoryStore) List(ctx context.Context, userID string) ([]model.CalibrationState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var mine []*slot
	for k, sl := range s.slots {
		if k.userID == userID {
			mine = append(mine, sl)
		}
	}
	s.mu.RUnlock()

	out := make([]model.CalibrationState, 0, len(mine))
	for _, sl := range mine {
		sl.mu.Lock()
		if sl.set {
			out = append(out, sl.state)
		}
		sl.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KPIID < out[j].KPIID })
	return out, nil
}

func (s *MemoryStore) Put(ctx context.Context, state model.CalibrationState) error {
	_, err := s.Update(ctx, state.UserID, state.KPIID, func(model.CalibrationState, bool) (model.CalibrationState, error) {
		return state, nil
	})
	return err
}

func (s *MemoryStore) Update(ctx context.Context, userID, kpiID string, fn UpdateFunc) (model.CalibrationState, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if userID == "" || kpiID == "" {
		metrics.RecordErrorByComponent("repository", "invalid_key")
		return model.CalibrationState{}, fmt.Errorf("%w: user %q kpi %q", ErrInvalidKey, userID, kpiID)
	}
	if err := ctx.Err(); err != nil {
		return model.CalibrationState{}, err
	}

	sl := s.slot(key{userID, kpiID})
	sl.mu.Lock()
	defer sl.mu.Unlock()

	next, err := fn(sl.state, sl.set)
	if err != nil {
		return model.CalibrationState{}, err
	}
	next.UserID, next.KPIID = userID, kpiID
	sl.state, sl.set = next, true
	return next, nil
}

func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	slots := make([]*slot, 0, len(s.slots))
	for _, sl := range s.slots {
		slots = append(slots, sl)
	}
	s.mu.RUnlock()

	n := 0
	for _, sl := range slots {
		sl.mu.Lock()
		if sl.set {
			n++
		}
		sl.mu.Unlock()
	}
	return n
}

// slot returns the slot for k, creating it if needed.
func (s *MemoryStore) slot(k key) *slot {
	s.mu.RLock()
	sl, ok := s.slots[k]
	s.mu.RUnlock()
	if ok {
		return sl
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok = s.slots[k]; !ok {
		sl = &slot{}
		s.slots[k] = sl
	}
	return sl
}

func (s *MemoryStore) notFound(userID, kpiID string) error {
	metrics.RecordErrorByComponent("repository", "not_found")
	return fmt.Errorf("%w: user %q kpi %q", ErrNotFound, userID, kpiID)
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateStoreRecords(s.Count(ctx))
			}
		}
	}()
}
