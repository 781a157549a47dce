package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultFlagClearDelay is how long freshly merged issues stay highlighted.
const DefaultFlagClearDelay = 1500 * time.Millisecond

// FlagClearer resets the new-issue flag for one merge cohort.
type FlagClearer interface {
	ClearNew(ctx context.Context, cohort uint64) int
}

// FlagManager runs one clear timer per merge cohort. Each cohort is cleared
// exactly once, either by its timer or by Stop.
type FlagManager struct {
	clearer FlagClearer
	delay   time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	timers  map[uint64]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

// NewFlagManager creates a FlagManager.
func NewFlagManager(clearer FlagClearer, delay time.Duration, logger *zap.Logger) *FlagManager {
	if delay <= 0 {
		delay = DefaultFlagClearDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlagManager{
		clearer: clearer,
		delay:   delay,
		logger:  logger.With(zap.String("component", "flag_manager")),
		timers:  make(map[uint64]*time.Timer),
	}
}

// Schedule arms the clear timer for cohort. Zero cohorts, repeated cohorts and
// calls after Stop are ignored.
func (f *FlagManager) Schedule(cohort uint64) {
	if cohort == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	if _, exists := f.timers[cohort]; exists {
		return
	}
	f.wg.Add(1)
	f.timers[cohort] = time.AfterFunc(f.delay, func() { f.fire(cohort) })
}

// Pending returns the number of armed timers.
func (f *FlagManager) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// fire clears the cohort if nobody else has claimed it yet.
func (f *FlagManager) fire(cohort uint64) {
	f.mu.Lock()
	if _, ok := f.timers[cohort]; !ok {
		f.mu.Unlock()
		return
	}
	delete(f.timers, cohort)
	f.mu.Unlock()

	f.clear(cohort)
}

func (f *FlagManager) clear(cohort uint64) {
	defer f.wg.Done()
	n := f.clearer.ClearNew(context.Background(), cohort)
	f.logger.Debug("new flags cleared", zap.Uint64("cohort", cohort), zap.Int("count", n))
}

// Stop cancels pending timers and clears their cohorts immediately so no issue
// stays flagged after shutdown. It waits for clears already running.
func (f *FlagManager) Stop() {
	f.mu.Lock()
	f.stopped = true
	claimed := make([]uint64, 0, len(f.timers))
	for cohort, timer := range f.timers {
		timer.Stop()
		claimed = append(claimed, cohort)
		delete(f.timers, cohort)
	}
	f.mu.Unlock()

	for _, cohort := range claimed {
		f.clear(cohort)
	}
	f.wg.Wait()
}
