package perf

import (
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Stat struct {
	Count    int64         `json:"count"`
	Failures int64         `json:"failures"`
	Total    time.Duration `json:"total"`
	Max      time.Duration `json:"max"`
}

func (s Stat) Average() time.Duration {
	if s.Count == 0 {
		return 0
	}

	return s.Total / time.Duration(s.Count)
}

// Monitor times named operations. A nil *Monitor is valid and records nothing.
type Monitor struct {
	logger        *zap.Logger
	slowThreshold time.Duration

	mu    sync.Mutex
	stats map[string]Stat
}

func NewMonitor(logger *zap.Logger, slowThreshold time.Duration) *Monitor {
	return &Monitor{
		logger:        logger,
		slowThreshold: slowThreshold,
		stats:         make(map[string]Stat),
	}
}

// Observe runs fn and records how long it took.
func Observe[T any](m *Monitor, operation string, fn func() (T, error)) (T, error) {
	start := time.Now()
	result, err := fn()
	m.Record(operation, time.Since(start), err)

	return result, err
}

func (m *Monitor) Record(operation string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}

	m.mu.Lock()
	stat := m.stats[operation]
	stat.Count++
	stat.Total += elapsed
	stat.Max = max(stat.Max, elapsed)
	if err != nil {
		stat.Failures++
	}
	m.stats[operation] = stat
	m.mu.Unlock()

	fields := []zap.Field{
		zap.String("operation", operation),
		zap.Duration("elapsed", elapsed),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	if m.slowThreshold > 0 && elapsed > m.slowThreshold {
		m.logger.Warn("slow operation", fields...)
		return
	}

	m.logger.Debug("operation completed", fields...)
}

func (m *Monitor) Snapshot() map[string]Stat {
	if m == nil {
		return map[string]Stat{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return maps.Clone(m.stats)
}
