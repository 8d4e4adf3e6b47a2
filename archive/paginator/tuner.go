package paginator

import (
	"sync"
	"time"

	"github.com/hindsightlabs/hindsight/archive/source"
)

// Performance is what one pagination run achieved for a domain.
type Performance struct {
	PagesFetched     int
	RecordsKept      int
	Duration         time.Duration
	SuccessRatio     float64
	RecordsPerSecond float64
	RecordedAt       time.Time
}

// Settings are the pagination parameters recommended for the next run against
// a domain.
type Settings struct {
	PageSize   int
	MaxWorkers int
	BatchSize  int
	MaxPages   int
}

// Tuner remembers the most recent run per domain and recommends settings for
// the next one: fast, reliable domains get large pages and more workers, slow
// or flaky ones get throttled.
type Tuner struct {
	mtx  sync.Mutex
	last map[string]Performance
}

func NewTuner() *Tuner {
	return &Tuner{last: make(map[string]Performance)}
}

// Record stores the outcome of a run for a domain.
func (t *Tuner) Record(domain string, p Performance) {
	p.RecordedAt = time.Now()
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.last[domain] = p
}

// Last returns the most recent recorded performance for a domain.
func (t *Tuner) Last(domain string) (Performance, bool) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	p, ok := t.last[domain]
	return p, ok
}

// OptimalSettings recommends pagination parameters for the next run against
// the domain. ok is false when the domain has no history yet; callers should
// stick with their configured defaults.
func (t *Tuner) OptimalSettings(domain string) (Settings, bool) {
	p, ok := t.Last(domain)
	if !ok {
		return Settings{}, false
	}

	switch {
	case p.RecordsPerSecond > 50 && p.SuccessRatio > 0.95:
		return Settings{PageSize: 5000, MaxWorkers: 12, BatchSize: 15, MaxPages: 100}, true
	case p.RecordsPerSecond > 20 && p.SuccessRatio > 0.80:
		return Settings{PageSize: 3000, MaxWorkers: 8, BatchSize: 10, MaxPages: 50}, true
	default:
		return Settings{PageSize: 1000, MaxWorkers: 4, BatchSize: 5, MaxPages: 20}, true
	}
}

func performanceFrom(stats source.QueryStats, pagesRequested int) Performance {
	p := Performance{
		PagesFetched: stats.PagesFetched,
		RecordsKept:  stats.Filter.Kept,
		Duration:     stats.Duration,
	}
	if pagesRequested > 0 {
		p.SuccessRatio = float64(stats.PagesFetched) / float64(pagesRequested)
	}
	if secs := stats.Duration.Seconds(); secs > 0 {
		p.RecordsPerSecond = float64(stats.RecordsFound) / secs
	}
	return p
}
