package pool

import (
	"context"
	"flag"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

const queueLengthReportDuration = 15 * time.Second

var (
	metricQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hindsight",
		Name:      "pool_queue_length",
		Help:      "Current length of the work queue.",
	})
	metricQueueMax = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hindsight",
		Name:      "pool_queue_max",
		Help:      "Maximum number of jobs the work queue can hold.",
	})
	metricJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hindsight",
		Name:      "pool_jobs_total",
		Help:      "Total jobs executed by outcome.",
	}, []string{"outcome"})
)

type Config struct {
	MaxWorkers int `yaml:"max_workers"`
	QueueDepth int `yaml:"queue_depth"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.MaxWorkers, prefix+".max-workers", 30, "Number of workers pulling jobs from the queue.")
	f.IntVar(&cfg.QueueDepth, prefix+".queue-depth", 10000, "Maximum depth of the work queue.")
}

// JobFunc is one unit of work. The error is collected, not fatal to the
// batch; every queued job runs unless the context is cancelled first.
type JobFunc func(ctx context.Context, payload interface{}) error

type job struct {
	ctx     context.Context
	payload interface{}
	fn      JobFunc

	done func(error)
}

// Pool runs batches of jobs over a fixed set of workers. Unlike a plain
// errgroup, a single pool bounds work globally across concurrent batches.
type Pool struct {
	cfg  *Config
	size *atomic.Int32

	workQueue  chan *job
	shutdownCh chan struct{}
}

func NewPool(cfg *Config) *Pool {
	if cfg == nil {
		cfg = &Config{
			MaxWorkers: 30,
			QueueDepth: 10000,
		}
	}

	q := make(chan *job, cfg.QueueDepth)
	p := &Pool{
		cfg:        cfg,
		workQueue:  q,
		size:       atomic.NewInt32(0),
		shutdownCh: make(chan struct{}),
	}

	for i := 0; i < cfg.MaxWorkers; i++ {
		go p.worker(q)
	}

	p.reportQueueLength()
	metricQueueMax.Set(float64(cfg.QueueDepth))

	return p
}

// RunJobs executes fn once per payload and blocks until every job has
// finished. Individual job errors are aggregated and returned together;
// a cancelled context abandons jobs that have not started yet.
func (p *Pool) RunJobs(ctx context.Context, payloads []interface{}, fn JobFunc) error {
	totalJobs := len(payloads)
	if totalJobs == 0 {
		return nil
	}

	// sanity check before we even attempt to start adding jobs
	if int(p.size.Load())+totalJobs > p.cfg.QueueDepth {
		return errors.Errorf("queue doesn't have room for %d jobs", totalJobs)
	}

	var (
		mtx      sync.Mutex
		errs     error
		finished = make(chan struct{})
		pending  = atomic.NewInt32(int32(totalJobs))
	)

	done := func(err error) {
		if err != nil {
			mtx.Lock()
			errs = multierr.Append(errs, err)
			mtx.Unlock()
			metricJobsTotal.WithLabelValues("error").Inc()
		} else {
			metricJobsTotal.WithLabelValues("success").Inc()
		}
		if pending.Dec() == 0 {
			close(finished)
		}
	}

	for _, payload := range payloads {
		j := &job{
			ctx:     ctx,
			payload: payload,
			fn:      fn,
			done:    done,
		}

		select {
		case p.workQueue <- j:
			p.size.Inc()
		default:
			// queue full: fail the remaining jobs without blocking
			done(errors.New("failed to add a job to work queue"))
		}
	}

	select {
	case <-finished:
	case <-ctx.Done():
		return ctx.Err()
	}

	return errs
}

// Shutdown stops all workers. Jobs still in the queue are abandoned.
func (p *Pool) Shutdown() {
	close(p.workQueue)
	close(p.shutdownCh)
}

func (p *Pool) worker(j <-chan *job) {
	for {
		select {
		case <-p.shutdownCh:
			return
		case j, ok := <-j:
			if !ok {
				return
			}
			runJob(j)
			p.size.Dec()
		}
	}
}

func runJob(job *job) {
	if err := job.ctx.Err(); err != nil {
		job.done(err)
		return
	}
	job.done(job.fn(job.ctx, job.payload))
}

func (p *Pool) reportQueueLength() {
	ticker := time.NewTicker(queueLengthReportDuration)
	go func() {
		for {
			select {
			case <-ticker.C:
				metricQueueLength.Set(float64(p.size.Load()))
			case <-p.shutdownCh:
				ticker.Stop()
				return
			}
		}
	}()
}
