package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"ralarm/internal/alarm"
	"ralarm/internal/logger"
	"ralarm/internal/metrics"
)

// Pool errors
var (
	ErrPoolStopped    = errors.New("worker pool is stopped")
	ErrUnknownAlarm   = errors.New("unknown alarm")
	ErrDuplicateAlarm = errors.New("alarm already registered")
	ErrEmptyName      = errors.New("alarm name cannot be empty")
	ErrEvaluation     = errors.New("evaluation panicked")
)

// Sample is one evaluation period for a named alarm.
type Sample struct {
	Alarm     string
	Timestamp int64
	Value     alarm.Sample
}

// Result is the outcome of feeding one Sample.
type Result struct {
	Sample
	Classification alarm.Classification
	Ignored        bool
	State          alarm.State
	Changed        bool
}

// Transition describes a state change of one alarm.
type Transition struct {
	ID        string
	Alarm     string
	From      alarm.State
	To        alarm.State
	Timestamp int64
	Value     alarm.Sample
	At        time.Time
}

// TransitionHandler receives transitions on the worker goroutine that owns
// the alarm, in feed order for that alarm.
type TransitionHandler func(Transition)

// Pool routes samples to evaluators. Every alarm is pinned to one worker by
// hashing its name, so Feed calls on a given evaluator never run
// concurrently and arrive in submission order.
type Pool struct {
	workers      int
	queueSize    int
	onTransition TransitionHandler
	onResult     func(Result)

	mu      sync.RWMutex
	done    chan struct{} // closed first by Stop to release blocked senders
	stopOne sync.Once
	stopped bool
	started bool
	alarms  map[string]*alarm.Evaluator
	queues  []chan job
	wg      sync.WaitGroup

	// Metrics
	processed   atomic.Uint64
	transitions atomic.Uint64
	rejected    atomic.Uint64
}

// Config holds worker pool configuration
type Config struct {
	Workers      int
	QueueSize    int // per worker
	OnTransition TransitionHandler
	OnResult     func(Result)
}

type jobKind int

const (
	jobFeed jobKind = iota
	jobSnapshot
)

type job struct {
	kind   jobKind
	sample Sample
	eval   *alarm.Evaluator
	reply  chan reply
}

type reply struct {
	result   Result
	snapshot alarm.Snapshot
	err      error
}

// NewPool creates a new worker pool
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	p := &Pool{
		workers:      cfg.Workers,
		queueSize:    cfg.QueueSize,
		onTransition: cfg.OnTransition,
		onResult:     cfg.OnResult,
		done:         make(chan struct{}),
		alarms:       make(map[string]*alarm.Evaluator),
		queues:       make([]chan job, cfg.Workers),
	}
	for i := range p.queues {
		p.queues[i] = make(chan job, cfg.QueueSize)
	}
	return p
}

// Register builds an evaluator for cfg under name.
func (p *Pool) Register(name string, cfg alarm.Config) error {
	l := logger.WithAlarm("alarm", name)
	return p.RegisterEvaluator(name, alarm.NewEvaluator(cfg, alarm.WithLogger(l)))
}

// RegisterEvaluator hands ownership of e to the pool. The caller must not
// use e afterwards.
func (p *Pool) RegisterEvaluator(name string, e *alarm.Evaluator) error {
	if name == "" {
		return ErrEmptyName
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrPoolStopped
	}
	if _, ok := p.alarms[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAlarm, name)
	}
	p.alarms[name] = e

	metrics.AlarmState.WithLabelValues(name).Set(float64(e.State()))
	metrics.BadDatapoints.WithLabelValues(name).Set(float64(e.BadCount()))
	return nil
}

// Alarms returns the registered alarm names.
func (p *Pool) Alarms() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.alarms))
	for name := range p.alarms {
		names = append(names, name)
	}
	return names
}

// Start begins processing samples
func (p *Pool) Start() {
	log := logger.WithComponent("worker_pool")

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	log.Info().
		Int("workers", p.workers).
		Int("queue_size", p.queueSize).
		Int("alarms", len(p.alarms)).
		Msg("starting worker pool")

	metrics.DispatcherQueueCapacity.Set(float64(p.workers * p.queueSize))

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i, p.queues[i])
	}
}

// Stop stops accepting samples, lets workers drain what is already queued,
// and waits for them to exit. On a pool that was never started, queued jobs
// are dropped and their waiting callers get ErrPoolStopped.
func (p *Pool) Stop() {
	log := logger.WithComponent("worker_pool")

	p.stopOne.Do(func() { close(p.done) })

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	started := p.started
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	if !started {
		p.dropQueued()
		return
	}

	log.Info().Msg("stopping worker pool")
	p.wg.Wait()
	metrics.DispatcherQueueSize.Set(0)
	log.Info().Msg("worker pool stopped")
}

func (p *Pool) dropQueued() {
	for _, q := range p.queues {
		for j := range q {
			metrics.DispatcherQueueSize.Dec()
			p.reject("dropped")
			if j.reply != nil {
				j.reply <- reply{err: ErrPoolStopped}
			}
		}
	}
}

// Submit queues s for its alarm and returns without waiting for the result.
// Results are delivered to Config.OnResult if set. Jobs queued before Start
// wait for the workers; jobs still queued when an unstarted pool is stopped
// are dropped. A Submit blocked on a full queue returns ErrPoolStopped once
// Stop is called.
func (p *Pool) Submit(ctx context.Context, s Sample) error {
	return p.enqueue(ctx, job{kind: jobFeed, sample: s})
}

// Evaluate queues s and waits for its result.
func (p *Pool) Evaluate(ctx context.Context, s Sample) (Result, error) {
	r, err := p.roundTrip(ctx, job{kind: jobFeed, sample: s})
	return r.result, err
}

// Snapshot captures the named alarm on its owning worker.
func (p *Pool) Snapshot(ctx context.Context, name string) (alarm.Snapshot, error) {
	r, err := p.roundTrip(ctx, job{kind: jobSnapshot, sample: Sample{Alarm: name}})
	return r.snapshot, err
}

func (p *Pool) roundTrip(ctx context.Context, j job) (reply, error) {
	j.reply = make(chan reply, 1)
	if err := p.enqueue(ctx, j); err != nil {
		return reply{}, err
	}
	select {
	case r := <-j.reply:
		return r, r.err
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
}

func (p *Pool) enqueue(ctx context.Context, j job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		p.reject("stopped")
		return ErrPoolStopped
	}
	e, ok := p.alarms[j.sample.Alarm]
	if !ok {
		p.reject("unknown_alarm")
		return fmt.Errorf("%w: %s", ErrUnknownAlarm, j.sample.Alarm)
	}
	j.eval = e

	q := p.queues[p.shard(j.sample.Alarm)]
	select {
	case q <- j:
		metrics.DispatcherQueueSize.Inc()
		return nil
	case <-p.done:
		p.reject("stopped")
		return ErrPoolStopped
	case <-ctx.Done():
		p.reject("canceled")
		return ctx.Err()
	}
}

func (p *Pool) reject(reason string) {
	p.rejected.Add(1)
	metrics.DispatcherRejectedTotal.WithLabelValues(reason).Inc()
}

func (p *Pool) shard(name string) int {
	return int(xxhash.Sum64String(name) % uint64(p.workers))
}

// worker evaluates jobs for the alarms pinned to it
func (p *Pool) worker(id int, queue <-chan job) {
	defer p.wg.Done()

	log := logger.WithComponent("worker").With().Int("worker_id", id).Logger()
	log.Debug().Msg("worker started")
	defer log.Debug().Msg("worker stopped")

	for j := range queue {
		metrics.DispatcherQueueSize.Dec()
		r := p.handle(j)
		if j.reply != nil {
			j.reply <- r
		}
	}
}

// handle runs one job, recovering panics raised by the evaluator or by the
// result and transition callbacks.
func (p *Pool) handle(j job) (r reply) {
	defer func() {
		if rec := recover(); rec != nil {
			log := logger.WithComponent("worker")
			log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("alarm", j.sample.Alarm).
				Msg("worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("worker").Inc()
			r = reply{err: fmt.Errorf("%w: %v", ErrEvaluation, rec)}
		}
	}()

	switch j.kind {
	case jobSnapshot:
		return reply{snapshot: j.eval.Snapshot()}
	case jobFeed:
		return reply{result: p.feed(j.eval, j.sample)}
	default:
		panic(fmt.Sprintf("worker: unhandled job kind %d", j.kind))
	}
}

func (p *Pool) feed(e *alarm.Evaluator, s Sample) Result {
	prev := e.State()
	out := e.FeedDetail(s.Value)
	state := out.State

	p.processed.Add(1)
	metrics.DispatcherProcessedTotal.Inc()
	label := out.Classification.String()
	if out.Ignored {
		label = "ignored"
	}
	metrics.SamplesTotal.WithLabelValues(s.Alarm, label).Inc()
	if s.Value.IsNaN() {
		metrics.NaNSamplesTotal.WithLabelValues(s.Alarm).Inc()
	}
	metrics.AlarmState.WithLabelValues(s.Alarm).Set(float64(state))
	metrics.BadDatapoints.WithLabelValues(s.Alarm).Set(float64(e.BadCount()))

	r := Result{
		Sample:         s,
		Classification: out.Classification,
		Ignored:        out.Ignored,
		State:          state,
		Changed:        out.Changed,
	}

	if r.Changed {
		p.transitions.Add(1)
		metrics.StateTransitionsTotal.WithLabelValues(s.Alarm, state.String()).Inc()
		if p.onTransition != nil {
			start := time.Now()
			p.onTransition(Transition{
				ID:        uuid.NewString(),
				Alarm:     s.Alarm,
				From:      prev,
				To:        state,
				Timestamp: s.Timestamp,
				Value:     s.Value,
				At:        start.UTC(),
			})
			metrics.HandlerDuration.Observe(time.Since(start).Seconds())
		}
	}
	if p.onResult != nil {
		p.onResult(r)
	}
	return r
}

// Stats returns worker pool statistics
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	alarms := len(p.alarms)
	p.mu.RUnlock()

	return Stats{
		Alarms:      alarms,
		Processed:   p.processed.Load(),
		Transitions: p.transitions.Load(),
		Rejected:    p.rejected.Load(),
	}
}

// Stats holds worker pool metrics
type Stats struct {
	Alarms      int
	Processed   uint64
	Transitions uint64
	Rejected    uint64
}
