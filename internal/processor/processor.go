package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ralarm/internal/alarm"
	"ralarm/internal/config"
	"ralarm/internal/logger"
	"ralarm/internal/middleware"
	"ralarm/internal/series"
	"ralarm/internal/worker"
)

// Processor errors
var (
	ErrNotStarted = errors.New("processor not started")
	ErrNoAlarm    = errors.New("alarm not defined in config")
)

const statsInterval = 30 * time.Second

// Input is one series to replay through a named alarm.
type Input struct {
	Alarm  string
	Series *series.Series
}

// Period is the outcome of one evaluation period.
type Period struct {
	Timestamp      int64                `json:"timestamp"`
	Value          alarm.Sample         `json:"value"`
	Classification alarm.Classification `json:"classification"`
	Ignored        bool                 `json:"ignored,omitempty"`
	State          alarm.State          `json:"state"`
	Changed        bool                 `json:"changed,omitempty"`
}

// Report summarises a replay of one alarm.
type Report struct {
	Alarm       string         `json:"alarm"`
	Rule        string         `json:"rule"`
	Periods     []Period       `json:"periods"`
	Ignored     int            `json:"ignored"`
	Transitions int            `json:"transitions"`
	Final       alarm.State    `json:"final_state"`
	Snapshot    alarm.Snapshot `json:"snapshot"`
}

// Processor is the high-level coordinator: it owns the worker pool, registers
// the configured alarms and drives series through them.
type Processor struct {
	cfg        *config.Config
	pool       *worker.Pool
	httpServer *http.Server
	listener   net.Listener
	wg         sync.WaitGroup
	started    bool
}

// New constructs a Processor with given config.
func New(cfg *config.Config) *Processor {
	return &Processor{cfg: cfg}
}

// Start registers every configured alarm, starts the worker pool and, when
// MetricsAddr is set, the HTTP listener.
func (p *Processor) Start() error {
	log := logger.WithComponent("processor")

	p.initWorkerPool()
	for _, def := range p.cfg.Alarms {
		cfg, err := def.Build()
		if err != nil {
			return fmt.Errorf("alarm %q: %w", def.Name, err)
		}
		if err := p.pool.Register(def.Name, cfg); err != nil {
			return err
		}
		log.Debug().Str("alarm", def.Name).Str("rule", cfg.String()).Msg("alarm registered")
	}
	p.pool.Start()

	if p.cfg.MetricsAddr != "" {
		if err := p.initHTTPServer(); err != nil {
			p.pool.Stop()
			return fmt.Errorf("failed to initialize HTTP server: %w", err)
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			log.Info().Str("addr", p.listener.Addr().String()).Msg("starting HTTP server")
			if err := p.httpServer.Serve(p.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("HTTP server error")
			}
		}()
	}

	p.started = true
	log.Info().Int("alarms", len(p.cfg.Alarms)).Msg("processor started")
	return nil
}

// Run replays every input concurrently, one goroutine per input, and returns
// the reports in input order. Inputs for the same alarm are not allowed.
func (p *Processor) Run(ctx context.Context, inputs []Input) ([]Report, error) {
	if !p.started {
		return nil, ErrNotStarted
	}

	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		if seen[in.Alarm] {
			return nil, fmt.Errorf("alarm %q given more than one series", in.Alarm)
		}
		seen[in.Alarm] = true
	}

	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reportStats(statsCtx)
	}()

	reports := make([]Report, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	for i, in := range inputs {
		g.Go(func() error {
			r, err := p.Replay(gctx, in.Alarm, in.Series)
			if err != nil {
				return err
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// Replay feeds s, in order, to the named alarm and records every period.
func (p *Processor) Replay(ctx context.Context, name string, s *series.Series) (Report, error) {
	if !p.started {
		return Report{}, ErrNotStarted
	}
	def, ok := p.cfg.Alarm(name)
	if !ok {
		return Report{}, fmt.Errorf("%w: %s", ErrNoAlarm, name)
	}
	cfg, err := def.Build()
	if err != nil {
		return Report{}, err
	}

	rep := Report{
		Alarm:   name,
		Rule:    cfg.String(),
		Periods: make([]Period, 0, s.Len()),
	}
	for _, dp := range s.Datapoints() {
		res, err := p.pool.Evaluate(ctx, worker.Sample{Alarm: name, Timestamp: dp.Timestamp, Value: dp.Value})
		if err != nil {
			return Report{}, fmt.Errorf("alarm %q at %d: %w", name, dp.Timestamp, err)
		}

		period := Period{
			Timestamp:      dp.Timestamp,
			Value:          dp.Value,
			Classification: res.Classification,
			Ignored:        res.Ignored,
			State:          res.State,
			Changed:        res.Changed,
		}
		rep.Periods = append(rep.Periods, period)

		if res.Ignored {
			rep.Ignored++
		}
		if res.Changed {
			rep.Transitions++
		}
	}

	rep.Snapshot, err = p.pool.Snapshot(ctx, name)
	if err != nil {
		return Report{}, err
	}
	rep.Final = rep.Snapshot.State
	return rep, nil
}

// Shutdown stops the HTTP listener and the worker pool.
func (p *Processor) Shutdown(ctx context.Context) error {
	log := logger.WithComponent("processor")
	if !p.started {
		return nil
	}
	p.started = false

	var err error
	if p.httpServer != nil {
		log.Info().Msg("stopping HTTP server")
		if serr := p.httpServer.Shutdown(ctx); serr != nil {
			log.Error().Err(serr).Msg("HTTP server shutdown error")
			err = serr
		}
	}

	p.pool.Stop()
	p.wg.Wait()

	stats := p.pool.Stats()
	log.Info().
		Uint64("processed", stats.Processed).
		Uint64("transitions", stats.Transitions).
		Uint64("rejected", stats.Rejected).
		Msg("processor stopped")
	return err
}

// Addr returns the HTTP listen address, or "" if the listener is disabled.
func (p *Processor) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// initWorkerPool initializes the worker pool
func (p *Processor) initWorkerPool() {
	log := logger.WithComponent("processor")
	p.pool = worker.NewPool(worker.Config{
		Workers:      p.cfg.Dispatcher.Workers,
		QueueSize:    p.cfg.Dispatcher.QueueSize,
		OnTransition: logTransition,
	})
	log.Debug().Int("workers", p.cfg.Dispatcher.Workers).Msg("worker pool initialized")
}

func logTransition(t worker.Transition) {
	level := zerolog.InfoLevel
	if t.To == alarm.StateAlarm {
		level = zerolog.WarnLevel
	}
	log := logger.WithAlarm("processor", t.Alarm)
	log.WithLevel(level).
		Str("transition_id", t.ID).
		Str("from", t.From.String()).
		Str("to", t.To.String()).
		Int64("timestamp", t.Timestamp).
		Str("value", t.Value.String()).
		Msg("alarm state changed")
}

// initHTTPServer initializes the HTTP server with handlers
func (p *Processor) initHTTPServer() error {
	routes := []string{"/health", "/stats", "/metrics"}
	mux := http.NewServeMux()
	mux.HandleFunc(routes[0], p.healthHandler)
	mux.HandleFunc(routes[1], p.statsHandler)
	mux.Handle(routes[2], promhttp.Handler())

	ln, err := net.Listen("tcp", p.cfg.MetricsAddr)
	if err != nil {
		return err
	}
	p.listener = ln
	p.httpServer = &http.Server{
		Handler:      middleware.Chain(mux, middleware.Logging(routes...), middleware.Recovery),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return nil
}

// reportStats periodically logs statistics
func (p *Processor) reportStats(ctx context.Context) {
	log := logger.WithComponent("processor")
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := p.pool.Stats()
			log.Info().
				Int("alarms", stats.Alarms).
				Uint64("processed", stats.Processed).
				Uint64("transitions", stats.Transitions).
				Uint64("rejected", stats.Rejected).
				Msg("stats")
		}
	}
}

// healthHandler handles health check requests
func (p *Processor) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"alarms":    len(p.pool.Alarms()),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// statsHandler returns current statistics
func (p *Processor) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := p.pool.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"alarms":      stats.Alarms,
		"processed":   stats.Processed,
		"transitions": stats.Transitions,
		"rejected":    stats.Rejected,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log := logger.WithComponent("processor")
		log.Error().Err(err).Msg("failed to write response")
	}
}
