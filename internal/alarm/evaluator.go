package alarm

import (
	"github.com/rs/zerolog"

	"ralarm/internal/window"
)

// Alarm is anything that turns a stream of samples into an alarm state.
type Alarm interface {
	Feed(s Sample) State
}

// Evaluator implements the "M datapoints out of N evaluation periods" rule
// over a bounded window of classified datapoints.
//
// Evaluator is not safe for concurrent use. Give each logical alarm its own
// Evaluator and serialize calls to Feed.
type Evaluator struct {
	cfg      Config
	lookback *window.Window[Classification]
	state    State
	log      zerolog.Logger
}

var _ Alarm = (*Evaluator)(nil)

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger makes the evaluator log state changes at debug level.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Evaluator) { e.log = l }
}

// NewEvaluator returns an evaluator in StateOK with an empty window. cfg must
// come from Builder.Build; it is not validated again here.
func NewEvaluator(cfg Config, opts ...Option) *Evaluator {
	e := &Evaluator{
		cfg:      cfg,
		lookback: window.New[Classification](cfg.evaluationPeriods),
		state:    StateOK,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Outcome describes what one feed did to the evaluator.
type Outcome struct {
	Classification Classification
	Ignored        bool // missing sample under Ignore: window and state untouched
	State          State
	Changed        bool
}

// Feed classifies s, pushes it into the window and recomputes the state from
// the whole window. A missing sample under the Ignore policy leaves both the
// window and the state untouched.
func (e *Evaluator) Feed(s Sample) State {
	return e.FeedDetail(s).State
}

// FeedDetail is Feed, also reporting the classification of s and whether the
// sample was ignored.
func (e *Evaluator) FeedDetail(s Sample) Outcome {
	dp := Classify(s, e.cfg.threshold, e.cfg.operator)

	if dp == Missing && e.cfg.missingData == Ignore {
		return Outcome{Classification: dp, Ignored: true, State: e.state}
	}

	e.lookback.Push(dp)

	prev := e.state
	bad := e.BadCount()
	if bad >= e.cfg.dpsToAlarm {
		e.state = StateAlarm
	} else {
		e.state = StateOK
	}

	if prev != e.state {
		e.log.Debug().
			Str("from", prev.String()).
			Str("to", e.state.String()).
			Str("sample", s.String()).
			Int("bad", bad).
			Msg("alarm state changed")
	}
	return Outcome{Classification: dp, State: e.state, Changed: prev != e.state}
}

// BadCount scans the window and counts datapoints that count toward the
// alarm under the configured missing data policy.
func (e *Evaluator) BadCount() int {
	n := 0
	for dp := range e.lookback.All() {
		if e.countsAsBad(dp) {
			n++
		}
	}
	return n
}

func (e *Evaluator) countsAsBad(dp Classification) bool {
	switch dp {
	case Good:
		return false
	case Bad:
		return true
	case Missing:
		switch e.cfg.missingData {
		case Breaching:
			return true
		case NotBreaching, MissingState, Ignore:
			return false
		default:
			panic("alarm: unhandled missing data policy " + e.cfg.missingData.String())
		}
	default:
		panic("alarm: unhandled classification " + dp.String())
	}
}

// State returns the state produced by the last Feed that was not ignored.
func (e *Evaluator) State() State { return e.state }

// Len reports how many datapoints the window currently holds.
func (e *Evaluator) Len() int { return e.lookback.Len() }

// Datapoints returns the window contents, oldest first.
func (e *Evaluator) Datapoints() []Classification { return e.lookback.Items() }

// Config returns the configuration the evaluator was built with.
func (e *Evaluator) Config() Config { return e.cfg }

func (e *Evaluator) EvaluationPeriods() int                 { return e.cfg.evaluationPeriods }
func (e *Evaluator) DatapointsToAlarm() int                 { return e.cfg.dpsToAlarm }
func (e *Evaluator) Threshold() float64                     { return e.cfg.threshold }
func (e *Evaluator) TreatMissingData() MissingDataPolicy    { return e.cfg.missingData }
func (e *Evaluator) ComparisonOperator() ComparisonOperator { return e.cfg.operator }
