package alarm

import (
	"errors"
	"fmt"

	"ralarm/internal/window"
)

// ErrSnapshotTooLarge is returned by Restore when a snapshot holds more
// datapoints than its evaluation periods allow.
var ErrSnapshotTooLarge = errors.New("snapshot holds more datapoints than evaluation periods")

// Snapshot is a serializable view of an evaluator: its configuration and the
// window contents, oldest first. In JSON a non-finite threshold is written as
// a string.
type Snapshot struct {
	EvaluationPeriods  int                `yaml:"evaluation_periods"`
	DatapointsToAlarm  int                `yaml:"datapoints_to_alarm"`
	Threshold          float64            `yaml:"threshold"`
	TreatMissingData   MissingDataPolicy  `yaml:"treat_missing_data"`
	ComparisonOperator ComparisonOperator `yaml:"comparison_operator"`
	Datapoints         []Classification   `yaml:"datapoints"`
	State              State              `yaml:"state"`
}

// Snapshot captures the evaluator so it can be resumed with Restore.
func (e *Evaluator) Snapshot() Snapshot {
	return Snapshot{
		EvaluationPeriods:  e.cfg.evaluationPeriods,
		DatapointsToAlarm:  e.cfg.dpsToAlarm,
		Threshold:          e.cfg.threshold,
		TreatMissingData:   e.cfg.missingData,
		ComparisonOperator: e.cfg.operator,
		Datapoints:         e.lookback.Items(),
		State:              e.state,
	}
}

// Restore rebuilds an evaluator from a snapshot. The configuration goes
// through the Builder, and the state is recomputed from the datapoints
// rather than trusted.
func Restore(s Snapshot, opts ...Option) (*Evaluator, error) {
	cfg, err := NewBuilder().
		EvaluationPeriods(s.EvaluationPeriods).
		DatapointsToAlarm(s.DatapointsToAlarm).
		Threshold(s.Threshold).
		TreatMissingData(s.TreatMissingData).
		ComparisonOperator(s.ComparisonOperator).
		Build()
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	if len(s.Datapoints) > cfg.evaluationPeriods {
		return nil, fmt.Errorf("restore: %w (%d > %d)", ErrSnapshotTooLarge, len(s.Datapoints), cfg.evaluationPeriods)
	}
	for i, dp := range s.Datapoints {
		if dp != Good && dp != Bad && dp != Missing {
			return nil, fmt.Errorf("restore: datapoint %d: %w: %d", i, ErrUnknownValue, int(dp))
		}
	}

	e := NewEvaluator(cfg, opts...)
	e.lookback = window.NewFrom(s.Datapoints, cfg.evaluationPeriods)
	if e.BadCount() >= cfg.dpsToAlarm {
		e.state = StateAlarm
	}
	return e, nil
}
