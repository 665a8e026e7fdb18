package alarm

import (
	"errors"
	"fmt"
	"strings"
)

// Configuration errors
var (
	ErrMissingField = errors.New("required field not set")
	ErrInvalidRange = errors.New("value out of range")
	ErrUnknownValue = errors.New("unknown value")
)

// Config is the immutable alarm definition. Obtain one from a Builder; the
// zero value is not usable.
type Config struct {
	evaluationPeriods int
	dpsToAlarm        int
	threshold         float64
	missingData       MissingDataPolicy
	operator          ComparisonOperator
}

func (c Config) EvaluationPeriods() int                 { return c.evaluationPeriods }
func (c Config) DatapointsToAlarm() int                 { return c.dpsToAlarm }
func (c Config) Threshold() float64                     { return c.threshold }
func (c Config) TreatMissingData() MissingDataPolicy    { return c.missingData }
func (c Config) ComparisonOperator() ComparisonOperator { return c.operator }

// String renders the config as "<op> <threshold> for M of N (missing=<policy>)".
func (c Config) String() string {
	return fmt.Sprintf("%s %g for %d of %d (missing=%s)",
		c.operator.Symbol(), c.threshold, c.dpsToAlarm, c.evaluationPeriods, c.missingData)
}

// ConfigError lists every problem found while assembling a Config.
type ConfigError struct {
	Missing  []string
	Problems []string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	parts = append(parts, e.Problems...)
	return "alarm config: " + strings.Join(parts, "; ")
}

// Is lets callers match ErrMissingField and ErrInvalidRange with errors.Is.
func (e *ConfigError) Is(target error) bool {
	switch target {
	case ErrMissingField:
		return len(e.Missing) > 0
	case ErrInvalidRange:
		return len(e.Problems) > 0
	}
	return false
}

// Builder assembles a Config. Evaluation periods, threshold and comparison
// operator are required. Datapoints to alarm defaults to the evaluation
// periods and missing data defaults to MissingState.
type Builder struct {
	evaluationPeriods *int
	dpsToAlarm        *int
	threshold         *float64
	missingData       *MissingDataPolicy
	operator          *ComparisonOperator
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) EvaluationPeriods(n int) *Builder {
	b.evaluationPeriods = &n
	return b
}

func (b *Builder) DatapointsToAlarm(m int) *Builder {
	b.dpsToAlarm = &m
	return b
}

func (b *Builder) Threshold(v float64) *Builder {
	b.threshold = &v
	return b
}

func (b *Builder) TreatMissingData(p MissingDataPolicy) *Builder {
	b.missingData = &p
	return b
}

func (b *Builder) ComparisonOperator(op ComparisonOperator) *Builder {
	b.operator = &op
	return b
}

// Build validates the fields and returns the Config. All problems are
// reported at once in a *ConfigError.
func (b *Builder) Build() (Config, error) {
	cerr := &ConfigError{}

	if b.evaluationPeriods == nil {
		cerr.Missing = append(cerr.Missing, "evaluation_periods")
	}
	if b.threshold == nil {
		cerr.Missing = append(cerr.Missing, "threshold")
	}
	if b.operator == nil {
		cerr.Missing = append(cerr.Missing, "comparison_operator")
	}

	cfg := Config{missingData: MissingState}
	if b.threshold != nil {
		cfg.threshold = *b.threshold
	}
	if b.operator != nil {
		cfg.operator = *b.operator
		if !cfg.operator.Valid() {
			cerr.Problems = append(cerr.Problems,
				fmt.Sprintf("comparison_operator %d is not a known operator", int(cfg.operator)))
		}
	}
	if b.missingData != nil {
		cfg.missingData = *b.missingData
		if !cfg.missingData.Valid() {
			cerr.Problems = append(cerr.Problems,
				fmt.Sprintf("treat_missing_data %d is not a known policy", int(cfg.missingData)))
		}
	}

	if b.evaluationPeriods != nil {
		cfg.evaluationPeriods = *b.evaluationPeriods
		if cfg.evaluationPeriods < 1 {
			cerr.Problems = append(cerr.Problems,
				fmt.Sprintf("evaluation_periods %d must be >= 1", cfg.evaluationPeriods))
		}

		cfg.dpsToAlarm = cfg.evaluationPeriods
		if b.dpsToAlarm != nil {
			cfg.dpsToAlarm = *b.dpsToAlarm
		}
		if cfg.evaluationPeriods >= 1 && (cfg.dpsToAlarm < 1 || cfg.dpsToAlarm > cfg.evaluationPeriods) {
			cerr.Problems = append(cerr.Problems,
				fmt.Sprintf("datapoints_to_alarm %d is out of range [1, %d]", cfg.dpsToAlarm, cfg.evaluationPeriods))
		}
	}

	if len(cerr.Missing) > 0 || len(cerr.Problems) > 0 {
		return Config{}, cerr
	}
	return cfg, nil
}

// MustBuild is like Build but panics on error. Use it where the fields are
// program constants.
func (b *Builder) MustBuild() Config {
	cfg, err := b.Build()
	if err != nil {
		panic(err)
	}
	return cfg
}
