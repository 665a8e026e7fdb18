package alarm

import (
	"fmt"
	"math"
)

// Sample is one optional reading for an evaluation period. A sample with
// Valid unset is missing data, which is distinct from a zero value.
type Sample struct {
	Value float64
	Valid bool
}

// Value returns a present sample.
func Value(v float64) Sample { return Sample{Value: v, Valid: true} }

// NoData returns a missing sample.
func NoData() Sample { return Sample{} }

// SampleFromPtr maps nil to missing data.
func SampleFromPtr(v *float64) Sample {
	if v == nil {
		return NoData()
	}
	return Value(*v)
}

func (s Sample) String() string {
	if !s.Valid {
		return "<missing>"
	}
	return fmt.Sprint(s.Value)
}

// Breaches applies the operator to v and threshold. Any comparison involving
// NaN is false.
func (o ComparisonOperator) Breaches(v, threshold float64) bool {
	switch o {
	case GreaterThan:
		return v > threshold
	case GreaterThanOrEqual:
		return v >= threshold
	case LessThan:
		return v < threshold
	case LessThanOrEqual:
		return v <= threshold
	default:
		panic(fmt.Sprintf("alarm: unhandled comparison operator %d", int(o)))
	}
}

// Classify maps a sample to Good, Bad or Missing. NaN never breaches, so a
// NaN sample is Good under every operator.
func Classify(s Sample, threshold float64, op ComparisonOperator) Classification {
	if !s.Valid {
		return Missing
	}
	if op.Breaches(s.Value, threshold) {
		return Bad
	}
	return Good
}

// IsNaN reports whether s carries a NaN reading.
func (s Sample) IsNaN() bool { return s.Valid && math.IsNaN(s.Value) }
