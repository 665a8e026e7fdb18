package series

import (
	"errors"
	"fmt"
	"sort"

	"ralarm/internal/alarm"
)

// ErrLengthMismatch is returned by FromSlices when the two sequences differ
// in length.
var ErrLengthMismatch = errors.New("timestamp and value counts don't match")

// Datapoint pairs a timestamp with an optional value.
type Datapoint struct {
	Timestamp int64
	Value     alarm.Sample
}

// Series holds observations as parallel timestamp and value sequences,
// ordered by timestamp.
type Series struct {
	Timestamps []int64
	Values     []alarm.Sample
}

// FromPairs sorts raw observations by timestamp. Observations sharing a
// timestamp keep their input order.
func FromPairs(pairs []Datapoint) *Series {
	sorted := make([]Datapoint, len(pairs))
	copy(sorted, pairs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	s := &Series{
		Timestamps: make([]int64, len(sorted)),
		Values:     make([]alarm.Sample, len(sorted)),
	}
	for i, dp := range sorted {
		s.Timestamps[i] = dp.Timestamp
		s.Values[i] = dp.Value
	}
	return s
}

// FromSlices pairs already-ordered sequences without sorting them.
func FromSlices(timestamps []int64, values []alarm.Sample) (*Series, error) {
	if len(timestamps) != len(values) {
		return nil, fmt.Errorf("%w: %d timestamps, %d values", ErrLengthMismatch, len(timestamps), len(values))
	}
	return &Series{Timestamps: timestamps, Values: values}, nil
}

// Len returns the number of observations.
func (s *Series) Len() int { return len(s.Timestamps) }

// Datapoints re-zips the series.
func (s *Series) Datapoints() []Datapoint {
	out := make([]Datapoint, len(s.Timestamps))
	for i := range s.Timestamps {
		out[i] = Datapoint{Timestamp: s.Timestamps[i], Value: s.Values[i]}
	}
	return out
}

// Missing counts observations with no value.
func (s *Series) Missing() int {
	n := 0
	for _, v := range s.Values {
		if !v.Valid {
			n++
		}
	}
	return n
}
