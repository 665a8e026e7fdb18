package alarm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// jsonFloat encodes non-finite values as the strings "NaN", "+Inf" and
// "-Inf", which encoding/json refuses to write as numbers.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return json.Marshal(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return json.Marshal(v)
}

func (f *jsonFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("%w: number %q", ErrUnknownValue, s)
		}
		*f = jsonFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = jsonFloat(v)
	return nil
}

// MarshalJSON writes missing data as null and a present reading as a number,
// or as a string for NaN and infinities.
func (s Sample) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("null"), nil
	}
	return jsonFloat(s.Value).MarshalJSON()
}

func (s *Sample) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*s = NoData()
		return nil
	}
	var f jsonFloat
	if err := f.UnmarshalJSON(b); err != nil {
		return err
	}
	*s = Value(float64(f))
	return nil
}

type snapshotJSON struct {
	EvaluationPeriods  int                `json:"evaluation_periods"`
	DatapointsToAlarm  int                `json:"datapoints_to_alarm"`
	Threshold          jsonFloat          `json:"threshold"`
	TreatMissingData   MissingDataPolicy  `json:"treat_missing_data"`
	ComparisonOperator ComparisonOperator `json:"comparison_operator"`
	Datapoints         []Classification   `json:"datapoints"`
	State              State              `json:"state"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		EvaluationPeriods:  s.EvaluationPeriods,
		DatapointsToAlarm:  s.DatapointsToAlarm,
		Threshold:          jsonFloat(s.Threshold),
		TreatMissingData:   s.TreatMissingData,
		ComparisonOperator: s.ComparisonOperator,
		Datapoints:         s.Datapoints,
		State:              s.State,
	})
}

func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var v snapshotJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = Snapshot{
		EvaluationPeriods:  v.EvaluationPeriods,
		DatapointsToAlarm:  v.DatapointsToAlarm,
		Threshold:          float64(v.Threshold),
		TreatMissingData:   v.TreatMissingData,
		ComparisonOperator: v.ComparisonOperator,
		Datapoints:         v.Datapoints,
		State:              v.State,
	}
	return nil
}
