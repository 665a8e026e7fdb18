package alarm

import (
	"fmt"
	"strings"
)

// ComparisonOperator decides which side of the threshold is breaching.
// The zero value is invalid and is rejected by the Builder.
type ComparisonOperator int

const (
	GreaterThan ComparisonOperator = iota + 1
	GreaterThanOrEqual
	LessThan
	LessThanOrEqual
)

var operatorNames = map[ComparisonOperator]string{
	GreaterThan:        "GreaterThanThreshold",
	GreaterThanOrEqual: "GreaterThanOrEqualToThreshold",
	LessThan:           "LessThanThreshold",
	LessThanOrEqual:    "LessThanOrEqualToThreshold",
}

var operatorSymbols = map[ComparisonOperator]string{
	GreaterThan:        ">",
	GreaterThanOrEqual: ">=",
	LessThan:           "<",
	LessThanOrEqual:    "<=",
}

func (o ComparisonOperator) String() string {
	if s, ok := operatorNames[o]; ok {
		return s
	}
	return fmt.Sprintf("ComparisonOperator(%d)", int(o))
}

// Symbol returns the short form, e.g. ">=".
func (o ComparisonOperator) Symbol() string {
	if s, ok := operatorSymbols[o]; ok {
		return s
	}
	return "?"
}

// Valid reports whether o is one of the declared operators.
func (o ComparisonOperator) Valid() bool {
	_, ok := operatorNames[o]
	return ok
}

// ParseComparisonOperator accepts either the long name (case-insensitive)
// or the symbol form.
func ParseComparisonOperator(s string) (ComparisonOperator, error) {
	s = strings.TrimSpace(s)
	for op, name := range operatorNames {
		if strings.EqualFold(s, name) || s == operatorSymbols[op] {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w: comparison operator %q", ErrUnknownValue, s)
}

func (o ComparisonOperator) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("%w: comparison operator %d", ErrUnknownValue, int(o))
	}
	return []byte(o.String()), nil
}

func (o *ComparisonOperator) UnmarshalText(b []byte) error {
	op, err := ParseComparisonOperator(string(b))
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// MissingDataPolicy controls how absent samples count toward the alarm.
type MissingDataPolicy int

const (
	// Breaching counts missing datapoints as bad.
	Breaching MissingDataPolicy = iota + 1
	// NotBreaching keeps missing datapoints in the window but never counts them.
	NotBreaching
	// Ignore drops missing samples before they reach the window.
	Ignore
	// MissingState behaves like NotBreaching when counting. It is the default.
	MissingState
)

var policyNames = map[MissingDataPolicy]string{
	Breaching:    "breaching",
	NotBreaching: "notBreaching",
	Ignore:       "ignore",
	MissingState: "missing",
}

func (p MissingDataPolicy) String() string {
	if s, ok := policyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("MissingDataPolicy(%d)", int(p))
}

// Valid reports whether p is one of the declared policies.
func (p MissingDataPolicy) Valid() bool {
	_, ok := policyNames[p]
	return ok
}

// ParseMissingDataPolicy is case-insensitive; "not_breaching" and
// "not-breaching" are accepted as spellings of notBreaching.
func ParseMissingDataPolicy(s string) (MissingDataPolicy, error) {
	norm := strings.NewReplacer("_", "", "-", "").Replace(strings.TrimSpace(s))
	for p, name := range policyNames {
		if strings.EqualFold(norm, name) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: missing data policy %q", ErrUnknownValue, s)
}

func (p MissingDataPolicy) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: missing data policy %d", ErrUnknownValue, int(p))
	}
	return []byte(p.String()), nil
}

func (p *MissingDataPolicy) UnmarshalText(b []byte) error {
	v, err := ParseMissingDataPolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Classification is the verdict for one evaluation period.
type Classification int

const (
	Good Classification = iota + 1
	Bad
	Missing
)

func (c Classification) String() string {
	switch c {
	case Good:
		return "good"
	case Bad:
		return "bad"
	case Missing:
		return "missing"
	default:
		return fmt.Sprintf("Classification(%d)", int(c))
	}
}

func (c Classification) MarshalText() ([]byte, error) {
	switch c {
	case Good, Bad, Missing:
		return []byte(c.String()), nil
	default:
		return nil, fmt.Errorf("%w: classification %d", ErrUnknownValue, int(c))
	}
}

func (c *Classification) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "good":
		*c = Good
	case "bad":
		*c = Bad
	case "missing":
		*c = Missing
	default:
		return fmt.Errorf("%w: classification %q", ErrUnknownValue, string(b))
	}
	return nil
}

// State is the binary alarm state. The zero value is StateOK.
type State int

const (
	StateOK State = iota
	StateAlarm
)

func (s State) String() string {
	switch s {
	case StateOK:
		return "OK"
	case StateAlarm:
		return "ALARM"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	switch s {
	case StateOK, StateAlarm:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("%w: state %d", ErrUnknownValue, int(s))
	}
}

func (s *State) UnmarshalText(b []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(b))) {
	case "OK":
		*s = StateOK
	case "ALARM":
		*s = StateAlarm
	default:
		return fmt.Errorf("%w: state %q", ErrUnknownValue, string(b))
	}
	return nil
}
