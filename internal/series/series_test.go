package series_test

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"ralarm/internal/alarm"
	"ralarm/internal/series"
)

func TestFromPairsSorts(t *testing.T) {
	s := series.FromPairs([]series.Datapoint{
		{Timestamp: 1, Value: alarm.Value(12)},
		{Timestamp: 6, Value: alarm.Value(10)},
		{Timestamp: 3, Value: alarm.Value(2.1)},
		{Timestamp: 2, Value: alarm.Value(19.2)},
	})

	if want := []int64{1, 2, 3, 6}; !reflect.DeepEqual(s.Timestamps, want) {
		t.Errorf("Timestamps = %v, want %v", s.Timestamps, want)
	}
	want := []alarm.Sample{alarm.Value(12), alarm.Value(19.2), alarm.Value(2.1), alarm.Value(10)}
	if !reflect.DeepEqual(s.Values, want) {
		t.Errorf("Values = %v, want %v", s.Values, want)
	}
}

func TestFromPairsStableOnTies(t *testing.T) {
	s := series.FromPairs([]series.Datapoint{
		{Timestamp: 5, Value: alarm.Value(1)},
		{Timestamp: 5, Value: alarm.NoData()},
		{Timestamp: 4, Value: alarm.Value(3)},
	})

	want := []alarm.Sample{alarm.Value(3), alarm.Value(1), alarm.NoData()}
	if !reflect.DeepEqual(s.Values, want) {
		t.Errorf("Values = %v, want %v", s.Values, want)
	}
	if s.Missing() != 1 || s.Len() != 3 {
		t.Errorf("Missing() = %d, Len() = %d", s.Missing(), s.Len())
	}
}

func TestFromSlices(t *testing.T) {
	s, err := series.FromSlices([]int64{1, 2}, []alarm.Sample{alarm.Value(1), alarm.NoData()})
	if err != nil {
		t.Fatalf("FromSlices() error = %v", err)
	}
	if dps := s.Datapoints(); len(dps) != 2 || dps[1].Timestamp != 2 || dps[1].Value.Valid {
		t.Errorf("Datapoints() = %+v", dps)
	}

	_, err = series.FromSlices([]int64{1, 2, 3}, []alarm.Sample{alarm.Value(1)})
	if !errors.Is(err, series.ErrLengthMismatch) {
		t.Errorf("mismatch error = %v, want ErrLengthMismatch", err)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"unix seconds", "1700000000", 1700000000, false},
		{"RFC3339", "2024-01-15T10:30:00Z", 1705314600, false},
		{"datetime with space", "2024-01-15 10:30:00", 1705314600, false},
		{"with whitespace", "  42  ", 42, false},
		{"invalid", "not-a-timestamp", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := series.ParseTimestamp(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTimestamp(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseTimestamp(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestReadCSV(t *testing.T) {
	in := `timestamp,value
# collected by hand
3,9.5
1,11
2,
4,NaN
5,null
`
	dps, err := series.ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(dps) != 5 {
		t.Fatalf("got %d datapoints, want 5", len(dps))
	}

	s := series.FromPairs(dps)
	if want := []int64{1, 2, 3, 4, 5}; !reflect.DeepEqual(s.Timestamps, want) {
		t.Errorf("Timestamps = %v, want %v", s.Timestamps, want)
	}
	if s.Values[1].Valid || s.Values[4].Valid {
		t.Error("empty and null cells should be missing")
	}
	if !s.Values[3].Valid || !math.IsNaN(s.Values[3].Value) {
		t.Errorf("NaN cell = %v, want present NaN", s.Values[3])
	}
}

func TestReadCSVHeaders(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"named columns", "timestamp,value\n1,2\n", 1},
		{"known first column with numeric second", "Time,0\n1,2\n", 1},
		{"unknown names", "when,cpu\n1,2\n2,3\n", 2},
		{"no header", "1,2\n2,3\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dps, err := series.ReadCSV(strings.NewReader(tt.in))
			if err != nil {
				t.Fatalf("ReadCSV() error = %v", err)
			}
			if len(dps) != tt.want {
				t.Errorf("got %d datapoints, want %d", len(dps), tt.want)
			}
		})
	}
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"bad value", "1,10\n2,abc\n", series.ErrInvalidValue},
		{"bad timestamp after header", "ts,v\n1,10\nyesterday,3\n", series.ErrInvalidTimestamp},
		{"bad timestamp in first data row", "2024-13-01T00:00:00Z,5\n2024-01-15T10:30:00Z,6\n", series.ErrInvalidTimestamp},
		{"bad first row with missing value", "yesterday,\n1,2\n", series.ErrInvalidTimestamp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := series.ReadCSV(strings.NewReader(tt.in))
			if !errors.Is(err, tt.want) {
				t.Errorf("ReadCSV() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := series.ReadCSV(strings.NewReader("1,2,3\n")); err == nil {
		t.Error("expected error for wrong field count")
	}
}
