package series

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"ralarm/internal/alarm"
)

// CSV errors
var (
	ErrInvalidTimestamp = errors.New("invalid timestamp format")
	ErrInvalidValue     = errors.New("invalid value")
)

// SupportedTimestampFormats lists the layouts tried for non-numeric
// timestamps. Numeric timestamps are taken as unix seconds.
var SupportedTimestampFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123,
	time.UnixDate,
}

// missingTokens are value cells treated as missing data.
var missingTokens = map[string]bool{
	"":     true,
	"-":    true,
	"null": true,
	"none": true,
}

// ParseTimestamp accepts unix seconds or any of SupportedTimestampFormats.
func ParseTimestamp(ts string) (int64, error) {
	ts = strings.TrimSpace(ts)

	if n, err := strconv.ParseInt(ts, 10, 64); err == nil {
		return n, nil
	}
	for _, format := range SupportedTimestampFormats {
		if t, err := time.Parse(format, ts); err == nil {
			return t.UTC().Unix(), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, ts)
}

// ParseValue maps an empty or null-like cell to missing data. "NaN" parses
// to a present NaN reading.
func ParseValue(v string) (alarm.Sample, error) {
	v = strings.TrimSpace(v)
	if missingTokens[strings.ToLower(v)] {
		return alarm.NoData(), nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return alarm.Sample{}, fmt.Errorf("%w: %q", ErrInvalidValue, v)
	}
	return alarm.Value(f), nil
}

// ReadCSV reads "timestamp,value" rows. The first row is skipped as a header
// when neither cell parses as data, or when its first cell is a known column
// name. Lines starting with '#' are skipped.
func ReadCSV(r io.Reader) ([]Datapoint, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true

	var out []Datapoint
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}

		ts, err := ParseTimestamp(rec[0])
		if err != nil {
			if row == 0 && isHeader(rec) {
				continue
			}
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		val, err := ParseValue(rec[1])
		if err != nil {
			line, _ := cr.FieldPos(1)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, Datapoint{Timestamp: ts, Value: val})
	}
}

var headerNames = map[string]bool{
	"timestamp": true,
	"time":      true,
	"ts":        true,
	"date":      true,
	"datetime":  true,
}

func isHeader(rec []string) bool {
	if headerNames[strings.ToLower(strings.TrimSpace(rec[0]))] {
		return true
	}
	_, err := ParseValue(rec[1])
	return err != nil
}
