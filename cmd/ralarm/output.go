package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"ralarm/internal/processor"
)

func writeReports(w io.Writer, format string, reports []processor.Report) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	for i, r := range reports {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := writeText(w, r); err != nil {
			return err
		}
	}
	return nil
}

func writeText(w io.Writer, r processor.Report) error {
	fmt.Fprintf(w, "alarm %s: %s\n", r.Alarm, r.Rule)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tVALUE\tDATAPOINT\tSTATE\t")
	for _, p := range r.Periods {
		value := "-"
		if p.Value.Valid {
			value = strconv.FormatFloat(p.Value.Value, 'g', -1, 64)
		}
		dp := p.Classification.String()
		if p.Ignored {
			dp = "ignored"
		}
		state := p.State.String()
		if p.Changed {
			state += " *"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t\n", p.Timestamp, value, dp, state)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "%d periods, %d ignored, %d transitions, final state %s\n",
		len(r.Periods), r.Ignored, r.Transitions, r.Final)
	return err
}
