// Package alarm evaluates periodic metric samples against a threshold and
// reports OK or ALARM using the "M datapoints out of N evaluation periods"
// rule.
//
// Each sample is classified as good, bad or missing. The classification is
// pushed into a window holding the last N datapoints, and the state becomes
// ALARM whenever at least M of them count as bad. Whether a missing
// datapoint counts depends on the missing data policy:
//
//   - breaching:    missing counts as bad
//   - notBreaching: missing is kept in the window but never counts
//   - missing:      same counting as notBreaching (default)
//   - ignore:       missing samples are dropped and do not advance the window
//
// Configs are assembled with a Builder, which rejects missing required
// fields and out-of-range values before any Evaluator exists.
package alarm
