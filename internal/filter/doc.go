// Package filter normalizes query-shell transcripts for golden-file
// comparison.
//
// Machine-generated transcripts embed values that differ between runs and
// hosts: timestamps, generated query IDs, absolute directory paths, the
// invoking user. A Set replaces each of those with a fixed placeholder so
// unrelated runs of the same script compare byte-for-byte.
//
// The pipeline is an ordered list of regex substitutions. Order matters:
// later rules see the output of earlier ones, and the directory masks must
// run before the timestamp and unixtime masks or a date-like substring
// inside a configured path would be corrupted by a numeric placeholder.
//
// Rules embed run-scoped state (the wall-clock prefix and OS user), carried
// in an explicit Context. Build a fresh Set per run; never cache one across
// runs with different context.
package filter
