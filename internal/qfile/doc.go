// Package qfile orchestrates golden-file tests for a SQL query shell.
//
// One QFile instance drives one test: the script runs through an
// interactive client session, the recorded transcript is normalized by
// the filter pipeline, and the result is compared (via external diff)
// against a stored baseline. Artifacts always survive a failed run for
// post-mortem inspection: the raw transcript is renamed to .raw.error on
// script failure, and the normalized .out file is written whenever the
// run reaches the filter phase.
//
// There is no timeout anywhere in the lifecycle. A hung script blocks the
// whole run; that is a property of the design, not an oversight.
package qfile
