// Package shell drives an interactive query-shell client through the
// scripted command batches of one test: connect, setup, execute, teardown,
// quit.
//
// The client is a black box behind the Runner interface: ordered command
// strings in, an integer status out. Session fixes the batch contents and
// their order; it never retries and never interleaves batches from
// different phases on the shared connection.
//
// Status mapping is deliberately asymmetric. A batch fails the run only
// when the client reports StatusError; no-op and unknown statuses count as
// success. SQLiteRunner is the embedded client used by the harness binary.
package shell
