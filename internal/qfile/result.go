package qfile

// Result captures the two independent verdicts of one test run. A script
// can run to completion yet still mismatch its baseline, so the flags are
// kept separate.
type Result struct {
	Name string `json:"name"`

	// RanOK is false only when the client reported the explicit error
	// sentinel for the script run.
	RanOK bool `json:"ran_ok"`

	// Match is the expected-vs-actual comparison verdict. For a new test
	// whose baseline was just accepted, it is true by construction.
	Match bool `json:"match"`

	// NewBaseline marks a run that had no baseline and accepted one.
	NewBaseline bool `json:"new_baseline,omitempty"`
}

// Pass reports the overall verdict. Policy beyond this (ignore lists,
// retries) belongs to the harness layered above.
func (r Result) Pass() bool {
	return r.RanOK && r.Match
}
