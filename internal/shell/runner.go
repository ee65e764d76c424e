package shell

// Status codes a Runner reports for one command batch.
//
// Only StatusError marks a script run as failed. No-op and unknown
// statuses count as success; callers that want to treat every non-success
// status as failure are changing the contract, not fixing a bug.
const (
	StatusSuccess = 0
	StatusError   = 1
	StatusNoOp    = 2
	StatusUnknown = 3
)

// Failed reports whether a batch status marks the run as failed.
func Failed(status int) bool {
	return status == StatusError
}

// Runner executes ordered command batches against one live query-shell
// connection. Commands within a batch run in order; the returned status
// describes the batch outcome. The error return is reserved for
// infrastructure failures (broken connection, unreadable script file);
// a script statement failing is a status, not an error.
type Runner interface {
	Run(commands []string) (int, error)
	Close() error
}
