// Package diffexec compares two transcript files with the external diff
// utility.
//
// Comparison is always textual (-a). Hosts with divergent line-ending and
// whitespace conventions additionally get whitespace-insensitive,
// blank-line-insensitive and trailing-carriage-return-stripping flags.
// The flag set is a pure function of a capability bit so both arms are
// testable on any host.
package diffexec

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
)

// ErrMissingExpected reports a comparison attempted against a baseline
// that does not exist. Callers treat it as a comparison failure, not a
// fault: it usually means the test is new and needs a baseline accepted.
var ErrMissingExpected = errors.New("expected results file does not exist")

// Flags returns the diff argument list for a host. Loose hosts tolerate
// whitespace, blank-line and line-ending differences.
func Flags(loose bool) []string {
	args := []string{"-a"}
	if loose {
		args = append(args, "-b", "--strip-trailing-cr", "-B")
	}
	return args
}

// Loose reports whether the current host needs the tolerant flag set.
// Files written on Windows carry CRLF line endings and often trailing
// whitespace from stream conversions.
func Loose() bool {
	return runtime.GOOS == "windows"
}

// Compare diffs the expected file against the actual file and reports
// whether they match. Diff output is forwarded to stdout and stderr for
// post-mortem inspection. Returns ErrMissingExpected without running diff
// when the baseline is absent.
func Compare(expectedPath, actualPath string) (bool, error) {
	return compare(expectedPath, actualPath, Loose(), os.Stdout, os.Stderr)
}

// compare is the testable core: the capability bit and output writers are
// injected.
func compare(expectedPath, actualPath string, loose bool, stdout, stderr io.Writer) (bool, error) {
	if _, err := os.Stat(expectedPath); err != nil {
		if os.IsNotExist(err) {
			return false, fmt.Errorf("%w: %s", ErrMissingExpected, expectedPath)
		}
		return false, fmt.Errorf("stat expected file: %w", err)
	}

	args := append(Flags(loose), expectedPath, actualPath)
	cmd := exec.Command("diff", args...)

	outPipe, err := cmd.StdoutPipe()
	if err != nil {
		return false, fmt.Errorf("diff stdout pipe: %w", err)
	}
	errPipe, err := cmd.StderrPipe()
	if err != nil {
		return false, fmt.Errorf("diff stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("start diff: %w", err)
	}

	// Both pipes are drained concurrently with the wait: a full OS pipe
	// buffer would otherwise deadlock the subprocess. Both drains are
	// joined before the exit code is trusted.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(stdout, outPipe)
	}()
	go func() {
		defer wg.Done()
		io.Copy(stderr, errPipe)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Nonzero exit: the files differ (or diff itself failed).
			// Either way the verdict is a mismatch, not a fault.
			return false, nil
		}
		return false, fmt.Errorf("wait for diff: %w", err)
	}
	return true, nil
}
