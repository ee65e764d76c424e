package filter

import (
	"os"
	"os/user"
	"regexp"
	"strconv"
	"time"
)

// Context carries the run-scoped values the transcript rules embed.
// A Set built from one Context must never be reused for a run with a
// different context: the unixtime rules are keyed to this run's wall
// clock and the user rule to this run's account name.
type Context struct {
	// TimePrefix is the leading four digits of the run's wall-clock time
	// in epoch milliseconds. It narrows the unixtime rules so unrelated
	// 10- and 13-digit numbers survive filtering.
	TimePrefix string

	// UserName is the invoking OS account name.
	UserName string

	ScratchDir   string
	WarehouseDir string
	ExpectedDir  string
	OutputDir    string
	QFileDir     string
	RootDir      string
}

// CurrentContext builds a Context for the current wall clock and OS user.
// Directory fields are left for the caller to fill in.
func CurrentContext() Context {
	return Context{
		TimePrefix: TimePrefix(time.Now()),
		UserName:   currentUser(),
	}
}

// TimePrefix returns the leading four digits of t in epoch milliseconds.
func TimePrefix(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)[:4]
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}

const (
	timePattern = `(Mon|Tue|Wed|Thu|Fri|Sat|Sun) ` +
		`(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec) ` +
		`\d{2} \d{2}:\d{2}:\d{2} \w+ 20\d{2}`

	// Structured log-line header: timestamp, thread, level, logger.
	logPattern = `\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2},\d*\s+\S+\s+\[.*\]\s+\S+:\s+`

	operatorPattern = `"(CONDITION|COPY|DEPENDENCY_COLLECTION|DDL` +
		`|EXPLAIN|FETCH|FIL|FS|FUNCTION|GBY|HASHTABLEDUMMY|HASTTABLESINK|JOIN` +
		`|LATERALVIEWFORWARD|LIM|LVJ|MAP|MAPJOIN|MAPRED|MAPREDLOCAL|MOVE|OP|RS` +
		`|SCR|SEL|STATS|TS|UDTF|UNION)_\d+"`
)

// NewTranscriptFilter builds the transcript normalization pipeline for one
// run. Rule order is load-bearing: directory masks run before the timestamp
// and unixtime masks so a date-like substring inside a configured path is
// consumed by the path placeholder instead of a numeric one.
func NewTranscriptFilter(ctx Context) *Set {
	return NewSet().
		Add(logPattern, "").
		Add("going to print operations logs\n", "").
		Add("printed operations logs\n", "").
		Add("Getting log thread is interrupted, since query is done!\n", "").
		Add(scratchPattern(ctx.ScratchDir), "!!{hive.exec.scratchdir}!!").
		AddLiteral(ctx.WarehouseDir, "!!{hive.metastore.warehouse.dir}!!").
		AddLiteral(ctx.ExpectedDir, "!!{expectedDirectory}!!").
		AddLiteral(ctx.OutputDir, "!!{outputDirectory}!!").
		AddLiteral(ctx.QFileDir, "!!{qFileDirectory}!!").
		AddLiteral(ctx.RootDir, "!!{hive.root}!!").
		Add(`\(queryId=[^\)]*\)`, "queryId=(!!{queryId}!!)").
		Add(`file:/\w\S+`, "file:/!!ELIDED!!").
		Add(`pfile:/\w\S+`, "pfile:/!!ELIDED!!").
		Add(`hdfs:/\w\S+`, "hdfs:/!!ELIDED!!").
		Add(`last_modified_by=\w+`, "last_modified_by=!!ELIDED!!").
		Add(timePattern, "!!TIMESTAMP!!").
		Add(`(\D)`+ctx.TimePrefix+`\d{6}(\D)`, "${1}!!UNIXTIME!!${2}").
		Add(`(\D)`+ctx.TimePrefix+`\d{9}(\D)`, "${1}!!UNIXTIMEMILLIS!!${2}").
		AddLiteral(ctx.UserName, "!!{user.name}!!").
		Add(operatorPattern, `"${1}_!!ELIDED!!"`).
		Add(`Time taken: [0-9\.]* seconds`, "Time taken: !!ELIDED!! seconds")
}

// scratchPattern matches the scratch directory plus the generated trailing
// path segments the engine appends under it. An empty scratch dir yields a
// pattern that cannot match.
func scratchPattern(dir string) string {
	if dir == "" {
		return `\z.`
	}
	return regexp.QuoteMeta(dir) + `[\w\-/]+`
}
