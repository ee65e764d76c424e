package shell

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Clock supplies wall-clock readings for elapsed-time reporting.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// SQLiteRunner is an embedded Runner backed by database/sql with the
// sqlite3 driver. It understands the directive vocabulary of the session
// driver (!set, !connect, !run, !record, !quit) plus the namespace
// statements the setup and teardown batches issue. Namespaces map to
// ATTACHed database files under the scratch directory.
//
// All output goes to the trace writer; while recording is active it is
// additionally teed to the transcript file.
type SQLiteRunner struct {
	db      *sql.DB
	clock   Clock
	trace   io.Writer
	record  *os.File
	opts    map[string]string
	vars    map[string]string
	current string
	scratch string
	logger  *slog.Logger
}

// NewSQLiteRunner creates a runner writing its verbose trace to trace and
// storing namespace database files under scratchDir. A nil clock means
// the system clock.
func NewSQLiteRunner(scratchDir string, trace io.Writer, clock Clock, logger *slog.Logger) *SQLiteRunner {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteRunner{
		clock:   clock,
		trace:   trace,
		opts:    map[string]string{"outputformat": "table"},
		vars:    map[string]string{},
		scratch: scratchDir,
		logger:  logger,
	}
}

// Run executes the batch in order. It stops at the first command that
// reports the error sentinel, or at the first infrastructure failure.
func (r *SQLiteRunner) Run(commands []string) (int, error) {
	status := StatusNoOp
	for _, cmd := range commands {
		st, err := r.dispatch(cmd)
		if err != nil {
			return StatusError, err
		}
		if st == StatusError {
			return StatusError, nil
		}
		status = st
	}
	return status, nil
}

// Close stops any active recording and closes the connection. Safe to
// call on an unconnected runner and safe to call more than once.
func (r *SQLiteRunner) Close() error {
	if r.record != nil {
		r.record.Close()
		r.record = nil
	}
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

func (r *SQLiteRunner) dispatch(cmd string) (int, error) {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return StatusNoOp, nil
	}
	if strings.HasPrefix(cmd, "!") {
		return r.directive(cmd)
	}
	return r.statement(cmd)
}

func (r *SQLiteRunner) directive(cmd string) (int, error) {
	fields := strings.Fields(cmd)
	switch fields[0] {
	case "!set":
		if len(fields) < 3 {
			return StatusError, nil
		}
		r.opts[fields[1]] = fields[2]
		return StatusSuccess, nil

	case "!connect":
		if len(fields) < 2 {
			return StatusError, nil
		}
		driver := "sqlite3"
		if len(fields) >= 5 {
			driver = fields[4]
		}
		db, err := sql.Open(driver, fields[1])
		if err != nil {
			return StatusError, fmt.Errorf("connect %s: %w", fields[1], err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return StatusError, fmt.Errorf("connect %s: %w", fields[1], err)
		}
		// Single connection: ATTACH and session state are per-connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		r.db = db
		r.writeln("Connected to " + fields[1])
		return StatusSuccess, nil

	case "!run":
		if len(fields) < 2 {
			return StatusError, nil
		}
		return r.runScript(fields[1])

	case "!record":
		if len(fields) == 1 {
			if r.record != nil {
				err := r.record.Close()
				r.record = nil
				if err != nil {
					return StatusError, fmt.Errorf("stop recording: %w", err)
				}
			}
			return StatusSuccess, nil
		}
		f, err := os.Create(fields[1])
		if err != nil {
			return StatusError, fmt.Errorf("start recording: %w", err)
		}
		r.record = f
		return StatusSuccess, nil

	case "!quit":
		return StatusSuccess, r.Close()

	default:
		r.writeln("Unknown command: " + fields[0])
		return StatusUnknown, nil
	}
}

// runScript executes every statement in the script file in order,
// stopping at the first failure.
func (r *SQLiteRunner) runScript(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return StatusError, fmt.Errorf("run script: %w", err)
	}
	for _, stmt := range splitStatements(string(data)) {
		st, err := r.statement(stmt)
		if err != nil {
			return StatusError, err
		}
		if st == StatusError {
			return StatusError, nil
		}
	}
	return StatusSuccess, nil
}

func (r *SQLiteRunner) statement(stmt string) (int, error) {
	stmt = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(stmt), ";"))
	if stmt == "" {
		return StatusNoOp, nil
	}
	r.writeln("> " + stmt + ";")

	start := r.clock.Now()
	status := r.execute(stmt)

	if r.verbose() {
		r.writeln(fmt.Sprintf("Completed (queryId=query_%s)", uuid.NewString()))
	}
	if r.opts["showelapsedtime"] == "true" {
		elapsed := r.clock.Now().Sub(start)
		r.writeln(fmt.Sprintf("Time taken: %.3f seconds", elapsed.Seconds()))
	}
	return status, nil
}

func (r *SQLiteRunner) execute(stmt string) int {
	upper := strings.ToUpper(stmt)
	switch {
	case strings.HasPrefix(upper, "USE "):
		r.current = unquoteIdent(strings.TrimSpace(stmt[4:]))
		return StatusSuccess

	case upper == "SHOW TABLES":
		return r.showTables()

	case strings.HasPrefix(upper, "CREATE DATABASE "):
		return r.createNamespace(unquoteIdent(strings.TrimSpace(stmt[len("CREATE DATABASE "):])))

	case strings.HasPrefix(upper, "DROP DATABASE "):
		return r.dropNamespace(dropTarget(stmt))

	case strings.HasPrefix(stmt, "set ") && strings.Contains(stmt, "="):
		kv := strings.SplitN(strings.TrimPrefix(stmt, "set "), "=", 2)
		r.vars[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		return StatusSuccess

	case isQuery(upper):
		return r.query(stmt)

	default:
		return r.exec(stmt)
	}
}

// dropTarget extracts the namespace name from a DROP DATABASE statement,
// tolerating IF EXISTS and a trailing CASCADE.
func dropTarget(stmt string) string {
	rest := strings.TrimSpace(stmt[len("DROP DATABASE "):])
	upper := strings.ToUpper(rest)
	if strings.HasPrefix(upper, "IF EXISTS ") {
		rest = strings.TrimSpace(rest[len("IF EXISTS "):])
	}
	if name, ok := strings.CutSuffix(rest, "CASCADE"); ok {
		rest = strings.TrimSpace(name)
	}
	return unquoteIdent(rest)
}

func (r *SQLiteRunner) createNamespace(name string) int {
	if r.db == nil {
		r.writeln("Error: not connected")
		return StatusError
	}
	path := filepath.Join(r.scratch, name+".db")
	if _, err := r.db.Exec(fmt.Sprintf("ATTACH DATABASE ? AS %q", name), path); err != nil {
		r.writeln("Error: " + err.Error())
		return StatusError
	}
	return StatusSuccess
}

func (r *SQLiteRunner) dropNamespace(name string) int {
	if r.db == nil {
		r.writeln("Error: not connected")
		return StatusError
	}
	// Not attached is fine: the setup batch drops before it creates.
	if _, err := r.db.Exec(fmt.Sprintf("DETACH DATABASE %q", name)); err != nil {
		r.logger.Debug("detach skipped", "namespace", name, "error", err)
	}
	path := filepath.Join(r.scratch, name+".db")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		r.writeln("Error: " + err.Error())
		return StatusError
	}
	return StatusSuccess
}

func (r *SQLiteRunner) showTables() int {
	if r.db == nil {
		r.writeln("Error: not connected")
		return StatusError
	}
	schema := r.schema()
	rows, err := r.db.Query(fmt.Sprintf("SELECT name FROM %q.sqlite_master WHERE type='table' ORDER BY name", schema))
	if err != nil {
		r.writeln("Error: " + err.Error())
		return StatusError
	}
	defer rows.Close()

	r.writeRow([]string{"tab_name"})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			r.writeln("Error: " + err.Error())
			return StatusError
		}
		r.writeRow([]string{name})
	}
	return StatusSuccess
}

func (r *SQLiteRunner) query(stmt string) int {
	if r.db == nil {
		r.writeln("Error: not connected")
		return StatusError
	}
	rows, err := r.db.Query(stmt)
	if err != nil {
		r.writeln("Error: " + err.Error())
		return StatusError
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		r.writeln("Error: " + err.Error())
		return StatusError
	}
	r.writeRow(cols)

	count := 0
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			r.writeln("Error: " + err.Error())
			return StatusError
		}
		row := make([]string, len(cols))
		for i, v := range values {
			row[i] = formatValue(v)
		}
		r.writeRow(row)
		count++
	}
	if err := rows.Err(); err != nil {
		r.writeln("Error: " + err.Error())
		return StatusError
	}
	r.writeln(fmt.Sprintf("%d rows selected", count))
	return StatusSuccess
}

func (r *SQLiteRunner) exec(stmt string) int {
	if r.db == nil {
		r.writeln("Error: not connected")
		return StatusError
	}
	res, err := r.db.Exec(stmt)
	if err != nil {
		r.writeln("Error: " + err.Error())
		return StatusError
	}
	if n, err := res.RowsAffected(); err == nil {
		r.writeln(fmt.Sprintf("%d rows affected", n))
	} else {
		r.writeln("No rows affected")
	}
	return StatusSuccess
}

func (r *SQLiteRunner) schema() string {
	if r.current == "" || r.current == "default" {
		return "main"
	}
	return r.current
}

func (r *SQLiteRunner) verbose() bool {
	return r.opts["verbose"] == "true"
}

func (r *SQLiteRunner) writeRow(fields []string) {
	if r.opts["outputformat"] == "csv" {
		quoted := make([]string, len(fields))
		for i, f := range fields {
			quoted[i] = "'" + f + "'"
		}
		r.writeln(strings.Join(quoted, ","))
		return
	}
	r.writeln(strings.Join(fields, "\t"))
}

func (r *SQLiteRunner) writeln(line string) {
	if r.trace != nil {
		fmt.Fprintln(r.trace, line)
	}
	if r.record != nil {
		fmt.Fprintln(r.record, line)
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}

func isQuery(upper string) bool {
	for _, prefix := range []string{"SELECT", "WITH", "VALUES", "PRAGMA", "EXPLAIN", "SHOW"} {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}

func unquoteIdent(name string) string {
	return strings.Trim(name, "`\"")
}

// splitStatements breaks a script into statements on trailing semicolons.
// Full-line comments and blank lines are dropped. Semicolons inside string
// literals are not handled; test scripts keep statements one-per-region.
func splitStatements(script string) []string {
	var stmts []string
	var current strings.Builder
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(trimmed)
		if strings.HasSuffix(trimmed, ";") {
			stmts = append(stmts, current.String())
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}
