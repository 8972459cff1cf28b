// Package trace records boundary calls into a SQLite database. It
// wraps a script.Service, forwards every call unchanged, and writes one
// row per call with the operation, its target, a rendering of the
// arguments and result, and timing. Recordings are for offline
// inspection of a session, not for replay.
package trace

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chazu/tether/ndarray"
	"github.com/chazu/tether/script"
)

// Recorder is a recording decorator around a script.Service.
type Recorder struct {
	db   *sql.DB
	next script.Service
	mu   sync.Mutex
}

var _ script.Service = (*Recorder)(nil)

// Call is one recorded boundary call.
type Call struct {
	ID       int64
	At       time.Time
	Op       string
	Target   string
	Detail   string
	Err      string
	Duration time.Duration
}

// New opens (or creates) the trace database and wraps next.
func New(dbPath string, next script.Service) (*Recorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS calls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at INTEGER NOT NULL,
		op TEXT NOT NULL,
		target TEXT NOT NULL,
		detail TEXT NOT NULL,
		err TEXT NOT NULL,
		dur_us INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Recorder{db: db, next: next}, nil
}

// Open opens an existing trace database for reading. The returned
// Recorder serves Calls and CallsByOp only; it wraps no service.
func Open(dbPath string) (*Recorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return &Recorder{db: db}, nil
}

// Close closes the database connection.
func (r *Recorder) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// record writes one row. Recording failures are swallowed: a broken
// trace must never fail the call it observed.
func (r *Recorder) record(op, target, detail string, start time.Time, callErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	errText := ""
	if callErr != nil {
		errText = callErr.Error()
	}
	r.db.Exec(
		"INSERT INTO calls (at, op, target, detail, err, dur_us) VALUES (?, ?, ?, ?, ?, ?)",
		start.UnixNano(), op, target, detail, errText,
		time.Since(start).Microseconds(),
	)
}

// Calls returns every recorded call in recording order.
func (r *Recorder) Calls() ([]Call, error) {
	rows, err := r.db.Query("SELECT id, at, op, target, detail, err, dur_us FROM calls ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying calls: %w", err)
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		var c Call
		var at, durUS int64
		if err := rows.Scan(&c.ID, &at, &c.Op, &c.Target, &c.Detail, &c.Err, &durUS); err != nil {
			return nil, fmt.Errorf("scanning call: %w", err)
		}
		c.At = time.Unix(0, at)
		c.Duration = time.Duration(durUS) * time.Microsecond
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

// CallsByOp returns recorded calls for one operation.
func (r *Recorder) CallsByOp(op string) ([]Call, error) {
	all, err := r.Calls()
	if err != nil {
		return nil, err
	}
	var out []Call
	for _, c := range all {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// script.Service passthrough
// ---------------------------------------------------------------------------

func (r *Recorder) GetCurrent(kind string) (script.Datum, error) {
	start := time.Now()
	d, err := r.next.GetCurrent(kind)
	r.record("GetCurrent", kind, d.String(), start, err)
	return d, err
}

func (r *Recorder) GetMember(ref script.Ref, name string) (script.Datum, error) {
	start := time.Now()
	d, err := r.next.GetMember(ref, name)
	r.record("GetMember", ref.String(), name, start, err)
	return d, err
}

func (r *Recorder) SetMember(ref script.Ref, name string, value script.Datum) error {
	start := time.Now()
	err := r.next.SetMember(ref, name, value)
	r.record("SetMember", ref.String(), fmt.Sprintf("%s = %s", name, value), start, err)
	return err
}

func (r *Recorder) MemberNames(ref script.Ref) ([]string, error) {
	start := time.Now()
	names, err := r.next.MemberNames(ref)
	r.record("MemberNames", ref.String(), fmt.Sprintf("%d names", len(names)), start, err)
	return names, err
}

func (r *Recorder) Invoke(ref script.Ref, argNames []string, argValues []script.Datum) (script.Datum, error) {
	start := time.Now()
	d, err := r.next.Invoke(ref, argNames, argValues)

	parts := make([]string, len(argNames))
	for i, name := range argNames {
		parts[i] = fmt.Sprintf("%s: %s", name, argValues[i])
	}
	r.record("Invoke", ref.String(), strings.Join(parts, ", "), start, err)
	return d, err
}

func (r *Recorder) RefsEqual(a, b script.Ref) (bool, error) {
	start := time.Now()
	eq, err := r.next.RefsEqual(a, b)
	r.record("RefsEqual", a.String(), b.String(), start, err)
	return eq, err
}

func (r *Recorder) Count(ref script.Ref) (int, error) {
	start := time.Now()
	n, err := r.next.Count(ref)
	r.record("Count", ref.String(), fmt.Sprintf("%d", n), start, err)
	return n, err
}

func (r *Recorder) ElementAt(ref script.Ref, index int) (script.Datum, error) {
	start := time.Now()
	d, err := r.next.ElementAt(ref, index)
	r.record("ElementAt", ref.String(), fmt.Sprintf("[%d]", index), start, err)
	return d, err
}

func (r *Recorder) ElementByKey(ref script.Ref, key string) (script.Datum, error) {
	start := time.Now()
	d, err := r.next.ElementByKey(ref, key)
	r.record("ElementByKey", ref.String(), key, start, err)
	return d, err
}

func (r *Recorder) Keys(ref script.Ref) ([]string, error) {
	start := time.Now()
	keys, err := r.next.Keys(ref)
	r.record("Keys", ref.String(), fmt.Sprintf("%d keys", len(keys)), start, err)
	return keys, err
}

func (r *Recorder) Contains(ref script.Ref, elem script.Ref) (bool, error) {
	start := time.Now()
	ok, err := r.next.Contains(ref, elem)
	r.record("Contains", ref.String(), elem.String(), start, err)
	return ok, err
}

func (r *Recorder) IndexOf(ref script.Ref, elem script.Ref) (int, error) {
	start := time.Now()
	i, err := r.next.IndexOf(ref, elem)
	r.record("IndexOf", ref.String(), elem.String(), start, err)
	return i, err
}

func (r *Recorder) KeyOf(ref script.Ref, elem script.Ref) (string, error) {
	start := time.Now()
	key, err := r.next.KeyOf(ref, elem)
	r.record("KeyOf", ref.String(), elem.String(), start, err)
	return key, err
}

func (r *Recorder) ElementType(ref script.Ref) (script.ElemType, error) {
	start := time.Now()
	et, err := r.next.ElementType(ref)
	r.record("ElementType", ref.String(), et.Code.String(), start, err)
	return et, err
}

func (r *Recorder) Rank(ref script.Ref) (int, error) {
	start := time.Now()
	n, err := r.next.Rank(ref)
	r.record("Rank", ref.String(), fmt.Sprintf("%d", n), start, err)
	return n, err
}

func (r *Recorder) Extent(ref script.Ref, dim int) (int, error) {
	start := time.Now()
	n, err := r.next.Extent(ref, dim)
	r.record("Extent", ref.String(), fmt.Sprintf("dim %d = %d", dim, n), start, err)
	return n, err
}

func (r *Recorder) NewArray(elem ndarray.DType, shape []int) (script.Datum, error) {
	start := time.Now()
	d, err := r.next.NewArray(elem, shape)
	r.record("NewArray", d.Ref.String(), fmt.Sprintf("%s%v", elem, shape), start, err)
	return d, err
}

func (r *Recorder) Pin(ref script.Ref) ([]byte, error) {
	start := time.Now()
	buf, err := r.next.Pin(ref)
	r.record("Pin", ref.String(), fmt.Sprintf("%d bytes", len(buf)), start, err)
	return buf, err
}

func (r *Recorder) Unpin(ref script.Ref) error {
	start := time.Now()
	err := r.next.Unpin(ref)
	r.record("Unpin", ref.String(), "", start, err)
	return err
}
