package dbstatus

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/koustreak/dac/internal/database"
)

// fakeResult is the canned answer for one statement.
type fakeResult struct {
	row  []any   // QueryRow values
	rows [][]any // Query values
	err  error
	// block makes the statement wait for ctx cancellation before failing.
	block bool
}

// fakeDB answers statements by exact SQL text.
type fakeDB struct {
	results map[string]fakeResult
	// gate, when non-nil, holds every statement until gateSize have started.
	gate     chan struct{}
	gateSize int

	mu      sync.Mutex
	started int
	calls   []string
}

func (f *fakeDB) Ping(context.Context) error { return nil }
func (f *fakeDB) Close()                     {}
func (f *fakeDB) Driver() database.Driver    { return database.DriverPostgres }

func (f *fakeDB) enter(ctx context.Context, sql string) (fakeResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sql)
	f.started++
	if f.gate != nil && f.started == f.gateSize {
		close(f.gate)
	}
	f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return fakeResult{}, ctx.Err()
		}
	}

	res, ok := f.results[sql]
	if !ok {
		return fakeResult{}, fmt.Errorf("unexpected statement: %s", sql)
	}
	if res.block {
		<-ctx.Done()
		return fakeResult{}, ctx.Err()
	}
	return res, res.err
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, _ ...any) (database.Row, error) {
	res, err := f.enter(ctx, sql)
	if err != nil {
		return nil, err
	}
	return fakeRow(res.row), nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, _ ...any) (database.Rows, error) {
	res, err := f.enter(ctx, sql)
	if err != nil {
		return nil, err
	}
	return &fakeRows{rows: res.rows, pos: -1}, nil
}

type fakeRow []any

func (r fakeRow) Scan(dest ...any) error { return assign(dest, r) }

type fakeRows struct {
	rows [][]any
	pos  int
}

func (r *fakeRows) Next() bool             { r.pos++; return r.pos < len(r.rows) }
func (r *fakeRows) Scan(dest ...any) error { return assign(dest, r.rows[r.pos]) }
func (r *fakeRows) Close()                 {}
func (r *fakeRows) Err() error             { return nil }

func assign(dest, src []any) error {
	if len(dest) != len(src) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(src))
	}
	for i := range dest {
		dv := reflect.ValueOf(dest[i]).Elem()
		sv := reflect.ValueOf(src[i])
		if !sv.Type().AssignableTo(dv.Type()) {
			return fmt.Errorf("scan: column %d is %s, destination is %s", i, sv.Type(), dv.Type())
		}
		dv.Set(sv)
	}
	return nil
}
