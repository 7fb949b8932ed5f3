package dbstatus

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/koustreak/dac/internal/database"
	"github.com/koustreak/dac/internal/errs"
	"golang.org/x/sync/errgroup"
)

// Aggregator runs the catalog queries and merges them into a Record.
// It holds no per-call state, so one Aggregator serves concurrent callers.
type Aggregator struct {
	db      database.DB
	queries Queries
}

// New returns an Aggregator that runs queries against db.
func New(db database.DB, queries Queries) *Aggregator {
	return &Aggregator{db: db, queries: queries}
}

type identity struct {
	version, user, database, serverTime, uptime string
}

type sizes struct {
	db, tables int64
}

// Status runs every catalog query concurrently and merges the results.
// It is all-or-nothing: the first failing query cancels the others and its
// error is returned with a nil Record.
//
// Sizes are converted from their base-10 text form into int64; a value
// outside the int64 range fails the aggregation.
func (a *Aggregator) Status(ctx context.Context) (*Record, error) {
	var (
		id                     identity
		tables, indexes, conns int64
		sz                     sizes
		top                    []TopTable
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		id, err = a.identity(gctx)
		return err
	})
	g.Go(func() (err error) {
		tables, err = a.count(gctx, a.queries.Tables, "table count")
		return err
	})
	g.Go(func() (err error) {
		indexes, err = a.count(gctx, a.queries.Indexes, "index count")
		return err
	})
	g.Go(func() (err error) {
		conns, err = a.count(gctx, a.queries.Connections, "connection count")
		return err
	})
	g.Go(func() (err error) {
		sz, err = a.sizes(gctx)
		return err
	})
	g.Go(func() (err error) {
		top, err = a.topTables(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Record{
		Connected:  true,
		Version:    id.version,
		User:       id.user,
		Database:   id.database,
		ServerTime: id.serverTime,
		Uptime:     id.uptime,
		Totals: Totals{
			Tables:      tables,
			Indexes:     indexes,
			Connections: conns,
			DBBytes:     sz.db,
			TablesBytes: sz.tables,
		},
		TopTables: top,
	}, nil
}

func (a *Aggregator) identity(ctx context.Context) (identity, error) {
	var id identity
	row, err := a.db.QueryRow(ctx, a.queries.Identity)
	if err != nil {
		return id, wrap(err, "server identity")
	}
	if err := row.Scan(&id.version, &id.user, &id.database, &id.serverTime, &id.uptime); err != nil {
		return id, wrap(err, "server identity")
	}
	return id, nil
}

func (a *Aggregator) count(ctx context.Context, query, what string) (int64, error) {
	row, err := a.db.QueryRow(ctx, query)
	if err != nil {
		return 0, wrap(err, what)
	}
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, wrap(err, what)
	}
	if n < 0 {
		return 0, errs.New(errs.ErrKindDecodeFailed, what+": negative count "+strconv.FormatInt(n, 10))
	}
	return n, nil
}

func (a *Aggregator) sizes(ctx context.Context) (sizes, error) {
	var sz sizes
	row, err := a.db.QueryRow(ctx, a.queries.Sizes)
	if err != nil {
		return sz, wrap(err, "storage sizes")
	}
	var dbText, tablesText string
	if err := row.Scan(&dbText, &tablesText); err != nil {
		return sz, wrap(err, "storage sizes")
	}
	if sz.db, err = parseBytes(dbText, "db_bytes"); err != nil {
		return sz, err
	}
	if sz.tables, err = parseBytes(tablesText, "tables_bytes"); err != nil {
		return sz, err
	}
	return sz, nil
}

func (a *Aggregator) topTables(ctx context.Context) ([]TopTable, error) {
	rows, err := a.db.Query(ctx, a.queries.TopTables)
	if err != nil {
		return nil, wrap(err, "top tables")
	}
	defer rows.Close()

	top := make([]TopTable, 0, MaxTopTables)
	for rows.Next() {
		var name, sizeText string
		if err := rows.Scan(&name, &sizeText); err != nil {
			return nil, wrap(err, "top tables")
		}
		n, err := parseBytes(sizeText, "total_bytes of "+name)
		if err != nil {
			return nil, err
		}
		top = append(top, TopTable{Name: name, TotalBytes: n})
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err, "top tables")
	}

	// Largest first; stable so ties keep the statement's order.
	slices.SortStableFunc(top, func(x, y TopTable) int {
		switch {
		case x.TotalBytes > y.TotalBytes:
			return -1
		case x.TotalBytes < y.TotalBytes:
			return 1
		}
		return 0
	})
	if len(top) > MaxTopTables {
		top = top[:MaxTopTables]
	}
	return top, nil
}

// parseBytes converts a base-10 size as returned by the catalog.
func parseBytes(s, field string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, errs.Wrap(errs.ErrKindDecodeFailed, field+": not an int64 byte count", err)
	}
	return n, nil
}

// wrap prefixes err with the failing query. Driver errors keep their kind;
// anything else is reported as a query failure.
func wrap(err error, what string) error {
	if errs.KindOf(err) == errs.ErrKindUnknown {
		return errs.Wrap(errs.ErrKindQueryFailed, what, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}
