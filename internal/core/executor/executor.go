// Package executor runs bound call plans against Postgres and returns
// raw tile bytes. It is the only place request-serving code touches
// the database.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlasgrid/pgtiles/internal/catalog"
	"github.com/atlasgrid/pgtiles/internal/core/observability"
)

// Tile is one execution result. ETag is empty unless the plan's
// return shape carries the cache-validator column.
type Tile struct {
	Data []byte
	ETag string
}

type Interface interface {
	FetchTile(ctx context.Context, plan catalog.CallPlan, z, x, y int, query []byte) (Tile, error)
}

type Executor struct {
	logger *slog.Logger
	pool   *pgxpool.Pool
}

func New(logger *slog.Logger, pool *pgxpool.Pool) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{logger: logger, pool: pool}
}

// FetchTile binds z/x/y and the encoded query JSON into the plan's
// argument positions and executes the call. A NULL bytea result comes
// back as a zero-length tile, not an error.
func (e *Executor) FetchTile(ctx context.Context, plan catalog.CallPlan, z, x, y int, query []byte) (Tile, error) {
	sql, args := buildCall(plan, z, x, y, query)

	start := time.Now()
	row := e.pool.QueryRow(ctx, sql, args...)

	var t Tile
	var err error
	if plan.Shape.HasETag() {
		var etag *string
		err = row.Scan(&t.Data, &etag)
		if etag != nil {
			t.ETag = *etag
		}
	} else {
		err = row.Scan(&t.Data)
	}
	observability.ObserveTileQuery(plan.ID, err, time.Since(start).Seconds())

	if errors.Is(err, pgx.ErrNoRows) {
		// set-returning function yielded nothing at this coordinate
		return Tile{}, nil
	}
	if err != nil {
		e.logger.Warn("tile query failed", "source", plan.ID, "z", z, "x", x, "y", y, "err", err)
		return Tile{}, fmt.Errorf("execute %s(%d/%d/%d): %w", plan.ID, z, x, y, err)
	}
	return t, nil
}

// buildCall renders the SQL for a plan using named arguments, so the
// declared argument order never matters. Scalar returns are selected
// directly; record shapes go through FROM so the columns split.
// Identifiers are quoted; values always travel as bind parameters.
func buildCall(plan catalog.CallPlan, z, x, y int, query []byte) (string, []any) {
	var (
		args  []any
		place []string
	)
	bind := func(argIdx int, v any, cast string) {
		args = append(args, v)
		place = append(place, fmt.Sprintf("%s => $%d%s", quoteIdent(plan.ArgNames[argIdx]), len(args), cast))
	}
	bind(plan.ZArg, z, "::integer")
	bind(plan.XArg, x, "::integer")
	bind(plan.YArg, y, "::integer")
	if plan.HasQuery() {
		q := query
		if len(q) == 0 {
			q = []byte("{}")
		}
		bind(plan.QueryArg, string(q), "::json")
	}

	call := fmt.Sprintf("%s(%s)", quoteQualified(plan.Schema, plan.Name), strings.Join(place, ", "))
	if plan.Shape == catalog.ScalarBytea {
		return "SELECT " + call, args
	}
	return "SELECT * FROM " + call, args
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteQualified(schema, name string) string {
	if schema == "" {
		return quoteIdent(name)
	}
	return quoteIdent(schema) + "." + quoteIdent(name)
}
