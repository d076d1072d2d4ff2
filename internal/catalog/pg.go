package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// funcScanSQL lists user functions that could plausibly act as tile
// providers: anything in a non-system schema whose declared result
// involves bytea. Argument and result columns are split by mode so the
// resolver sees IN arguments and OUT/TABLE columns separately.
const funcScanSQL = `
SELECT
    ns.nspname AS schema,
    p.proname AS name,
    COALESCE(p.proargnames, '{}'::text[]) AS arg_names,
    COALESCE(p.proargmodes, '{}'::"char"[])::text[] AS arg_modes,
    ARRAY(
        SELECT format_type(t.oid, NULL)
        FROM unnest(COALESCE(p.proallargtypes, p.proargtypes::oid[])) WITH ORDINALITY AS a(oid, ord)
        JOIN pg_type t ON t.oid = a.oid
        ORDER BY a.ord
    ) AS arg_types,
    format_type(p.prorettype, NULL) AS ret_type
FROM pg_proc p
JOIN pg_namespace ns ON p.pronamespace = ns.oid
WHERE ns.nspname NOT IN ('pg_catalog', 'information_schema')
  AND p.prokind = 'f'
ORDER BY ns.nspname, p.proname`

// Introspector scans a Postgres catalog for candidate tile functions.
// It only reads metadata; resolution and execution live elsewhere.
type Introspector struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewIntrospector(pool *pgxpool.Pool, log *slog.Logger) *Introspector {
	if log == nil {
		log = slog.Default()
	}
	return &Introspector{pool: pool, log: log}
}

// ScanFunctions returns raw metadata for every candidate function.
// Rows that cannot be decoded are skipped with a warning; a bad entry
// in an open user catalog must not sink the scan.
func (in *Introspector) ScanFunctions(ctx context.Context) ([]FuncMeta, error) {
	rows, err := in.pool.Query(ctx, funcScanSQL)
	if err != nil {
		return nil, fmt.Errorf("scan pg_proc: %w", err)
	}
	defer rows.Close()

	var metas []FuncMeta
	for rows.Next() {
		var (
			schema, name, retType string
			argNames, argModes    []string
			argTypes              []string
		)
		if err := rows.Scan(&schema, &name, &argNames, &argModes, &argTypes, &retType); err != nil {
			in.log.Warn("skipping undecodable pg_proc row", "err", err)
			continue
		}
		metas = append(metas, buildMeta(schema, name, argNames, argModes, argTypes, retType))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan pg_proc rows: %w", err)
	}
	return metas, nil
}

// buildMeta splits the flat pg_proc arrays into IN arguments and
// OUT/TABLE result columns. Without proargmodes every entry is IN and
// the result is the scalar return type.
func buildMeta(schema, name string, argNames, argModes, argTypes []string, retType string) FuncMeta {
	m := FuncMeta{Schema: schema, Name: name}

	argName := func(i int) string {
		if i < len(argNames) {
			return argNames[i]
		}
		return ""
	}

	if len(argModes) == 0 {
		for i, t := range argTypes {
			m.Args = append(m.Args, FuncArg{Name: argName(i), Type: t})
		}
		if retType != "" && retType != "void" {
			m.Return = []FuncArg{{Name: "", Type: retType}}
		}
		return m
	}

	for i, t := range argTypes {
		mode := "i"
		if i < len(argModes) {
			mode = argModes[i]
		}
		switch mode {
		case "i", "b", "v":
			m.Args = append(m.Args, FuncArg{Name: argName(i), Type: t})
		case "o", "t":
			m.Return = append(m.Return, FuncArg{Name: argName(i), Type: t})
		}
	}
	if len(m.Return) == 0 && retType != "" && retType != "void" && retType != "record" {
		m.Return = []FuncArg{{Name: "", Type: retType}}
	}
	return m
}
