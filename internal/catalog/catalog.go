// Package catalog resolves database function metadata into the call
// plans a function may legally serve tiles through, and publishes the
// accepted set as an immutable snapshot.
package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// FuncArg is one declared argument of a candidate function.
type FuncArg struct {
	Name string
	Type string
}

// FuncMeta is the raw description of one catalog function as reported
// by the introspection provider. User-supplied catalogs are open and
// partially malformed; nothing here is trusted until resolved.
type FuncMeta struct {
	Schema string
	Name   string
	Args   []FuncArg
	// Return holds the declared result columns: one bytea for scalar
	// and single-record returns, bytea plus text for the ETag shape.
	Return []FuncArg
}

// ID is the source identifier the function is served under.
func (m FuncMeta) ID() string {
	if m.Schema == "" || m.Schema == "public" {
		return m.Name
	}
	return m.Schema + "." + m.Name
}

// ReturnShape is the closed set of legal function return shapes.
type ReturnShape int

const (
	// ScalarBytea: f(...) -> bytea
	ScalarBytea ReturnShape = iota
	// RecordSingle: f(...) -> record(bytea)
	RecordSingle
	// RecordPair: f(...) -> record(bytea, text); the text field is an
	// opaque cache validator surfaced as the response ETag.
	RecordPair
)

func (s ReturnShape) String() string {
	switch s {
	case RecordSingle:
		return "record(bytea)"
	case RecordPair:
		return "record(bytea, text)"
	default:
		return "bytea"
	}
}

// HasETag reports whether calls produce a cache-validator column.
func (s ReturnShape) HasETag() bool { return s == RecordPair }

// CallPlan binds an accepted function into a reusable call shape.
// Plans are built once per catalog pass and shared read-only across
// all concurrent requests.
type CallPlan struct {
	ID     string
	Schema string
	Name   string
	ZArg   int
	XArg   int
	YArg   int
	// QueryArg is the index of the optional json argument, -1 if the
	// function declares none.
	QueryArg int
	// ArgNames holds the declared argument names in order, for
	// building named-argument SQL.
	ArgNames []string
	Shape    ReturnShape
}

// HasQuery reports whether the plan carries request query parameters.
func (p CallPlan) HasQuery() bool { return p.QueryArg >= 0 }

// Rejection records why one candidate was excluded from the catalog.
type Rejection struct {
	ID     string
	Reason string
}

// Report is the outcome of one catalog resolution pass.
type Report struct {
	Accepted []CallPlan
	Rejected []Rejection
	// Warnings records non-fatal findings, e.g. duplicate names that
	// were overwritten.
	Warnings []string
}

// Options control resolution strictness.
type Options struct {
	// StrictNames rejects a candidate whose case-folded ID collides
	// with an already accepted one instead of overwriting it.
	StrictNames bool
}

var intTypes = map[string]bool{
	"int":      true,
	"int2":     true,
	"int4":     true,
	"int8":     true,
	"smallint": true,
	"integer":  true,
	"bigint":   true,
}

var jsonTypes = map[string]bool{
	"json":  true,
	"jsonb": true,
}

func isInt(t string) bool  { return intTypes[strings.ToLower(t)] }
func isJSON(t string) bool { return jsonTypes[strings.ToLower(t)] }

// Resolve examines every candidate independently and returns the full
// accepted/rejected report. A malformed candidate never aborts the
// pass. Resolution over a fixed snapshot of metadata is deterministic:
// same input, same report.
func Resolve(metas []FuncMeta, opts Options) Report {
	var rep Report
	// case-folded ID -> index into rep.Accepted
	seen := map[string]int{}

	for _, m := range metas {
		plan, err := resolveOne(m)
		if err != nil {
			rep.Rejected = append(rep.Rejected, Rejection{ID: m.ID(), Reason: err.Error()})
			continue
		}
		folded := strings.ToLower(plan.ID)
		if prev, dup := seen[folded]; dup {
			if opts.StrictNames {
				rep.Rejected = append(rep.Rejected, Rejection{
					ID:     m.ID(),
					Reason: fmt.Sprintf("name collides with %q (case-insensitive)", rep.Accepted[prev].ID),
				})
				continue
			}
			rep.Warnings = append(rep.Warnings,
				fmt.Sprintf("function %q replaces %q: case-insensitive name collision", plan.ID, rep.Accepted[prev].ID))
			rep.Accepted[prev] = plan
			continue
		}
		seen[folded] = len(rep.Accepted)
		rep.Accepted = append(rep.Accepted, plan)
	}
	return rep
}

// resolveOne applies the acceptance rule: exactly one integer z|zoom,
// one integer x, one integer y, at most one json argument of any name,
// nothing else, and a return shape from the closed set.
func resolveOne(m FuncMeta) (CallPlan, error) {
	plan := CallPlan{
		ID:       m.ID(),
		Schema:   m.Schema,
		Name:     m.Name,
		ZArg:     -1,
		XArg:     -1,
		YArg:     -1,
		QueryArg: -1,
	}
	if m.Name == "" {
		return CallPlan{}, fmt.Errorf("unnamed function")
	}

	for i, a := range m.Args {
		name := strings.ToLower(a.Name)
		switch {
		case (name == "z" || name == "zoom") && isInt(a.Type):
			if plan.ZArg >= 0 {
				return CallPlan{}, fmt.Errorf("duplicate zoom argument %q", a.Name)
			}
			plan.ZArg = i
		case name == "x" && isInt(a.Type):
			if plan.XArg >= 0 {
				return CallPlan{}, fmt.Errorf("duplicate x argument")
			}
			plan.XArg = i
		case name == "y" && isInt(a.Type):
			if plan.YArg >= 0 {
				return CallPlan{}, fmt.Errorf("duplicate y argument")
			}
			plan.YArg = i
		case isJSON(a.Type):
			if plan.QueryArg >= 0 {
				return CallPlan{}, fmt.Errorf("more than one json argument")
			}
			plan.QueryArg = i
		default:
			return CallPlan{}, fmt.Errorf("disallowed argument %q %s", a.Name, a.Type)
		}
		plan.ArgNames = append(plan.ArgNames, a.Name)
	}
	if plan.ZArg < 0 || plan.XArg < 0 || plan.YArg < 0 {
		return CallPlan{}, fmt.Errorf("missing required z/x/y integer arguments")
	}

	shape, err := resolveReturn(m.Return)
	if err != nil {
		return CallPlan{}, err
	}
	plan.Shape = shape
	return plan, nil
}

func resolveReturn(cols []FuncArg) (ReturnShape, error) {
	switch len(cols) {
	case 1:
		if t := strings.ToLower(cols[0].Type); t == "bytea" {
			if cols[0].Name == "" {
				return ScalarBytea, nil
			}
			return RecordSingle, nil
		}
		return 0, fmt.Errorf("return type %s is not bytea", cols[0].Type)
	case 2:
		t0 := strings.ToLower(cols[0].Type)
		t1 := strings.ToLower(cols[1].Type)
		if t0 == "bytea" && (t1 == "text" || t1 == "varchar" || t1 == "character varying") {
			return RecordPair, nil
		}
		return 0, fmt.Errorf("return record (%s, %s) is not (bytea, text)", cols[0].Type, cols[1].Type)
	default:
		return 0, fmt.Errorf("return record has %d columns, want 1 or 2", len(cols))
	}
}

// SortedIDs returns the accepted plan IDs in lexical order, for
// listing endpoints and stable logs.
func (r Report) SortedIDs() []string {
	ids := make([]string, 0, len(r.Accepted))
	for _, p := range r.Accepted {
		ids = append(ids, p.ID)
	}
	sort.Strings(ids)
	return ids
}
