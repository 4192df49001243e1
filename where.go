// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package filegdb

import (
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/featurebasedb/filegdb/atx"
	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/table"
)

// The where grammar covers what attribute indexes can answer:
//
//	expr    = and { "OR" and }
//	and     = term { "AND" term }
//	term    = "NOT" term | "(" expr ")" | field cond
//	cond    = op literal | "IN" "(" literal { "," literal } ")"
//	        | "BETWEEN" literal "AND" literal | "IS" [ "NOT" ] "NULL"
type whereExpr struct {
	Or []*whereAnd `parser:"@@ ( 'OR' @@ )*"`
}

type whereAnd struct {
	And []*whereTerm `parser:"@@ ( 'AND' @@ )*"`
}

type whereTerm struct {
	Not     *whereTerm `parser:"  'NOT' @@"`
	Grouped *whereExpr `parser:"| '(' @@ ')'"`
	Cond    *whereCond `parser:"| @@"`
}

type whereCond struct {
	Field   string          `parser:"@Ident"`
	Compare *whereCompare   `parser:"( @@"`
	In      []*whereLiteral `parser:"| 'IN' '(' @@ ( ',' @@ )* ')'"`
	Between *whereBetween   `parser:"| 'BETWEEN' @@"`
	Is      *whereIs        `parser:"| 'IS' @@ )"`
}

type whereCompare struct {
	Op    string        `parser:"@( '<>' | '!=' | '>=' | '<=' | '=' | '<' | '>' )"`
	Value *whereLiteral `parser:"@@"`
}

type whereBetween struct {
	Low  *whereLiteral `parser:"@@ 'AND'"`
	High *whereLiteral `parser:"@@"`
}

type whereIs struct {
	Not  bool `parser:"@'NOT'?"`
	Null bool `parser:"@'NULL'"`
}

type whereLiteral struct {
	Number *string `parser:"  @Number"`
	Text   *string `parser:"| @String"`
}

func (l *whereLiteral) String() string {
	if l.Number != nil {
		return *l.Number
	}
	return "'" + *l.Text + "'"
}

var (
	whereLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Keyword", Pattern: `(?i)\b(AND|OR|NOT|IN|BETWEEN|IS|NULL)\b`},
		{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
		{Name: "Number", Pattern: `[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?`},
		{Name: "String", Pattern: `'[^']*'|"[^"]*"`},
		{Name: "Operator", Pattern: `<>|!=|>=|<=|[=<>]`},
		{Name: "Punct", Pattern: `[(),]`},
		{Name: "Whitespace", Pattern: `\s+`},
	})

	whereParser = participle.MustBuild[whereExpr](
		participle.Lexer(whereLexer),
		participle.Unquote("String"),
		participle.CaseInsensitive("Keyword"),
		participle.Elide("Whitespace"),
		participle.UseLookahead(2),
	)
)

// Where is a parsed row filter. It is bound to a table by Table.Select.
type Where struct {
	text string
	expr *whereExpr
}

// ParseWhere parses a filter such as
//
//	name = 'x' AND (n BETWEEN 1 AND 5 OR ratio IS NULL)
func ParseWhere(s string) (*Where, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New(errors.ErrInvalidArgument, "empty where clause")
	}
	expr, err := whereParser.ParseString("", s)
	if err != nil {
		return nil, errors.Newf(errors.ErrInvalidArgument, "parsing where clause: %v", err)
	}
	return &Where{text: s, expr: expr}, nil
}

func (w *Where) String() string { return w.text }

type condKind int

const (
	condCompare condKind = iota
	condNotEqual
	condNotNull
	condNull
	condNot
	condAnd
	condOr
)

// cond is a where clause bound to the columns of one table.
type cond struct {
	kind  condKind
	col   int
	field *table.Field
	op    atx.Op
	v     table.Value
	args  []*cond
}

// bind resolves field names and converts literals to field values.
func (w *Where) bind(r *table.Reader) (*cond, error) {
	return bindExpr(r, w.expr)
}

func bindExpr(r *table.Reader, e *whereExpr) (*cond, error) {
	or := &cond{kind: condOr}
	for _, a := range e.Or {
		and := &cond{kind: condAnd}
		for _, t := range a.And {
			c, err := bindTerm(r, t)
			if err != nil {
				return nil, err
			}
			and.args = append(and.args, c)
		}
		or.args = append(or.args, flatten(and))
	}
	return flatten(or), nil
}

// flatten drops single-argument AND/OR nodes.
func flatten(c *cond) *cond {
	if len(c.args) == 1 {
		return c.args[0]
	}
	return c
}

func bindTerm(r *table.Reader, t *whereTerm) (*cond, error) {
	switch {
	case t.Not != nil:
		c, err := bindTerm(r, t.Not)
		if err != nil {
			return nil, err
		}
		return &cond{kind: condNot, args: []*cond{c}}, nil
	case t.Grouped != nil:
		return bindExpr(r, t.Grouped)
	}

	wc := t.Cond
	col := r.FieldIndex(wc.Field)
	if col < 0 {
		// Field names are case insensitive.
		for i, f := range r.Schema().Fields {
			if strings.EqualFold(f.Name, wc.Field) {
				col = i
				break
			}
		}
		if col < 0 {
			return nil, errors.Newf(errors.ErrInvalidArgument, "unknown field %q", wc.Field)
		}
	}
	f := r.Field(col)
	leaf := func(kind condKind, op atx.Op, lit *whereLiteral) (*cond, error) {
		c := &cond{kind: kind, col: col, field: f, op: op}
		if lit != nil {
			v, err := literalValue(f, lit)
			if err != nil {
				return nil, err
			}
			c.v = v
		}
		return c, nil
	}

	switch {
	case wc.Is != nil:
		if wc.Is.Not {
			return leaf(condNotNull, atx.OpIsNotNull, nil)
		}
		return leaf(condNull, atx.OpIsNotNull, nil)

	case wc.Between != nil:
		lo, err := leaf(condCompare, atx.OpGE, wc.Between.Low)
		if err != nil {
			return nil, err
		}
		hi, err := leaf(condCompare, atx.OpLE, wc.Between.High)
		if err != nil {
			return nil, err
		}
		return &cond{kind: condAnd, args: []*cond{lo, hi}}, nil

	case wc.In != nil:
		or := &cond{kind: condOr}
		for _, lit := range wc.In {
			c, err := leaf(condCompare, atx.OpEQ, lit)
			if err != nil {
				return nil, err
			}
			or.args = append(or.args, c)
		}
		return flatten(or), nil
	}

	switch wc.Compare.Op {
	case "<":
		return leaf(condCompare, atx.OpLT, wc.Compare.Value)
	case "<=":
		return leaf(condCompare, atx.OpLE, wc.Compare.Value)
	case "=":
		return leaf(condCompare, atx.OpEQ, wc.Compare.Value)
	case ">=":
		return leaf(condCompare, atx.OpGE, wc.Compare.Value)
	case ">":
		return leaf(condCompare, atx.OpGT, wc.Compare.Value)
	}
	return leaf(condNotEqual, atx.OpEQ, wc.Compare.Value)
}

// datetimeTolerance matches the tolerance of datetime index lookups, in days.
const datetimeTolerance = 1e-10

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// literalValue converts a literal to a value comparable with field f.
func literalValue(f *table.Field, lit *whereLiteral) (table.Value, error) {
	mismatch := func() (table.Value, error) {
		return table.Value{}, errors.Newf(errors.ErrInvalidArgument, "cannot compare %s field %s with %s", f.Type, f.Name, lit)
	}
	switch f.Type {
	case table.FieldInt16, table.FieldInt32, table.FieldObjectID:
		if lit.Number == nil {
			return mismatch()
		}
		n, err := strconv.ParseInt(*lit.Number, 10, 32)
		if err != nil {
			return mismatch()
		}
		return table.Value{Type: table.FieldInt32, Int: int32(n)}, nil

	case table.FieldFloat32, table.FieldFloat64:
		if lit.Number == nil {
			return mismatch()
		}
		x, err := strconv.ParseFloat(*lit.Number, 64)
		if err != nil {
			return mismatch()
		}
		return table.Value{Type: table.FieldFloat64, Float: x}, nil

	case table.FieldDateTime:
		if lit.Number != nil {
			x, err := strconv.ParseFloat(*lit.Number, 64)
			if err != nil {
				return mismatch()
			}
			return table.Value{Type: table.FieldFloat64, Float: x}, nil
		}
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, *lit.Text, time.UTC); err == nil {
				return table.Value{Type: table.FieldDateTime, Time: t, Float: table.DaysFromDateTime(t)}, nil
			}
		}
		return table.Value{}, errors.Newf(errors.ErrInvalidArgument, "invalid date %q for field %s", *lit.Text, f.Name)

	case table.FieldString, table.FieldGUID, table.FieldGlobalID:
		if lit.Text == nil {
			return mismatch()
		}
		return table.Value{Type: table.FieldString, Str: *lit.Text}, nil
	}
	return table.Value{}, errors.Newf(errors.ErrUnsupported, "cannot filter on %s field %s", f.Type, f.Name)
}

// iterator builds the index iterator answering c. Children built before a
// failure are closed.
func (c *cond) iterator(r *table.Reader) (Iterator, error) {
	switch c.kind {
	case condCompare:
		if c.field.Type == table.FieldObjectID {
			return nil, errors.Newf(errors.ErrNoIndex, "field %s has no attribute index", c.field.Name)
		}
		return Build(r, c.col, true, c.op, c.v)
	case condNotNull:
		return BuildIsNotNull(r, c.col, true)
	case condNull:
		base, err := BuildIsNotNull(r, c.col, true)
		if err != nil {
			return nil, err
		}
		return BuildNot(base), nil
	case condNotEqual:
		lt, err := Build(r, c.col, true, atx.OpLT, c.v)
		if err != nil {
			return nil, err
		}
		gt, err := Build(r, c.col, true, atx.OpGT, c.v)
		if err != nil {
			lt.Close()
			return nil, err
		}
		return BuildOr(lt, gt, true), nil
	case condNot:
		base, err := c.args[0].iterator(r)
		if err != nil {
			return nil, err
		}
		return BuildNot(base), nil
	}

	var acc Iterator
	for _, arg := range c.args {
		itr, err := arg.iterator(r)
		if err != nil {
			if acc != nil {
				acc.Close()
			}
			return nil, err
		}
		switch {
		case acc == nil:
			acc = itr
		case c.kind == condAnd:
			acc = BuildAnd(acc, itr)
		default:
			acc = BuildOr(acc, itr, false)
		}
	}
	return acc, nil
}

// match evaluates c against the selected row of r. Null values match only
// IS NULL, and NOT complements the match.
func (c *cond) match(r *table.Reader) (bool, error) {
	switch c.kind {
	case condNot:
		ok, err := c.args[0].match(r)
		return !ok, err
	case condAnd, condOr:
		for _, arg := range c.args {
			ok, err := arg.match(r)
			if err != nil {
				return false, err
			} else if ok != (c.kind == condAnd) {
				return ok, nil
			}
		}
		return c.kind == condAnd, nil
	}

	v, ok, err := r.GetFieldValue(c.col)
	if err != nil {
		return false, err
	}
	if c.field.Type == table.FieldObjectID {
		v, ok = table.Value{Type: table.FieldInt32, Int: int32(r.FID(r.CurrentRow()))}, true
	}
	switch c.kind {
	case condNull:
		return !ok, nil
	case condNotNull:
		return ok, nil
	}
	if !ok {
		return false, nil
	}
	cmp := compareValue(c.field.Type, v, c.v)
	if c.kind == condNotEqual {
		return cmp != 0, nil
	}
	switch c.op {
	case atx.OpLT:
		return cmp < 0, nil
	case atx.OpLE:
		return cmp <= 0, nil
	case atx.OpEQ:
		return cmp == 0, nil
	case atx.OpGE:
		return cmp >= 0, nil
	}
	return cmp > 0, nil
}

// compareValue orders a field value against a bound literal the way an
// attribute index on the field would.
func compareValue(t table.FieldType, v, lit table.Value) int {
	switch t {
	case table.FieldDateTime:
		switch d := v.Float - lit.Float; {
		case d < -datetimeTolerance:
			return -1
		case d > datetimeTolerance:
			return 1
		}
		return 0
	case table.FieldString:
		return strings.Compare(strings.TrimRight(v.Text(), " "), strings.TrimRight(lit.Str, " "))
	case table.FieldGUID, table.FieldGlobalID:
		return strings.Compare(v.Str, lit.Str)
	}
	a, _ := v.Number()
	b, _ := lit.Number()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (c *cond) String() string {
	switch c.kind {
	case condNull:
		return c.field.Name + " IS NULL"
	case condNotNull:
		return c.field.Name + " IS NOT NULL"
	case condNotEqual:
		return c.field.Name + " <> " + c.v.Text()
	case condCompare:
		return c.field.Name + " " + c.op.String() + " " + c.v.Text()
	case condNot:
		return "NOT (" + c.args[0].String() + ")"
	}
	sep := " AND "
	if c.kind == condOr {
		sep = " OR "
	}
	parts := make([]string, len(c.args))
	for i, arg := range c.args {
		parts[i] = "(" + arg.String() + ")"
	}
	return strings.Join(parts, sep)
}
