// select.go implements the SELECT pipeline: access-path selection (index
// probe vs. full scan), join evaluation, WHERE filtering, ORDER BY,
// DISTINCT, LIMIT/OFFSET, and projection. Grounded on the teacher's
// storage_engine/query_executor Select method, generalized from its
// single-table scan to the multi-join pipeline of §4.4.
package executor

import (
	"fmt"
	"sort"

	"sawitdb/command"
	"sawitdb/predicate"
	"sawitdb/record"
)

func (e *Engine) execSelect(cmd *command.Command) (*Result, error) {
	rows, err := e.collectRows(cmd)
	if err != nil {
		return nil, err
	}
	rows, err = e.applyJoins(cmd.Table, rows, cmd.Joins)
	if err != nil {
		return nil, err
	}

	filtered := rows[:0]
	for _, r := range rows {
		ok, err := predicate.Eval(r, cmd.Where)
		if err != nil {
			return nil, err
		}
		if ok {
			filtered = append(filtered, r)
		}
	}
	rows = filtered

	if len(cmd.OrderBy) > 0 {
		sortRows(rows, cmd.OrderBy)
	}

	if cmd.Distinct {
		rows = distinctRows(rows)
	}

	rows = applyLimitOffset(rows, cmd.Offset, cmd.Limit, cmd.HasLimit)

	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, project(r, cmd.Fields))
	}
	e.sink.OnTableSelected(cmd.Table, out, cmd.RawQuery)
	return &Result{Rows: out, Count: len(out)}, nil
}

// collectRows returns the base table's rows, using an index-probe access
// path when cmd.Where is (or starts with, under a top-level AND) a single
// equality leaf on an indexed column, falling back to a full table scan
// otherwise.
func (e *Engine) collectRows(cmd *command.Command) ([]*record.Record, error) {
	if field, val, ok := equalityLeaf(cmd.Where); ok {
		if idx := e.indexOn(cmd.Table, field); idx != nil {
			refs := idx.Search(record.FromAny(val))
			rows := make([]*record.Record, 0, len(refs))
			for _, ref := range refs {
				rows = append(rows, ref.Record)
			}
			return rows, nil
		}
	}

	t, err := e.openTable(cmd.Table)
	if err != nil {
		return nil, err
	}
	var rows []*record.Record
	err = t.Scan(0, func(rec *record.Record, _ uint32) (bool, error) {
		rows = append(rows, rec)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// equalityLeaf reports whether c is a single "field = value" condition,
// either directly or as the sole/first operand joined by AND; this is the
// shape the index-probe access path can exploit.
func equalityLeaf(c *command.Criteria) (string, any, bool) {
	if c == nil {
		return "", nil, false
	}
	if c.Op == command.OpEq {
		return c.Field, c.Value, true
	}
	if c.Op == command.OpAnd {
		for _, child := range c.Children {
			if field, val, ok := equalityLeaf(child); ok {
				return field, val, true
			}
		}
	}
	return "", nil, false
}

// applyJoins folds each Join into the running row set in order: equi-joins
// (every ON condition using "=") use a hash join keyed by the right side's
// join column; anything else (non-equi ON, or CROSS JOIN) falls back to a
// nested-loop join.
func (e *Engine) applyJoins(leftTable string, left []*record.Record, joins []*command.Join) ([]*record.Record, error) {
	for _, j := range joins {
		rightRows, err := e.fullScan(j.Table)
		if err != nil {
			return nil, err
		}
		var err2 error
		left, err2 = joinOnce(left, rightRows, j)
		if err2 != nil {
			return nil, err2
		}
	}
	return left, nil
}

func (e *Engine) fullScan(table string) ([]*record.Record, error) {
	t, err := e.openTable(table)
	if err != nil {
		return nil, err
	}
	var rows []*record.Record
	err = t.Scan(0, func(rec *record.Record, _ uint32) (bool, error) {
		rows = append(rows, rec)
		return true, nil
	})
	return rows, err
}

func joinOnce(left, right []*record.Record, j *command.Join) ([]*record.Record, error) {
	if j.Type == command.JoinCross {
		return nestedLoopJoin(left, right, nil, j.Type), nil
	}
	if allEquiOn(j.On) {
		return hashJoin(left, right, j.On, j.Type), nil
	}
	return nestedLoopJoin(left, right, j.On, j.Type), nil
}

func allEquiOn(on []command.On) bool {
	if len(on) == 0 {
		return false
	}
	for _, cond := range on {
		if cond.Op != "=" && cond.Op != string(command.OpEq) {
			return false
		}
	}
	return true
}

func onMatches(l, r *record.Record, on []command.On) bool {
	for _, cond := range on {
		lv := l.GetOr(cond.LeftField)
		rv := r.GetOr(cond.RightField)
		c := record.Compare(lv, rv)
		switch cond.Op {
		case "=":
			if !lv.Equal(rv) {
				return false
			}
		case "!=", "<>":
			if lv.Equal(rv) {
				return false
			}
		case "<":
			if c >= 0 {
				return false
			}
		case ">":
			if c <= 0 {
				return false
			}
		case "<=":
			if c > 0 {
				return false
			}
		case ">=":
			if c < 0 {
				return false
			}
		}
	}
	return true
}

func hashJoin(left, right []*record.Record, on []command.On, jt command.JoinType) []*record.Record {
	buckets := make(map[string][]*record.Record, len(right))
	for _, r := range right {
		key := hashKey(r, on, false)
		buckets[key] = append(buckets[key], r)
	}

	var out []*record.Record
	matchedRight := make(map[*record.Record]bool)
	for _, l := range left {
		key := hashKey(l, on, true)
		matches := buckets[key]
		if len(matches) == 0 {
			if jt == command.JoinLeft || jt == command.JoinFull {
				out = append(out, l.Clone())
			}
			continue
		}
		for _, r := range matches {
			out = append(out, l.Merge(r))
			matchedRight[r] = true
		}
	}
	if jt == command.JoinRight || jt == command.JoinFull {
		for _, r := range right {
			if !matchedRight[r] {
				out = append(out, r.Clone())
			}
		}
	}
	return out
}

func hashKey(r *record.Record, on []command.On, left bool) string {
	var b []byte
	for _, cond := range on {
		field := cond.RightField
		if left {
			field = cond.LeftField
		}
		b = append(b, []byte(toKeyString(r.GetOr(field)))...)
		b = append(b, ';')
	}
	return string(b)
}

func toKeyString(v record.Value) string {
	a := v.Any()
	if a == nil {
		return "null"
	}
	return fmt.Sprintf("%v", a)
}

func nestedLoopJoin(left, right []*record.Record, on []command.On, jt command.JoinType) []*record.Record {
	var out []*record.Record
	matchedRight := make([]bool, len(right))
	for _, l := range left {
		matchedAny := false
		for ri, r := range right {
			if on != nil && !onMatches(l, r, on) {
				continue
			}
			out = append(out, l.Merge(r))
			matchedAny = true
			matchedRight[ri] = true
		}
		if !matchedAny && (jt == command.JoinLeft || jt == command.JoinFull) {
			out = append(out, l.Clone())
		}
	}
	if jt == command.JoinRight || jt == command.JoinFull {
		for ri, r := range right {
			if !matchedRight[ri] {
				out = append(out, r.Clone())
			}
		}
	}
	return out
}

func sortRows(rows []*record.Record, orderBy []command.Sort) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, s := range orderBy {
			a := rows[i].GetOr(s.Field)
			b := rows[j].GetOr(s.Field)
			c := record.Compare(a, b)
			if c == 0 {
				continue
			}
			if s.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func distinctRows(rows []*record.Record) []*record.Record {
	var out []*record.Record
	for _, r := range rows {
		dup := false
		for _, o := range out {
			if r.Equal(o) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, r)
		}
	}
	return out
}

func applyLimitOffset(rows []*record.Record, offset, limit int, hasLimit bool) []*record.Record {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if hasLimit && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func project(r *record.Record, fields []string) map[string]any {
	if len(fields) == 0 || (len(fields) == 1 && fields[0] == "*") {
		return r.ToMap()
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f] = r.GetOr(f).Any()
	}
	return out
}
