// aggregate.go implements AGGREGATE commands: GROUP BY bucketing followed
// by COUNT/SUM/AVG/MIN/MAX reduction and an optional HAVING filter over
// the reduced rows. Grounded on the teacher's storage_engine/query_executor
// aggregate pass, generalized to arbitrary GROUP BY key tuples instead of
// the teacher's single-column grouping.
package executor

import (
	"fmt"
	"strings"

	"sawitdb/command"
	"sawitdb/predicate"
	"sawitdb/record"
)

func (e *Engine) execAggregate(cmd *command.Command) (*Result, error) {
	rows, err := e.collectRows(cmd)
	if err != nil {
		return nil, err
	}
	rows, err = e.applyJoins(cmd.Table, rows, cmd.Joins)
	if err != nil {
		return nil, err
	}

	var filtered []*record.Record
	for _, r := range rows {
		ok, err := predicate.Eval(r, cmd.Where)
		if err != nil {
			return nil, err
		}
		if ok {
			filtered = append(filtered, r)
		}
	}

	groups := groupRows(filtered, cmd.GroupBy)

	out := make([]map[string]any, 0, len(groups))
	for _, g := range groups {
		row := make(map[string]any, len(cmd.GroupBy)+len(cmd.Aggregates))
		for _, field := range cmd.GroupBy {
			row[field] = g.key[field]
		}
		for _, agg := range cmd.Aggregates {
			row[aggAlias(agg)] = reduce(g.rows, agg)
		}

		rec := record.FromMap(row)
		ok, err := predicate.Eval(rec, cmd.Having)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}

	if len(cmd.OrderBy) > 0 {
		recs := make([]*record.Record, len(out))
		for i, m := range out {
			recs[i] = record.FromMap(m)
		}
		sortRows(recs, cmd.OrderBy)
		for i, r := range recs {
			out[i] = r.ToMap()
		}
	}

	return &Result{Rows: out, Count: len(out)}, nil
}

type group struct {
	key  map[string]any
	rows []*record.Record
}

func groupRows(rows []*record.Record, groupBy []string) []*group {
	if len(groupBy) == 0 {
		return []*group{{key: map[string]any{}, rows: rows}}
	}
	index := make(map[string]*group)
	var order []string
	for _, r := range rows {
		var keyParts []string
		key := make(map[string]any, len(groupBy))
		for _, f := range groupBy {
			v := r.GetOr(f)
			key[f] = v.Any()
			keyParts = append(keyParts, fmt.Sprintf("%v", v.Any()))
		}
		keyStr := strings.Join(keyParts, "\x1f")
		g, ok := index[keyStr]
		if !ok {
			g = &group{key: key}
			index[keyStr] = g
			order = append(order, keyStr)
		}
		g.rows = append(g.rows, r)
	}
	out := make([]*group, 0, len(order))
	for _, k := range order {
		out = append(out, index[k])
	}
	return out
}

func aggAlias(agg command.AggTerm) string {
	if agg.Alias != "" {
		return agg.Alias
	}
	if agg.Field == "" {
		return string(agg.Kind) + "(*)"
	}
	return string(agg.Kind) + "(" + agg.Field + ")"
}

func reduce(rows []*record.Record, agg command.AggTerm) any {
	switch agg.Kind {
	case command.AggCount:
		if agg.Field == "" {
			return int64(len(rows))
		}
		var n int64
		for _, r := range rows {
			if v, ok := r.Get(agg.Field); ok && v.Kind != record.KindNull {
				n++
			}
		}
		return n
	case command.AggSum:
		var sum float64
		for _, r := range rows {
			sum += r.GetOr(agg.Field).Num()
		}
		return sum
	case command.AggAvg:
		if len(rows) == 0 {
			return nil
		}
		var sum float64
		for _, r := range rows {
			sum += r.GetOr(agg.Field).Num()
		}
		return sum / float64(len(rows))
	case command.AggMin:
		return extreme(rows, agg.Field, -1)
	case command.AggMax:
		return extreme(rows, agg.Field, 1)
	default:
		return nil
	}
}

func extreme(rows []*record.Record, field string, want int) any {
	var best *record.Value
	for _, r := range rows {
		v := r.GetOr(field)
		if v.Kind == record.KindNull {
			continue
		}
		if best == nil || record.Compare(v, *best)*want > 0 {
			vv := v
			best = &vv
		}
	}
	if best == nil {
		return nil
	}
	return best.Any()
}
