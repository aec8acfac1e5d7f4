// explain.go implements EXPLAIN: it reports the access path and join
// strategy the executor would take for the wrapped command, without
// running it. Grounded on the teacher's storage_engine/query_executor
// Explain method, which reports the same plan-shape fields (access path,
// joins, index usage) as an inspectable struct rather than formatted text.
package executor

import "sawitdb/command"

// Plan describes the access path a SELECT/AGGREGATE/DELETE/UPDATE would
// take, reported by EXPLAIN rather than executed.
type Plan struct {
	Table      string
	AccessPath string // "index_scan" or "full_scan"
	IndexedOn  string // set when AccessPath == "index_scan"
	Joins      []JoinPlan
}

// JoinPlan describes one join step's chosen strategy.
type JoinPlan struct {
	Table    string
	Type     command.JoinType
	Strategy string // "hash_join" or "nested_loop"
}

func (e *Engine) execExplain(cmd *command.Command) (*Result, error) {
	inner := cmd.Inner
	plan := &Plan{Table: inner.Table, AccessPath: "full_scan"}

	if field, _, ok := equalityLeaf(inner.Where); ok {
		if idx := e.indexOn(inner.Table, field); idx != nil {
			plan.AccessPath = "index_scan"
			plan.IndexedOn = field
		}
	}

	for _, j := range inner.Joins {
		strategy := "nested_loop"
		if j.Type != command.JoinCross && allEquiOn(j.On) {
			strategy = "hash_join"
		}
		plan.Joins = append(plan.Joins, JoinPlan{Table: j.Table, Type: j.Type, Strategy: strategy})
	}

	return &Result{Plan: plan}, nil
}
