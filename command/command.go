// Package command defines the parsed, engine-facing representation of a
// query: a tagged-union Command plus the Criteria/Join/Sort/AggFunc trees
// it embeds. Grounded on the teacher's storage_engine/query_parser AST
// (statement kinds, WHERE-clause node tree, JOIN clause), adapted to a
// single Command struct with a Kind tag instead of one Go type per
// statement, to make the query-template cache's Clone simple and uniform.
package command

// Kind identifies the statement a Command carries.
type Kind int

const (
	KindCreateTable Kind = iota
	KindDropTable
	KindShowTables
	KindShowIndexes
	KindCreateIndex
	KindInsert
	KindSelect
	KindUpdate
	KindDelete
	KindAggregate
	KindExplain
)

// Placeholder marks a value slot to be filled in later by BindParams; it
// appears inside Criteria.Value/Value2/Values, Command.Values or
// Command.Set wherever the original
// query text used a "?" parameter marker.
type Placeholder struct {
	Index int
}

// JoinType enumerates the supported join kinds of §4.4.
type JoinType int

const (
	JoinInner JoinType = iota
	JoinLeft
	JoinRight
	JoinFull
	JoinCross
)

// On is one equality/comparison condition of a JOIN's ON clause.
type On struct {
	LeftField  string
	Op         string
	RightField string
}

// Join describes one joined table and how it attaches to the query.
type Join struct {
	Table string
	Type  JoinType
	On    []On // empty/ignored for JoinCross
}

// CriteriaOp enumerates leaf comparison operators plus the AND/OR
// compound connectors.
type CriteriaOp string

const (
	OpEq      CriteriaOp = "="
	OpNeq     CriteriaOp = "!="
	OpLt      CriteriaOp = "<"
	OpGt      CriteriaOp = ">"
	OpLte     CriteriaOp = "<="
	OpGte     CriteriaOp = ">="
	OpIn      CriteriaOp = "IN"
	OpNotIn   CriteriaOp = "NOT IN"
	OpLike    CriteriaOp = "LIKE"
	OpBetween CriteriaOp = "BETWEEN"
	OpIsNull  CriteriaOp = "IS NULL"
	OpNotNull CriteriaOp = "IS NOT NULL"
	OpAnd     CriteriaOp = "AND"
	OpOr      CriteriaOp = "OR"
)

// Criteria is either a leaf comparison (Field/Op/Value[/Value2 for
// BETWEEN, /Values for IN]) or a compound AND/OR node over Children,
// evaluated as written - no precedence re-derivation (§4.4 note).
type Criteria struct {
	Op       CriteriaOp
	Field    string
	Value    any
	Value2   any // BETWEEN upper bound
	Values   []any // IN / NOT IN set
	Children []*Criteria // AND / OR operands
}

// Sort is one ORDER BY term.
type Sort struct {
	Field string
	Desc  bool
}

// AggKind enumerates the supported aggregate functions of §4.5.
type AggKind string

const (
	AggCount AggKind = "COUNT"
	AggSum   AggKind = "SUM"
	AggAvg   AggKind = "AVG"
	AggMin   AggKind = "MIN"
	AggMax   AggKind = "MAX"
)

// AggTerm is one aggregate projection term, e.g. SUM(amount) AS total.
type AggTerm struct {
	Kind  AggKind
	Field string // empty for COUNT(*)
	Alias string
}

// Command is the engine's single parsed-query representation. Which
// fields are meaningful depends on Kind; see the per-kind comments.
type Command struct {
	Kind Kind

	// RawQuery is the original query text this Command was parsed from, if
	// any; threaded through to event-sink hooks (§4.7) so a consumer can
	// see exactly what was run. Empty for commands built programmatically.
	RawQuery string

	// CREATE_TABLE / DROP_TABLE / CREATE_INDEX
	Table   string
	Columns []string
	OnField string // CREATE_INDEX target column

	// INSERT
	Values []any // positional, aligned with Columns

	// SELECT / UPDATE / DELETE / AGGREGATE
	Fields   []string // SELECT projection list, "*" meaning all
	Distinct bool
	Where    *Criteria
	Joins    []*Join
	OrderBy  []Sort
	Limit    int  // applied only when HasLimit is set
	HasLimit bool
	Offset   int

	// UPDATE
	Set map[string]any

	// AGGREGATE
	Aggregates []AggTerm
	GroupBy    []string
	Having     *Criteria

	// EXPLAIN
	Inner *Command
}

// Clone returns a shallow copy of c: its direct fields are copied, the
// Columns/Values/Fields/OrderBy/GroupBy/Aggregates slices get fresh backing
// arrays, but Where/Having/Joins/Set/Inner are shared with the original. This is
// the clone semantics the query-template cache relies on: binding
// parameters into the clone via BindParams must never mutate the cached
// template, which means BindParams has to replace whichever field it
// touches with a freshly allocated value rather than mutating in place.
func (c *Command) Clone() *Command {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Columns != nil {
		clone.Columns = append([]string(nil), c.Columns...)
	}
	if c.Values != nil {
		clone.Values = append([]any(nil), c.Values...)
	}
	if c.Fields != nil {
		clone.Fields = append([]string(nil), c.Fields...)
	}
	if c.OrderBy != nil {
		clone.OrderBy = append([]Sort(nil), c.OrderBy...)
	}
	if c.GroupBy != nil {
		clone.GroupBy = append([]string(nil), c.GroupBy...)
	}
	if c.Aggregates != nil {
		clone.Aggregates = append([]AggTerm(nil), c.Aggregates...)
	}
	return &clone
}
