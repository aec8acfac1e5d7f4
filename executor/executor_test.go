package executor

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sawitdb/catalog"
	"sawitdb/command"
	"sawitdb/dberr"
	"sawitdb/pager"
	"sawitdb/wal"
)

func newTestEngine(t *testing.T) (*Engine, string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	walPath := filepath.Join(dir, "test.wal")

	p, err := pager.Open(dbPath, 256, nil)
	require.NoError(t, err)

	c0 := catalog.New(p, nil, nil)
	apply := func(op wal.Operation) error { return applyRecovered(p, c0, op) }
	w, err := wal.Open(walPath, wal.SyncNormal, apply, nil)
	require.NoError(t, err)

	c := catalog.New(p, w, nil)
	_, err = c.EnsureSystemIndexesTable()
	require.NoError(t, err)

	e, err := New(p, w, c, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e, dbPath, walPath
}

// applyRecovered is a reduced form of the root package's WAL-recovery apply
// function: it replays create/drop table and ignores every other operation,
// inserts included.
func applyRecovered(p *pager.Pager, c *catalog.Catalog, op wal.Operation) error {
	switch op.Kind {
	case wal.OpCreateTable:
		if _, err := c.CreateTable(op.Table); err != nil {
			return nil // tolerate duplicate on replay of an already-applied op
		}
		return nil
	case wal.OpDropTable:
		_, _, err := c.DropTable(op.Table)
		return err
	default:
		return nil
	}
}

func mustExec(t *testing.T, e *Engine, cmd *command.Command) *Result {
	t.Helper()
	res, err := e.Execute(cmd)
	require.NoError(t, err)
	return res
}

func TestBasicCRUDScenario(t *testing.T) {
	e, _, _ := newTestEngine(t)

	mustExec(t, e, &command.Command{Kind: command.KindCreateTable, Table: "pets"})

	rows := []map[string]any{
		{"id": 1, "name": "Rex", "breed": "D"},
		{"id": 2, "name": "Milo", "breed": "P"},
		{"id": 3, "name": "Tom", "breed": "D"},
		{"id": 4, "name": "Coco", "breed": "B"},
		{"id": 5, "name": "Fido", "breed": "P"},
	}
	for _, r := range rows {
		mustExec(t, e, &command.Command{
			Kind:    command.KindInsert,
			Table:   "pets",
			Columns: []string{"id", "name", "breed"},
			Values:  []any{r["id"], r["name"], r["breed"]},
		})
	}

	res := mustExec(t, e, &command.Command{
		Kind:  command.KindSelect,
		Table: "pets",
		Where: &command.Criteria{Op: command.OpLike, Field: "name", Value: "Z%"},
	})
	require.Empty(t, res.Rows)

	res = mustExec(t, e, &command.Command{
		Kind:     command.KindSelect,
		Table:    "pets",
		OrderBy:  []command.Sort{{Field: "id", Desc: true}},
		HasLimit: true,
		Limit:    2,
	})
	require.Len(t, res.Rows, 2)
	require.EqualValues(t, 5, res.Rows[0]["id"])
	require.EqualValues(t, 4, res.Rows[1]["id"])

	upd := mustExec(t, e, &command.Command{
		Kind:  command.KindUpdate,
		Table: "pets",
		Where: &command.Criteria{Op: command.OpEq, Field: "id", Value: 1},
		Set:   map[string]any{"name": "Rex2"},
	})
	require.Equal(t, 1, upd.Count)

	res = mustExec(t, e, &command.Command{
		Kind:  command.KindSelect,
		Table: "pets",
		Where: &command.Criteria{Op: command.OpEq, Field: "id", Value: 1},
	})
	require.Len(t, res.Rows, 1)
	require.Equal(t, "Rex2", res.Rows[0]["name"])

	del := mustExec(t, e, &command.Command{
		Kind:  command.KindDelete,
		Table: "pets",
		Where: &command.Criteria{Op: command.OpEq, Field: "id", Value: 1},
	})
	require.Equal(t, 1, del.Count)

	res = mustExec(t, e, &command.Command{Kind: command.KindSelect, Table: "pets"})
	require.Len(t, res.Rows, 4)
}

// b='D' OR b='P' AND l='B' evaluated as written (no precedence
// re-derivation): OR(b='D', AND(b='P', l='B')) -> ids {1,3,4}.
func TestAndOrPrecedenceScenario(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustExec(t, e, &command.Command{Kind: command.KindCreateTable, Table: "items"})

	data := []map[string]any{
		{"id": 1, "b": "D", "l": "A"},
		{"id": 2, "b": "P", "l": "A"},
		{"id": 3, "b": "D", "l": "B"},
		{"id": 4, "b": "P", "l": "B"},
	}
	for _, r := range data {
		mustExec(t, e, &command.Command{
			Kind: command.KindInsert, Table: "items",
			Columns: []string{"id", "b", "l"},
			Values:  []any{r["id"], r["b"], r["l"]},
		})
	}

	where := &command.Criteria{
		Op: command.OpOr,
		Children: []*command.Criteria{
			{Op: command.OpEq, Field: "b", Value: "D"},
			{
				Op: command.OpAnd,
				Children: []*command.Criteria{
					{Op: command.OpEq, Field: "b", Value: "P"},
					{Op: command.OpEq, Field: "l", Value: "B"},
				},
			},
		},
	}
	res := mustExec(t, e, &command.Command{Kind: command.KindSelect, Table: "items", Where: where})
	ids := map[int64]bool{}
	for _, row := range res.Rows {
		ids[int64(row["id"].(int64))] = true
	}
	require.Equal(t, map[int64]bool{1: true, 3: true, 4: true}, ids)
}

func TestHashJoinLeftRightNullFill(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustExec(t, e, &command.Command{Kind: command.KindCreateTable, Table: "emp"})
	mustExec(t, e, &command.Command{Kind: command.KindCreateTable, Table: "dept"})

	mustExec(t, e, &command.Command{Kind: command.KindInsert, Table: "emp",
		Columns: []string{"id", "name", "dept_id"}, Values: []any{1, "Ann", 10}})
	mustExec(t, e, &command.Command{Kind: command.KindInsert, Table: "emp",
		Columns: []string{"id", "name", "dept_id"}, Values: []any{2, "Bo", 99}})
	mustExec(t, e, &command.Command{Kind: command.KindInsert, Table: "dept",
		Columns: []string{"id", "dname"}, Values: []any{10, "Eng"}})
	mustExec(t, e, &command.Command{Kind: command.KindInsert, Table: "dept",
		Columns: []string{"id", "dname"}, Values: []any{20, "Sales"}})

	on := []command.On{{LeftField: "dept_id", Op: "=", RightField: "id"}}

	left := mustExec(t, e, &command.Command{
		Kind: command.KindSelect, Table: "emp",
		Joins: []*command.Join{{Table: "dept", Type: command.JoinLeft, On: on}},
	})
	require.Len(t, left.Rows, 2)
	foundUnmatched := false
	for _, row := range left.Rows {
		if row["name"] == "Bo" {
			require.Nil(t, row["dname"])
			foundUnmatched = true
		}
	}
	require.True(t, foundUnmatched)

	right := mustExec(t, e, &command.Command{
		Kind: command.KindSelect, Table: "emp",
		Joins: []*command.Join{{Table: "dept", Type: command.JoinRight, On: on}},
	})
	require.Len(t, right.Rows, 2)
	foundUnmatchedRight := false
	for _, row := range right.Rows {
		if row["dname"] == "Sales" {
			require.Nil(t, row["name"])
			foundUnmatchedRight = true
		}
	}
	require.True(t, foundUnmatchedRight)
}

func TestCrossJoin(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustExec(t, e, &command.Command{Kind: command.KindCreateTable, Table: "colors"})
	mustExec(t, e, &command.Command{Kind: command.KindCreateTable, Table: "sizes"})

	for _, c := range []string{"red", "blue"} {
		mustExec(t, e, &command.Command{Kind: command.KindInsert, Table: "colors",
			Columns: []string{"c"}, Values: []any{c}})
	}
	for _, s := range []string{"S", "M", "L"} {
		mustExec(t, e, &command.Command{Kind: command.KindInsert, Table: "sizes",
			Columns: []string{"s"}, Values: []any{s}})
	}

	res := mustExec(t, e, &command.Command{
		Kind: command.KindSelect, Table: "colors",
		Joins: []*command.Join{{Table: "sizes", Type: command.JoinCross}},
	})
	require.Len(t, res.Rows, 6)
}

func TestGroupedAggregateHaving(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustExec(t, e, &command.Command{Kind: command.KindCreateTable, Table: "sales"})

	data := []map[string]any{
		{"id": 1, "region": "N"},
		{"id": 2, "region": "N"},
		{"id": 3, "region": "S"},
	}
	for _, r := range data {
		mustExec(t, e, &command.Command{Kind: command.KindInsert, Table: "sales",
			Columns: []string{"id", "region"}, Values: []any{r["id"], r["region"]}})
	}

	res := mustExec(t, e, &command.Command{
		Kind:       command.KindAggregate,
		Table:      "sales",
		GroupBy:    []string{"region"},
		Aggregates: []command.AggTerm{{Kind: command.AggCount, Alias: "count"}},
		Having:     &command.Criteria{Op: command.OpGt, Field: "count", Value: 1},
	})
	require.Len(t, res.Rows, 1)
	require.Equal(t, "N", res.Rows[0]["region"])
	require.EqualValues(t, 2, res.Rows[0]["count"])
}

func TestWALRecoveryAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	walPath := filepath.Join(dir, "test.wal")

	p, err := pager.Open(dbPath, 256, nil)
	require.NoError(t, err)
	c0 := catalog.New(p, nil, nil)
	apply := func(op wal.Operation) error { return applyRecovered(p, c0, op) }
	w, err := wal.Open(walPath, wal.SyncFull, apply, nil)
	require.NoError(t, err)
	c := catalog.New(p, w, nil)
	_, err = c.EnsureSystemIndexesTable()
	require.NoError(t, err)
	e, err := New(p, w, c, nil, nil)
	require.NoError(t, err)

	mustExec(t, e, &command.Command{Kind: command.KindCreateTable, Table: "many"})
	for i := 0; i < 100; i++ {
		mustExec(t, e, &command.Command{
			Kind: command.KindInsert, Table: "many",
			Columns: []string{"id"}, Values: []any{i},
		})
	}

	// Simulate a crash: no Close(), just drop the handles and reopen.
	p.Close()

	p2, err := pager.Open(dbPath, 256, nil)
	require.NoError(t, err)
	c02 := catalog.New(p2, nil, nil)
	apply2 := func(op wal.Operation) error { return applyRecovered(p2, c02, op) }
	w2, err := wal.Open(walPath, wal.SyncFull, apply2, nil)
	require.NoError(t, err)
	defer w2.Close()
	c2 := catalog.New(p2, w2, nil)
	e2, err := New(p2, w2, c2, nil, nil)
	require.NoError(t, err)
	defer e2.Close()

	res := mustExec(t, e2, &command.Command{Kind: command.KindSelect, Table: "many"})
	require.Len(t, res.Rows, 100)
}

// TestDropTableThenReopen guards against a stale _indexes row surviving a
// dropped table: without cleanup, rebuildIndexes on the next Open would hit
// ErrTableMissing and fail the reopen permanently.
func TestDropTableThenReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	walPath := filepath.Join(dir, "test.wal")

	p, err := pager.Open(dbPath, 256, nil)
	require.NoError(t, err)
	c0 := catalog.New(p, nil, nil)
	apply := func(op wal.Operation) error { return applyRecovered(p, c0, op) }
	w, err := wal.Open(walPath, wal.SyncFull, apply, nil)
	require.NoError(t, err)
	c := catalog.New(p, w, nil)
	_, err = c.EnsureSystemIndexesTable()
	require.NoError(t, err)
	e, err := New(p, w, c, nil, nil)
	require.NoError(t, err)

	mustExec(t, e, &command.Command{Kind: command.KindCreateTable, Table: "temp"})
	mustExec(t, e, &command.Command{
		Kind: command.KindInsert, Table: "temp",
		Columns: []string{"id"}, Values: []any{1},
	})
	mustExec(t, e, &command.Command{Kind: command.KindCreateIndex, Table: "temp", OnField: "id"})
	mustExec(t, e, &command.Command{Kind: command.KindDropTable, Table: "temp"})
	require.NoError(t, e.Close())

	p2, err := pager.Open(dbPath, 256, nil)
	require.NoError(t, err)
	c02 := catalog.New(p2, nil, nil)
	apply2 := func(op wal.Operation) error { return applyRecovered(p2, c02, op) }
	w2, err := wal.Open(walPath, wal.SyncFull, apply2, nil)
	require.NoError(t, err)
	defer w2.Close()
	c2 := catalog.New(p2, w2, nil)
	e2, err := New(p2, w2, c2, nil, nil)
	require.NoError(t, err, "reopen must not fail on a stale _indexes row from a dropped table")
	defer e2.Close()

	res := mustExec(t, e2, &command.Command{Kind: command.KindShowTables})
	require.NotContains(t, res.Tables, "temp")
}

func TestInsertRejectsEmptyRecord(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustExec(t, e, &command.Command{Kind: command.KindCreateTable, Table: "widgets"})

	_, err := e.Execute(&command.Command{Kind: command.KindInsert, Table: "widgets"})
	require.ErrorIs(t, err, dberr.ErrEmptyRecord)
}
