// Package executor ties together the pager, WAL, catalog, heap tables,
// and secondary indexes into the single entry point that runs a parsed
// command.Command. Grounded on the teacher's storage_engine/query_executor
// (one dispatch method per statement kind, access-path selection before
// falling back to a full scan), generalized to SawitDB's table/index
// registries and event-sink hooks.
package executor

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"sawitdb/catalog"
	"sawitdb/command"
	"sawitdb/dberr"
	"sawitdb/eventsink"
	"sawitdb/heap"
	"sawitdb/index"
	"sawitdb/pager"
	"sawitdb/predicate"
	"sawitdb/record"
	"sawitdb/validate"
	"sawitdb/wal"
)

// Result is the uniform return value of Execute; which fields are
// populated depends on the command kind that produced it.
type Result struct {
	Rows    []map[string]any
	Count   int
	Tables  []string
	Indexes []IndexInfo
	Plan    *Plan
}

// IndexInfo describes one defined secondary index, for SHOW_INDEXES.
type IndexInfo struct {
	Table  string
	Column string
}

// Engine is the live, open database: every subsystem wired together.
type Engine struct {
	mu      sync.Mutex
	pager   *pager.Pager
	wal     *wal.WAL
	cat     *catalog.Catalog
	sink    eventsink.Sink
	logger  *slog.Logger
	indexes map[string][]*index.Index // table -> indexes defined on it
}

// New wires an Engine over already-open subsystems. The caller is
// responsible for having run WAL recovery before constructing indexes, so
// that rebuildIndexes (called here) scans post-recovery state.
func New(p *pager.Pager, w *wal.WAL, c *catalog.Catalog, sink eventsink.Sink, logger *slog.Logger) (*Engine, error) {
	if sink == nil {
		sink = eventsink.NoopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		pager:   p,
		wal:     w,
		cat:     c,
		sink:    sink,
		logger:  logger,
		indexes: make(map[string][]*index.Index),
	}
	if err := e.rebuildIndexes(); err != nil {
		return nil, err
	}
	return e, nil
}

// rebuildIndexes reads the _indexes system table (if any) and rebuilds
// each defined index from a full scan of its owning table, per §4.6: an
// index is never persisted, only its (table, column) definition is.
func (e *Engine) rebuildIndexes() error {
	_, ok, err := e.cat.FindTable(catalog.SystemIndexesTable)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	t, err := heap.Open(catalog.SystemIndexesTable, e.pager, e.cat, e.wal, nil)
	if err != nil {
		return err
	}
	var defs []IndexInfo
	err = t.Scan(0, func(rec *record.Record, _ uint32) (bool, error) {
		table := rec.GetOr("table").Any()
		column := rec.GetOr("column").Any()
		ts, _ := table.(string)
		cs, _ := column.(string)
		defs = append(defs, IndexInfo{Table: ts, Column: cs})
		return true, nil
	})
	if err != nil {
		return err
	}
	for _, d := range defs {
		if err := e.buildIndex(d.Table, d.Column); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) buildIndex(table, column string) error {
	idx := index.New(table, column)
	ht, err := heap.Open(table, e.pager, e.cat, e.wal, nil)
	if err != nil {
		return err
	}
	err = ht.Scan(0, func(rec *record.Record, pageID uint32) (bool, error) {
		idx.Insert(rec.GetOr(column), index.RecordRef{Record: rec, PageID: pageID})
		return true, nil
	})
	if err != nil {
		return err
	}
	e.indexes[table] = append(e.indexes[table], idx)
	return nil
}

func (e *Engine) indexesFor(table string) []*index.Index {
	return e.indexes[table]
}

func (e *Engine) indexOn(table, column string) *index.Index {
	for _, idx := range e.indexes[table] {
		if idx.Column == column {
			return idx
		}
	}
	return nil
}

func (e *Engine) openTable(name string) (*heap.Table, error) {
	return heap.Open(name, e.pager, e.cat, e.wal, e.indexesFor(name))
}

// Execute runs cmd to completion and returns its Result. Under
// wal.SyncNormal the WAL is synced once after the command succeeds.
func (e *Engine) Execute(cmd *command.Command) (res *Result, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.wal.Policy() == wal.SyncNormal {
		defer func() {
			if err == nil {
				err = e.wal.Sync()
			}
		}()
	}

	switch cmd.Kind {
	case command.KindCreateTable:
		return e.execCreateTable(cmd)
	case command.KindDropTable:
		return e.execDropTable(cmd)
	case command.KindShowTables:
		return e.execShowTables()
	case command.KindShowIndexes:
		return e.execShowIndexes()
	case command.KindCreateIndex:
		return e.execCreateIndex(cmd)
	case command.KindInsert:
		return e.execInsert(cmd)
	case command.KindSelect:
		return e.execSelect(cmd)
	case command.KindUpdate:
		return e.execUpdate(cmd)
	case command.KindDelete:
		return e.execDelete(cmd)
	case command.KindAggregate:
		return e.execAggregate(cmd)
	case command.KindExplain:
		return e.execExplain(cmd)
	default:
		return nil, errors.Errorf("executor: unsupported command kind %v", cmd.Kind)
	}
}

func (e *Engine) execCreateTable(cmd *command.Command) (*Result, error) {
	entry, err := e.cat.CreateTable(cmd.Table)
	if err != nil {
		return nil, err
	}
	e.sink.OnTableCreated(cmd.Table, entry, cmd.RawQuery)
	return &Result{}, nil
}

func (e *Engine) execDropTable(cmd *command.Command) (*Result, error) {
	if cmd.Table == catalog.SystemIndexesTable {
		return nil, errors.Wrap(dberr.ErrNameInvalid, "executor: cannot drop the system indexes table")
	}
	dropped, ok, err := e.cat.DropTable(cmd.Table)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(dberr.ErrTableMissing, "table %q", cmd.Table)
	}
	delete(e.indexes, cmd.Table)
	if err := e.forgetIndexDefs(cmd.Table); err != nil {
		return nil, err
	}
	e.sink.OnTableDropped(cmd.Table, dropped, cmd.RawQuery)
	return &Result{}, nil
}

// forgetIndexDefs deletes every _indexes row recorded for table, so a
// later Open's rebuildIndexes pass never tries to rebuild an index over a
// table that no longer exists (§4.6: dropping a table drops its indexes).
func (e *Engine) forgetIndexDefs(table string) error {
	if _, ok, err := e.cat.FindTable(catalog.SystemIndexesTable); err != nil {
		return err
	} else if !ok {
		return nil
	}
	t, err := heap.Open(catalog.SystemIndexesTable, e.pager, e.cat, e.wal, nil)
	if err != nil {
		return err
	}
	_, err = t.DeleteMatching(func(rec *record.Record) (bool, error) {
		return rec.GetOr("table").Any() == table, nil
	})
	return err
}

func (e *Engine) execShowTables() (*Result, error) {
	entries, err := e.cat.ListTables()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, ent := range entries {
		if len(ent.Name) > 0 && ent.Name[0] == '_' {
			continue
		}
		names = append(names, ent.Name)
	}
	sort.Strings(names)
	return &Result{Tables: names}, nil
}

func (e *Engine) execShowIndexes() (*Result, error) {
	var out []IndexInfo
	for table, idxs := range e.indexes {
		for _, idx := range idxs {
			out = append(out, IndexInfo{Table: table, Column: idx.Column})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Table != out[j].Table {
			return out[i].Table < out[j].Table
		}
		return out[i].Column < out[j].Column
	})
	return &Result{Indexes: out}, nil
}

func (e *Engine) execCreateIndex(cmd *command.Command) (*Result, error) {
	if _, ok, err := e.cat.FindTable(cmd.Table); err != nil {
		return nil, err
	} else if !ok {
		return nil, errors.Wrapf(dberr.ErrTableMissing, "table %q", cmd.Table)
	}
	if idx := e.indexOn(cmd.Table, cmd.OnField); idx != nil {
		return &Result{}, nil
	}
	if err := e.buildIndex(cmd.Table, cmd.OnField); err != nil {
		return nil, err
	}

	defsTable, err := e.cat.EnsureSystemIndexesTable()
	if err != nil {
		return nil, err
	}
	t, err := heap.Open(defsTable.Name, e.pager, e.cat, e.wal, nil)
	if err != nil {
		return nil, err
	}
	defRec := record.New()
	defRec.Set("table", record.String(cmd.Table))
	defRec.Set("column", record.String(cmd.OnField))
	if err := t.InsertMany([]*record.Record{defRec}); err != nil {
		return nil, err
	}
	return &Result{}, nil
}

func (e *Engine) execInsert(cmd *command.Command) (*Result, error) {
	if len(cmd.Columns) != len(cmd.Values) {
		return nil, dberr.ErrColumnsValuesMismatch
	}
	if len(cmd.Columns) == 0 {
		return nil, dberr.ErrEmptyRecord
	}
	for _, col := range cmd.Columns {
		if err := validate.ColumnName(col); err != nil {
			return nil, err
		}
	}
	t, err := e.openTable(cmd.Table)
	if err != nil {
		return nil, err
	}
	rec := record.New()
	for i, col := range cmd.Columns {
		rec.Set(col, record.FromAny(cmd.Values[i]))
	}
	if err := t.InsertMany([]*record.Record{rec}); err != nil {
		return nil, err
	}
	e.sink.OnTableInserted(cmd.Table, []map[string]any{rec.ToMap()}, cmd.RawQuery)
	return &Result{Count: 1}, nil
}

func (e *Engine) execUpdate(cmd *command.Command) (*Result, error) {
	t, err := e.openTable(cmd.Table)
	if err != nil {
		return nil, err
	}
	var affected []map[string]any
	match := func(rec *record.Record) (bool, error) { return predicate.Eval(rec, cmd.Where) }
	mutate := func(rec *record.Record) (*record.Record, error) {
		next := rec.Clone()
		for field, raw := range cmd.Set {
			next.Set(field, record.FromAny(raw))
		}
		affected = append(affected, next.ToMap())
		return next, nil
	}
	n, err := t.UpdateMatching(match, mutate)
	if err != nil {
		return nil, err
	}
	e.sink.OnTableUpdated(cmd.Table, affected, cmd.RawQuery)
	return &Result{Count: n}, nil
}

func (e *Engine) execDelete(cmd *command.Command) (*Result, error) {
	t, err := e.openTable(cmd.Table)
	if err != nil {
		return nil, err
	}
	var affected []map[string]any
	match := func(rec *record.Record) (bool, error) {
		ok, err := predicate.Eval(rec, cmd.Where)
		if err != nil {
			return false, err
		}
		if ok {
			affected = append(affected, rec.ToMap())
		}
		return ok, nil
	}
	n, err := t.DeleteMatching(match)
	if err != nil {
		return nil, err
	}
	e.sink.OnTableDeleted(cmd.Table, affected, cmd.RawQuery)
	return &Result{Count: n}, nil
}

// Close releases the engine's owned resources (WAL and pager).
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.wal.Close(); err != nil {
		return err
	}
	return e.pager.Close()
}
