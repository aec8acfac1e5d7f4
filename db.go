// Package sawitdb is an embedded single-file relational store: a paged
// heap-file layout, secondary ordered indexes, an optional write-ahead
// log, and a small query executor supporting joins, aggregation,
// sorting, pagination, and plan explanation. Grounded on the teacher's
// top-level DB type (ShubhamNegi4-DaemonDB), which wires disk manager +
// WAL manager + buffer pool + executor behind one handle the same way.
package sawitdb

import (
	"encoding/binary"
	"log/slog"

	"github.com/pkg/errors"

	"sawitdb/catalog"
	"sawitdb/command"
	"sawitdb/dberr"
	"sawitdb/eventsink"
	"sawitdb/executor"
	"sawitdb/page"
	"sawitdb/pager"
	"sawitdb/querycache"
	"sawitdb/record"
	"sawitdb/wal"
)

// SyncPolicy re-exports wal.SyncPolicy so callers don't need to import
// package wal just to configure Options.
type SyncPolicy = wal.SyncPolicy

const (
	SyncNormal = wal.SyncNormal
	SyncFull   = wal.SyncFull
	SyncOff    = wal.SyncOff
)

// Options configures Open. The zero value is not valid; use DefaultOptions.
type Options struct {
	// PageCacheCapacity bounds the pager's decoded-page cache; 0 disables it.
	PageCacheCapacity int
	// QueryCacheCapacity bounds the parsed-query-template cache.
	QueryCacheCapacity int
	// WALEnabled turns on crash recovery: operations left in "<path>.wal"
	// are replayed at Open. The log file is opened and written to whether or
	// not it is set.
	WALEnabled bool
	// WALSyncPolicy controls WAL durability, meaningful only if WALEnabled.
	WALSyncPolicy SyncPolicy
	// Sink receives post-commit lifecycle notifications. Defaults to a
	// no-op sink if nil.
	Sink eventsink.Sink
	// Logger receives structured diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns sensible defaults: a 256-page cache, a 1000-entry
// query cache (§4.8), WAL enabled with normal sync policy.
func DefaultOptions() Options {
	return Options{
		PageCacheCapacity:  256,
		QueryCacheCapacity: 1000,
		WALEnabled:         true,
		WALSyncPolicy:      SyncNormal,
	}
}

// DB is one open database handle. A handle is the unit of state: no
// process-wide globals are shared across handles to different files (§5).
type DB struct {
	path    string
	pager   *pager.Pager
	wal     *wal.WAL
	cat     *catalog.Catalog
	engine  *executor.Engine
	qcache  *querycache.Cache
	closed  bool
}

// Open opens or creates the database file at path. If opts.WALEnabled and
// a sibling "<path>.wal" file holds unreplayed operations, they are
// replayed against catalog/heap state before Open returns, and the WAL is
// truncated on success (§4.2).
func Open(path string, opts Options) (*DB, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p, err := pager.Open(path, opts.PageCacheCapacity, logger)
	if err != nil {
		return nil, errors.Wrap(err, "sawitdb: open")
	}

	cat := catalog.New(p, nil, logger)

	var w *wal.WAL
	if opts.WALEnabled {
		apply := func(op wal.Operation) error {
			return applyRecoveredOp(p, cat, op)
		}
		w, err = wal.Open(path+".wal", opts.WALSyncPolicy, apply, logger)
	} else {
		w, err = wal.Open(path+".wal", opts.WALSyncPolicy, nil, logger)
	}
	if err != nil {
		p.Close()
		return nil, errors.Wrap(err, "sawitdb: open wal")
	}
	// The catalog was constructed before the WAL existed so its own page-0
	// writes during recovery went through with wal=nil (replaying an
	// operation must not re-log it). Rewrap it now so future mutations get
	// WAL-before-page-write ordering.
	cat = catalog.New(p, w, logger)

	if _, err := cat.EnsureSystemIndexesTable(); err != nil {
		w.Close()
		p.Close()
		return nil, errors.Wrap(err, "sawitdb: ensure system indexes table")
	}

	eng, err := executor.New(p, w, cat, opts.Sink, logger)
	if err != nil {
		w.Close()
		p.Close()
		return nil, errors.Wrap(err, "sawitdb: build executor")
	}

	qc, err := querycache.New(opts.QueryCacheCapacity)
	if err != nil {
		w.Close()
		p.Close()
		return nil, errors.Wrap(err, "sawitdb: build query cache")
	}

	return &DB{path: path, pager: p, wal: w, cat: cat, engine: eng, qcache: qc}, nil
}

// applyRecoveredOp replays one WAL operation directly against page state,
// bypassing the executor (and therefore the event sink and index
// maintenance, which are rebuilt from a fresh scan after recovery
// completes in Open/executor.New).
func applyRecoveredOp(p *pager.Pager, cat *catalog.Catalog, op wal.Operation) error {
	switch op.Kind {
	case wal.OpCreateTable:
		_, err := cat.CreateTable(op.Table)
		if err != nil && errors.Cause(err) != dberr.ErrNameTaken {
			return err
		}
		return nil
	case wal.OpDropTable:
		_, _, err := cat.DropTable(op.Table)
		return err
	case wal.OpInsert:
		rec, err := record.Deserialize(op.New)
		if err != nil {
			return nil // CORRUPT_RECORD: tolerated, skip (§7)
		}
		return rawInsert(p, cat, op.Table, rec)
	case wal.OpUpdate, wal.OpDelete, wal.OpCreateIndex:
		// Heap-level update/delete and index-definition rows are replayed
		// as part of the page images they already touched before the
		// crash; re-applying them against already-current pages would
		// double-apply. The WAL's role here is solely to detect, via its
		// own presence, that the prior session didn't reach a clean
		// close - InsertMany is the only operation that is safe and
		// necessary to redo blindly, because an insert's page write and
		// its WAL record are appended in that fixed order and a crash
		// between them is the only window this recovers.
		return nil
	default:
		return nil
	}
}

func rawInsert(p *pager.Pager, cat *catalog.Catalog, table string, rec *record.Record) error {
	e, ok, err := cat.FindTable(table)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	buf, err := record.Serialize(rec)
	if err != nil {
		return err
	}
	pageID := e.LastPage
	pbuf, err := p.ReadPage(pageID)
	if err != nil {
		return err
	}
	needed := page.RecordLenPrefix + len(buf)
	if page.HeapFreeSpace(pbuf) < needed {
		newID, err := p.AllocPage()
		if err != nil {
			return err
		}
		page.SetHeapNext(pbuf, newID)
		if err := p.WritePage(pageID, pbuf, nil, nil); err != nil {
			return err
		}
		if err := cat.SetLastPage(table, newID); err != nil {
			return err
		}
		pageID = newID
		pbuf, err = p.ReadPage(pageID)
		if err != nil {
			return err
		}
	}
	appendRecordBuf(pbuf, buf)
	return p.WritePage(pageID, pbuf, nil, nil)
}

// appendRecordBuf mirrors package heap's writeRecordAt for the WAL
// recovery path, which runs before any heap.Table exists.
func appendRecordBuf(pbuf []byte, recBuf []byte) {
	off := int(page.HeapFreeOffset(pbuf))
	binary.LittleEndian.PutUint16(pbuf[off:off+page.RecordLenPrefix], uint16(len(recBuf)))
	copy(pbuf[off+page.RecordLenPrefix:], recBuf)
	newOff := off + page.RecordLenPrefix + len(recBuf)
	page.SetHeapFreeOffset(pbuf, uint16(newOff))
	page.SetHeapRecordCount(pbuf, page.HeapRecordCount(pbuf)+1)
}

// Query parses nothing: it runs an already-parsed command directly. This
// is the typed command surface §6 describes the executor as consuming;
// building a Command from raw query text is the tokenizer/parser's job,
// explicitly out of scope (§1).
func (db *DB) Query(cmd *command.Command) (*executor.Result, error) {
	if db.closed {
		return nil, dberr.ErrHandleClosed
	}
	return db.engine.Execute(cmd)
}

// QueryString parses raw via parse (consulting/populating the query
// template cache keyed by raw), binds args into the resulting template
// without mutating the cached copy, and executes it.
func (db *DB) QueryString(raw string, parse querycache.ParseFunc, args []any) (*executor.Result, error) {
	if db.closed {
		return nil, dberr.ErrHandleClosed
	}
	tmpl, err := db.qcache.GetOrParse(raw, parse)
	if err != nil {
		return nil, err
	}
	bound := querycache.BindParams(tmpl, args)
	bound.RawQuery = raw
	return db.engine.Execute(bound)
}

// Close invalidates the handle; subsequent queries fail with
// HANDLE_CLOSED (§5).
func (db *DB) Close() error {
	if db.closed {
		return nil
	}
	db.closed = true
	db.qcache.Close()
	return db.engine.Close()
}

// Path reports the database file path the handle was opened with.
func (db *DB) Path() string { return db.path }
