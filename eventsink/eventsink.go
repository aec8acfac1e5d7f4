// Package eventsink defines the best-effort, non-mutating post-commit
// hooks of §4.7. Grounded on aita-godb's db/sink.go Sink interface shape
// (one method per lifecycle event), adapted from I/O tee hooks to query
// lifecycle hooks: CREATE/DROP TABLE and each DML statement, fired after
// the corresponding WAL-durable write has already completed. Each hook
// carries the actual affected records and the raw query text so a
// change-data-capture consumer can reconstruct what happened without a
// second read of the table.
package eventsink

import "sawitdb/catalog"

// Sink receives notifications after a mutating operation commits. Sink
// methods return no error, and a hook cannot roll back the
// already-committed operation (§4.7: hooks are strictly observational).
type Sink interface {
	OnTableCreated(name string, entry catalog.Entry, rawQuery string)
	OnTableDropped(name string, entry catalog.Entry, rawQuery string)
	OnTableInserted(table string, records []map[string]any, rawQuery string)
	OnTableUpdated(table string, records []map[string]any, rawQuery string)
	OnTableDeleted(table string, records []map[string]any, rawQuery string)
	OnTableSelected(table string, records []map[string]any, rawQuery string)
}

// NoopSink implements Sink with no-op methods; it is the default sink when
// none is configured.
type NoopSink struct{}

func (NoopSink) OnTableCreated(string, catalog.Entry, string)     {}
func (NoopSink) OnTableDropped(string, catalog.Entry, string)     {}
func (NoopSink) OnTableInserted(string, []map[string]any, string) {}
func (NoopSink) OnTableUpdated(string, []map[string]any, string)  {}
func (NoopSink) OnTableDeleted(string, []map[string]any, string)  {}
func (NoopSink) OnTableSelected(string, []map[string]any, string) {}
