// Package index implements the non-persistent secondary ordered index of
// §4.6: a sorted map from an indexed column's value to the set of heap
// locations holding that value, rebuilt from a full table scan whenever a
// database is opened. Grounded on tobsdb-tobsdb's internal/builder use of
// github.com/tobshub/go-sortedmap for row storage, adapted from a
// single-key map to a multi-value (bucket-of-refs) ordered index.
package index

import (
	"fmt"

	sortedmap "github.com/tobshub/go-sortedmap"

	"sawitdb/record"
)

// RecordRef locates one record: PageID is the page the record was on when
// the ref was stored, a hint rather than a guarantee. Record is the value
// the heap mutations keep up to date; no caller in this module reads
// PageID.
type RecordRef struct {
	Record *record.Record
	PageID uint32
}

// bucket holds every ref currently sharing one indexed value.
type bucket struct {
	key  string
	refs []RecordRef
}

// Index is a secondary ordered index over one column of one table.
type Index struct {
	Table  string
	Column string
	sm     *sortedmap.SortedMap[string, *bucket]
}

// New creates an empty index over table.column.
func New(table, column string) *Index {
	less := func(a, b *bucket) bool { return a.key < b.key }
	return &Index{
		Table:  table,
		Column: column,
		sm:     sortedmap.New[string, *bucket](64, less),
	}
}

// encode produces an order-preserving string key from v, so that sorted
// iteration over the underlying map visits buckets in the same order as
// record.Compare would order the original values.
func encode(v record.Value) string {
	switch v.Kind {
	case record.KindInt, record.KindFloat:
		return fmt.Sprintf("0:%020d", v.OrderedBits())
	case record.KindString:
		return "1:" + v.S
	case record.KindBool:
		if v.B {
			return "2:1"
		}
		return "2:0"
	default:
		return "3:"
	}
}

// Insert adds ref under v's bucket, creating the bucket if needed.
func (idx *Index) Insert(v record.Value, ref RecordRef) {
	key := encode(v)
	if b, ok := idx.sm.Get(key); ok {
		b.refs = append(b.refs, ref)
		idx.sm.Replace(key, b)
		return
	}
	idx.sm.Insert(key, &bucket{key: key, refs: []RecordRef{ref}})
}

// Delete removes one ref matching rec (by deep record equality) from v's
// bucket, if present.
func (idx *Index) Delete(v record.Value, rec *record.Record) {
	key := encode(v)
	b, ok := idx.sm.Get(key)
	if !ok {
		return
	}
	for i, r := range b.refs {
		if r.Record.Equal(rec) {
			b.refs = append(b.refs[:i], b.refs[i+1:]...)
			break
		}
	}
	if len(b.refs) == 0 {
		idx.sm.Delete(key)
		return
	}
	idx.sm.Replace(key, b)
}

// Search returns every ref currently stored under v.
func (idx *Index) Search(v record.Value) []RecordRef {
	key := encode(v)
	b, ok := idx.sm.Get(key)
	if !ok {
		return nil
	}
	out := make([]RecordRef, len(b.refs))
	copy(out, b.refs)
	return out
}

// Stats reports the number of distinct values currently indexed.
func (idx *Index) Stats() (distinctValues int) {
	return idx.sm.Len()
}
