// Package heap implements per-table record storage: a singly linked list
// of 4 KiB pages holding length-prefixed serialized records, appended to
// on insert and compacted in place on delete/update. Grounded on the
// teacher's storage_engine/heap_file (linked page list, slotted free-space
// tracking, compaction-on-delete), adapted to the page-0 catalog directory
// instead of one schema+data file pair per table.
package heap

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"sawitdb/catalog"
	"sawitdb/dberr"
	"sawitdb/index"
	"sawitdb/page"
	"sawitdb/pager"
	"sawitdb/record"
	"sawitdb/wal"
)

// Table is the heap-file view of one table: its catalog entry plus the
// shared pager/WAL/catalog handles and the set of indexes that must be
// kept in sync with every mutation.
type Table struct {
	Name    string
	pager   *pager.Pager
	cat     *catalog.Catalog
	wal     *wal.WAL
	indexes []*index.Index
}

// Open returns a Table view for an existing catalog entry, with idxs as
// the indexes defined on this table (maintained on every mutation).
func Open(name string, p *pager.Pager, c *catalog.Catalog, w *wal.WAL, idxs []*index.Index) (*Table, error) {
	if _, ok, err := c.FindTable(name); err != nil {
		return nil, err
	} else if !ok {
		return nil, errors.Wrapf(dberr.ErrTableMissing, "table %q", name)
	}
	return &Table{Name: name, pager: p, cat: c, wal: w, indexes: idxs}, nil
}

func decodePage(buf []byte) (pager.PageObjects, error) {
	next := page.HeapNext(buf)
	freeOff := int(page.HeapFreeOffset(buf))
	items := make([]any, 0, page.HeapRecordCount(buf))
	off := page.HeapHeaderSize
	for off < freeOff {
		if off+page.RecordLenPrefix > freeOff {
			break
		}
		n := int(binary.LittleEndian.Uint16(buf[off : off+page.RecordLenPrefix]))
		off += page.RecordLenPrefix
		if off+n > freeOff {
			break
		}
		rec, err := record.Deserialize(buf[off : off+n])
		if err != nil {
			off += n
			continue // CORRUPT_RECORD: skip and keep scanning (§7)
		}
		items = append(items, rec)
		off += n
	}
	return pager.PageObjects{Next: next, Items: items}, nil
}

// startPage returns the table's first heap page id.
func (t *Table) startPage() (uint32, error) {
	e, ok, err := t.cat.FindTable(t.Name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.Wrapf(dberr.ErrTableMissing, "table %q", t.Name)
	}
	return e.StartPage, nil
}

// InsertMany appends each record to the table's tail page, allocating a
// new tail page when the current one has insufficient free space, and
// maintains every index passed to Open. Each insert's WAL guard is
// truncated as soon as its own page write durably succeeds.
func (t *Table) InsertMany(recs []*record.Record) error {
	for _, rec := range recs {
		if err := t.insertOne(rec, true); err != nil {
			return err
		}
	}
	return nil
}

// insertOne appends rec to the table's tail page. When truncateAfter is
// true (the normal InsertMany path) the WAL guard for this insert is
// truncated the moment its page write succeeds, per the per-operation
// truncation policy. UpdateMatching's reinsert-on-grow path passes false:
// that caller is still in the middle of reinserting a batch of records
// displaced from their original pages, and truncating after only one of
// them would discard the WAL guard for the rest before they are durably
// anywhere - the caller truncates once itself after the whole batch lands.
func (t *Table) insertOne(rec *record.Record, truncateAfter bool) error {
	buf, err := record.Serialize(rec)
	if err != nil {
		return err
	}
	if len(buf)+page.RecordLenPrefix > page.Size-page.HeapHeaderSize {
		return dberr.ErrRecordTooLarge
	}

	e, ok, err := t.cat.FindTable(t.Name)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(dberr.ErrTableMissing, "table %q", t.Name)
	}

	pageID := e.LastPage
	pbuf, err := t.pager.ReadPage(pageID)
	if err != nil {
		return err
	}

	needed := page.RecordLenPrefix + len(buf)
	if page.HeapFreeSpace(pbuf) < needed {
		newID, err := t.pager.AllocPage()
		if err != nil {
			return err
		}
		page.SetHeapNext(pbuf, newID)
		if err := t.pager.WritePage(pageID, pbuf, nil, nil); err != nil {
			return err
		}
		if err := t.cat.SetLastPage(t.Name, newID); err != nil {
			return err
		}
		pageID = newID
		pbuf, err = t.pager.ReadPage(pageID)
		if err != nil {
			return err
		}
	}

	writeRecordAt(pbuf, buf)

	op := &wal.Operation{Kind: wal.OpInsert, Table: t.Name, New: buf}
	if truncateAfter {
		if err := t.pager.WritePage(pageID, pbuf, t.wal, op); err != nil {
			return err
		}
	} else {
		if _, err := t.wal.Append(*op); err != nil {
			return err
		}
		if err := t.pager.WritePage(pageID, pbuf, nil, nil); err != nil {
			return err
		}
	}

	for _, idx := range t.indexes {
		v := rec.GetOr(idx.Column)
		idx.Insert(v, index.RecordRef{Record: rec, PageID: pageID})
	}
	return nil
}

// writeRecordAt appends one length-prefixed record at the page's current
// free offset and advances recordCount/freeOffset. Caller must have
// already verified there is enough free space.
func writeRecordAt(pbuf []byte, recBuf []byte) {
	off := int(page.HeapFreeOffset(pbuf))
	binary.LittleEndian.PutUint16(pbuf[off:off+page.RecordLenPrefix], uint16(len(recBuf)))
	copy(pbuf[off+page.RecordLenPrefix:], recBuf)
	newOff := off + page.RecordLenPrefix + len(recBuf)
	page.SetHeapFreeOffset(pbuf, uint16(newOff))
	page.SetHeapRecordCount(pbuf, page.HeapRecordCount(pbuf)+1)
}

// MatchFunc reports whether a scanned record should be yielded/acted on.
type MatchFunc func(*record.Record) (bool, error)

// Scan walks the table's page chain in order, calling visit for every
// record until visit returns false (stop early, e.g. for LIMIT) or the
// chain is exhausted. pageHint, if non-zero, starts the scan at that page
// instead of the table's start page and follows the chain from there;
// pages before it are not visited. Every caller in this module passes 0.
func (t *Table) Scan(pageHint uint32, visit func(rec *record.Record, pageID uint32) (keepGoing bool, err error)) error {
	start := pageHint
	if start == 0 {
		var err error
		start, err = t.startPage()
		if err != nil {
			return err
		}
	}
	id := start
	for id != 0 {
		objs, err := t.pager.ReadPageObjects(id, decodePage)
		if err != nil {
			return err
		}
		for _, item := range objs.Items {
			rec := item.(*record.Record)
			keepGoing, err := visit(rec, id)
			if err != nil {
				return err
			}
			if !keepGoing {
				return nil
			}
		}
		id = objs.Next
	}
	return nil
}

// DeleteMatching removes every record for which match returns true,
// compacting each affected page in place, and returns the number removed.
func (t *Table) DeleteMatching(match MatchFunc) (int, error) {
	start, err := t.startPage()
	if err != nil {
		return 0, err
	}
	removed := 0
	id := start
	for id != 0 {
		pbuf, err := t.pager.ReadPage(id)
		if err != nil {
			return removed, err
		}
		next := page.HeapNext(pbuf)
		newBuf := page.NewHeapPage()
		page.SetHeapNext(newBuf, next)
		changed := false

		off := page.HeapHeaderSize
		freeOff := int(page.HeapFreeOffset(pbuf))
		for off < freeOff {
			n := int(binary.LittleEndian.Uint16(pbuf[off : off+page.RecordLenPrefix]))
			recBuf := pbuf[off+page.RecordLenPrefix : off+page.RecordLenPrefix+n]
			off += page.RecordLenPrefix + n

			rec, err := record.Deserialize(recBuf)
			if err != nil {
				continue // drop corrupt record silently during compaction
			}
			ok, err := match(rec)
			if err != nil {
				return removed, err
			}
			if ok {
				changed = true
				removed++
				op := &wal.Operation{Kind: wal.OpDelete, Table: t.Name, Old: recBuf}
				if _, err := t.wal.Append(*op); err != nil {
					return removed, err
				}
				for _, idx := range t.indexes {
					v := rec.GetOr(idx.Column)
					idx.Delete(v, rec)
				}
				continue
			}
			writeRecordAt(newBuf, recBuf)
		}

		if changed {
			if err := t.pager.WritePage(id, newBuf, nil, nil); err != nil {
				return removed, err
			}
			if err := t.wal.Truncate(); err != nil {
				return removed, err
			}
		}
		id = next
	}
	return removed, nil
}

// UpdateMatching applies mutate to every record for which match returns
// true. Each affected page is rebuilt in place: records whose new
// serialized length is <= their original length are rewritten into the
// same page (the in-place fast path of §4.2 at page granularity, avoiding
// a tail-append for the common case of updating a field of unchanged or
// shrinking width); records that grew are removed from the page and
// appended to the table's tail via insertOne. For every updated record,
// each index entry for the pre-image is replaced by one for the post-image.
func (t *Table) UpdateMatching(match MatchFunc, mutate func(*record.Record) (*record.Record, error)) (int, error) {
	start, err := t.startPage()
	if err != nil {
		return 0, err
	}
	updated := 0
	id := start
	var toReinsert []*record.Record

	for id != 0 {
		pbuf, err := t.pager.ReadPage(id)
		if err != nil {
			return updated, err
		}
		next := page.HeapNext(pbuf)
		newBuf := page.NewHeapPage()
		page.SetHeapNext(newBuf, next)
		changed := false

		off := page.HeapHeaderSize
		freeOff := int(page.HeapFreeOffset(pbuf))
		for off < freeOff {
			n := int(binary.LittleEndian.Uint16(pbuf[off : off+page.RecordLenPrefix]))
			recBuf := pbuf[off+page.RecordLenPrefix : off+page.RecordLenPrefix+n]
			off += page.RecordLenPrefix + n

			rec, err := record.Deserialize(recBuf)
			if err != nil {
				continue
			}
			ok, err := match(rec)
			if err != nil {
				return updated, err
			}
			if !ok {
				writeRecordAt(newBuf, recBuf)
				continue
			}

			newRec, err := mutate(rec)
			if err != nil {
				return updated, err
			}
			newRecBuf, err := record.Serialize(newRec)
			if err != nil {
				return updated, err
			}

			changed = true
			updated++
			op := &wal.Operation{Kind: wal.OpUpdate, Table: t.Name, Old: recBuf, New: newRecBuf}
			if _, err := t.wal.Append(*op); err != nil {
				return updated, err
			}

			if len(newRecBuf) <= n {
				writeRecordAt(newBuf, newRecBuf)
				reindex(t.indexes, rec, newRec, id)
			} else {
				for _, idx := range t.indexes {
					v := rec.GetOr(idx.Column)
					idx.Delete(v, rec)
				}
				toReinsert = append(toReinsert, newRec)
			}
		}

		if changed {
			if err := t.pager.WritePage(id, newBuf, nil, nil); err != nil {
				return updated, err
			}
			// A record queued in toReinsert is durably gone from its old
			// page but not yet durably anywhere else; truncating now would
			// discard the only WAL guard covering it before the reinsert
			// pass below has run. Only safe to truncate per-page when no
			// grown record is still pending across the whole batch.
			if len(toReinsert) == 0 {
				if err := t.wal.Truncate(); err != nil {
					return updated, err
				}
			}
		}
		id = next
	}

	if len(toReinsert) > 0 {
		for _, rec := range toReinsert {
			if err := t.insertOne(rec, false); err != nil {
				return updated, err
			}
		}
		if err := t.wal.Truncate(); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

func reindex(idxs []*index.Index, oldRec, newRec *record.Record, pageID uint32) {
	for _, idx := range idxs {
		oldV := oldRec.GetOr(idx.Column)
		newV := newRec.GetOr(idx.Column)
		idx.Delete(oldV, oldRec)
		idx.Insert(newV, index.RecordRef{Record: newRec, PageID: pageID})
	}
}
