// Package catalog manages the page-0 table directory described in §3/§4.3:
// a fixed-size array of 40-byte (name, startPage, lastPage) slots, packed
// contiguously from index 0. Grounded on the teacher's storage_engine/catalog
// package (schema persistence, table->file mapping) and aita-godb's
// db/table.go header concept, adapted to the spec's in-page-0 directory
// instead of one schema file per table.
package catalog

import (
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"sawitdb/dberr"
	"sawitdb/page"
	"sawitdb/pager"
	"sawitdb/validate"
	"sawitdb/wal"
)

// Entry is one table's catalog slot.
type Entry struct {
	Name      string
	StartPage uint32
	LastPage  uint32
}

// Catalog reads and writes page 0 of the database file.
type Catalog struct {
	mu     sync.Mutex
	pager  *pager.Pager
	wal    *wal.WAL
	logger *slog.Logger
}

// New wraps p (and, if WAL is enabled, w) as the catalog's backing page 0.
func New(p *pager.Pager, w *wal.WAL, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{pager: p, wal: w, logger: logger}
}

func (c *Catalog) readPage0() ([]byte, error) {
	buf, err := c.pager.ReadPage(0)
	if err != nil {
		return nil, err
	}
	if !page.CatalogMagicOK(buf) {
		return nil, errors.New("catalog: page 0 magic mismatch")
	}
	return buf, nil
}

// FindTable linearly scans up to numTables and returns the matching entry.
func (c *Catalog) FindTable(name string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.findTableLocked(name)
}

func (c *Catalog) findTableLocked(name string) (Entry, bool, error) {
	buf, err := c.readPage0()
	if err != nil {
		return Entry{}, false, err
	}
	n := int(page.CatalogNumTables(buf))
	for i := 0; i < n; i++ {
		slot := buf[page.CatalogEntrySlot(i) : page.CatalogEntrySlot(i)+page.CatalogEntrySize]
		if page.CatalogEntryName(slot) == name {
			return Entry{
				Name:      name,
				StartPage: page.CatalogEntryStartPage(slot),
				LastPage:  page.CatalogEntryLastPage(slot),
			}, true, nil
		}
	}
	return Entry{}, false, nil
}

// ListTables returns every live catalog entry, including system tables; the
// executor is responsible for filtering _-prefixed names out of
// SHOW_TABLES.
func (c *Catalog) ListTables() ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf, err := c.readPage0()
	if err != nil {
		return nil, err
	}
	n := int(page.CatalogNumTables(buf))
	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		slot := buf[page.CatalogEntrySlot(i) : page.CatalogEntrySlot(i)+page.CatalogEntrySize]
		out = append(out, Entry{
			Name:      page.CatalogEntryName(slot),
			StartPage: page.CatalogEntryStartPage(slot),
			LastPage:  page.CatalogEntryLastPage(slot),
		})
	}
	return out, nil
}

// CreateTable validates name (unless it is an internal "_"-prefixed name,
// which bypasses the reserved-name/whitelist check), rejects duplicates,
// allocates one empty heap page, and appends a new catalog slot.
func (c *Catalog) CreateTable(name string) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(name) == 0 || name[0] != '_' {
		if err := validate.TableName(name); err != nil {
			return Entry{}, err
		}
	}

	if _, exists, err := c.findTableLocked(name); err != nil {
		return Entry{}, err
	} else if exists {
		return Entry{}, dberr.ErrNameTaken
	}

	buf, err := c.readPage0()
	if err != nil {
		return Entry{}, err
	}
	n := int(page.CatalogNumTables(buf))
	if n >= page.MaxCatalogEntries {
		return Entry{}, dberr.ErrPageZeroFull
	}

	startPage, err := c.pager.AllocPage()
	if err != nil {
		return Entry{}, errors.Wrap(err, "catalog: create table: alloc heap page")
	}

	// Re-read page 0: AllocPage may have updated totalPages underneath us.
	buf, err = c.readPage0()
	if err != nil {
		return Entry{}, err
	}
	slot := buf[page.CatalogEntrySlot(n) : page.CatalogEntrySlot(n)+page.CatalogEntrySize]
	page.PutCatalogEntry(slot, name, startPage, startPage)
	page.SetCatalogNumTables(buf, uint32(n+1))

	op := &wal.Operation{Kind: wal.OpCreateTable, Table: name}
	if err := c.pager.WritePage(0, buf, c.wal, op); err != nil {
		return Entry{}, errors.Wrap(err, "catalog: create table: persist page 0")
	}

	return Entry{Name: name, StartPage: startPage, LastPage: startPage}, nil
}

// DropTable removes name's catalog slot by moving the last live slot over
// it (preserving the packed-contiguous invariant) and decrementing
// numTables. The heap pages it owned are not reclaimed (§3 Lifecycles).
func (c *Catalog) DropTable(name string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf, err := c.readPage0()
	if err != nil {
		return Entry{}, false, err
	}
	n := int(page.CatalogNumTables(buf))
	idx := -1
	var removed Entry
	for i := 0; i < n; i++ {
		slot := buf[page.CatalogEntrySlot(i) : page.CatalogEntrySlot(i)+page.CatalogEntrySize]
		if page.CatalogEntryName(slot) == name {
			idx = i
			removed = Entry{
				Name:      name,
				StartPage: page.CatalogEntryStartPage(slot),
				LastPage:  page.CatalogEntryLastPage(slot),
			}
			break
		}
	}
	if idx == -1 {
		return Entry{}, false, nil
	}

	lastIdx := n - 1
	if idx != lastIdx {
		lastSlot := buf[page.CatalogEntrySlot(lastIdx) : page.CatalogEntrySlot(lastIdx)+page.CatalogEntrySize]
		destSlot := buf[page.CatalogEntrySlot(idx) : page.CatalogEntrySlot(idx)+page.CatalogEntrySize]
		copy(destSlot, lastSlot)
	}
	zero := buf[page.CatalogEntrySlot(lastIdx) : page.CatalogEntrySlot(lastIdx)+page.CatalogEntrySize]
	for i := range zero {
		zero[i] = 0
	}
	page.SetCatalogNumTables(buf, uint32(lastIdx))

	op := &wal.Operation{Kind: wal.OpDropTable, Table: name}
	if err := c.pager.WritePage(0, buf, c.wal, op); err != nil {
		return Entry{}, false, errors.Wrap(err, "catalog: drop table: persist page 0")
	}
	return removed, true, nil
}

// SetLastPage updates a single catalog slot's lastPage field, used by
// HeapFile when it appends a fresh tail page to a table.
func (c *Catalog) SetLastPage(name string, id uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf, err := c.readPage0()
	if err != nil {
		return err
	}
	n := int(page.CatalogNumTables(buf))
	for i := 0; i < n; i++ {
		slot := buf[page.CatalogEntrySlot(i) : page.CatalogEntrySlot(i)+page.CatalogEntrySize]
		if page.CatalogEntryName(slot) == name {
			page.SetCatalogEntryLastPage(slot, id)
			return c.pager.WritePage(0, buf, nil, nil)
		}
	}
	return errors.Wrapf(dberr.ErrTableMissing, "catalog: set last page: table %q", name)
}

// EnsureSystemIndexesTable creates the internal "_indexes" table if it does
// not already exist. Internal names bypass the reserved-name check (§4.3).
func (c *Catalog) EnsureSystemIndexesTable() (Entry, error) {
	if e, ok, err := c.FindTable(SystemIndexesTable); err != nil {
		return Entry{}, err
	} else if ok {
		return e, nil
	}
	return c.CreateTable(SystemIndexesTable)
}

// SystemIndexesTable is the internal table name persisting which indexes
// exist (§3); it is hidden from SHOW_TABLES and cannot be dropped (§4.6).
const SystemIndexesTable = "_indexes"
