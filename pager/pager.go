// Package pager owns the database file descriptor: fixed 4 KiB page I/O,
// page allocation, and an optional read-through page-object cache. It is
// grounded on the teacher's storage_engine/disk_manager and bufferpool
// packages, simplified to a single-file, single-handle model (no globally
// addressed multi-file page space, since SawitDB is one heap file per
// database rather than one heap file per table).
package pager

import (
	"log/slog"
	"os"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"sawitdb/page"
	"sawitdb/wal"
)

// Pager owns the file descriptor and the page-object cache.
type Pager struct {
	mu     sync.Mutex
	file   *os.File
	cache  *pageCache
	logger *slog.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Open opens or creates the database file at path, initializing page 0 if
// the file is new, and returns a Pager with a page-object cache of the
// given capacity (0 disables caching).
func Open(path string, cacheCapacity int, logger *slog.Logger) (*Pager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "pager: open")
	}

	p := &Pager{
		file:   f,
		cache:  newPageCache(cacheCapacity),
		logger: logger,
	}

	if isNew {
		if err := p.writeRaw(0, page.NewCatalogPage()); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "pager: init page 0")
		}
	}
	return p, nil
}

// ReadPage returns a copy of the 4 KiB page buffer for id.
func (p *Pager) ReadPage(id uint32) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readRaw(id)
}

func (p *Pager) readRaw(id uint32) ([]byte, error) {
	buf := make([]byte, page.Size)
	off := int64(id) * int64(page.Size)
	n, err := p.file.ReadAt(buf, off)
	if err != nil && n != page.Size {
		return nil, errors.Wrapf(err, "pager: read page %d", id)
	}
	return buf, nil
}

// WritePage writes exactly 4096 bytes for id and forces durability
// best-effort (a Sync failure is logged but not returned, per §4.1). If w
// and op are both non-nil the logical operation is appended to the WAL
// before the page write, establishing the WAL-before-page ordering
// guarantee of §5.
func (p *Pager) WritePage(id uint32, buf []byte, w *wal.WAL, op *wal.Operation) error {
	if len(buf) != page.Size {
		return errors.Errorf("pager: write page %d: buffer must be %d bytes, got %d", id, page.Size, len(buf))
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if w != nil && op != nil {
		if _, err := w.Append(*op); err != nil {
			return errors.Wrap(err, "pager: wal append before page write")
		}
	}

	off := int64(id) * int64(page.Size)
	if _, err := p.file.WriteAt(buf, off); err != nil {
		return errors.Wrapf(err, "pager: write page %d", id)
	}
	if err := p.file.Sync(); err != nil {
		p.logger.Warn("pager: fsync failed, continuing", "page", id, "error", err)
	}
	p.cache.invalidate(id)

	// The operation this page write realized is now durable in the page
	// itself, so the WAL record guarding it is redundant: truncate it away
	// rather than let the log re-describe an already-visible mutation to a
	// future recovery pass.
	if w != nil && op != nil {
		if err := w.Truncate(); err != nil {
			p.logger.Warn("pager: wal truncate failed, continuing", "page", id, "error", err)
		}
	}
	return nil
}

func (p *Pager) writeRaw(id uint32, buf []byte) error {
	off := int64(id) * int64(page.Size)
	if _, err := p.file.WriteAt(buf, off); err != nil {
		return err
	}
	return p.file.Sync()
}

// AllocPage reads page 0, assigns the next page id, writes totalPages back,
// initializes the new page as an empty heap page, and returns its id.
func (p *Pager) AllocPage() (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p0, err := p.readRaw(0)
	if err != nil {
		return 0, err
	}
	newID := page.CatalogTotalPages(p0)
	page.SetCatalogTotalPages(p0, newID+1)
	if err := p.writeRaw(0, p0); err != nil {
		return 0, errors.Wrap(err, "pager: alloc page: persist page 0")
	}
	p.cache.invalidate(0)

	empty := page.NewHeapPage()
	if err := p.writeRaw(newID, empty); err != nil {
		return 0, errors.Wrapf(err, "pager: alloc page: init page %d", newID)
	}
	p.cache.invalidate(newID)
	return newID, nil
}

// ReadPageObjects is the read-through cache path used by hot scans: it
// returns the page's next-link and decoded records, decoding and caching
// on miss. Cache entries are invalidated by any WritePage for that id.
func (p *Pager) ReadPageObjects(id uint32, decode func(buf []byte) (PageObjects, error)) (PageObjects, error) {
	p.mu.Lock()
	if objs, ok := p.cache.get(id); ok {
		p.mu.Unlock()
		p.hits.Inc()
		return objs, nil
	}
	p.mu.Unlock()

	p.misses.Inc()
	buf, err := p.ReadPage(id)
	if err != nil {
		return PageObjects{}, err
	}
	objs, err := decode(buf)
	if err != nil {
		return PageObjects{}, err
	}

	p.mu.Lock()
	p.cache.put(id, objs)
	p.mu.Unlock()
	return objs, nil
}

// Stats reports page-object cache hit/miss counters, useful for EXPLAIN
// diagnostics and tests.
func (p *Pager) Stats() (hits, misses uint64) {
	return p.hits.Load(), p.misses.Load()
}

// Close syncs the file once more (every write was already synced,
// best-effort, before returning) and closes the file descriptor, returning
// any sync and close failures combined.
func (p *Pager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	err = multierr.Append(err, p.file.Sync())
	err = multierr.Append(err, p.file.Close())
	return err
}
