package pager

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sawitdb/page"
)

func openPager(t *testing.T, cacheCap int) *Pager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	p, err := Open(path, cacheCap, nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestOpenInitializesPageZero(t *testing.T) {
	p := openPager(t, 0)
	buf, err := p.ReadPage(0)
	require.NoError(t, err)
	require.True(t, page.CatalogMagicOK(buf))
	require.EqualValues(t, 1, page.CatalogTotalPages(buf))
}

func TestAllocPageGrowsTotalAndInitializesHeapPage(t *testing.T) {
	p := openPager(t, 0)
	id, err := p.AllocPage()
	require.NoError(t, err)
	require.EqualValues(t, 1, id)

	p0, err := p.ReadPage(0)
	require.NoError(t, err)
	require.EqualValues(t, 2, page.CatalogTotalPages(p0))

	buf, err := p.ReadPage(id)
	require.NoError(t, err)
	require.EqualValues(t, 0, page.HeapNext(buf))
	require.EqualValues(t, page.HeapHeaderSize, page.HeapFreeOffset(buf))
}

func TestWritePageRoundTrip(t *testing.T) {
	p := openPager(t, 0)
	id, err := p.AllocPage()
	require.NoError(t, err)

	buf, err := p.ReadPage(id)
	require.NoError(t, err)
	page.SetHeapRecordCount(buf, 7)

	require.NoError(t, p.WritePage(id, buf, nil, nil))

	got, err := p.ReadPage(id)
	require.NoError(t, err)
	require.EqualValues(t, 7, page.HeapRecordCount(got))
}

func TestReadPageObjectsCacheHitMiss(t *testing.T) {
	p := openPager(t, 16)
	id, err := p.AllocPage()
	require.NoError(t, err)

	decode := func(buf []byte) (PageObjects, error) {
		return PageObjects{Next: page.HeapNext(buf)}, nil
	}

	_, err = p.ReadPageObjects(id, decode)
	require.NoError(t, err)
	hits, misses := p.Stats()
	require.EqualValues(t, 0, hits)
	require.EqualValues(t, 1, misses)

	_, err = p.ReadPageObjects(id, decode)
	require.NoError(t, err)
	hits, misses = p.Stats()
	require.EqualValues(t, 1, hits)
	require.EqualValues(t, 1, misses)
}

func TestWritePageInvalidatesCache(t *testing.T) {
	p := openPager(t, 16)
	id, err := p.AllocPage()
	require.NoError(t, err)

	decode := func(buf []byte) (PageObjects, error) {
		return PageObjects{Next: page.HeapNext(buf)}, nil
	}
	_, err = p.ReadPageObjects(id, decode)
	require.NoError(t, err)

	buf, err := p.ReadPage(id)
	require.NoError(t, err)
	page.SetHeapNext(buf, 99)
	require.NoError(t, p.WritePage(id, buf, nil, nil))

	objs, err := p.ReadPageObjects(id, decode)
	require.NoError(t, err)
	require.EqualValues(t, 99, objs.Next)
}
