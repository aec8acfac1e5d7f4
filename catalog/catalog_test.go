package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sawitdb/dberr"
	"sawitdb/page"
	"sawitdb/pager"
)

func openCatalog(t *testing.T) *Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	p, err := pager.Open(path, 0, nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return New(p, nil, nil)
}

func TestCreateTableAssignsHeapPage(t *testing.T) {
	c := openCatalog(t)
	e, err := c.CreateTable("users")
	require.NoError(t, err)
	require.Equal(t, "users", e.Name)
	require.Equal(t, e.StartPage, e.LastPage)
	require.NotZero(t, e.StartPage)

	found, ok, err := c.FindTable("users")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, e, found)
}

func TestCreateTableRejectsDuplicate(t *testing.T) {
	c := openCatalog(t)
	_, err := c.CreateTable("users")
	require.NoError(t, err)
	_, err = c.CreateTable("users")
	require.ErrorIs(t, err, dberr.ErrNameTaken)
}

func TestCreateTableRejectsInvalidName(t *testing.T) {
	c := openCatalog(t)
	_, err := c.CreateTable("9bad")
	require.Error(t, err)
}

func TestCreateTableAllowsUnderscorePrefixedInternalNames(t *testing.T) {
	c := openCatalog(t)
	_, err := c.CreateTable("_internal")
	require.NoError(t, err)
}

func TestDropTableCompactsDirectory(t *testing.T) {
	c := openCatalog(t)
	_, err := c.CreateTable("a")
	require.NoError(t, err)
	_, err = c.CreateTable("b")
	require.NoError(t, err)
	_, err = c.CreateTable("c")
	require.NoError(t, err)

	_, ok, err := c.DropTable("a")
	require.NoError(t, err)
	require.True(t, ok)

	tables, err := c.ListTables()
	require.NoError(t, err)
	require.Len(t, tables, 2)

	names := map[string]bool{}
	for _, e := range tables {
		names[e.Name] = true
	}
	require.True(t, names["b"])
	require.True(t, names["c"])
	require.False(t, names["a"])
}

func TestDropTableMissingReturnsFalse(t *testing.T) {
	c := openCatalog(t)
	_, ok, err := c.DropTable("nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCatalogFull(t *testing.T) {
	c := openCatalog(t)
	for i := 0; i < page.MaxCatalogEntries; i++ {
		_, err := c.CreateTable(nthTableName(i))
		require.NoError(t, err)
	}
	_, err := c.CreateTable("oneTooMany")
	require.ErrorIs(t, err, dberr.ErrPageZeroFull)
}

func nthTableName(i int) string {
	letters := "abcdefghijklmnopqrstuvwxyz"
	return "t" + string(letters[i%26]) + string(rune('0'+i/26))
}

func TestSetLastPage(t *testing.T) {
	c := openCatalog(t)
	e, err := c.CreateTable("users")
	require.NoError(t, err)

	require.NoError(t, c.SetLastPage("users", e.StartPage+5))
	found, ok, err := c.FindTable("users")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, e.StartPage+5, found.LastPage)
	require.Equal(t, e.StartPage, found.StartPage)
}

func TestEnsureSystemIndexesTableIdempotent(t *testing.T) {
	c := openCatalog(t)
	e1, err := c.EnsureSystemIndexesTable()
	require.NoError(t, err)
	e2, err := c.EnsureSystemIndexesTable()
	require.NoError(t, err)
	require.Equal(t, e1, e2)
}
