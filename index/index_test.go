package index

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sawitdb/record"
)

func TestInsertSearchDelete(t *testing.T) {
	idx := New("users", "age")

	r1 := record.FromMap(map[string]any{"id": 1, "age": 30})
	r2 := record.FromMap(map[string]any{"id": 2, "age": 30})
	r3 := record.FromMap(map[string]any{"id": 3, "age": 40})

	idx.Insert(record.Int(30), RecordRef{Record: r1, PageID: 5})
	idx.Insert(record.Int(30), RecordRef{Record: r2, PageID: 5})
	idx.Insert(record.Int(40), RecordRef{Record: r3, PageID: 6})

	refs := idx.Search(record.Int(30))
	require.Len(t, refs, 2)

	idx.Delete(record.Int(30), r1)
	refs = idx.Search(record.Int(30))
	require.Len(t, refs, 1)
	require.True(t, refs[0].Record.Equal(r2))

	require.Equal(t, 2, idx.Stats())
}

func TestSearchMissingValueReturnsNil(t *testing.T) {
	idx := New("users", "age")
	require.Nil(t, idx.Search(record.Int(99)))
}

func TestDeleteEmptiesBucket(t *testing.T) {
	idx := New("users", "age")
	r1 := record.FromMap(map[string]any{"id": 1, "age": 30})
	idx.Insert(record.Int(30), RecordRef{Record: r1, PageID: 1})
	idx.Delete(record.Int(30), r1)
	require.Nil(t, idx.Search(record.Int(30)))
	require.Equal(t, 0, idx.Stats())
}

func TestEncodeOrderPreservesNumericOrdering(t *testing.T) {
	require.Less(t, encode(record.Int(-5)), encode(record.Int(0)))
	require.Less(t, encode(record.Int(0)), encode(record.Int(5)))
	require.Less(t, encode(record.Float(1.5)), encode(record.Int(2)))
}
