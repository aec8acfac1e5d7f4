package validate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sawitdb/dberr"
)

func TestTableNameAcceptsValidIdentifiers(t *testing.T) {
	require.NoError(t, TableName("users"))
	require.NoError(t, TableName("_internal_but_not_reserved"))
	require.NoError(t, TableName("a1_2"))
}

func TestTableNameRejectsInvalidPattern(t *testing.T) {
	require.ErrorIs(t, TableName("9bad"), dberr.ErrNameInvalid)
	require.ErrorIs(t, TableName("has space"), dberr.ErrNameInvalid)
	require.ErrorIs(t, TableName(""), dberr.ErrNameInvalid)
}

func TestTableNameRejectsReserved(t *testing.T) {
	require.ErrorIs(t, TableName("_indexes"), dberr.ErrNameTaken)
	require.ErrorIs(t, TableName("null"), dberr.ErrNameTaken)
}

func TestColumnNameIgnoresReservedSet(t *testing.T) {
	require.NoError(t, ColumnName("null"))
	require.ErrorIs(t, ColumnName("9bad"), dberr.ErrNameInvalid)
}
