package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueEqualNumericCoercion(t *testing.T) {
	require.True(t, Int(5).Equal(Float(5.0)))
	require.True(t, Float(3.5).Equal(Float(3.5)))
	require.True(t, Int(5).Equal(String("5")))
	require.True(t, String("5").Equal(String("5")))
	require.True(t, Null().Equal(Null()))
	require.False(t, Null().Equal(Int(0)))
}

func TestCompareTotalOrder(t *testing.T) {
	require.Less(t, Compare(Int(1), Int(2)), 0)
	require.Greater(t, Compare(Float(2.5), Int(2)), 0)
	require.Less(t, Compare(String("a"), String("b")), 0)
	// cross-type: number < string < bool < null
	require.Less(t, Compare(Int(1), String("z")), 0)
	require.Less(t, Compare(String("z"), Bool(true)), 0)
	require.Less(t, Compare(Bool(false), Null()), 0)
}

func TestOrderedBitsPreservesOrdering(t *testing.T) {
	values := []float64{-100.5, -1, 0, 1, 100.5}
	for i := 1; i < len(values); i++ {
		require.Less(t, Float(values[i-1]).OrderedBits(), Float(values[i]).OrderedBits())
	}
}
