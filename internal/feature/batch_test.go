package feature

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestBatchLen(t *testing.T) {
	t.Parallel()

	n, err := Batch{}.Len()
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = Batch{"a": {"1", "2"}, "b": {"3", "4"}}.Len()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = Batch{"a": {"1", "2"}, "b": {"3"}}.Len()
	require.ErrorContains(t, err, "ragged batch")
}

func TestBatchColumn_Missing(t *testing.T) {
	t.Parallel()
	_, err := Batch{"a": {"1"}}.Column("b")
	require.ErrorIs(t, err, ErrMissingFeature)
}

func TestTransformedRecords(t *testing.T) {
	t.Parallel()
	tr := Transformed{
		"c_xf": {Kind: OneHot, Dense: mat.NewDense(2, 3, []float64{1, 0, 0, 0, 0, 1})},
		"n_xf": {Kind: Scaled, Floats: []float64{0.25, 1}},
		"y_xf": {Kind: Int64, Ints: []int64{0, 1}},
	}

	recs := tr.Records()
	require.Len(t, recs, 2)
	require.Equal(t, []float64{0, 0, 1}, recs[1]["c_xf"])
	require.Equal(t, 0.25, recs[0]["n_xf"])
	require.Equal(t, int64(1), recs[1]["y_xf"])
}

func TestKindString(t *testing.T) {
	t.Parallel()
	require.Equal(t, "one_hot", OneHot.String())
	require.Equal(t, "scaled", Scaled.String())
	require.Equal(t, "int64", Int64.String())
	require.Equal(t, "Kind(7)", Kind(7).String())
}
