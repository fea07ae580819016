package types_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebula-analytics/nebula/types"
)

func trendsSchema(t *testing.T) types.Schema {
	t.Helper()
	s, err := types.New(
		types.Column{Name: "date", Type: types.Scalar(types.Varchar)},
		types.Column{Name: "query", Type: types.Scalar(types.Varchar)},
		types.Column{Name: "count", Type: types.Scalar(types.BigInt)},
	)
	require.NoError(t, err)
	return s
}

func TestSchemaDuplicateNameRejected(t *testing.T) {
	_, err := types.New(
		types.Column{Name: "a", Type: types.Scalar(types.Int)},
		types.Column{Name: "a", Type: types.Scalar(types.Varchar)},
	)
	assert.Error(t, err)
}

func TestSchemaIndexOf(t *testing.T) {
	s := trendsSchema(t)
	assert.Equal(t, 0, s.IndexOf("date"))
	assert.Equal(t, 2, s.IndexOf("count"))
	assert.Equal(t, -1, s.IndexOf("missing"))
}

func TestSchemaEqualIsStructural(t *testing.T) {
	a := trendsSchema(t)
	b := trendsSchema(t)
	assert.True(t, a.Equal(b))

	c, err := types.New(types.Column{Name: "date", Type: types.Scalar(types.Varchar)})
	require.NoError(t, err)
	assert.False(t, a.Equal(c))
}

func TestSchemaStringRoundTrip(t *testing.T) {
	s := trendsSchema(t)
	text := s.String()
	assert.Equal(t, "(date VARCHAR, query VARCHAR, count BIGINT)", text)

	parsed, err := types.Parse(text)
	require.NoError(t, err)
	assert.True(t, s.Equal(parsed))
}

func TestSchemaHashStableAcrossCopies(t *testing.T) {
	a := trendsSchema(t)
	b := trendsSchema(t)
	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestPromoteNumericLattice(t *testing.T) {
	k, err := types.Promote(types.Int, types.BigInt)
	require.NoError(t, err)
	assert.Equal(t, types.BigInt, k)

	k, err = types.Promote(types.BigInt, types.Double)
	require.NoError(t, err)
	assert.Equal(t, types.Double, k)

	_, err = types.Promote(types.Varchar, types.Int)
	assert.Error(t, err)
}

// TestSchemaColumnDiff uses go-cmp to surface exactly which column
// diverged when two schemas that should match don't, rather than just
// reporting the two structs are unequal.
func TestSchemaColumnDiff(t *testing.T) {
	expected := trendsSchema(t)
	actual, err := types.New(
		types.Column{Name: "date", Type: types.Scalar(types.Varchar)},
		types.Column{Name: "query", Type: types.Scalar(types.Varchar)},
		types.Column{Name: "count", Type: types.Scalar(types.Int)},
	)
	require.NoError(t, err)

	diff := cmp.Diff(expected.Columns, actual.Columns)
	if diff == "" {
		t.Fatal("expected a diff in the count column's type")
	}
}

func TestListAndMapEquality(t *testing.T) {
	a := types.ListOf(types.Scalar(types.Int))
	b := types.ListOf(types.Scalar(types.Int))
	assert.True(t, a.Equal(b))

	c := types.MapOf(types.Scalar(types.Varchar), types.Scalar(types.Double))
	d := types.MapOf(types.Scalar(types.Varchar), types.Scalar(types.Double))
	assert.True(t, c.Equal(d))
	assert.False(t, a.Equal(c))
}
