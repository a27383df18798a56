package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-odata-query/pkg/expr"
	"github.com/robert-malhotra/go-odata-query/pkg/filter"
	"github.com/robert-malhotra/go-odata-query/pkg/schema"
)

func TestParseOrderByScenario(t *testing.T) {
	keys, err := ParseOrderBy("Age desc,UserName", userSchema)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, Descending, keys[0].Direction)
	assert.Equal(t, Ascending, keys[1].Direction)

	path, ok := filter.SelectorPath(keys[0].Key)
	require.True(t, ok)
	assert.Equal(t, "Age", path)
	path, ok = filter.SelectorPath(keys[1].Key)
	require.True(t, ok)
	assert.Equal(t, "UserName", path)

	items := []*schema.Record{user("a", 20), user("b", 20), user("c", 10)}
	require.NoError(t, SortRecords(items, keys))
	assert.Equal(t, []string{"a", "b", "c"}, names(items))

	items = []*schema.Record{user("b", 20), user("c", 10), user("a", 20)}
	require.NoError(t, SortRecords(items, keys))
	assert.Equal(t, []string{"a", "b", "c"}, names(items))
}

func TestSortIsStable(t *testing.T) {
	items := []*schema.Record{user("d", 2), user("b", 1), user("c", 2), user("a", 1)}
	require.NoError(t, SortRecords(items, []SortDescription{Asc(MustBy(userSchema, "Age"))}))
	assert.Equal(t, []string{"b", "a", "d", "c"}, names(items))

	require.NoError(t, SortRecords(items, []SortDescription{Desc(MustBy(userSchema, "Age"))}))
	assert.Equal(t, []string{"d", "c", "b", "a"}, names(items))
}

func TestSortNullsFirst(t *testing.T) {
	items := []*schema.Record{
		user("a", 1).MustSet("Score", 3.0),
		user("b", 1),
		user("c", 1).MustSet("Score", 1.0),
	}
	require.NoError(t, SortRecords(items, []SortDescription{Asc(MustBy(userSchema, "Score"))}))
	assert.Equal(t, []string{"b", "c", "a"}, names(items))
}

func TestSortComputedKey(t *testing.T) {
	keys, err := ParseOrderBy("length(UserName) desc, Age asc", userSchema)
	require.NoError(t, err)
	items := []*schema.Record{user("bo", 3), user("carl", 1), user("al", 2)}
	require.NoError(t, SortRecords(items, keys))
	assert.Equal(t, []string{"carl", "al", "bo"}, names(items))

	out, err := WriteOrderBy(keys, nil)
	require.NoError(t, err)
	assert.Equal(t, "length(userName) desc,Age", out)

	// Integral keys widen when combined.
	keys, err = ParseOrderBy("Age add 1L", userSchema)
	require.NoError(t, err)
	assert.Equal(t, schema.Int64, keys[0].Key.Body.Type().Kind)
}

func TestWriteOrderByLowerCase(t *testing.T) {
	x := expr.NewParam("x", userSchema)
	out, err := WriteOrderBy([]SortDescription{
		Desc(expr.Selector{Param: x, Body: expr.MustPath(x, "Age")}),
		Asc(MustBy(userSchema, "UserName")),
	}, filter.LowerCase{})
	require.NoError(t, err)
	assert.Equal(t, "age desc,username", out)
}

func TestParseOrderByErrors(t *testing.T) {
	_, err := ParseOrderBy("Nope", userSchema)
	assert.ErrorIs(t, err, filter.ErrType)
	_, err = ParseOrderBy("Age,,UserName", userSchema)
	assert.ErrorIs(t, err, filter.ErrGrammar)

	keys, err := ParseOrderBy("", userSchema)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSortIncomparableKeys(t *testing.T) {
	s := schema.MustNew("Loose", schema.Field{Name: "V", Type: schema.Of(schema.String)})
	items := []*schema.Record{
		schema.NewRecord(s).MustSet("V", "a"),
		schema.NewRecord(s).MustSet("V", 1),
	}
	err := SortRecords(items, []SortDescription{Asc(MustBy(s, "V"))})
	require.Error(t, err)
}
