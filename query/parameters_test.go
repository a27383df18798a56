package query

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-odata-query/pkg/filter"
)

func TestGetFullURIGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)

	cases := []struct {
		name  string
		build func(t *testing.T) *ParameterBuilder
	}{
		{
			name: "parameters_full",
			build: func(t *testing.T) *ParameterBuilder {
				pb := NewParameterBuilder("http://host/svc/Users", userSchema, filter.LowerCase{})
				pred, err := filter.Build("Age ge 18 and UserName eq 'bob o''neil'", userSchema)
				require.NoError(t, err)
				pb.Where(pred)
				require.NoError(t, pb.Select("UserName", "Age", "age"))
				pb.Skip(10).Skip(5).Top(5)
				keys, err := ParseOrderBy("Age desc,UserName", userSchema)
				require.NoError(t, err)
				pb.OrderBy(keys...)
				require.NoError(t, pb.Expand("Orders", "orders"))
				return pb
			},
		},
		{
			name: "parameters_escaping",
			build: func(t *testing.T) *ParameterBuilder {
				pb := NewParameterBuilder("Users", userSchema, nil)
				pred, err := filter.Build("UserName eq 'a&b=c#d+e?f%g'", userSchema)
				require.NoError(t, err)
				pb.Where(pred)
				return pb
			},
		},
		{
			name: "parameters_multiple_filters",
			build: func(t *testing.T) *ParameterBuilder {
				pb := NewParameterBuilder("Users?api=1", userSchema, nil)
				for _, f := range []string{"Age gt 1", "", "Age lt 50"} {
					pred, err := filter.Build(f, userSchema)
					require.NoError(t, err)
					pb.Where(pred)
				}
				pb.ThenBy(Asc(MustBy(userSchema, "UserName")))
				return pb
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uri, err := tc.build(t).GetFullURI()
			require.NoError(t, err)
			g.Assert(t, tc.name, []byte(uri))
		})
	}
}

func TestGetFullURIOmitsAbsentOptions(t *testing.T) {
	pb := NewParameterBuilder("Users", userSchema, nil)
	uri, err := pb.GetFullURI()
	require.NoError(t, err)
	assert.Equal(t, "Users", uri)

	pb.Top(0)
	uri, err = pb.GetFullURI()
	require.NoError(t, err)
	assert.Equal(t, "Users?$top=0", uri)
}

func TestSkipTakeLastWriteWins(t *testing.T) {
	pb := NewParameterBuilder("Users", userSchema, nil)
	pb.Skip(10).Skip(5).Top(5)
	uri, err := pb.GetFullURI()
	require.NoError(t, err)
	assert.Equal(t, "Users?$skip=5&$top=5", uri)
}

func TestSelectIsNormalized(t *testing.T) {
	a := NewParameterBuilder("Users", userSchema, nil)
	require.NoError(t, a.Select("UserName", "Age"))
	b := NewParameterBuilder("Users", userSchema, nil)
	require.NoError(t, b.Select("Age", "UserName", "UserName"))

	ua, err := a.GetFullURI()
	require.NoError(t, err)
	ub, err := b.GetFullURI()
	require.NoError(t, err)
	assert.Equal(t, ua, ub)
	assert.Equal(t, "Users?$select=Age,userName", ua)

	err = a.Select("Missing")
	assert.ErrorIs(t, err, filter.ErrType)
}

func TestExpandValidatesNavigation(t *testing.T) {
	pb := NewParameterBuilder("Users", userSchema, nil)
	assert.ErrorIs(t, pb.Expand("Age"), filter.ErrType)
	assert.ErrorIs(t, pb.Expand("Nope"), filter.ErrType)
	assert.ErrorIs(t, pb.Expand("Orders/Sku"), filter.ErrType)
	require.NoError(t, pb.Expand("/Orders/"))
	uri, err := pb.GetFullURI()
	require.NoError(t, err)
	assert.Equal(t, "Users?$expand=Orders", uri)
}

func TestEscapeValue(t *testing.T) {
	assert.Equal(t, "a%20b", EscapeValue("a b"))
	assert.Equal(t, "'x'(),:/$", EscapeValue("'x'(),:/$"))
	assert.Equal(t, "%26%3D%23%3F%2B%25", EscapeValue("&=#?+%"))
	assert.Equal(t, "%C3%A9", EscapeValue("é"))
}
