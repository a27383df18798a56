package projection

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-odata-query/pkg/schema"
)

var userSchema = schema.MustNew("User",
	schema.Field{Name: "UserName", WireName: "userName", Type: schema.Of(schema.String)},
	schema.Field{Name: "Age", Type: schema.Of(schema.Int32)},
	schema.Field{Name: "Email", Type: schema.NullableOf(schema.String)},
)

func TestGetOrCreate(t *testing.T) {
	c := NewCache()

	a, err := c.GetOrCreate(userSchema, []string{"UserName", "Age"})
	require.NoError(t, err)
	b, err := c.GetOrCreate(userSchema, []string{"Age", "UserName", "Age"})
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, c.Len())

	assert.Equal(t, "Age,UserName", a.Key())
	assert.Equal(t, []string{"Age", "userName"}, a.WireNames(nil))
	assert.Same(t, userSchema, a.Source())
	assert.Equal(t, []string{"Age", "UserName"}, a.Schema().Names())

	f, ok := a.Schema().Field("UserName")
	require.True(t, ok)
	assert.Equal(t, "userName", f.Wire())

	email, err := c.GetOrCreate(userSchema, []string{"email"})
	require.NoError(t, err)
	require.Len(t, email.Fields(nil), 1)
	assert.True(t, email.Fields(nil)[0].Source.Type.Nullable)
	assert.Equal(t, 2, c.Len())
}

func TestGetOrCreateErrors(t *testing.T) {
	c := NewCache()
	_, err := c.GetOrCreate(userSchema, nil)
	assert.ErrorIs(t, err, ErrNoFields)

	_, err = c.GetOrCreate(userSchema, []string{" ", ""})
	assert.ErrorIs(t, err, ErrNoFields)

	_, err = c.GetOrCreate(userSchema, []string{"Missing"})
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestSourceIdentityIsPartOfKey(t *testing.T) {
	c := NewCache()
	twin := schema.MustNew("User", userSchema.Fields()...)

	a, err := c.GetOrCreate(userSchema, []string{"Age"})
	require.NoError(t, err)
	b, err := c.GetOrCreate(twin, []string{"Age"})
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, c.Len())
}

func TestConcurrentFirstUse(t *testing.T) {
	c := NewCache()
	const n = 64
	got := make([]*Type, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fields := []string{"Age", "UserName"}
			if i%2 == 0 {
				fields = []string{"UserName", "Age"}
			}
			typ, err := c.GetOrCreate(userSchema, fields)
			if err == nil {
				got[i] = typ
			}
		}(i)
	}
	wg.Wait()

	for i := range got {
		require.NotNil(t, got[i])
		assert.Same(t, got[0], got[i])
	}
	assert.Equal(t, 1, c.Len())
}

func TestProject(t *testing.T) {
	typ, err := NewCache().GetOrCreate(userSchema, []string{"UserName"})
	require.NoError(t, err)

	rec := schema.NewRecord(userSchema).MustSet("UserName", "bob").MustSet("Age", int32(20))
	out := typ.Project(rec)
	assert.Equal(t, []string{"UserName"}, out.Keys())
	v, ok := out.Get("UserName")
	require.True(t, ok)
	assert.Equal(t, "bob", v)

	data, err := out.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"userName":"bob"}`, string(data))
}

type upperNames struct{}

func (upperNames) ResolveName(f schema.Field) string { return strings.ToUpper(f.Wire()) }

func TestFieldsUseResolver(t *testing.T) {
	typ, err := NewCache().GetOrCreate(userSchema, []string{"UserName", "Age"})
	require.NoError(t, err)

	assert.Equal(t, []string{"AGE", "USERNAME"}, typ.WireNames(upperNames{}))
	fields := typ.Fields(upperNames{})
	require.Len(t, fields, 2)
	assert.Equal(t, "UserName", fields[1].Source.Name)
	assert.Equal(t, "USERNAME", fields[1].ResolvedName)

	// The cached type is shared across resolvers.
	assert.Equal(t, []string{"Age", "userName"}, typ.WireNames(nil))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Normalize([]string{"b", "a", "b", " a "}))
	assert.Equal(t, Normalize([]string{"b", "a"}), Normalize([]string{"a", "b"}))
	assert.Empty(t, Normalize(nil))
}
