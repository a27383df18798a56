package literal

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-odata-query/pkg/schema"
)

var perms = &schema.EnumType{Name: "Perm", Flags: true, Members: []schema.EnumMember{
	{Name: "None", Value: 0},
	{Name: "Read", Value: 1},
	{Name: "Write", Value: 2},
}}

func TestWrite(t *testing.T) {
	id := uuid.MustParse("3f2504e0-4f89-11d3-9a0c-0305e82c3301")
	when := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		v    any
		typ  schema.Type
		want string
	}{
		{"bool", true, schema.Of(schema.Bool), "true"},
		{"int32", int32(-7), schema.Of(schema.Int32), "-7"},
		{"int64", int64(42), schema.Of(schema.Int64), "42L"},
		{"single", float32(1.5), schema.Of(schema.Single), "1.5f"},
		{"double integral", 2.0, schema.Of(schema.Double), "2.0"},
		{"double large", 1e25, schema.Of(schema.Double), "1E+25"},
		{"decimal", apd.New(15, -1), schema.Of(schema.Decimal), "1.5M"},
		{"binary", []byte{0x0a, 0xff}, schema.Of(schema.Binary), "X'0aff'"},
		{"guid", id, schema.Of(schema.Guid), "guid'3f2504e0-4f89-11d3-9a0c-0305e82c3301'"},
		{"datetime", when, schema.Of(schema.DateTime), "datetime'2020-01-02T03:04:05'"},
		{"datetimeoffset", when, schema.Of(schema.DateTimeOffset), "datetimeoffset'2020-01-02T03:04:05Z'"},
		{"time", 90 * time.Minute, schema.Of(schema.Time), "time'PT1H30M'"},
		{"time with days", 26*time.Hour + 4500*time.Millisecond, schema.Of(schema.Time), "time'P1DT2H4.5S'"},
		{"zero time", time.Duration(0), schema.Of(schema.Time), "time'PT0S'"},
		{"flags", int64(3), schema.EnumOf(perms), "'Read, Write'"},
		{"string escaping", "O'Brien", schema.Of(schema.String), "'O''Brien'"},
		{"null", nil, schema.NullableOf(schema.String), "null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Write(tt.v, tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteRejectsWrongGoType(t *testing.T) {
	_, err := Write("nope", schema.Of(schema.Int32))
	require.Error(t, err)

	var lerr *Error
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, schema.Int32, lerr.Kind)
	assert.Equal(t, "nope", lerr.Text)
}

func TestReadRoundTrip(t *testing.T) {
	values := []struct {
		v   any
		typ schema.Type
	}{
		{int8(-3), schema.Of(schema.SByte)},
		{uint8(200), schema.Of(schema.Byte)},
		{int16(1234), schema.Of(schema.Int16)},
		{int64(1) << 40, schema.Of(schema.Int64)},
		{float32(0.25), schema.Of(schema.Single)},
		{3.125, schema.Of(schema.Double)},
		{[]byte("hi"), schema.Of(schema.Binary)},
		{uuid.MustParse("3f2504e0-4f89-11d3-9a0c-0305e82c3301"), schema.Of(schema.Guid)},
		{-(3*time.Hour + 2*time.Second), schema.Of(schema.Time)},
		{"it's (and) or", schema.Of(schema.String)},
		{int64(2), schema.EnumOf(perms)},
	}
	for _, tt := range values {
		text, err := Write(tt.v, tt.typ)
		require.NoError(t, err)
		got, err := Read(text, tt.typ)
		require.NoError(t, err, text)
		assert.Equal(t, tt.v, got, text)
	}

	when := time.Date(2021, 6, 7, 8, 9, 10, 123000000, time.FixedZone("", 2*3600))
	text, err := Write(when, schema.Of(schema.DateTimeOffset))
	require.NoError(t, err)
	got, err := Read(text, schema.Of(schema.DateTimeOffset))
	require.NoError(t, err)
	assert.True(t, when.Equal(got.(time.Time)))

	text, err = Write(apd.New(-12345, -3), schema.Of(schema.Decimal))
	require.NoError(t, err)
	assert.Equal(t, "-12.345M", text)
	got, err = Read(text, schema.Of(schema.Decimal))
	require.NoError(t, err)
	assert.Equal(t, 0, got.(*apd.Decimal).Cmp(apd.New(-12345, -3)))
}

func TestReadVariants(t *testing.T) {
	v, err := Read("42", schema.Of(schema.Int64))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = Read(`"double ""quoted"""`, schema.Of(schema.String))
	require.NoError(t, err)
	assert.Equal(t, `double "quoted"`, v)

	v, err = Read("binary'0aff'", schema.Of(schema.Binary))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0a, 0xff}, v)

	v, err = Read("3f2504e0-4f89-11d3-9a0c-0305e82c3301", schema.Of(schema.Guid))
	require.NoError(t, err)
	assert.Equal(t, uuid.MustParse("3f2504e0-4f89-11d3-9a0c-0305e82c3301"), v)

	v, err = Read("datetime'2020-01-02T03:04'", schema.Of(schema.DateTime))
	require.NoError(t, err)
	assert.True(t, time.Date(2020, 1, 2, 3, 4, 0, 0, time.UTC).Equal(v.(time.Time)))

	v, err = Read("Ns.Perm'Read, Write'", schema.EnumOf(perms))
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	v, err = Read("null", schema.NullableOf(schema.Int32))
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = Read("TRUE", schema.Of(schema.Bool))
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		text string
		typ  schema.Type
	}{
		{"'unterminated", schema.Of(schema.String)},
		{"'a'b'", schema.Of(schema.String)},
		{"300", schema.Of(schema.Byte)},
		{"2020-01-02", schema.Of(schema.DateTime)},
		{"time'P1Y'", schema.Of(schema.Time)},
		{"time'PT'", schema.Of(schema.Time)},
		{"'Execute'", schema.EnumOf(perms)},
		{"maybe", schema.Of(schema.Bool)},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, err := Read(tt.text, tt.typ)
			require.Error(t, err)
			var lerr *Error
			require.True(t, errors.As(err, &lerr))
			assert.Equal(t, tt.text, lerr.Text)
		})
	}
}

func TestInfer(t *testing.T) {
	tests := []struct {
		text string
		kind schema.Kind
		want any
	}{
		{"42", schema.Int32, int32(42)},
		{"-3", schema.Int32, int32(-3)},
		{"5000000000", schema.Int64, int64(5000000000)},
		{"42L", schema.Int64, int64(42)},
		{"1.5", schema.Double, 1.5},
		{"1.5d", schema.Double, 1.5},
		{"1.5f", schema.Single, float32(1.5)},
		{"false", schema.Bool, false},
		{"'bob'", schema.String, "bob"},
		{"Ns.Perm'Read'", schema.String, "Read"},
		{"time'PT5M'", schema.Time, 5 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			v, typ, err := Infer(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, typ.Kind)
			assert.Equal(t, tt.want, v)
		})
	}

	v, typ, err := Infer("2.50M")
	require.NoError(t, err)
	assert.Equal(t, schema.Decimal, typ.Kind)
	assert.Equal(t, "2.50", v.(*apd.Decimal).String())

	v, typ, err = Infer("null")
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.True(t, typ.Nullable)

	_, _, err = Infer("Age")
	require.Error(t, err)
}

func TestTypeOf(t *testing.T) {
	typ, ok := TypeOf(7)
	require.True(t, ok)
	assert.Equal(t, schema.Int32, typ.Kind)

	typ, ok = TypeOf(int64(7))
	require.True(t, ok)
	assert.Equal(t, schema.Int64, typ.Kind)

	_, ok = TypeOf(struct{}{})
	assert.False(t, ok)

	s, err := WriteValue("x")
	require.NoError(t, err)
	assert.Equal(t, "'x'", s)
}

func TestCoerceRecord(t *testing.T) {
	child := schema.MustNew("Child", schema.Field{Name: "Name", Type: schema.Of(schema.String)})
	user := schema.MustNew("User",
		schema.Field{Name: "UserName", WireName: "userName", Type: schema.Of(schema.String)},
		schema.Field{Name: "Age", Type: schema.Of(schema.Int32)},
		schema.Field{Name: "Joined", Type: schema.NullableOf(schema.DateTime)},
		schema.Field{Name: "Balance", Type: schema.Of(schema.Decimal)},
		schema.Field{Name: "Role", Type: schema.EnumOf(perms)},
		schema.Field{Name: "Children", Type: schema.CollectionOf(schema.ObjectOf(child))},
		schema.Field{Name: "Manager", Type: schema.ObjectOf(child)},
	)

	var raw map[string]any
	dec := json.NewDecoder(strings.NewReader(`{
		"__metadata": {"uri": "Users(1)"},
		"userName": "bob",
		"Age": 20,
		"Joined": "/Date(1577934245000)/",
		"Balance": "10.25",
		"Role": "Read, Write",
		"Children": {"results": [{"Name": "ann"}, {"Name": "joe"}]},
		"Manager": {"__deferred": {"uri": "Users(1)/Manager"}},
		"Unknown": 1
	}`))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&raw))

	v, err := Coerce(raw, schema.ObjectOf(user))
	require.NoError(t, err)
	rec := v.(*schema.Record)

	assert.Equal(t, []string{"UserName", "Age", "Joined", "Balance", "Role", "Children"}, rec.Keys())
	age, _ := rec.Get("Age")
	assert.Equal(t, int32(20), age)
	joined, _ := rec.Get("Joined")
	assert.True(t, time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC).Equal(joined.(time.Time)))
	role, _ := rec.Get("Role")
	assert.Equal(t, int64(3), role)
	balance, _ := rec.Get("Balance")
	assert.Equal(t, "10.25", balance.(*apd.Decimal).String())

	children, _ := rec.Get("Children")
	require.Len(t, children, 2)
	name, _ := children.([]any)[1].(*schema.Record).Get("Name")
	assert.Equal(t, "joe", name)

	_, err = Coerce(map[string]any{"Age": "old"}, schema.ObjectOf(user))
	require.Error(t, err)
	_, err = Coerce(int64(1)<<40, schema.Of(schema.Int32))
	require.Error(t, err)
}
