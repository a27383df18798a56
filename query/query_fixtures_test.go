package query

import (
	"github.com/robert-malhotra/go-odata-query/pkg/schema"
)

var (
	orderSchema = schema.MustNew("Order",
		schema.Field{Name: "Sku", WireName: "sku", Type: schema.Of(schema.String)},
		schema.Field{Name: "Qty", Type: schema.Of(schema.Int32)},
	)
	userSchema = schema.MustNew("User",
		schema.Field{Name: "UserName", WireName: "userName", Type: schema.Of(schema.String)},
		schema.Field{Name: "Age", Type: schema.Of(schema.Int32)},
		schema.Field{Name: "Score", Type: schema.NullableOf(schema.Double)},
		schema.Field{Name: "Orders", Type: schema.CollectionOf(schema.ObjectOf(orderSchema))},
	)
)

func user(name string, age int32) *schema.Record {
	return schema.NewRecord(userSchema).MustSet("UserName", name).MustSet("Age", age)
}

func order(sku string, qty int32) *schema.Record {
	return schema.NewRecord(orderSchema).MustSet("Sku", sku).MustSet("Qty", qty)
}

// people is the shared fixture; erin ties bob on Age.
func people() []*schema.Record {
	return []*schema.Record{
		user("bob", 20).MustSet("Score", 2.5).MustSet("Orders", []any{order("a1", 1), order("b5", 5)}),
		user("alice", 10).MustSet("Orders", []any{}),
		user("carol", 30).MustSet("Score", 9.0).MustSet("Orders", []any{order("c2", 2)}),
		user("dave", 4).MustSet("Orders", []any{}),
		user("erin", 20).MustSet("Orders", []any{order("e7", 7)}),
	}
}

func names(items []*schema.Record) []string {
	out := make([]string, len(items))
	for i, it := range items {
		v, _ := it.Get("UserName")
		out[i], _ = v.(string)
	}
	return out
}

func getters(items []*schema.Record) []schema.Getter {
	out := make([]schema.Getter, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out
}
