package odataclient

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/robert-malhotra/go-odata-query/pkg/literal"
	"github.com/robert-malhotra/go-odata-query/pkg/schema"
)

// RecordDecoder deserializes OData v3 JSON payloads into records of Schema.
// It understands the verbose envelope ({"d":{"results":[...]}} and
// {"d":[...]}), the light envelope ({"value":[...]}), and bare arrays or
// objects.
type RecordDecoder struct {
	Schema *schema.Schema
}

// One decodes a single entity.
func (d RecordDecoder) One(data []byte) (*schema.Record, error) {
	body, _, err := unwrap(data)
	if err != nil {
		return nil, err
	}
	if arr, ok := body.([]any); ok {
		if len(arr) != 1 {
			return nil, fmt.Errorf("odataclient: expected one entity, got %d", len(arr))
		}
		body = arr[0]
	}
	return d.record(body)
}

// Many decodes an entity set.
func (d RecordDecoder) Many(data []byte) ([]*schema.Record, error) {
	body, _, err := unwrap(data)
	if err != nil {
		return nil, err
	}
	arr, ok := body.([]any)
	if !ok {
		if body == nil {
			return nil, nil
		}
		arr = []any{body}
	}
	out := make([]*schema.Record, 0, len(arr))
	for i, item := range arr {
		rec, err := d.record(item)
		if err != nil {
			return nil, fmt.Errorf("odataclient: entity %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// NextLink returns the server-driven paging link of an entity set payload,
// or "" on the last page.
func (d RecordDecoder) NextLink(data []byte) string {
	_, next, err := unwrap(data)
	if err != nil {
		return ""
	}
	return next
}

func (d RecordDecoder) record(v any) (*schema.Record, error) {
	if d.Schema == nil {
		return nil, fmt.Errorf("odataclient: decoder has no schema")
	}
	out, err := literal.Coerce(v, schema.ObjectOf(d.Schema))
	if err != nil {
		return nil, err
	}
	rec, ok := out.(*schema.Record)
	if !ok {
		return nil, fmt.Errorf("odataclient: expected object, got %T", v)
	}
	return rec, nil
}

// unwrap strips the response envelope and returns the entity payload and
// any next link.
func unwrap(data []byte) (any, string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, "", fmt.Errorf("odataclient: decode: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return v, "", nil
	}
	if inner, ok := obj["d"]; ok {
		m, ok := inner.(map[string]any)
		if !ok {
			return inner, "", nil
		}
		if results, ok := m["results"]; ok {
			next, _ := m["__next"].(string)
			return results, next, nil
		}
		return m, "", nil
	}
	if value, ok := obj["value"]; ok {
		if _, isArr := value.([]any); isArr {
			next, _ := obj["odata.nextLink"].(string)
			return value, next, nil
		}
	}
	return obj, "", nil
}
