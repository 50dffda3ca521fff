package document

import (
	"fmt"

	"github.com/valyala/fastjson"
)

// ParseClientJSON parses a JSON body into a client mapping suitable for
// Load and Update. Unlike encoding/json it keeps integral numbers as
// int64 instead of widening everything to float64, so an int field fed
// from JSON does not need a lossy float round trip.
func ParseClientJSON(data []byte) (map[string]any, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if v.Type() != fastjson.TypeObject {
		return nil, fmt.Errorf("expected a json object, got %s", v.Type())
	}
	out, err := jsonObject(v)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func jsonObject(v *fastjson.Value) (map[string]any, error) {
	obj, err := v.Object()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, obj.Len())
	obj.Visit(func(key []byte, item *fastjson.Value) {
		if err != nil {
			return
		}
		var converted any
		converted, err = jsonValue(item)
		if err != nil {
			err = fmt.Errorf("key %q: %w", key, err)
			return
		}
		out[string(key)] = converted
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func jsonValue(v *fastjson.Value) (any, error) {
	switch v.Type() {
	case fastjson.TypeObject:
		return jsonObject(v)
	case fastjson.TypeArray:
		items, err := v.Array()
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(items))
		for _, item := range items {
			converted, err := jsonValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	case fastjson.TypeString:
		b, err := v.StringBytes()
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case fastjson.TypeNumber:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		return v.Float64()
	case fastjson.TypeTrue:
		return true, nil
	case fastjson.TypeFalse:
		return false, nil
	case fastjson.TypeNull:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported json value type %s", v.Type())
	}
}
