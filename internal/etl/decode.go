package etl

import (
	"bytes"
	"errors"
	"fmt"
	"log"

	"github.com/buger/jsonparser"
)

// ── Decoding ───────────────────────────────────────────────
// JSON → Value without going through map[string]any, so field
// declaration order survives into the discovered column order.

// ErrNoValues is returned when a document holds neither a "values"
// array nor a top-level array.
var ErrNoValues = errors.New("JSON must contain a 'values' array or be a top-level array")

// ParseValue decodes a single JSON value of the given jsonparser type.
// For strings, data is the raw (still escaped) content between the quotes,
// as handed out by jsonparser.
func ParseValue(data []byte, typ jsonparser.ValueType) (Value, error) {
	switch typ {
	case jsonparser.String:
		s, err := jsonparser.ParseString(data)
		if err != nil {
			return Value{}, fmt.Errorf("parse string: %w", err)
		}
		return Text(s), nil
	case jsonparser.Number:
		return Number(string(data)), nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(data)
		if err != nil {
			return Value{}, fmt.Errorf("parse boolean: %w", err)
		}
		return Bool(b), nil
	case jsonparser.Null:
		return Null(), nil
	case jsonparser.Array:
		items, err := parseArray(data)
		if err != nil {
			return Value{}, err
		}
		return List(items...), nil
	case jsonparser.Object:
		obj, err := ParseObject(data)
		if err != nil {
			return Value{}, err
		}
		return ObjectValue(obj), nil
	default:
		return Value{}, fmt.Errorf("unexpected json value %q", truncate(data, 32))
	}
}

// ParseObject decodes a JSON object, keeping field order.
func ParseObject(data []byte) (*Object, error) {
	obj := NewObject()
	err := jsonparser.ObjectEach(data, func(key, value []byte, typ jsonparser.ValueType, _ int) error {
		v, err := ParseValue(value, typ)
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		obj.Set(string(key), v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse object: %w", err)
	}
	return obj, nil
}

func parseArray(data []byte) ([]Value, error) {
	var (
		items   []Value
		itemErr error
	)
	_, err := jsonparser.ArrayEach(data, func(value []byte, typ jsonparser.ValueType, _ int, err error) {
		if itemErr != nil {
			return
		}
		if err != nil {
			itemErr = err
			return
		}
		v, err := ParseValue(value, typ)
		if err != nil {
			itemErr = fmt.Errorf("item %d: %w", len(items), err)
			return
		}
		items = append(items, v)
	})
	if itemErr != nil {
		return nil, itemErr
	}
	if err != nil {
		return nil, fmt.Errorf("parse array: %w", err)
	}
	return items, nil
}

// DecodeRecords decodes a JSON array of record objects. When keys are
// given the array is looked up at that path first (e.g. "values").
// Array items that are not objects are skipped.
func DecodeRecords(data []byte, keys ...string) ([]Record, error) {
	raw, typ, _, err := jsonparser.Get(data, keys...)
	if err != nil {
		if errors.Is(err, jsonparser.KeyPathNotFoundError) {
			return nil, ErrNoValues
		}
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if typ != jsonparser.Array {
		return nil, ErrNoValues
	}

	items, err := parseArray(raw)
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	records := make([]Record, 0, len(items))
	skipped := 0
	for _, item := range items {
		obj, ok := item.Object()
		if !ok {
			skipped++
			continue
		}
		records = append(records, Record{Object: obj})
	}
	if skipped > 0 {
		log.Printf("etl decode: skipped %d non-object item(s)", skipped)
	}
	return records, nil
}

// DecodeSnapshot decodes a snapshot document: either {"values": [...]}
// or a top-level array of records.
func DecodeSnapshot(data []byte) ([]Record, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return DecodeRecords(trimmed)
	}
	return DecodeRecords(trimmed, "values")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
