package etl_test

import (
	"errors"
	"reflect"
	"testing"

	"swissdamed/internal/etl"
)

// ─────────────────────────────────────────────────────────────
// Value rendering
// ─────────────────────────────────────────────────────────────

func TestValue_Text(t *testing.T) {
	tests := []struct {
		name string
		v    etl.Value
		want string
	}{
		{"absent", etl.Value{}, ""},
		{"null", etl.Null(), ""},
		{"text trimmed", etl.Text("  hello \n"), "hello"},
		{"control chars", etl.Text("a\x01b\x00c\td"), "ab c\td"},
		{"crlf folded", etl.Text("one\r\ntwo\rthree"), "one\ntwo\nthree"},
		{"integer", etl.Number("42"), "42"},
		{"big integer", etl.Number("12345678901234567890"), "12345678901234567890"},
		{"negative zero", etl.Number("-0"), "0"},
		{"decimal", etl.Number("1.50"), "1.5"},
		{"exponent", etl.Number("1e3"), "1000"},
		{"zero float", etl.Number("0.0"), "0"},
		{"true", etl.Bool(true), "true"},
		{"false", etl.Bool(false), "false"},
		{"list", etl.List(etl.Text("x")), ""},
		{"object", etl.ObjectValue(nil), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestObject_SetKeepsFirstPosition(t *testing.T) {
	obj := etl.NewObject(
		etl.Field{Name: "a", Value: etl.Text("1")},
		etl.Field{Name: "b", Value: etl.Text("2")},
		etl.Field{Name: "a", Value: etl.Text("3")},
	)
	if obj.Len() != 2 {
		t.Fatalf("len = %d, want 2", obj.Len())
	}
	if got := obj.Fields()[0]; got.Name != "a" || got.Value.Text() != "3" {
		t.Fatalf("first field = %s=%q", got.Name, got.Value.Text())
	}
}

func TestObject_First(t *testing.T) {
	obj := etl.NewObject(
		etl.Field{Name: "language", Value: etl.Null()},
		etl.Field{Name: "lang", Value: etl.Text("de")},
	)
	if got := obj.First("language", "lang").Text(); got != "de" {
		t.Fatalf("First = %q, want de", got)
	}
	if !obj.First("missing").IsAbsent() {
		t.Fatal("expected absent value")
	}
}

// ─────────────────────────────────────────────────────────────
// JSON decoding
// ─────────────────────────────────────────────────────────────

func TestDecodeSnapshot_ValuesEnvelope(t *testing.T) {
	doc := []byte(`{"total": 2, "values": [
		{"z": "first", "a": 1, "udiDis": [{"udiDiCode": "X", "tradeNames": [{"language": "en", "textValue": "N"}]}]},
		{"a": 2.50, "flag": false}
	]}`)
	records, err := etl.DecodeSnapshot(doc)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}

	var names []string
	for _, f := range records[0].Fields() {
		names = append(names, f.Name)
	}
	if !reflect.DeepEqual(names, []string{"z", "a", "udiDis"}) {
		t.Fatalf("field order = %v", names)
	}
	if got := records[1].Get("a").Text(); got != "2.5" {
		t.Fatalf("a = %q, want 2.5", got)
	}
	if got := records[1].Get("flag").Kind(); got != etl.KindBool {
		t.Fatalf("flag kind = %v", got)
	}

	table := etl.BuildTable(records)
	want := []string{"z", "a", "flag", "udiDiCode", "tradeName_en"}
	if got := table.Header(); !reflect.DeepEqual(got, want) {
		t.Fatalf("header = %v, want %v", got, want)
	}
}

func TestDecodeSnapshot_TopLevelArray(t *testing.T) {
	doc := []byte("\ufeff  [{\"a\": \"caf\\u00e9\"}, 3, {\"b\": null}]")
	records, err := etl.DecodeSnapshot(doc)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2 (non-objects skipped)", len(records))
	}
	if got := records[0].Get("a").Text(); got != "café" {
		t.Fatalf("a = %q", got)
	}
	if got := records[1].Get("b").Kind(); got != etl.KindNull {
		t.Fatalf("b kind = %v, want null", got)
	}
}

func TestDecodeSnapshot_NoValues(t *testing.T) {
	for _, doc := range []string{`{"items": []}`, `{"values": {"a": 1}}`} {
		if _, err := etl.DecodeSnapshot([]byte(doc)); !errors.Is(err, etl.ErrNoValues) {
			t.Errorf("%s: err = %v, want ErrNoValues", doc, err)
		}
	}
}

func TestDecodeSnapshot_Malformed(t *testing.T) {
	if _, err := etl.DecodeSnapshot([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestDecodeRecords_Path(t *testing.T) {
	records, err := etl.DecodeRecords([]byte(`{"content": [{"id": 1}]}`), "content")
	if err != nil {
		t.Fatalf("DecodeRecords: %v", err)
	}
	if len(records) != 1 || records[0].Get("id").Text() != "1" {
		t.Fatalf("unexpected records: %+v", records)
	}
}
