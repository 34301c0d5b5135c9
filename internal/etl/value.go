package etl

import (
	"strconv"
	"strings"
)

// ── Value ──────────────────────────────────────────────────
// Tagged value for loosely-typed catalog records.
// Every consumer renders values through Text(), so discovery,
// flattening and the encoders agree on one textual form.

// Kind identifies which member of the Value union is set.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindNull
	KindText
	KindNumber
	KindBool
	KindList
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindList:
		return "list"
	case KindObject:
		return "object"
	default:
		return "absent"
	}
}

// Value is one field value of a raw record. The zero Value is absent.
type Value struct {
	kind  Kind
	str   string // text, or the JSON literal of a number
	b     bool
	items []Value
	obj   *Object
}

func Null() Value               { return Value{kind: KindNull} }
func Text(s string) Value       { return Value{kind: KindText, str: s} }
func Number(lit string) Value   { return Value{kind: KindNumber, str: lit} }
func Bool(b bool) Value         { return Value{kind: KindBool, b: b} }
func List(items ...Value) Value { return Value{kind: KindList, items: items} }

// ObjectValue wraps an object as a Value.
func ObjectValue(o *Object) Value {
	if o == nil {
		o = NewObject()
	}
	return Value{kind: KindObject, obj: o}
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// Items returns the elements of a list value; nil for every other kind.
func (v Value) Items() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.items
}

// Object returns the object of an object value.
func (v Value) Object() (*Object, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// Text renders the value as a table cell.
//
// Absent, null, lists and objects render as "". Strings are sanitized and
// trimmed, booleans render as "true"/"false", and numbers drop redundant
// formatting ("1.50" -> "1.5", "1e3" -> "1000").
func (v Value) Text() string {
	switch v.kind {
	case KindText:
		return sanitize(strings.TrimSpace(v.str))
	case KindNumber:
		return formatNumber(v.str)
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// sanitize drops control characters except TAB and LF; NUL becomes a
// space. CR LF and lone CR become LF, since CSV readers fold CR LF inside
// a quoted field and the cell would not read back unchanged.
func sanitize(s string) string {
	if strings.IndexByte(s, '\r') >= 0 {
		s = strings.ReplaceAll(s, "\r\n", "\n")
		s = strings.ReplaceAll(s, "\r", "\n")
	}
	clean := true
	for i := 0; i < len(s); i++ {
		if c := s[i]; c < ' ' && c != '\t' && c != '\n' {
			clean = false
			break
		}
	}
	if clean {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == 0:
			b.WriteByte(' ')
		case r < ' ' && r != '\t' && r != '\n':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// formatNumber canonicalizes a JSON number literal.
// Integer literals are kept verbatim so values beyond float64 precision survive.
func formatNumber(lit string) string {
	lit = strings.TrimSpace(lit)
	if lit == "" {
		return ""
	}
	if !strings.ContainsAny(lit, ".eE") {
		if lit == "-0" {
			return "0"
		}
		return lit
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return lit
	}
	if f == 0 {
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ── Object ─────────────────────────────────────────────────

// Field is one named member of an Object.
type Field struct {
	Name  string
	Value Value
}

// Object is a JSON object that remembers field declaration order.
// A repeated key keeps its first position and its last value.
type Object struct {
	fields []Field
	index  map[string]int
}

// NewObject builds an object from fields in the given order.
func NewObject(fields ...Field) *Object {
	o := &Object{index: make(map[string]int, len(fields))}
	for _, f := range fields {
		o.Set(f.Name, f.Value)
	}
	return o
}

// Set adds or replaces a field.
func (o *Object) Set(name string, v Value) {
	if o.index == nil {
		o.index = make(map[string]int)
	}
	if i, ok := o.index[name]; ok {
		o.fields[i].Value = v
		return
	}
	o.index[name] = len(o.fields)
	o.fields = append(o.fields, Field{Name: name, Value: v})
}

// Get returns the named field, or an absent Value.
func (o *Object) Get(name string) Value {
	if o == nil {
		return Value{}
	}
	if i, ok := o.index[name]; ok {
		return o.fields[i].Value
	}
	return Value{}
}

// First returns the first of names that is present and not null.
func (o *Object) First(names ...string) Value {
	for _, n := range names {
		if v := o.Get(n); v.kind != KindAbsent && v.kind != KindNull {
			return v
		}
	}
	return Value{}
}

// Fields returns the fields in declaration order. Callers must not modify it.
func (o *Object) Fields() []Field {
	if o == nil {
		return nil
	}
	return o.fields
}

func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.fields)
}
