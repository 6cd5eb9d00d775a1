package record

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	perr "logrep/internal/platform/errors"

	json "github.com/goccy/go-json"
)

// Kind is the coerced type of a schema field
type Kind uint8

const (
	// KindAny keeps the decoded value as is
	KindAny Kind = iota
	// KindString coerces to string
	KindString
	// KindInt coerces to int64
	KindInt
	// KindFloat coerces to float64 (NaN becomes missing)
	KindFloat
	// KindBool coerces to bool
	KindBool
	// KindTime parses ISO-8601 into a UTC time.Time
	KindTime
	// KindList keeps JSON arrays
	KindList
)

// Field is one declared field
type Field struct {
	Name string
	Kind Kind
}

// Schema is the fixed, ordered field list of one endpoint
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema builds a schema; duplicate names keep the first declaration
func NewSchema(fields ...Field) Schema {
	s := Schema{index: make(map[string]int, len(fields))}
	for _, f := range fields {
		if _, dup := s.index[f.Name]; dup {
			continue
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s
}

// Fields returns the declared fields in order
func (s Schema) Fields() []Field { return append([]Field(nil), s.fields...) }

// Names returns the declared field names in order
func (s Schema) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// Has reports whether name is declared
func (s Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// With returns a copy extended by extra fields
func (s Schema) With(extra ...Field) Schema {
	return NewSchema(append(s.Fields(), extra...)...)
}

// Project keeps only declared fields of raw and coerces them to their kind.
// Values that cannot be coerced are dropped rather than failing the record
func (s Schema) Project(raw map[string]any) Record {
	out := make(Record, len(s.fields))
	for _, f := range s.fields {
		v, ok := raw[f.Name]
		if !ok || v == nil {
			continue
		}
		if cv, ok := coerce(v, f.Kind); ok {
			out[f.Name] = cv
		}
	}
	return out
}

// ProjectAll projects every raw object
func (s Schema) ProjectAll(raws []map[string]any) []Record {
	out := make([]Record, 0, len(raws))
	for _, r := range raws {
		out = append(out, s.Project(r))
	}
	return out
}

func coerce(v any, k Kind) (any, bool) {
	switch k {
	case KindString:
		switch x := v.(type) {
		case string:
			return x, true
		case json.Number:
			return x.String(), true
		case time.Time:
			return x.UTC().Format(time.RFC3339Nano), true
		case []any, map[string]any:
			b, err := json.Marshal(x)
			return string(b), err == nil
		default:
			return fmt.Sprint(x), true
		}
	case KindInt:
		switch x := v.(type) {
		case json.Number:
			if n, err := x.Int64(); err == nil {
				return n, true
			}
			f, err := x.Float64()
			return int64(f), err == nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
			return n, err == nil
		case float64:
			return int64(x), true
		case float32:
			return int64(x), true
		case int:
			return int64(x), true
		case int16:
			return int64(x), true
		case int32:
			return int64(x), true
		case int64:
			return x, true
		}
	case KindFloat:
		var f float64
		switch x := v.(type) {
		case json.Number:
			var err error
			if f, err = x.Float64(); err != nil {
				return nil, false
			}
		case string:
			var err error
			if f, err = strconv.ParseFloat(strings.TrimSpace(x), 64); err != nil {
				return nil, false
			}
		case float64:
			f = x
		case float32:
			f = float64(x)
		case int:
			f = float64(x)
		case int32:
			f = float64(x)
		case int64:
			f = float64(x)
		default:
			return nil, false
		}
		if math.IsNaN(f) {
			return nil, false
		}
		return f, true
	case KindBool:
		switch x := v.(type) {
		case bool:
			return x, true
		case string:
			b, err := strconv.ParseBool(x)
			return b, err == nil
		}
	case KindTime:
		switch x := v.(type) {
		case time.Time:
			return x.UTC(), true
		case string:
			t, err := ParseTime(x)
			return t, err == nil
		}
	case KindList:
		switch x := v.(type) {
		case []any:
			return x, true
		case []string:
			out := make([]any, len(x))
			for i, s := range x {
				out[i] = s
			}
			return out, true
		}
	case KindAny:
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				return i, true
			}
			f, err := n.Float64()
			return f, err == nil
		}
		return v, true
	}
	return nil, false
}

// DecodeObjects decodes a JSON array of objects, keeping numbers exact
func DecodeObjects(body []byte) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out []map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeJSON, "decode record page")
	}
	return out, nil
}

// DecodeValue decodes any JSON document, keeping numbers exact
func DecodeValue(body []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "decode upstream payload")
	}
	return nil
}
