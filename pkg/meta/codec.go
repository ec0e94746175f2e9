package meta

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mesh-intelligence/entitymeta/pkg/types"
)

// maxExactFloat is the largest integer magnitude a float64 holds exactly.
const maxExactFloat = 1 << 53

// EncodeIfEncodable JSON-encodes structured values and passes scalars
// through unchanged. Structured means a map, slice, array or struct, a
// non-nil pointer to one, or a json.Marshaler. time.Time and []byte count
// as scalars. A nil map encodes as {} and a nil slice as [].
func EncodeIfEncodable(value any) (any, error) {
	if !isStructured(value) {
		return value, nil
	}
	if _, ok := value.(json.Marshaler); !ok {
		if empty, ok := emptyContainer(value); ok {
			return empty, nil
		}
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrUnencodable, err)
	}
	return string(b), nil
}

func isStructured(value any) bool {
	switch value.(type) {
	case nil, time.Time, *time.Time, []byte:
		return false
	case json.Marshaler:
		return true
	}
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return true
	}
	return false
}

// emptyContainer reports the JSON text for a nil map or slice, following
// pointers.
func emptyContainer(value any) (string, bool) {
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	switch {
	case rv.Kind() == reflect.Map && rv.IsNil():
		return "{}", true
	case rv.Kind() == reflect.Slice && rv.IsNil():
		return "[]", true
	}
	return "", false
}

// DecodeIfJSON returns the parsed structure when value is a string holding
// a JSON object or array, and value unchanged otherwise. Objects decode to
// map[string]any and arrays to []any. Malformed JSON and invalid UTF-8 are
// not errors.
//
// Numbers decode to float64. An integer too large for a float64 to hold
// exactly decodes to json.Number so its digits survive.
//
// A plain string that happens to be valid JSON for a container, such as
// `{"a":1}`, is read back as structured data.
func DecodeIfJSON(value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	t := strings.TrimSpace(s)
	if t == "" || (t[0] != '{' && t[0] != '[') || !utf8.ValidString(t) {
		return value
	}
	dec := json.NewDecoder(strings.NewReader(t))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return value
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return value
	}
	switch decoded.(type) {
	case map[string]any, []any:
		return normalizeNumbers(decoded)
	}
	return value
}

// normalizeNumbers replaces each json.Number in v with a float64 where
// the conversion is exact.
func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = normalizeNumbers(e)
		}
	case []any:
		for i, e := range x {
			x[i] = normalizeNumbers(e)
		}
	case json.Number:
		return numberValue(x)
	}
	return v
}

func numberValue(n json.Number) any {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		if i > maxExactFloat || i < -maxExactFloat {
			return n
		}
		return float64(i)
	}
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		// Integer literal outside int64.
		return n
	}
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) {
		return n
	}
	return f
}

// DecodeInto unmarshals a stored value into dst, a pointer to any Go value.
// A value that is not JSON is assigned verbatim when dst is a *string;
// otherwise ErrTypeMismatch is returned.
func DecodeInto(value string, dst any) error {
	err := json.Unmarshal([]byte(value), dst)
	if err == nil {
		return nil
	}
	if sp, ok := dst.(*string); ok {
		*sp = value
		return nil
	}
	return fmt.Errorf("%w: %w", types.ErrTypeMismatch, err)
}

// toColumn renders an encoded value as the text stored in the value
// column. nil and nil pointers stay NULL. Pointers are followed before
// the value is rendered.
func toColumn(value any) (*string, error) {
	if value == nil {
		return nil, nil
	}
	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		return toColumn(rv.Elem().Interface())
	}
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case time.Time:
		s = v.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		s = v.String()
	default:
		rv := reflect.ValueOf(value)
		switch rv.Kind() {
		case reflect.String:
			s = rv.String()
		case reflect.Bool:
			s = "0"
			if rv.Bool() {
				s = "1"
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			s = strconv.FormatInt(rv.Int(), 10)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			s = strconv.FormatUint(rv.Uint(), 10)
		case reflect.Float32:
			s = strconv.FormatFloat(rv.Float(), 'g', -1, 32)
		case reflect.Float64:
			s = strconv.FormatFloat(rv.Float(), 'g', -1, 64)
		default:
			return nil, fmt.Errorf("%w: unsupported %T", types.ErrUnencodable, value)
		}
	}
	return &s, nil
}

// decodeRecord applies DecodeIfJSON to a stored record. NULL decodes to nil.
func decodeRecord(rec *types.Record) any {
	if rec.Value == nil {
		return nil
	}
	return DecodeIfJSON(*rec.Value)
}

// TypeName returns a stable discriminator for the dynamic type of v: the
// import path and name of the type, with pointers removed. Unnamed types
// fall back to their Go syntax.
func TypeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" || t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}
