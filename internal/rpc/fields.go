package rpc

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// String returns the string field key of s, or "".
func String(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// Bool returns the bool field key of s, or false.
func Bool(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

// Int returns the numeric field key of s as an int. Non-integral numbers are
// rejected.
func Int(s *structpb.Struct, key string) (int, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return 0, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("field %s is not a number", key)
	}
	f := n.NumberValue
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("field %s is out of range", key)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("field %s is not an integer", key)
	}
	return int(f), nil
}

// Structs returns the list field key of s as structs, skipping other kinds.
func Structs(s *structpb.Struct, key string) []*structpb.Struct {
	values := s.GetFields()[key].GetListValue().GetValues()
	out := make([]*structpb.Struct, 0, len(values))
	for _, v := range values {
		if st := v.GetStructValue(); st != nil {
			out = append(out, st)
		}
	}
	return out
}

// StructList returns the list field key of s. A missing field yields nil; a
// non-list value or a non-object element is an error.
func StructList(s *structpb.Struct, key string) ([]*structpb.Struct, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return nil, nil
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, nil
	}
	list, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, fmt.Errorf("field %s is not a list", key)
	}
	values := list.ListValue.GetValues()
	out := make([]*structpb.Struct, 0, len(values))
	for i, el := range values {
		st := el.GetStructValue()
		if st == nil {
			return nil, fmt.Errorf("%s[%d]: not an object", key, i)
		}
		out = append(out, st)
	}
	return out, nil
}

// Ints returns the list field key of s as ints.
func Ints(s *structpb.Struct, key string) []int {
	values := s.GetFields()[key].GetListValue().GetValues()
	out := make([]int, 0, len(values))
	for _, v := range values {
		out = append(out, int(v.GetNumberValue()))
	}
	return out
}

// Time parses an RFC 3339 timestamp field; missing or malformed yields zero.
func Time(s *structpb.Struct, key string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, String(s, key))
	return t
}

// FormatTime renders t for a Struct field.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// IntList converts ints to the []any form structpb accepts.
func IntList(in []int) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
