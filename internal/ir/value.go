package ir

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
	"unicode/utf16"
)

// IRValue is a sealed interface representing constrained value types.
// Only IRNull, IRString, IRInt, IRBool, IRTime, IRArray and IRObject
// implement it. There is no float type.
type IRValue interface {
	irValue() // Sealed - only these types implement it
}

// IRNull represents SQL NULL / JSON null.
// Using an explicit type ensures all IRValues satisfy the sealed interface.
type IRNull struct{}

func (IRNull) irValue() {}

// MarshalJSON implements json.Marshaler for IRNull.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IRString represents a string value.
type IRString string

func (IRString) irValue() {}

// IRInt represents an integer value. Always int64.
type IRInt int64

func (IRInt) irValue() {}

// IRBool represents a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRTime represents a datetime value. Construct with NewIRTime so the
// wrapped time is in UTC; equality relies on that.
type IRTime struct {
	t time.Time
}

func (IRTime) irValue() {}

// Time returns the wrapped time.
func (v IRTime) Time() time.Time { return v.t }

// String returns the RFC 3339 (nanosecond) representation.
func (v IRTime) String() string { return v.t.Format(time.RFC3339Nano) }

// TimeLayout is the storage form of datetime columns. It is fixed width
// and always UTC, so text ordering in SQL matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// ParseTime parses a stored datetime. Any RFC 3339 form is accepted.
func ParseTime(s string) (IRTime, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return IRTime{}, fmt.Errorf("parse datetime %q: %w", s, err)
	}
	return NewIRTime(t), nil
}

// IRArray represents an array of IRValue elements.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject represents a map of string keys to IRValue elements.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// NewIRTime creates an IRTime normalized to UTC.
func NewIRTime(t time.Time) IRTime {
	return IRTime{t: t.UTC()}
}

// IsNull reports whether v is absent or IRNull.
func IsNull(v IRValue) bool {
	if v == nil {
		return true
	}
	_, ok := v.(IRNull)
	return ok
}

// Equal reports whether two values are equal. Arrays and objects compare
// element-wise; nil and IRNull are equal.
func Equal(a, b IRValue) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	switch av := a.(type) {
	case IRString:
		bv, ok := b.(IRString)
		return ok && av == bv
	case IRInt:
		bv, ok := b.(IRInt)
		return ok && av == bv
	case IRBool:
		bv, ok := b.(IRBool)
		return ok && av == bv
	case IRTime:
		bv, ok := b.(IRTime)
		return ok && av.t.Equal(bv.t)
	case IRArray:
		bv, ok := b.(IRArray)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case IRObject:
		bv, ok := b.(IRObject)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, present := bv[k]
			if !present || !Equal(v, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// CRITICAL: Go's sort.Strings uses UTF-8 which produces DIFFERENT order.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// MarshalJSON implements json.Marshaler for IRTime.
func (v IRTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// FromAny converts a plain Go value into an IRValue. It accepts the types
// database/sql drivers return (int64, string, []byte, bool, time.Time, nil)
// plus int and IRValue itself. Floats are rejected.
func FromAny(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case string:
		return IRString(val), nil
	case []byte:
		return IRString(string(val)), nil
	case int64:
		return IRInt(val), nil
	case int:
		return IRInt(val), nil
	case int32:
		return IRInt(val), nil
	case bool:
		return IRBool(val), nil
	case time.Time:
		return NewIRTime(val), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are not supported: %v", val)
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToParam converts a scalar IRValue to a Go value suitable as a
// database/sql parameter. Arrays and objects cannot be parameters.
func ToParam(v IRValue) (any, error) {
	switch val := v.(type) {
	case nil, IRNull:
		return nil, nil
	case IRString:
		return string(val), nil
	case IRInt:
		return int64(val), nil
	case IRBool:
		return bool(val), nil
	case IRTime:
		return val.t.Format(TimeLayout), nil
	case IRArray:
		return nil, fmt.Errorf("IRArray cannot be used as SQL parameter directly")
	case IRObject:
		return nil, fmt.Errorf("IRObject cannot be used as SQL parameter directly")
	default:
		return nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}
