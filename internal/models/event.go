package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// CanonicalEvent is the normalized unit written to the sink. Every event
// that reaches the sink has a non-empty Type and MatchID, a resolved
// Timestamp, and a ServerID derived from the authenticated token.
type CanonicalEvent struct {
	Type      string
	MatchID   string
	Timestamp time.Time
	ServerID  string
	Fields    map[string]Value
}

// Document renders the event as the flat document shape indexed by the
// analytics store. Field keys never collide with the reserved keys
// because the canonicalizer strips them from the extension bag.
func (e *CanonicalEvent) Document() map[string]interface{} {
	doc := make(map[string]interface{}, len(e.Fields)+4)
	doc["type"] = e.Type
	doc["match_id"] = e.MatchID
	doc["server_id"] = e.ServerID
	doc["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	for k, v := range e.Fields {
		doc[k] = v
	}
	return doc
}

// Element error reason kinds. Open enumeration: stable kind tags with a
// human-readable detail string alongside.
const (
	ReasonParse      = "parse_error"
	ReasonValidation = "validation_error"
	ReasonSink       = "sink_error"
)

// ElementError records why one element of a batch was not processed.
// Index is the element's position in the original request body.
type ElementError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// BatchResult is the per-request outcome document. Processed counts only
// events that were normalized and accepted by the sink; callers treat
// processed == 0 as failure regardless of transport status.
type BatchResult struct {
	Total     int            `json:"total"`
	Processed int            `json:"processed"`
	Errors    []ElementError `json:"errors"`
}

// ValueKind discriminates the scalar kinds a field value may hold.
type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindBool
)

// Value is a tagged union over the JSON scalar types permitted in an
// event's extension bag: string, number, or boolean. Nulls, objects and
// arrays are not legal field values.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
}

func StringValue(s string) Value  { return Value{kind: KindString, str: s} }
func NumberValue(f float64) Value { return Value{kind: KindNumber, num: f} }
func BoolValue(b bool) Value      { return Value{kind: KindBool, b: b} }

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) Str() string     { return v.str }
func (v Value) Num() float64    { return v.num }
func (v Value) Bool() bool      { return v.b }

// FromAny converts a decoded JSON value into a Value. Only scalars are
// accepted; everything else is rejected so the caller can surface a
// per-element validation error.
func FromAny(raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case string:
		return StringValue(t), nil
	case float64:
		return NumberValue(t), nil
	case bool:
		return BoolValue(t), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", raw)
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return json.Marshal(v.str)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Equal reports whether two values hold the same kind and payload.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == other.num
	case KindBool:
		return v.b == other.b
	default:
		return v.str == other.str
	}
}
