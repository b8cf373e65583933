// Package producer implements the producer-side collaborators of the
// stats gateway: an event builder, a per-session batch queue, and a
// transport client. Producers complete each serialized event before it
// enters the outbound batch; the gateway never repairs truncated objects.
package producer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

var ErrCompleted = errors.New("event already completed")

type field struct {
	key   string
	value interface{}
}

// Builder assembles one event's fields into a serialized object. The
// object stays unterminated until Complete appends the closing delimiter,
// which happens when the event enters a Queue. Field insertion order is
// preserved in the serialized form.
type Builder struct {
	fields    []field
	completed bool
	raw       []byte
}

// NewEvent starts an event with its required identity fields.
func NewEvent(eventType, matchID string) *Builder {
	b := &Builder{}
	b.Set("type", eventType)
	b.Set("match_id", matchID)
	return b
}

// Set adds or replaces a field. Values may be strings, numbers, or
// booleans; other types fail at serialization time.
func (b *Builder) Set(key string, value interface{}) *Builder {
	if b.completed {
		return b
	}
	for i := range b.fields {
		if b.fields[i].key == key {
			b.fields[i].value = value
			return b
		}
	}
	b.fields = append(b.fields, field{key: key, value: value})
	return b
}

// SetTimestamp stamps the event with an epoch-milliseconds timestamp.
func (b *Builder) SetTimestamp(t time.Time) *Builder {
	return b.Set("timestamp", t.UnixMilli())
}

// partial renders the object without its terminating delimiter.
func (b *Builder) partial() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range b.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	return buf.Bytes(), nil
}

// Complete terminates the serialized object and freezes the builder.
// Called by the queuing step; idempotent.
func (b *Builder) Complete() (json.RawMessage, error) {
	if b.completed {
		return b.raw, nil
	}
	p, err := b.partial()
	if err != nil {
		return nil, err
	}
	b.raw = append(p, '}')
	b.completed = true
	return b.raw, nil
}

// LegacyLine renders the event in the legacy URL-encoded line format.
// All values become strings on this path; numeric and boolean semantics
// are not preserved by the gateway for legacy records.
func (b *Builder) LegacyLine() (string, error) {
	var buf bytes.Buffer
	for i, f := range b.fields {
		if i > 0 {
			buf.WriteByte('&')
		}
		s, err := stringify(f.value)
		if err != nil {
			return "", fmt.Errorf("field %q: %w", f.key, err)
		}
		buf.WriteString(url.QueryEscape(f.key))
		buf.WriteByte('=')
		buf.WriteString(url.QueryEscape(s))
	}
	return buf.String(), nil
}

func stringify(value interface{}) (string, error) {
	switch t := value.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", value)
	}
}
