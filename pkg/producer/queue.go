package producer

import (
	"bytes"
	"fmt"
)

// Encoding selects the wire format for one flush. The choice is made per
// request; the gateway accepts either on every call.
type Encoding int

const (
	EncodingJSON Encoding = iota
	EncodingLegacy
)

// ContentType returns the Content-Type header value for the encoding.
func (e Encoding) ContentType() string {
	if e == EncodingLegacy {
		return "application/x-www-form-urlencoded"
	}
	return "application/json"
}

// Queue accumulates completed events for one flush cycle. Owned by a
// single producing session; not safe for concurrent use.
type Queue struct {
	events []*Builder
}

func NewQueue() *Queue {
	return &Queue{}
}

// Add completes the event's serialized object and appends it to the
// batch. Completion at the queuing step is what guarantees the gateway
// only ever sees syntactically complete objects.
func (q *Queue) Add(b *Builder) error {
	if _, err := b.Complete(); err != nil {
		return fmt.Errorf("complete event: %w", err)
	}
	q.events = append(q.events, b)
	return nil
}

func (q *Queue) Len() int {
	return len(q.events)
}

func (q *Queue) Reset() {
	q.events = q.events[:0]
}

// Encode renders the queued batch in the requested encoding.
func (q *Queue) Encode(enc Encoding) ([]byte, error) {
	if enc == EncodingLegacy {
		return q.encodeLegacy()
	}
	return q.encodeJSON()
}

func (q *Queue) encodeJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, b := range q.events {
		if i > 0 {
			buf.WriteByte(',')
		}
		raw, err := b.Complete()
		if err != nil {
			return nil, err
		}
		buf.Write(raw)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (q *Queue) encodeLegacy() ([]byte, error) {
	var buf bytes.Buffer
	for _, b := range q.events {
		line, err := b.LegacyLine()
		if err != nil {
			return nil, err
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
