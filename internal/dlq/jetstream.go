// Package dlq captures dropped batch elements so operators can inspect
// what producers are sending and why it was rejected. Best effort: a DLQ
// failure never changes a request's outcome.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// FailedEvent is the dead-letter record for one dropped element.
type FailedEvent struct {
	Timestamp time.Time       `json:"timestamp"`
	ServerID  string          `json:"server_id"`
	Index     int             `json:"index"`
	Reason    string          `json:"reason"`
	Detail    string          `json:"detail"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Writer records dropped elements. Implementations must tolerate a nil
// receiver so the DLQ can be disabled without branching at call sites.
type Writer interface {
	Write(ctx context.Context, failed FailedEvent) error
}

const (
	streamName    = "STATS_DLQ"
	subjectPrefix = "stats.dlq."
)

// JetStreamQueue writes failed events to NATS JetStream. Safe for use
// across multiple gateway instances.
type JetStreamQueue struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	stream  jetstream.Stream
	written uint64
}

func NewJetStreamQueue(ctx context.Context, natsURL string) (*JetStreamQueue, error) {
	conn, err := nats.Connect(natsURL,
		nats.Name("opm-stats-gateway"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{subjectPrefix + ">"},
		MaxAge:   24 * time.Hour,
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create dlq stream: %w", err)
	}

	return &JetStreamQueue{conn: conn, js: js, stream: stream}, nil
}

// Write publishes one dropped element to stats.dlq.<reason>.
func (q *JetStreamQueue) Write(ctx context.Context, failed FailedEvent) error {
	if q == nil {
		return nil
	}

	data, err := json.Marshal(failed)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	if _, err := q.js.Publish(ctx, subjectPrefix+failed.Reason, data); err != nil {
		return fmt.Errorf("publish dlq entry: %w", err)
	}

	atomic.AddUint64(&q.written, 1)
	return nil
}

// Stats reports queue state for the readiness endpoint.
func (q *JetStreamQueue) Stats(ctx context.Context) map[string]interface{} {
	if q == nil {
		return map[string]interface{}{"enabled": false}
	}

	info, err := q.stream.Info(ctx)
	if err != nil {
		return map[string]interface{}{
			"enabled":       true,
			"written_local": atomic.LoadUint64(&q.written),
			"error":         err.Error(),
		}
	}

	return map[string]interface{}{
		"enabled":        true,
		"written_local":  atomic.LoadUint64(&q.written),
		"total_messages": info.State.Msgs,
		"total_bytes":    info.State.Bytes,
	}
}

func (q *JetStreamQueue) Close() {
	if q != nil && q.conn != nil {
		q.conn.Close()
	}
}
