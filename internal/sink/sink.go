// Package sink defines the gateway's boundary to the columnar analytics
// store. The write path is transactional at batch granularity: a failed
// WriteBatch must not have durably written a subset of the batch, and
// implementations must refuse to report partial success upward. This is a
// required property of the chosen store technology, not an optimization.
package sink

import (
	"context"
	"errors"

	"github.com/MOHCentral/opm-stats-gateway/internal/models"
)

// ErrSinkUnavailable wraps every bulk-write failure, including timeouts
// and per-item rejections. The orchestrator maps it to sink_error for all
// elements that had passed validation; there is no internal retry.
var ErrSinkUnavailable = errors.New("sink write failed")

// Writer bulk-inserts canonical events. Implementations must be safe for
// concurrent invocation by many simultaneous requests.
type Writer interface {
	WriteBatch(ctx context.Context, events []models.CanonicalEvent) error
}
