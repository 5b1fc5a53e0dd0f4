package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Channel publishes progress updates for a single receipt into the shared
// document store. Each update is merged into the receipt document under
// namespaced progress_* fields, so the document holds the latest state
// rather than an event log.
type Channel struct {
	store     Store
	receiptID string
	now       func() time.Time
}

// NewChannel creates a Channel bound to one receipt document
func NewChannel(store Store, receiptID string) *Channel {
	return &Channel{
		store:     store,
		receiptID: receiptID,
		now:       time.Now,
	}
}

// NewChannelWithClock creates a Channel with a custom time source for testing
func NewChannelWithClock(store Store, receiptID string, now func() time.Time) *Channel {
	return &Channel{
		store:     store,
		receiptID: receiptID,
		now:       now,
	}
}

// Emit writes one progress update. Details may be nil, a Map (flattened to
// one progress_detail_<key> field per retained entry) or any other Value
// (stored under progress_detail_info). Emit never fails the caller: every
// error while building or writing the update is logged and swallowed.
func (c *Channel) Emit(ctx context.Context, agent, stage, message string, percent int, details Value) {
	timestamp := c.now().UTC().Format(time.RFC3339Nano)

	fields := map[string]any{
		"progress_agent":      agent,
		"progress_stage":      stage,
		"progress_message":    message,
		"progress_percentage": percent,
		"progress_timestamp":  timestamp,
		"last_updated":        timestamp,
	}

	switch d := details.(type) {
	case nil:
	case Map:
		for key, value := range d {
			if encoded, ok := encodeDetail(key, value); ok {
				fields["progress_detail_"+key] = encoded
			}
		}
	default:
		// a bare detail value, e.g. an error message
		if encoded, ok := encodeDetail("info", d); ok {
			fields["progress_detail_info"] = encoded
		}
	}

	if err := c.store.MergeFields(ctx, c.receiptID, fields); err != nil {
		slog.Error("failed to emit progress",
			"receipt_id", c.receiptID,
			"agent", agent,
			"stage", stage,
			"error", err,
		)
		return
	}

	slog.Info("progress", "receipt_id", c.receiptID, "agent", agent, "message", message, "percent", percent)
}

// encodeDetail converts one detail value into a storable field value.
// Scalars are stored directly, composites as a JSON string. Nil values and
// empty composites report false and are skipped to keep document noise
// down.
func encodeDetail(key string, v Value) (any, bool) {
	switch d := v.(type) {
	case nil:
		return nil, false
	case String:
		return string(d), true
	case Int:
		return int64(d), true
	case Float:
		return sanitizeFloat(float64(d)), true
	case Bool:
		return bool(d), true
	case Floats:
		if len(d) == 0 {
			return nil, false
		}
	case Ints:
		if len(d) == 0 {
			return nil, false
		}
	case Strings:
		if len(d) == 0 {
			return nil, false
		}
	case List:
		if len(d) == 0 {
			return nil, false
		}
	case Map:
		if len(d) == 0 {
			return nil, false
		}
	}

	encoded, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to serialize progress detail", "key", key, "error", err)
		return fmt.Sprint(v), true
	}
	return string(encoded), true
}
