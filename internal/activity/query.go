// Package activity provides the contact history log: every contact event per
// customer, as opposed to the ledger's single latest timestamp per channel.
package activity

import (
	"strconv"
	"strings"
	"time"

	"github.com/matthewbaird/followup/internal/types"
)

// QueryOptions controls filtering and pagination for customer history queries.
type QueryOptions struct {
	Since    *time.Time      // default: 12 months ago
	Until    *time.Time      // default: now
	Channels []types.Channel // filter to specific channels
	Limit    int             // max results (default: 100, max: 500)
	Cursor   string          // cursor for pagination
}

// DefaultQueryOptions returns QueryOptions covering the trailing year.
func DefaultQueryOptions(now time.Time) QueryOptions {
	yearAgo := now.AddDate(-1, 0, 0)
	return QueryOptions{
		Since: &yearAgo,
		Until: &now,
		Limit: 100,
	}
}

func (o QueryOptions) limit() int {
	if o.Limit <= 0 || o.Limit > 500 {
		return 100
	}
	return o.Limit
}

// pageCursor is the position of the last entry on a page: its millisecond
// timestamp and event ID, matching the (occurred desc, event_id asc) order.
type pageCursor struct {
	ms      int64
	eventID string
}

func cursorAfter(e types.ActivityEntry) string {
	return strconv.FormatInt(e.OccurredAt.UnixMilli(), 10) + ":" + e.EventID
}

func (o QueryOptions) cursor() (pageCursor, bool) {
	msText, id, ok := strings.Cut(o.Cursor, ":")
	if !ok {
		return pageCursor{}, false
	}
	ms, err := strconv.ParseInt(msText, 10, 64)
	if err != nil {
		return pageCursor{}, false
	}
	return pageCursor{ms: ms, eventID: id}, true
}

// after reports whether e sorts after c.
func (c pageCursor) after(e types.ActivityEntry) bool {
	ms := e.OccurredAt.UnixMilli()
	return ms < c.ms || (ms == c.ms && e.EventID > c.eventID)
}
