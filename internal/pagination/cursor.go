// Package pagination provides cursor-based pagination over decision history.
// Cursors are opaque (decidedAt, id) positions; (decided_at, id) is a total
// order because decision IDs are unique.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cursor is a position in a decision listing, keyed by decision time and id.
type Cursor struct {
	DecidedAt time.Time
	ID        string
}

// Encode returns an opaque cursor string.
func Encode(decidedAt time.Time, id string) string {
	raw := fmt.Sprintf("%d|%s", decidedAt.UnixNano(), id)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// Decode parses an opaque cursor string. Returns nil for empty input.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor")
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor")
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor")
	}
	return &Cursor{
		DecidedAt: time.Unix(0, nanos).UTC(),
		ID:        parts[1],
	}, nil
}

// Before reports whether the item at (decidedAt, id) sorts strictly after
// this cursor in a newest-first listing, i.e. whether it belongs to pages
// past the cursor.
func (c *Cursor) Before(decidedAt time.Time, id string) bool {
	if decidedAt.Before(c.DecidedAt) {
		return true
	}
	return decidedAt.Equal(c.DecidedAt) && id < c.ID
}

// ComputePage takes items fetched with limit+1, the requested limit, and a
// function extracting (decidedAt, id) from an item. Returns the trimmed
// page, the next cursor, and whether more pages exist.
func ComputePage[T any](items []T, limit int, key func(T) (time.Time, string)) ([]T, string, bool) {
	if len(items) <= limit {
		return items, "", false
	}
	items = items[:limit]
	last := items[len(items)-1]
	decidedAt, id := key(last)
	return items, Encode(decidedAt, id), true
}
