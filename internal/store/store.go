// Package store provides session and history persistence for the editor.
//
// Sessions live in memory for a single process or in Redis when several
// instances share state. Edit history lives in memory, or in DynamoDB with
// the images stored in S3. Every store expires its records: sessions after
// SessionTTL of inactivity, DynamoDB history after HistoryTTL.
package store

import (
	"crypto/rand"
	"time"

	"github.com/fpang/mystic-studio/internal/session"
	"github.com/oklog/ulid/v2"
)

// SessionTTL is the default lifetime of an idle session.
const SessionTTL = 24 * time.Hour

// HistoryTTL is the default lifetime of a DynamoDB history record. It
// matches the lifecycle rule on the history bucket.
const HistoryTTL = 7 * 24 * time.Hour

// DefaultHistoryLimit is used when List is called with a non-positive limit.
const DefaultHistoryLimit = 20

// MaxHistoryLimit caps the number of items a single List returns.
const MaxHistoryLimit = 100

// Compile-time interface checks.
var (
	_ session.Store        = (*MemorySessionStore)(nil)
	_ session.Store        = (*RedisSessionStore)(nil)
	_ session.HistoryStore = (*MemoryHistoryStore)(nil)
	_ session.HistoryStore = (*DynamoHistoryStore)(nil)
	_ session.Locker       = (*RedisLocker)(nil)
)

// newHistoryID returns a ULID for t. ULIDs sort lexically by time, so
// history keys list newest-first with a reverse sort.
func newHistoryID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// clampLimit normalizes a List limit.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}
