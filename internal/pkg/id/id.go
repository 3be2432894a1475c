package id

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string. ULIDs are lexicographically sortable
// by creation time and safe for use as DynamoDB partition keys.
func New() string {
	return NewAt(time.Now())
}

// NewAt generates a ULID whose time component is t. Records keyed by NewAt
// sort in the order of the clock that produced them. IDs minted within the
// same millisecond still sort in call order.
func NewAt(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}
