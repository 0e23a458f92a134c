package entity

import "time"

// Cursor holds the two resumption boundaries, one per sync direction.
// Each is advanced to (max seen timestamp + 1s) only after a batch has been
// fully processed, so a crashed run replays from the same point.
type Cursor struct {
	PaymentUpdatedAt time.Time
	OrderUpdatedAt   time.Time
}
