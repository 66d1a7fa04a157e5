package venue

import (
	"errors"
	"fmt"
)

// ErrInvalidUpdateID is the unrecoverable protocol violation from
// spec.md's Venue A reconciliation table: a delta arrives whose first
// update ID leaves a gap the snapshot cannot repair. It always wraps the
// IDs that produced it so the supervisor's log carries enough to diagnose
// a misbehaving venue.
var ErrInvalidUpdateID = errors.New("venue: update id gap, snapshot required")

func newUpdateIDGapError(lastSeenID, firstID, finalID int64) error {
	return fmt.Errorf("%w: last_seen=%d first=%d final=%d", ErrInvalidUpdateID, lastSeenID, firstID, finalID)
}

// rawFrame is either a text frame read off the socket or the sentinel
// requesting a fresh snapshot; it is the only thing the stream task ever
// pushes onto the internal channel.
type rawFrame struct {
	sentinel bool
	data     []byte
}
