package model

import "github.com/oklog/ulid/v2"

// NewID generates a new ULID string for use as an entity identifier.
// ULIDs sort by creation time, so they double as a stable ordering tiebreaker.
func NewID() string {
	return ulid.Make().String()
}
