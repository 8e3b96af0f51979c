package model

import "github.com/oklog/ulid/v2"

// NewID generates a new ULID string. Task IDs, worker IDs and in-flight
// dispatch tokens all come from here.
func NewID() string {
	return ulid.Make().String()
}
