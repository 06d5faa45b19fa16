package socket

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

func generateID() string {
	return uuid.NewString()
}

// newMessageID returns a ULID so queued messages sort by enqueue time in logs.
func newMessageID(now time.Time) string {
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return ulid.Make().String()
	}
	return id.String()
}
