package engine

import (
	"fmt"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// NewMemoryID returns `mem_<unixMillis>_<random>`.
func NewMemoryID(now time.Time) string {
	return fmt.Sprintf("mem_%d_%s", now.UnixMilli(), shortuuid.New()[:8])
}

// InteractionID returns the deterministic id of an interaction record.
func InteractionID(userID string, at time.Time) string {
	return fmt.Sprintf("interaction-%s-%d", userID, at.UnixMilli())
}
