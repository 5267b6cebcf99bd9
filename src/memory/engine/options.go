package engine

import (
	"time"

	"github.com/Protocol-Lattice/story-memory/src/memory/lock"
)

// Options configures the memory engine.
type Options struct {
	// Dimension of the zero vector used for metadata-only retrieval. Zero means
	// ask the embedder, falling back to 1536.
	Dimension int
	// Locker serializes fetch-then-write cycles per record id.
	Locker lock.Locker
	// Unserialized disables per-id locking. Concurrent increments or story
	// references on the same id may then lose updates.
	Unserialized bool
	// RecurringLimit bounds FindRecurringCharacters.
	RecurringLimit int
	// DefaultLimit is used when a caller passes topK <= 0 to the convenience queries.
	DefaultLimit int
	Clock        func() time.Time
}

// DefaultOptions returns the defaults used by NewEngine.
func DefaultOptions() Options {
	return Options{
		RecurringLimit: 100,
		DefaultLimit:   10,
	}
}

func (o Options) withDefaults() Options {
	defaults := DefaultOptions()
	if o.RecurringLimit <= 0 {
		o.RecurringLimit = defaults.RecurringLimit
	}
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = defaults.DefaultLimit
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	switch {
	case o.Unserialized:
		o.Locker = lock.Noop{}
	case o.Locker == nil:
		o.Locker = lock.NewLocalLocker()
	}
	return o
}
