package chunk

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDSource mints identifiers for newly opened units and single-shot chunks.
// Aggregators never generate ids on their own, so a deterministic source
// makes whole output sequences reproducible.
type IDSource func() string

// UUIDSource returns the default id source, producing ids of the form
// "prefix-<short-uuid>". An empty prefix yields the bare short uuid.
func UUIDSource(prefix string) IDSource {
	return func() string {
		id := uuid.NewString()[:8]
		if prefix == "" {
			return id
		}
		return prefix + "-" + id
	}
}

// Sequence returns a deterministic id source yielding "prefix-1",
// "prefix-2", ... It is safe to share, though each stream normally owns one.
func Sequence(prefix string) IDSource {
	var n atomic.Uint64
	return func() string {
		return prefix + "-" + strconv.FormatUint(n.Add(1), 10)
	}
}
