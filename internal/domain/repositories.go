package domain

import (
	"context"
	"iter"
	"time"
)

// Store handles deduplicated, size-bounded persistence of image bytes and
// metadata. It exclusively owns the on-disk blobs and the metadata index.
type Store interface {
	// Ingest stores new image bytes under their content hash. Ingesting
	// identical bytes is idempotent and returns the existing entry. A
	// near-duplicate hit without force returns the matching entry together
	// with ErrDuplicateRejected. An ErrStorageOverCap result is advisory:
	// the entry was stored, but eviction could not bring the cache back
	// under cap.
	Ingest(ctx context.Context, data []byte, meta SourceMeta, force bool) (CacheEntry, error)

	// Get returns the entry with the given id or ErrNotFound.
	Get(id string) (CacheEntry, error)

	// Update applies a metadata mutation and returns the updated entry.
	Update(id string, m Mutation) (CacheEntry, error)

	// Delete removes an entry, its bytes and any thumbnail. Explicit
	// deletion is always permitted regardless of protection status.
	Delete(id string) error

	// List yields entries matching the filter. The sequence is lazy and
	// restartable: each iteration re-evaluates the filter against current
	// state. Order is not guaranteed.
	List(f Filter) iter.Seq[CacheEntry]

	// MarkApplied refreshes LastAppliedAt and increments ViewCount.
	MarkApplied(id string, at time.Time) error

	// SetActive records the entry ids currently assigned to monitors;
	// active entries are never evicted.
	SetActive(ids []string)

	// PreviewEviction returns, without mutating anything, the entries the
	// eviction policy would remove next, in removal order.
	PreviewEviction() []CacheEntry

	// TotalSize returns the aggregate size of all stored blobs.
	TotalSize() int64

	// Count returns the number of stored entries.
	Count() int

	Close() error
}

// Composer turns a monitor assignment into visible desktop state. The
// previous wallpaper must remain visible until the new state is fully ready.
type Composer interface {
	Apply(ctx context.Context, assignment MonitorAssignment) error
}

// Topology reports the monitor layout. Discovery belongs to the OS
// collaborator; consumers never probe displays themselves.
type Topology interface {
	Monitors() ([]Monitor, error)
}
