package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrNotFound indicates the referenced entry does not exist
	ErrNotFound = errors.New("cache entry not found")

	// ErrDuplicateRejected indicates ingest found a near-duplicate and no
	// force flag was set; the matching entry is returned alongside it
	ErrDuplicateRejected = errors.New("near-duplicate of an existing entry")

	// ErrStorageOverCap indicates eviction exhausted its candidates while
	// the cache is still over cap; the triggering ingest still succeeded
	ErrStorageOverCap = errors.New("cache over capacity, all remaining entries protected or in use")

	// ErrApplyFailed indicates the OS wallpaper call failed after the
	// panorama fallback was exhausted; the previous wallpaper is preserved
	ErrApplyFailed = errors.New("wallpaper apply failed")
)
