package box

import "boxdb/pkg/boxmetrics"

// CompactionStrategy decides whether a box's log is worth rewriting,
// given the number of live keys and how many deletes have accumulated
// since the last compaction (or since open, if none has run yet).
type CompactionStrategy func(liveKeys, deletedSinceLastCompaction int) bool

// DeletedRatioStrategy triggers compaction once dead entries reach ratio
// times the number of live keys — the default, matching the kind of
// heuristic an append-only log store typically ships with.
func DeletedRatioStrategy(ratio float64) CompactionStrategy {
	return func(liveKeys, deleted int) bool {
		if liveKeys == 0 {
			return deleted > 0
		}
		return float64(deleted) >= ratio*float64(liveKeys)
	}
}

// NeverCompact disables automatic compaction; callers can still invoke
// Box.Compact explicitly.
func NeverCompact() CompactionStrategy {
	return func(int, int) bool { return false }
}

// Options configures how a box is opened.
type Options struct {
	// Lazy selects lazy value loading: Get reads the value from disk on
	// demand instead of keeping it cached in the keystore.
	Lazy bool

	// EncryptionKey, if non-empty, must be exactly 32 bytes and turns on
	// AES-256-CBC encryption of every value written to the log.
	EncryptionKey []byte

	// CompactionStrategy is consulted after every write; nil disables
	// automatic compaction (equivalent to NeverCompact()).
	CompactionStrategy CompactionStrategy

	// CrashRecovery controls what Open does when the log's tail is
	// corrupt or truncated: true discards the bad tail and opens with
	// whatever was recovered; false fails the open with
	// boxerr.ErrCorruptBox instead of silently dropping data.
	CrashRecovery bool

	// Metrics, if set, records Get/Put/Delete/Compact calls and watcher
	// counts against the box's name. Nil disables instrumentation.
	Metrics *boxmetrics.Metrics
}

// DefaultOptions returns the options an eager, unencrypted box opens
// with when the caller does not override anything.
func DefaultOptions() Options {
	return Options{
		Lazy:               false,
		CompactionStrategy: DeletedRatioStrategy(0.5),
		CrashRecovery:      true,
	}
}
