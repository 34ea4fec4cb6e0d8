package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sync and editing metrics for monitoring block submission, key rotation and
// lock contention
var (
	BlockVersionsAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_block_versions_accepted_total",
		Help: "Total number of block versions accepted into history",
	})

	BlockVersionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_block_versions_rejected_total",
		Help: "Total number of block versions rejected at submission",
	}, []string{"reason"}) // "old_version", "chain_broken", "locked", "wrong_epoch", "forbidden"

	KeyRotationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_key_rotations_total",
		Help: "Total number of document root key rotations",
	})

	KeyRecordsStoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_key_records_stored_total",
		Help: "Total number of document key records stored",
	})

	LockAcquisitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "editing_lock_acquisitions_total",
		Help: "Total number of edit lock acquisition attempts",
	}, []string{"outcome"}) // "granted", "contested"

	LockOverrideReleasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "editing_lock_override_releases_total",
		Help: "Total number of edit locks released by the document owner",
	})
)

// RejectionReason maps a submission error to its metrics label
func RejectionReason(code string) string {
	switch code {
	case "OLD_VERSION_BLOCK":
		return "old_version"
	case "CHAIN_BROKEN":
		return "chain_broken"
	case "BLOCK_LOCKED":
		return "locked"
	case "CONFLICT":
		return "wrong_epoch"
	case "FORBIDDEN_ACCESS":
		return "forbidden"
	default:
		return "other"
	}
}
