// Package retention decides when a backup copy has aged out and belongs in the archive tier.
package retention

import (
	"time"

	"github.com/tiercycle/tiercycle/pkg/types"
)

const day = 24 * time.Hour

// AgeDays returns the age of meta at now in whole days, counting a started day as a day.
// Creation times in the future yield 0.
func AgeDays(meta types.ObjectMetadata, now time.Time) int {
	age := now.Sub(meta.CreatedAt)
	if age <= 0 {
		return 0
	}
	days := int(age / day)
	if age%day != 0 {
		days++
	}
	return days
}

// ShouldArchive reports whether meta is older than the policy window at now.
// An object aged exactly WindowDays days is kept. Clock skew is not corrected.
func ShouldArchive(meta types.ObjectMetadata, policy types.RetentionPolicy, now time.Time) bool {
	return AgeDays(meta, now) > policy.WindowDays
}
