// ABOUTME: Sync direction policy and conflict resolution
// ABOUTME: Decides whether a change from one side may be applied to the other
package sync

import (
	"time"

	"github.com/harperreed/vesta/models"
)

// ShouldApply reports whether a change that originated on origin may be
// applied under direction. Remote changes are pulled for every direction
// except none; local changes are pushed only when the CRM is a source.
func ShouldApply(direction models.SyncDirection, origin models.ChangeOrigin) bool {
	switch origin {
	case models.OriginRemote:
		return direction != models.DirectionNone
	case models.OriginLocal:
		return direction == models.DirectionBidirectional || direction == models.DirectionLocalToRemote
	}
	return false
}

// Resolution is the outcome of a conflict between a local edit and a remote change.
type Resolution int

const (
	TakeRemote Resolution = iota
	KeepLocal
)

func (r Resolution) String() string {
	if r == KeepLocal {
		return "keep_local"
	}
	return "take_remote"
}

// ResolveConflict decides which copy survives when an appointment changed
// locally since its last sync and the remote event changed too.
// Bidirectional is last-writer-wins with ties going to the remote copy.
func ResolveConflict(direction models.SyncDirection, local *models.Appointment, remoteUpdated time.Time) Resolution {
	if local == nil || !local.HasUnsyncedChanges() {
		return TakeRemote
	}

	switch direction {
	case models.DirectionLocalToRemote, models.DirectionNone:
		return KeepLocal
	case models.DirectionRemoteToLocal:
		return TakeRemote
	}

	if !remoteUpdated.IsZero() && local.UpdatedAt.After(remoteUpdated) {
		return KeepLocal
	}
	return TakeRemote
}
