package sync

import "time"

// Winner identifies which side of a conflict prevails.
type Winner int

const (
	WinnerLocal Winner = iota
	WinnerRemote
)

func (w Winner) String() string {
	if w == WinnerRemote {
		return "remote"
	}
	return "local"
}

// Resolve applies last-write-wins over the record timestamps. Revision is
// the tiebreaker for clock skew within the same instant, and an exact tie
// keeps the local copy so that an offline terminal never loses its own
// edits to an equally old remote write.
func Resolve(localUpdated time.Time, localRev int64, remoteUpdated time.Time, remoteRev int64) Winner {
	if remoteUpdated.After(localUpdated) {
		return WinnerRemote
	}
	if localUpdated.After(remoteUpdated) {
		return WinnerLocal
	}
	if remoteRev > localRev {
		return WinnerRemote
	}
	return WinnerLocal
}
