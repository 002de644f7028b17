// Package playback holds the clock math that lets every participant's audio
// element converge on the same position from a shared "track started at T"
// fact. Wall clocks are compared directly; no skew correction is attempted.
package playback

import "time"

// State is the playback triple a client needs to position its audio element.
type State struct {
	TrackID   string
	IsPlaying bool
	StartedAt time.Time
}

// Position computes the local seek offset for a track that started at
// startedAt and runs for duration. When the elapsed time has passed the end
// of the track the track is treated as finished: the offset wraps to zero
// and, if play is still asserted, playback restarts from the start. There is
// no auto-advance to a next track.
func Position(startedAt time.Time, duration time.Duration, now time.Time) (offset time.Duration, finished bool) {
	elapsed := now.Sub(startedAt)
	if elapsed < 0 {
		// sender clock ahead of ours; clamp instead of seeking negative
		return 0, false
	}
	if duration > 0 && elapsed >= duration {
		return 0, true
	}
	return elapsed, false
}

// Seek resolves the full instruction for a just-loaded client: where to seek
// and whether to start playing.
func Seek(st State, duration time.Duration, now time.Time) (offset time.Duration, play bool) {
	if st.StartedAt.IsZero() {
		return 0, false
	}
	offset, _ = Position(st.StartedAt, duration, now)
	return offset, st.IsPlaying
}
